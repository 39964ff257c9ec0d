package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"releaseweaver/internal/release"
)

func (a *app) validateTagCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "validate-tag <tag|ref>",
		Short: "Check a tag and print the version it releases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.ran = true
			rel, err := release.Resolve(release.Event{Ref: args[0]})
			if err != nil {
				a.exit = ExitInvalidInvocation
				return err
			}
			switch OutputFormat(output) {
			case OutputJSON:
				err = writeJSON(cmd.OutOrStdout(), map[string]string{"tag": rel.Tag, "version": rel.Version})
			case OutputText:
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", rel.Tag, rel.Version)
			default:
				a.exit = ExitInvalidInvocation
				return invalidInvocationf("invalid --output %q (expected text|json)", output)
			}
			if err != nil {
				a.exit = ExitInternalError
				return err
			}
			a.exit = ExitSuccess
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "text|json")
	return cmd
}
