package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"releaseweaver/internal/dag"
	"releaseweaver/internal/release"
)

// Summary is the machine-readable report of a run.
type Summary struct {
	RunID      string         `json:"runId"`
	Status     release.Status `json:"status"`
	Code       release.Code   `json:"code,omitempty"`
	Error      string         `json:"error,omitempty"`
	Source     string         `json:"source"`
	Tag        string         `json:"tag,omitempty"`
	Version    string         `json:"version,omitempty"`
	GraphHash  string         `json:"graphHash,omitempty"`
	TraceHash  string         `json:"traceHash,omitempty"`
	DurationMs int64          `json:"durationMs"`
	Jobs       []JobSummary   `json:"jobs"`

	Warnings     []string       `json:"warnings,omitempty"`
	SoftFailures []ErrorSummary `json:"softFailures,omitempty"`
}

type JobSummary struct {
	Name       string            `json:"name"`
	State      dag.JobState      `json:"state"`
	Reason     dag.SkipReason    `json:"reason,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Code       release.Code      `json:"code,omitempty"`
	Error      string            `json:"error,omitempty"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	DurationMs int64             `json:"durationMs"`
}

type ErrorSummary struct {
	Code  release.Code `json:"code"`
	Error string       `json:"error"`
}

func summarize(run *release.Run) Summary {
	s := Summary{
		RunID:      run.ID,
		Status:     run.Status,
		Source:     run.Event.Source(),
		Tag:        run.Release.Tag,
		Version:    run.Release.Version,
		GraphHash:  run.GraphHash,
		DurationMs: run.Duration().Milliseconds(),
		Jobs:       []JobSummary{},
		Warnings:   run.Warnings(),
	}
	if run.Err != nil {
		s.Code = release.CodeOf(run.Err)
		s.Error = run.Err.Error()
	}
	if len(run.Trace.Events) > 0 {
		if h, err := run.Trace.Hash(); err == nil {
			s.TraceHash = h
		}
	}
	for _, j := range run.Jobs {
		js := JobSummary{
			Name:       j.Name,
			State:      j.State,
			Reason:     j.Reason,
			Cause:      j.Cause,
			Outputs:    j.Outputs,
			DurationMs: j.Duration.Milliseconds(),
		}
		if j.Err != nil {
			js.Code = release.CodeOf(j.Err)
			js.Error = j.Err.Error()
		}
		s.Jobs = append(s.Jobs, js)
	}
	for _, err := range run.SoftFailures() {
		s.SoftFailures = append(s.SoftFailures, ErrorSummary{Code: release.CodeOf(err), Error: err.Error()})
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type palette struct {
	title, ok, bad, skip, dim lipgloss.Style
}

func newPalette(w io.Writer) palette {
	r := lipgloss.NewRenderer(w)
	return palette{
		title: r.NewStyle().Bold(true),
		ok:    r.NewStyle().Foreground(lipgloss.Color("2")),
		bad:   r.NewStyle().Foreground(lipgloss.Color("1")),
		skip:  r.NewStyle().Foreground(lipgloss.Color("3")),
		dim:   r.NewStyle().Faint(true),
	}
}

func (p palette) status(s release.Status) lipgloss.Style {
	switch s {
	case release.StatusAllSucceeded:
		return p.ok
	case release.StatusSkipped:
		return p.skip
	default:
		return p.bad
	}
}

// writeText renders a human-readable run report.
func writeText(w io.Writer, s Summary) error {
	p := newPalette(w)
	var b strings.Builder

	subject := s.Tag
	if subject == "" {
		subject = "(no tag)"
	}
	fmt.Fprintf(&b, "%s %s  %s\n", p.title.Render("release"), subject, p.status(s.Status).Render(string(s.Status)))
	if s.Error != "" {
		fmt.Fprintf(&b, "  %s %s\n", p.bad.Render(string(s.Code)), s.Error)
	}

	width := 0
	for _, j := range s.Jobs {
		width = max(width, lipgloss.Width(j.Name))
	}
	for _, j := range s.Jobs {
		name := j.Name + strings.Repeat(" ", width-lipgloss.Width(j.Name))
		var mark, detail string
		switch j.State {
		case dag.JobSucceeded:
			mark = p.ok.Render("ok  ")
			detail = successDetail(j)
		case dag.JobFailed:
			mark = p.bad.Render("FAIL")
			detail = j.Error
		case dag.JobSkipped:
			mark = p.skip.Render("skip")
			detail = string(j.Reason)
			if j.Cause != "" {
				detail += " (" + j.Cause + ")"
			}
		default:
			mark = string(j.State)
		}
		dur := p.dim.Render(time.Duration(j.DurationMs * int64(time.Millisecond)).String())
		fmt.Fprintf(&b, "  %s %s  %s  %s\n", mark, name, dur, detail)
	}

	for _, warn := range s.Warnings {
		fmt.Fprintf(&b, "  %s %s\n", p.skip.Render("warning:"), warn)
	}
	for _, sf := range s.SoftFailures {
		fmt.Fprintf(&b, "  %s %s\n", p.skip.Render("not delivered:"), sf.Error)
	}
	if s.TraceHash != "" {
		fmt.Fprintf(&b, "  %s\n", p.dim.Render("trace "+s.TraceHash))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func successDetail(j JobSummary) string {
	if url := j.Outputs[release.OutputURL]; url != "" {
		return url
	}
	keys := make([]string, 0, len(j.Outputs))
	for k := range j.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+j.Outputs[k])
	}
	return strings.Join(parts, " ")
}
