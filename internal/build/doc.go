// Package build produces release artifacts by running per-format shell
// recipes in an isolated environment and collecting the files they declare.
package build
