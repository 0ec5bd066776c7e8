package ctx

import (
	"context"
	"strings"
)

// Editor exposes the host queries context sources need. Narrowed to an
// interface here so the package stays editor-agnostic.
type Editor interface {
	// Diagnostics returns linter messages for the focused document, one per
	// line, already formatted for a prompt.
	Diagnostics() []string
}

// maxDiagnostics caps how many linter messages are forwarded; past a handful
// they repeat the same root cause.
const maxDiagnostics = 8

// diagnostics surfaces the editor's linter messages so the backend can
// suggest edits that fix problems the user is already seeing.
type diagnostics struct {
	editor Editor
}

func (d *diagnostics) Gather(_ context.Context, _ *Request) string {
	lines := d.editor.Diagnostics()
	if len(lines) == 0 {
		return ""
	}
	if len(lines) > maxDiagnostics {
		lines = lines[:maxDiagnostics]
	}
	return "Diagnostics:\n" + strings.Join(lines, "\n")
}
