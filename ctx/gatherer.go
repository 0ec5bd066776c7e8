package ctx

import (
	"context"
	"strings"
	"sync"
	"time"

	"difftab/engine"
)

// GatherTimeout is the maximum time allowed for all context sources to complete.
const GatherTimeout = 200 * time.Millisecond

// Request carries metadata to each context source.
type Request struct {
	FilePath      string
	WorkspacePath string
}

// Source gathers additional context for prediction requests. Sources return
// prompt-ready text, or "" when they have nothing to contribute.
type Source interface {
	Gather(ctx context.Context, req *Request) string
}

// Gatherer runs context sources in parallel and merges their output.
type Gatherer struct {
	workspacePath string
	sources       []Source
}

// NewGatherer creates a Gatherer with all built-in context sources.
// workspacePath is the host's working directory, used by repository sources.
// editor may be nil, which disables the sources that query the editor.
func NewGatherer(workspacePath string, editor Editor) *Gatherer {
	g := &Gatherer{
		workspacePath: workspacePath,
		sources: []Source{
			&gitDiff{},
		},
	}
	if editor != nil {
		g.sources = append(g.sources, &diagnostics{editor: editor})
	}
	return g
}

// ContextFunc adapts the gatherer to the engine's context hook.
func (g *Gatherer) ContextFunc() engine.ContextFunc {
	return func(ctx context.Context, filePath string) string {
		return g.Gather(ctx, &Request{FilePath: filePath, WorkspacePath: g.workspacePath})
	}
}

// Gather runs all sources in parallel with a shared timeout and joins their
// output with blank lines.
func (g *Gatherer) Gather(ctx context.Context, req *Request) string {
	if len(g.sources) == 0 {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, GatherTimeout)
	defer cancel()

	results := make([]string, len(g.sources))
	var wg sync.WaitGroup

	for i, s := range g.sources {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.Gather(ctx, req)
		}()
	}

	wg.Wait()

	var parts []string
	for _, r := range results {
		if r != "" {
			parts = append(parts, r)
		}
	}

	return strings.Join(parts, "\n\n")
}
