package ctx

import (
	"bufio"
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"difftab/logger"
)

// maxDiffSize is the threshold (in bytes) below which the full diff is used.
// Above this, only changed declaration symbols are extracted.
const maxDiffSize = 4096

const maxChangedSymbols = 50

// gitDiff supplies staged-diff context for commit message editing.
type gitDiff struct{}

func (g *gitDiff) Gather(ctx context.Context, req *Request) string {
	if !strings.HasSuffix(req.FilePath, "COMMIT_EDITMSG") {
		return ""
	}

	workDir := req.WorkspacePath
	if workDir == "" {
		// COMMIT_EDITMSG lives in .git, whose parent is the work tree
		workDir = filepath.Dir(filepath.Dir(req.FilePath))
	}

	fullDiff := runGit(ctx, workDir, "diff", "--cached")
	if fullDiff == "" {
		return ""
	}

	if len(fullDiff) <= maxDiffSize {
		return "Staged changes:\n```diff\n" + strings.TrimSuffix(fullDiff, "\n") + "\n```"
	}

	// Large diff: keep only changed declarations
	minimalDiff := runGit(ctx, workDir, "diff", "--cached", "-U0")
	if minimalDiff == "" {
		return ""
	}

	symbols := extractChangedSymbols(minimalDiff, maxChangedSymbols)
	if len(symbols) == 0 {
		return ""
	}

	return "Changed declarations:\n" + strings.Join(symbols, "\n")
}

// runGit executes a git command and returns its stdout, or "" on error.
func runGit(ctx context.Context, dir string, args ...string) string {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		logger.Debug("gitdiff: git %s failed: %v", args[0], err)
		return ""
	}
	return string(out)
}

// extractChangedSymbols parses a unified diff (-U0) and collects declaration
// signatures from added/removed lines, at most maxSymbols of them.
func extractChangedSymbols(diff string, maxSymbols int) []string {
	if diff == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var symbols []string

	scanner := bufio.NewScanner(strings.NewReader(diff))
	for scanner.Scan() {
		line := scanner.Text()

		// Skip metadata lines
		if strings.HasPrefix(line, "diff --git ") ||
			strings.HasPrefix(line, "---") ||
			strings.HasPrefix(line, "+++") ||
			strings.HasPrefix(line, "index ") ||
			strings.HasPrefix(line, "@@") {
			continue
		}

		if len(line) == 0 || (line[0] != '+' && line[0] != '-') {
			continue
		}

		content := strings.TrimSpace(line[1:])
		if !isDeclarationLine(content) {
			continue
		}

		sym := string(line[0]) + content
		if _, ok := seen[sym]; ok || len(symbols) >= maxSymbols {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}

	return symbols
}

// isDeclarationLine checks if a line looks like a function/type/class declaration
// across common languages (Go, Python, Rust, JS/TS, C/C++, Java).
func isDeclarationLine(line string) bool {
	prefixes := []string{
		"func ", "func(", // Go
		"def ",                     // Python
		"class ",                   // Python, JS/TS, Java, C++
		"type ",                    // Go, TS
		"struct ",                  // Go, Rust, C/C++
		"fn ",                      // Rust
		"impl ",                    // Rust
		"trait ",                   // Rust
		"enum ",                    // Rust, Java, TS
		"interface ",               // Go, TS, Java
		"export function ",         // JS/TS
		"export default function ", // JS/TS
		"export const ",            // JS/TS
		"export class ",            // JS/TS
		"async function ",          // JS/TS
		"export async function ",   // JS/TS
		"public ",                  // Java, C#
		"private ",                 // Java, C#
		"protected ",               // Java, C#
		"static ",                  // Java, C/C++
	}

	for _, prefix := range prefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}

	return false
}
