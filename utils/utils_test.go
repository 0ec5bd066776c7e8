package utils

import (
	"strings"
	"testing"

	"difftab/assert"
)

func TestEstimateCharsFromTokens(t *testing.T) {
	assert.Equal(t, 200, EstimateCharsFromTokens(100), "chars for 100 tokens")
	assert.Equal(t, 0, EstimateCharsFromTokens(0), "chars for 0 tokens")
}

func TestTrimPrefixSuffix_NoTrimNeeded(t *testing.T) {
	prefix, suffix, trimmed := TrimPrefixSuffix("short", "also short", 100)
	assert.Equal(t, "short", prefix, "prefix unchanged")
	assert.Equal(t, "also short", suffix, "suffix unchanged")
	assert.False(t, trimmed, "trimmed flag")
}

func TestTrimPrefixSuffix_ZeroBudget(t *testing.T) {
	prefix, suffix, trimmed := TrimPrefixSuffix("aaa", "bbb", 0)
	assert.Equal(t, "aaa", prefix, "prefix with zero budget")
	assert.Equal(t, "bbb", suffix, "suffix with zero budget")
	assert.False(t, trimmed, "trimmed flag with zero budget")
}

func TestTrimPrefixSuffix_KeepsTailOfPrefix(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("line aaaaaaaaaa\n")
	}
	prefix := sb.String() + "near cursor"

	got, _, trimmed := TrimPrefixSuffix(prefix, "", 20)

	assert.True(t, trimmed, "trimmed flag")
	assert.True(t, strings.HasSuffix(got, "near cursor"), "tail of prefix kept")
	assert.Less(t, len(got), len(prefix), "prefix shrank")
}

func TestTrimPrefixSuffix_KeepsHeadOfSuffix(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("near cursor\n")
	for i := 0; i < 50; i++ {
		sb.WriteString("line bbbbbbbbbb\n")
	}
	suffix := sb.String()

	_, got, trimmed := TrimPrefixSuffix("", suffix, 20)

	assert.True(t, trimmed, "trimmed flag")
	assert.True(t, strings.HasPrefix(got, "near cursor\n"), "head of suffix kept")
	assert.Less(t, len(got), len(suffix), "suffix shrank")
}

func TestTrimPrefixSuffix_CutsOnLineBoundary(t *testing.T) {
	prefix := "first line\nsecond line\nthird line"
	got, _, trimmed := TrimPrefixSuffix(prefix, "", 8)

	assert.True(t, trimmed, "trimmed flag")
	if got != "" && got != prefix && !strings.Contains(prefix, "\n"+got) {
		t.Errorf("trimmed prefix %q does not start at a line boundary", got)
	}
}

func TestTrimPrefixSuffix_UnusedBudgetRollsOver(t *testing.T) {
	// Tiny prefix, large suffix: prefix's unused half extends the suffix
	// allotment.
	suffix := strings.Repeat("s-line\n", 40)
	gotPrefix, gotSuffix, trimmed := TrimPrefixSuffix("p\n", suffix, 50)

	assert.True(t, trimmed, "trimmed flag")
	assert.Equal(t, "p\n", gotPrefix, "small prefix intact")
	assert.Greater(t, len(gotSuffix), 50, "suffix used rolled-over budget")
}
