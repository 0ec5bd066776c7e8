package utils

// AvgCharsPerToken is a conservative estimate for mixed content (code + JSON).
const AvgCharsPerToken = 2

// EstimateCharsFromTokens converts a token budget into a character budget.
func EstimateCharsFromTokens(tokens int) int {
	return tokens * AvgCharsPerToken
}

// TrimPrefixSuffix trims the context pair to fit within maxTokens while
// keeping the text nearest the cursor: the tail of prefix and the head of
// suffix. The budget is split evenly, with unused budget from one side
// rolling over to the other. Cuts land on line boundaries so the predictor
// never sees a torn line. Returns the trimmed pair and whether trimming
// occurred.
func TrimPrefixSuffix(prefix, suffix string, maxTokens int) (string, string, bool) {
	if maxTokens <= 0 {
		return prefix, suffix, false
	}

	maxChars := EstimateCharsFromTokens(maxTokens)
	if len(prefix)+len(suffix) <= maxChars {
		return prefix, suffix, false
	}

	half := maxChars / 2

	prefixBudget := half
	suffixBudget := maxChars - half
	if len(prefix) < prefixBudget {
		suffixBudget += prefixBudget - len(prefix)
		prefixBudget = len(prefix)
	} else if len(suffix) < suffixBudget {
		prefixBudget += suffixBudget - len(suffix)
		suffixBudget = len(suffix)
	}

	return trimHead(prefix, prefixBudget), trimTail(suffix, suffixBudget), true
}

// trimHead drops the start of s so at most budget bytes remain, advancing to
// the next line start when the cut lands mid-line.
func trimHead(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	cut := len(s) - budget
	for cut < len(s) && s[cut-1] != '\n' {
		cut++
	}
	return s[cut:]
}

// trimTail drops the end of s so at most budget bytes remain, retreating to
// the previous line end when the cut lands mid-line.
func trimTail(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	cut := budget
	for cut > 0 && s[cut-1] != '\n' {
		cut--
	}
	return s[:cut]
}
