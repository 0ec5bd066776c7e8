package text

const (
	// SimilarityThreshold is the minimum similarity score for considering
	// removed and inserted blocks as corresponding (a modification refined
	// at character level vs an unrelated replacement).
	SimilarityThreshold = 0.3
)
