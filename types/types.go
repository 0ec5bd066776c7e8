package types

// DocumentSnapshot is an immutable view of the document at a point in time.
// Version increments on every host-reported change.
type DocumentSnapshot struct {
	Text    string
	Version int
}

// DocumentChange is one host-reported mutation of the document.
// Tag is non-empty when the change came from a tagged transaction
// (for example the engine's own accept); it echoes Transaction.Tag.
type DocumentChange struct {
	Snapshot DocumentSnapshot
	// From/To/Inserted describe the byte-range edit that produced Snapshot,
	// offsets into the previous text.
	From     int
	To       int
	Inserted string
	Tag      string
}

// Prediction is the canonical predictor output after normalization.
// CursorOffset is a byte offset into Text, or -1 when the raw response
// carried no cursor marker.
type Prediction struct {
	Text         string
	CursorOffset int
}

// ChangeSpan is one contiguous difference between old and predicted text.
// From/To are byte offsets into the old text; Inserted replaces that range.
// A pure insertion has From == To; a pure deletion has Inserted == "".
type ChangeSpan struct {
	From     int
	To       int
	Inserted string
}

// Suggestion is the single live proposal held by the engine.
// It is valid only for the exact OldText it was computed from; if the live
// document diverges the suggestion is stale and must be dropped.
type Suggestion struct {
	OldText string
	NewText string
	// AnchorFrom/AnchorTo bound the region of the document the suggestion
	// replaces. Whole-document anchoring uses [0, len(OldText)).
	AnchorFrom int
	AnchorTo   int
	// CursorOffset is the post-accept cursor position as a byte offset into
	// NewText, or -1 to default to the end of the last inserted span.
	CursorOffset int
	Spans        []ChangeSpan
}

// HasChanges reports whether the suggestion actually differs from OldText.
func (s *Suggestion) HasChanges() bool {
	return len(s.Spans) > 0
}

// Patch describes the most recent document edit in compact form, handed to
// the predictor as context for the next request.
type Patch struct {
	Line          int // 1-indexed line of the edit in the old document
	Original      string
	Modified      string
	ContextBefore []string // up to 2 lines, absent entries omitted
	ContextAfter  []string // up to 2 lines, absent entries omitted
	Rendered      string   // optional pre-rendered unified-diff form
}

// Transaction is the document edit the host applies on accept: replace
// [From, To) with Insert and move the cursor to Cursor (byte offset into the
// resulting text). Tag marks the resulting change event as self-inflicted so
// the engine does not refetch in response to its own edit.
type Transaction struct {
	From   int
	To     int
	Insert string
	Cursor int
	Tag    string
}

// DecorationKind selects the payload of a Decoration.
type DecorationKind string

const (
	// DecorationGhostText renders proposed text inline at Line/Col.
	DecorationGhostText DecorationKind = "ghost_text"
	// DecorationAcceptIndicator renders the accept affordance at Line.
	DecorationAcceptIndicator DecorationKind = "accept_indicator"
)

// Decoration is one renderer-agnostic display instruction derived from the
// current suggestion's change spans. Line is 1-indexed, Col is a 0-indexed
// byte column.
type Decoration struct {
	Kind DecorationKind
	Line int
	Col  int
	// Text is the ghost content for DecorationGhostText.
	Text string
	// Replaces is true when the ghost text stands in for existing text on the
	// line rather than appending to it.
	Replaces bool
	// Above is true when a ghost line renders above its anchor line instead
	// of below it. Used for insertions that precede the first line.
	Above bool
}

// PredictRequest carries everything a provider may use to build its prompt.
// Prefix runs up to the selection end and Suffix starts at the selection
// start, so the two overlap by the selected range; both may be trimmed to the
// engine's context budget. Document is the untrimmed snapshot text, the
// splice target for providers that prompt over a window.
type PredictRequest struct {
	Prefix   string
	Suffix   string
	Patch    *Patch // last edit, nil when none recorded
	FilePath string
	// Document is the full snapshot text the request was built from.
	Document string
	// SelectionFrom/SelectionTo are byte offsets of the host selection in
	// Document; a collapsed selection has SelectionFrom == SelectionTo.
	SelectionFrom int
	SelectionTo   int
	// ExtraContext holds auxiliary editor context (git diff and similar),
	// gathered best-effort and possibly empty.
	ExtraContext string
	// Generation is the scheduler generation that dispatched this request.
	Generation uint64
}

// ProviderKind names a configured provider implementation.
type ProviderKind string

const (
	ProviderKindFIM     ProviderKind = "fim"
	ProviderKindInline  ProviderKind = "inline"
	ProviderKindRewrite ProviderKind = "rewrite"
)

// FIMTokenConfig holds fill-in-the-middle token configuration.
type FIMTokenConfig struct {
	Prefix string // token before the prefix content, e.g. "<|fim_prefix|>"
	Suffix string // token before the suffix content, e.g. "<|fim_suffix|>"
	Middle string // token before the completion, e.g. "<|fim_middle|>"
}

// ProviderConfig holds configuration shared by provider implementations.
type ProviderConfig struct {
	ProviderURL         string
	APIKey              string
	ProviderModel       string
	ProviderTemperature float64
	ProviderMaxTokens   int // generation budget
	MaxContextTokens    int // input trimming budget (0 = no limit)
	ProviderTopK        int
	CompletionPath      string // e.g. "/v1/completions"
	FIMTokens           FIMTokenConfig
	PrivacyMode         bool
}
