package engine

import (
	"context"
	"time"

	"difftab/types"
)

// Host is the editor surface the engine drives. Implemented by
// buffer.Host for Neovim integration.
//
// Text and Selection report the host's cached document state and must be
// cheap; the host keeps them in sync by pushing DocumentChanged events into
// the engine. ApplyTransaction performs a range replacement plus cursor
// placement and must deliver the resulting change event with the
// transaction's tag.
type Host interface {
	Text() string
	Selection() (from, to int)
	Path() string
	ApplyTransaction(tx *types.Transaction) error
	RenderDecorations(decorations []types.Decoration) error
	ClearDecorations() error
}

// Predictor produces a predicted document rewrite for an editing context.
// Implemented by provider.Provider.
type Predictor interface {
	Predict(ctx context.Context, req *types.PredictRequest) (*types.Prediction, error)
}

// ContextFunc supplies extra predictor context (repository state, related
// files) gathered outside the engine. Called on the fetch goroutine with the
// fetch's deadline.
type ContextFunc func(ctx context.Context, filePath string) string

// Recorder receives suggestion lifecycle events. Implemented by
// metrics.Tracker. All methods must be safe for concurrent use.
type Recorder interface {
	PredictionRequested()
	PredictionShown()
	SuggestionAccepted()
	SuggestionDismissed()
	StaleDropped()
	CacheHit()
}

type state int

const (
	stateIdle state = iota
	statePending
	stateShowing
)

// String returns a human-readable name for the state
func (s state) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case statePending:
		return "Pending"
	case stateShowing:
		return "Showing"
	default:
		return "Unknown"
	}
}

const (
	// DefaultDelay is the debounce applied between a document change and
	// the fetch it triggers.
	DefaultDelay = 600 * time.Millisecond

	// DefaultPredictTimeout bounds a single predictor call.
	DefaultPredictTimeout = 5 * time.Second

	// DefaultAcceptTag marks transactions issued by the engine itself so the
	// resulting change events do not re-trigger a fetch.
	DefaultAcceptTag = "difftab_accept"
)

type Config struct {
	// Delay is the debounce between the last document change and the fetch.
	Delay time.Duration

	// PredictTimeout bounds each predictor call.
	PredictTimeout time.Duration

	// MaxContextTokens caps the prefix+suffix budget handed to the
	// predictor (0 = no limit).
	MaxContextTokens int

	// AcceptOnClick gates pointer-driven acceptance.
	AcceptOnClick bool

	// PartialRange narrows accept transactions to the rewritten byte range
	// instead of replacing the whole document.
	PartialRange bool

	// AcceptTag overrides DefaultAcceptTag.
	AcceptTag string

	// OnEdit observes every extracted patch. Called on the engine's event
	// goroutine; must not call back into the engine.
	OnEdit func(patch *types.Patch)

	// OnError observes predictor failures. Called on the engine's event
	// goroutine; must not call back into the engine.
	OnError func(err error)

	// Context gathers extra predictor context per fetch.
	Context ContextFunc

	// Metrics records lifecycle events. Optional.
	Metrics Recorder
}

// withDefaults fills in zero-valued config fields
func (c Config) withDefaults() Config {
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	if c.PredictTimeout <= 0 {
		c.PredictTimeout = DefaultPredictTimeout
	}
	if c.AcceptTag == "" {
		c.AcceptTag = DefaultAcceptTag
	}
	return c
}
