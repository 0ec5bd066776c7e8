package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"difftab/cache"
	"difftab/logger"
	"difftab/types"
)

// Engine owns the suggestion lifecycle for a single host document surface.
//
// All state mutation happens under mu, either on the event goroutine or in a
// synchronous public call (Accept, Dismiss). Fetches run on their own
// goroutines and report back through eventChan; a generation counter captured
// at dispatch time and compared at resolution time keeps superseded results
// from ever touching live state.
type Engine struct {
	predictor Predictor
	host      Host
	cache     *cache.Cache
	clock     Clock
	config    Config

	state     state
	mu        sync.RWMutex
	eventChan chan Event

	// Main context and cancel for the engine lifecycle
	mainCtx    context.Context
	mainCancel context.CancelFunc
	stopped    bool
	stopOnce   sync.Once

	// eventLoopRestarts tracks panic-recovery restarts for this engine.
	// Per-engine rather than global: the daemon runs one engine per
	// connection and one wedged connection must not exhaust the budget
	// for the others.
	eventLoopRestarts atomic.Int32

	// Document state
	snapshot  types.DocumentSnapshot
	lastPatch *types.Patch

	// Suggestion state
	current *types.Suggestion

	// Fetch state
	generation    uint64
	debounceTimer Timer
	fetchCancel   context.CancelFunc
}

// NewEngine builds an engine around a predictor and a host surface. The
// predictor and host are required; a missing predictor is a setup error, not
// something to discover mid-cycle. A nil clock selects the wall clock.
func NewEngine(predictor Predictor, host Host, config Config, clock Clock) (*Engine, error) {
	if predictor == nil {
		return nil, errors.New("engine: predictor is required")
	}
	if host == nil {
		return nil, errors.New("engine: host is required")
	}
	if clock == nil {
		clock = realClock{}
	}

	return &Engine{
		predictor: predictor,
		host:      host,
		cache:     cache.New(),
		clock:     clock,
		config:    config.withDefaults(),
		state:     stateIdle,
		eventChan: make(chan Event, 100),
	}, nil
}

// Start primes the document snapshot from the host and launches the event
// loop. Safe to call once; Start after Stop is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}

	e.snapshot = types.DocumentSnapshot{Text: e.host.Text()}
	e.mainCtx, e.mainCancel = context.WithCancel(ctx)
	e.mu.Unlock()

	go e.eventLoop(e.mainCtx)
	logger.Info("engine started (path=%s)", e.host.Path())
}

// Stop shuts the engine down and releases all resources. The event channel is
// left open; the loop exits through context cancellation, so a fetch goroutine
// caught mid-post can never hit a closed channel.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		logger.Info("stopping engine...")

		e.stopped = true
		if e.mainCancel != nil {
			e.mainCancel()
		}
		e.cancelFetchLocked()
		e.stopDebounceTimerLocked()
		e.clearStateUnsafe()

		logger.Info("engine stopped")
	})
}

// clearStateUnsafe clears engine state without locking (internal use)
func (e *Engine) clearStateUnsafe() {
	e.state = stateIdle
	e.current = nil
	e.lastPatch = nil
}

// postEvent delivers an event to the loop, giving up if the engine shuts
// down first.
func (e *Engine) postEvent(event Event) {
	select {
	case e.eventChan <- event:
	case <-e.mainCtx.Done():
	}
}

// DocumentChanged feeds a host document mutation into the engine. Events are
// processed strictly in arrival order on the event goroutine.
func (e *Engine) DocumentChanged(change *types.DocumentChange) {
	if change == nil {
		return
	}

	e.mu.RLock()
	stopped := e.stopped
	started := e.mainCtx != nil
	e.mu.RUnlock()

	if stopped || !started {
		return
	}

	e.postEvent(Event{Type: EventDocumentChanged, Data: change})
}

// Accept applies the current suggestion to the host document. Returns true
// if a suggestion was accepted; with nothing showing it is a no-op. A
// suggestion computed against text the host has since changed is dropped
// instead of applied, and Accept returns false.
func (e *Engine) Accept() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return false
	}
	return e.dispatch(Event{Type: EventAccept})
}

// AcceptClick is pointer-driven acceptance, gated by Config.AcceptOnClick.
func (e *Engine) AcceptClick() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || !e.config.AcceptOnClick {
		return false
	}
	return e.dispatch(Event{Type: EventAcceptClick})
}

// Dismiss drops the current suggestion, or cancels a pending fetch, without
// touching the document. Returns true if there was anything to dismiss.
func (e *Engine) Dismiss() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return false
	}
	return e.dispatch(Event{Type: EventDismiss})
}

// Reset abandons all in-flight work, drops the last-edit patch, and re-primes
// the document snapshot from the host. Used when the host surface switches to
// a different document, where diffing against the previous text would be
// meaningless.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}

	e.stopDebounceTimerLocked()
	e.cancelFetchLocked()
	e.generation++
	e.clearSuggestionLocked()
	e.state = stateIdle
	e.snapshot = types.DocumentSnapshot{Text: e.host.Text()}
	e.lastPatch = nil
}

// ClearCache resets the suggestion cache. Valid in any state; the current
// suggestion, if showing, is unaffected.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// CacheStats reports cache counters for diagnostics.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}
