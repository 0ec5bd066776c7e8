package engine

import (
	"context"
	"runtime/debug"

	"difftab/logger"
	"difftab/text"
	"difftab/types"
)

// EventType represents the type of event in the engine
type EventType string

// Event type constants
const (
	EventDocumentChanged EventType = "document_changed"
	EventDebounceElapsed EventType = "debounce_elapsed"
	EventPredictionReady EventType = "prediction_ready"
	EventPredictionError EventType = "prediction_error"
	EventAccept          EventType = "accept"
	EventAcceptClick     EventType = "accept_click"
	EventDismiss         EventType = "dismiss"
)

// Event represents an event in the engine
type Event struct {
	Type EventType
	Data any
}

func init() {
	transitionMap = make(map[transitionKey]*Transition)
	for i := range transitions {
		t := &transitions[i]
		key := transitionKey{from: t.From, event: t.Event}
		transitionMap[key] = t
	}
}

// Transition represents a valid state transition in the engine's state machine.
// The action reports whether the event took effect; a declined accept or a
// stale timer generation returns false.
type Transition struct {
	From   state
	Event  EventType
	Action func(*Engine, Event) bool
}

// transitions defines all valid state transitions in the engine.
//
// State Machine:
//
//	                 DocumentChanged
//	  +-------+        (user edit)        +----------+
//	  | Idle  |------------------------->| Pending  |<---+
//	  +-------+                          +----------+    | DocumentChanged
//	      ^                                   |          | (restarts debounce)
//	      | PredictionError /                 |          |
//	      | empty / stale                     | DebounceElapsed -> fetch
//	      |                                   | PredictionReady (fresh)
//	      |                                   v
//	      |                              +----------+
//	      +<-----------------------------| Showing  |----+
//	         Accept / Dismiss /          +----------+
//	         DocumentChanged (-> Pending)
//
//	Accept applies a tagged transaction; the echoed DocumentChanged is
//	absorbed without scheduling a new fetch.
var transitions = []Transition{
	// From stateIdle
	{stateIdle, EventDocumentChanged, (*Engine).doDocumentChanged},

	// From statePending
	{statePending, EventDocumentChanged, (*Engine).doDocumentChanged},
	{statePending, EventDebounceElapsed, (*Engine).doDebounceElapsed},
	{statePending, EventDismiss, (*Engine).doDismiss},

	// From stateShowing
	{stateShowing, EventDocumentChanged, (*Engine).doDocumentChanged},
	{stateShowing, EventAccept, (*Engine).doAccept},
	{stateShowing, EventAcceptClick, (*Engine).doAcceptClick},
	{stateShowing, EventDismiss, (*Engine).doDismiss},
}

// transitionMap provides O(1) lookup for transitions by (state, event) pair
var transitionMap map[transitionKey]*Transition

type transitionKey struct {
	from  state
	event EventType
}

// findTransition looks up a valid transition for the given state and event.
func findTransition(from state, event EventType) *Transition {
	return transitionMap[transitionKey{from: from, event: event}]
}

// dispatch finds and executes the appropriate transition for an event. It
// reports whether the event was mapped and its action took effect.
func (e *Engine) dispatch(event Event) bool {
	t := findTransition(e.state, event.Type)
	if t == nil {
		return false
	}
	if t.Action == nil {
		return true
	}
	return t.Action(e, event)
}

const maxEventLoopRestarts = 3

func (e *Engine) eventLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			restarts := e.eventLoopRestarts.Add(1)
			logger.Error("event loop panic [%d/%d]: %v\n%s",
				restarts, maxEventLoopRestarts, r, debug.Stack())

			if int(restarts) < maxEventLoopRestarts {
				e.eventLoop(e.mainCtx) // Restart the event loop
			} else {
				logger.Error("max event loop restarts reached, stopping engine")
				go e.Stop() // async to avoid deadlock
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event := <-e.eventChan:
			e.mu.RLock()
			stopped := e.stopped
			e.mu.RUnlock()

			if stopped {
				return
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("event handler panic recovered for event %v: %v", event.Type, r)
					}
				}()
				e.handleEvent(event)
			}()
		}
	}
}

func (e *Engine) handleEvent(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}

	logger.Debug("handle event: %v (state=%s)", event.Type, e.state)
	defer func() {
		logger.Debug("after event: %v (state=%s)", event.Type, e.state)
	}()

	// Layer 1: Background/async results
	if e.handleBackgroundEvent(event) {
		return
	}

	// Layer 2: Dispatch table for user/timer events
	e.dispatch(event)
}

// handleBackgroundEvent handles async fetch results. These carry their own
// generation and are valid regardless of the current state; the generation
// guard inside the handlers decides whether they still matter.
func (e *Engine) handleBackgroundEvent(event Event) bool {
	switch event.Type {
	case EventPredictionReady:
		if result, ok := event.Data.(*fetchResult); ok {
			e.resolveSuggestion(result.generation, result.suggestion)
		}
		return true

	case EventPredictionError:
		if failure, ok := event.Data.(*fetchError); ok {
			e.resolveError(failure.generation, failure.err)
		}
		return true
	}
	return false
}

// Action functions for state transitions

// doDocumentChanged absorbs a host document mutation: snapshot the new text,
// extract the last-edit patch, and unless the change is the echo of our own
// accept transaction, invalidate whatever is pending or showing and restart
// the debounce.
func (e *Engine) doDocumentChanged(event Event) bool {
	change, ok := event.Data.(*types.DocumentChange)
	if !ok {
		return false
	}

	prev := e.snapshot
	e.snapshot = change.Snapshot

	if change.Snapshot.Text == prev.Text {
		return true
	}

	if patch := text.ExtractPatch(prev.Text, change.Snapshot.Text, change.From); patch != nil {
		e.lastPatch = patch
		if e.config.OnEdit != nil {
			e.config.OnEdit(patch)
		}
	}

	// Our own accept transaction echoes back as a document change; it must
	// not start another fetch cycle.
	if change.Tag != "" && change.Tag == e.config.AcceptTag {
		logger.Debug("absorbed self-inflicted change (tag=%s)", change.Tag)
		return true
	}

	e.clearSuggestionLocked()
	e.cancelFetchLocked()
	e.state = statePending
	e.scheduleFetchLocked()
	return true
}

// doDebounceElapsed fires the fetch for the generation the timer was armed
// with. A stale generation means a newer edit re-armed the debounce after
// this timer was already running.
func (e *Engine) doDebounceElapsed(event Event) bool {
	gen, ok := event.Data.(uint64)
	if !ok {
		return false
	}
	if gen != e.generation {
		logger.Debug("stale debounce timer (gen=%d, current=%d)", gen, e.generation)
		return false
	}
	e.dispatchFetch(gen)
	return true
}

func (e *Engine) doAccept(event Event) bool {
	return e.acceptSuggestion()
}

func (e *Engine) doAcceptClick(event Event) bool {
	if !e.config.AcceptOnClick {
		return false
	}
	return e.acceptSuggestion()
}

func (e *Engine) doDismiss(event Event) bool {
	fromShowing := e.state == stateShowing

	e.stopDebounceTimerLocked()
	e.cancelFetchLocked()
	e.generation++
	e.clearSuggestionLocked()
	e.state = stateIdle

	if fromShowing && e.config.Metrics != nil {
		e.config.Metrics.SuggestionDismissed()
	}
	return true
}
