package engine

import (
	"difftab/logger"
	"difftab/text"
)

// acceptSuggestion applies the current suggestion as a tagged host
// transaction and returns to idle. It reports whether the suggestion was
// consumed. Caller holds the lock.
//
// The suggestion is only valid against the exact document it was computed
// from. A host edit whose change event is still queued behind this accept
// leaves e.snapshot behind the live text, so the live text is re-checked
// here; on divergence the suggestion is dropped instead of applied.
//
// The transaction carries the accept tag so its echoed document change is
// absorbed instead of scheduling a fresh fetch. The generation bump
// invalidates any timers or fetches still racing toward the old document.
func (e *Engine) acceptSuggestion() bool {
	s := e.current
	if s == nil {
		e.state = stateIdle
		return false
	}

	if live := e.host.Text(); live != s.OldText {
		logger.Debug("dropping stale suggestion on accept (document changed)")
		if e.config.Metrics != nil {
			e.config.Metrics.StaleDropped()
		}
		e.stopDebounceTimerLocked()
		e.cancelFetchLocked()
		e.generation++
		e.clearSuggestionLocked()
		e.state = stateIdle
		return false
	}

	tx := text.AcceptTransaction(s, e.config.AcceptTag)
	if err := e.host.ApplyTransaction(tx); err != nil {
		logger.Error("error applying suggestion: %v", err)
		if e.config.OnError != nil {
			e.config.OnError(err)
		}
	}

	e.stopDebounceTimerLocked()
	e.cancelFetchLocked()
	e.generation++
	e.clearSuggestionLocked()
	e.state = stateIdle

	if e.config.Metrics != nil {
		e.config.Metrics.SuggestionAccepted()
	}
	return true
}
