package engine

import (
	"context"
	"errors"

	"difftab/cache"
	"difftab/logger"
	"difftab/text"
	"difftab/types"
	"difftab/utils"
)

// fetchResult carries a resolved suggestion back to the event loop. A nil
// suggestion means the predictor declined (empty prediction).
type fetchResult struct {
	generation uint64
	suggestion *types.Suggestion
}

// fetchError carries a failed fetch back to the event loop.
type fetchError struct {
	generation uint64
	err        error
}

// scheduleFetchLocked restarts the debounce for a new generation. Only the
// timer whose generation is still current when it fires dispatches a fetch;
// every superseded call is discarded without surfacing a result.
func (e *Engine) scheduleFetchLocked() {
	e.stopDebounceTimerLocked()
	e.generation++
	gen := e.generation

	e.debounceTimer = e.clock.AfterFunc(e.config.Delay, func() {
		e.mu.RLock()
		stopped := e.stopped
		started := e.mainCtx != nil
		e.mu.RUnlock()

		if stopped || !started {
			return
		}
		e.postEvent(Event{Type: EventDebounceElapsed, Data: gen})
	})
}

func (e *Engine) stopDebounceTimerLocked() {
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
}

func (e *Engine) cancelFetchLocked() {
	if e.fetchCancel != nil {
		e.fetchCancel()
		e.fetchCancel = nil
	}
}

// dispatchFetch builds the predictor context for the current document state
// and either resolves it from the cache or launches a fetch goroutine.
//
// The prefix runs up to the selection end and the suffix starts at the
// selection start, so the two overlap by the selected range and, before
// budget trimming, together cover the whole document.
func (e *Engine) dispatchFetch(gen uint64) {
	docText := e.snapshot.Text
	from, to := e.host.Selection()
	from, to = clampRange(from, to, len(docText))

	prefix := docText[:to]
	suffix := docText[from:]

	fingerprint := cache.Fingerprint(prefix, suffix)
	if cached, ok := e.cache.Get(fingerprint); ok {
		logger.Debug("cache hit (gen=%d)", gen)
		if e.config.Metrics != nil {
			e.config.Metrics.CacheHit()
		}
		e.resolveSuggestion(gen, cached)
		return
	}

	// The fingerprint covers the untrimmed pair so any text change produces a
	// fresh key; only the request context is budgeted.
	if e.config.MaxContextTokens > 0 {
		prefix, suffix, _ = utils.TrimPrefixSuffix(prefix, suffix, e.config.MaxContextTokens)
	}

	req := &types.PredictRequest{
		Prefix:        prefix,
		Suffix:        suffix,
		Patch:         e.lastPatch,
		FilePath:      e.host.Path(),
		Document:      docText,
		SelectionFrom: from,
		SelectionTo:   to,
		Generation:    gen,
	}

	if e.config.Metrics != nil {
		e.config.Metrics.PredictionRequested()
	}

	ctx, cancel := context.WithTimeout(e.mainCtx, e.config.PredictTimeout)
	e.fetchCancel = cancel

	go e.fetch(ctx, cancel, gen, docText, fingerprint, req)
}

// fetch runs off the event goroutine: gather extra context, call the
// predictor, turn the prediction into a suggestion against the document text
// captured at dispatch time, and post the outcome back to the loop.
func (e *Engine) fetch(ctx context.Context, cancel context.CancelFunc, gen uint64, docText, fingerprint string, req *types.PredictRequest) {
	defer cancel()

	if e.config.Context != nil {
		req.ExtraContext = e.config.Context(ctx, req.FilePath)
	}

	prediction, err := e.predictor.Predict(ctx, req)
	if err != nil {
		e.postEvent(Event{Type: EventPredictionError, Data: &fetchError{generation: gen, err: err}})
		return
	}

	if prediction == nil || prediction.Text == "" {
		e.postEvent(Event{Type: EventPredictionReady, Data: &fetchResult{generation: gen}})
		return
	}

	suggestion := text.MakeSuggestion(docText, prediction, e.config.PartialRange)
	e.cache.Put(fingerprint, suggestion)

	e.postEvent(Event{Type: EventPredictionReady, Data: &fetchResult{generation: gen, suggestion: suggestion}})
}

// resolveSuggestion consumes a fetch outcome. Caller holds the lock.
//
// Two staleness layers apply: the generation guard drops results whose
// triggering call has been superseded, and the old-text comparison drops
// cached suggestions computed against a document that no longer matches
// (possible because the fingerprint overlap admits distinct documents with
// different selection bounds).
func (e *Engine) resolveSuggestion(gen uint64, s *types.Suggestion) {
	if gen != e.generation {
		logger.Debug("dropping superseded suggestion (gen=%d, current=%d)", gen, e.generation)
		if e.config.Metrics != nil {
			e.config.Metrics.StaleDropped()
		}
		return
	}
	e.fetchCancel = nil

	if s == nil || !s.HasChanges() {
		logger.Debug("no changes to suggest (gen=%d)", gen)
		e.toIdleLocked()
		return
	}

	if s.OldText != e.snapshot.Text {
		logger.Debug("dropping stale suggestion (gen=%d)", gen)
		if e.config.Metrics != nil {
			e.config.Metrics.StaleDropped()
		}
		e.toIdleLocked()
		return
	}

	e.current = s
	e.state = stateShowing

	decorations := text.DecorationsFor(s)
	if err := e.host.RenderDecorations(decorations); err != nil {
		logger.Warn("error rendering decorations: %v", err)
	}

	if e.config.Metrics != nil {
		e.config.Metrics.PredictionShown()
	}
}

// resolveError consumes a fetch failure. Caller holds the lock. Failures are
// never retried; the engine simply returns to idle until the next edit.
func (e *Engine) resolveError(gen uint64, err error) {
	if gen != e.generation {
		logger.Debug("dropping superseded fetch error (gen=%d, current=%d): %v", gen, e.generation, err)
		return
	}
	e.fetchCancel = nil

	if errors.Is(err, context.Canceled) {
		logger.Debug("prediction canceled: %v", err)
	} else {
		logger.Error("prediction error: %v", err)
		if e.config.OnError != nil {
			e.config.OnError(err)
		}
	}

	e.toIdleLocked()
}

// toIdleLocked returns to idle, derendering whatever was showing.
func (e *Engine) toIdleLocked() {
	e.clearSuggestionLocked()
	e.state = stateIdle
}

// clearSuggestionLocked drops the current suggestion and its decorations.
func (e *Engine) clearSuggestionLocked() {
	if e.current == nil {
		return
	}
	e.current = nil
	if err := e.host.ClearDecorations(); err != nil {
		logger.Warn("error clearing decorations: %v", err)
	}
}

func clampRange(from, to, max int) (int, int) {
	if from < 0 {
		from = 0
	}
	if to < 0 {
		to = 0
	}
	if from > max {
		from = max
	}
	if to > max {
		to = max
	}
	if from > to {
		from = to
	}
	return from, to
}
