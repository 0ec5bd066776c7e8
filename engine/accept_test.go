package engine

import (
	"errors"
	"testing"

	"difftab/assert"
	"difftab/types"
)

var errTestApply = errors.New("apply failed")

// driveToShowing runs a full edit-debounce-fetch cycle and asserts the
// engine ends up showing a suggestion.
func driveToShowing(t *testing.T, eng *Engine, host *mockHost, prov *mockPredictor, clock *mockClock, editedText, predicted string) {
	t.Helper()

	prov.mu.Lock()
	prov.prediction = &types.Prediction{Text: predicted, CursorOffset: -1}
	prov.mu.Unlock()

	editDocument(eng, host, editedText, 0, len(editedText), editedText)
	clock.Advance(testDelay)
	drainEvent(eng)
	drainEvent(eng)

	if eng.state != stateShowing {
		t.Fatalf("expected showing state after fetch cycle, got %s", eng.state)
	}
}

func TestAcceptInsertsAtEndOfPrefix(t *testing.T) {
	host := newMockHost("def add(a, b):\n    return")
	prov := newMockPredictor()
	clock := newMockClock()
	rec := &mockRecorder{}
	eng, cancel := createTestEngineWithRecorder(host, prov, clock, rec)
	defer cancel()

	oldText := "def add(a, b):\n    return "
	newText := "def add(a, b):\n    return a + b"
	driveToShowing(t, eng, host, prov, clock, oldText, newText)

	req := prov.last()
	assert.Equal(t, oldText, req.Prefix, "prefix covers document up to cursor")
	assert.Equal(t, "", req.Suffix, "suffix empty at end of document")

	s := eng.current
	assert.NotNil(t, s, "suggestion current")
	assert.Len(t, 1, s.Spans, "single change span")
	assert.Equal(t, len(oldText), s.Spans[0].From, "span at end of prefix")
	assert.Equal(t, len(oldText), s.Spans[0].To, "span is pure insertion")
	assert.Equal(t, "a + b", s.Spans[0].Inserted, "span inserts the completion")

	decorations := host.lastRendered()
	assert.Len(t, 2, decorations, "ghost text plus accept indicator")
	assert.Equal(t, types.DecorationGhostText, decorations[0].Kind, "ghost text kind")
	assert.Equal(t, 2, decorations[0].Line, "ghost on the return line")
	assert.Equal(t, len("    return "), decorations[0].Col, "ghost appended after existing text")
	assert.Equal(t, "a + b", decorations[0].Text, "ghost content")
	assert.False(t, decorations[0].Replaces, "appended ghost does not replace the line")
	assert.Equal(t, types.DecorationAcceptIndicator, decorations[1].Kind, "accept indicator kind")

	assert.True(t, eng.Accept(), "accept applies the suggestion")

	tx := host.lastApplied()
	assert.NotNil(t, tx, "transaction applied")
	assert.Equal(t, DefaultAcceptTag, tx.Tag, "transaction tagged as self-inflicted")
	assert.Equal(t, newText, host.Text(), "document rewritten")
	assert.Equal(t, len(newText), host.cursor, "cursor immediately after inserted text")
	assert.Equal(t, stateIdle, eng.state, "idle after accept")
	assert.Nil(t, eng.current, "suggestion consumed")

	assert.False(t, eng.Accept(), "second accept with nothing showing is a no-op")

	_, _, accepted, _, _, _ := rec.counts()
	assert.Equal(t, 1, accepted, "one acceptance recorded")
}

func TestAcceptUsesCursorMarkerOffset(t *testing.T) {
	host := newMockHost("abc")
	prov := newMockPredictor()
	clock := newMockClock()
	eng, cancel := createTestEngineWithContext(host, prov, clock)
	defer cancel()

	prov.prediction = &types.Prediction{Text: "abcd()", CursorOffset: 5}

	editDocument(eng, host, "abcd", 3, 3, "d")
	clock.Advance(testDelay)
	drainEvent(eng)
	drainEvent(eng)

	assert.Equal(t, stateShowing, eng.state, "suggestion showing")
	assert.True(t, eng.Accept(), "accept")

	tx := host.lastApplied()
	assert.Equal(t, 5, tx.Cursor, "explicit cursor offset wins over span end")
	assert.Equal(t, "abcd()", host.Text(), "document rewritten")
	assert.Equal(t, 5, host.cursor, "cursor between the parens")
}

func TestAcceptPartialRange(t *testing.T) {
	host := newMockHost("aaa\nbbb\nccc")
	prov := newMockPredictor()
	clock := newMockClock()
	eng, cancel := createTestEngineWithConfig(host, prov, clock, Config{PartialRange: true})
	defer cancel()

	driveToShowing(t, eng, host, prov, clock, "aaa\nbbb\nccc\n", "aaa\nBBB\nccc\n")

	assert.True(t, eng.Accept(), "accept")

	tx := host.lastApplied()
	assert.Equal(t, 4, tx.From, "narrowed to the changed range")
	assert.Equal(t, 7, tx.To, "narrowed to the changed range")
	assert.Equal(t, "BBB", tx.Insert, "only the replacement travels")
	assert.Equal(t, "aaa\nBBB\nccc\n", host.Text(), "partial apply reconstructs the prediction")
	assert.Equal(t, 8, host.cursor, "cursor lands after the rewritten line")
}

func TestAcceptWithApplyError(t *testing.T) {
	host := newMockHost("hello")
	prov := newMockPredictor()
	clock := newMockClock()

	var observed error
	eng, cancel := createTestEngineWithConfig(host, prov, clock, Config{
		OnError: func(err error) {
			observed = err
		},
	})
	defer cancel()

	driveToShowing(t, eng, host, prov, clock, "hello w", "hello world")

	host.applyErr = errTestApply

	assert.True(t, eng.Accept(), "accept consumed the suggestion")
	assert.Equal(t, stateIdle, eng.state, "idle even when apply fails")
	assert.Nil(t, eng.current, "suggestion cleared")
	assert.Error(t, observed, "apply failure surfaced")
}

func TestAcceptDeclinesWhenDocumentDiverged(t *testing.T) {
	host := newMockHost("hello")
	prov := newMockPredictor()
	clock := newMockClock()
	rec := &mockRecorder{}
	eng, cancel := createTestEngineWithRecorder(host, prov, clock, rec)
	defer cancel()

	driveToShowing(t, eng, host, prov, clock, "hello w", "hello world")

	// Edit the host while the change event is still queued behind the accept.
	host.setText("hello wX", 8)
	eng.DocumentChanged(&types.DocumentChange{
		Snapshot: types.DocumentSnapshot{Text: "hello wX"},
		From:     7,
		To:       7,
		Inserted: "X",
	})

	assert.False(t, eng.Accept(), "accept declines against a diverged document")
	assert.Equal(t, "hello wX", host.Text(), "declined accept leaves the document alone")
	assert.Len(t, 0, host.applied, "no transaction applied")
	assert.Nil(t, eng.current, "stale suggestion dropped")
	assert.Equal(t, stateIdle, eng.state, "idle after the decline")

	_, _, accepted, _, stale, _ := rec.counts()
	assert.Equal(t, 0, accepted, "no acceptance recorded")
	assert.Equal(t, 1, stale, "stale drop recorded")

	drainEvent(eng)
	assert.Equal(t, statePending, eng.state, "queued edit reschedules once it drains")
	assert.NotNil(t, eng.debounceTimer, "new debounce armed")
}

func TestDismissFromShowing(t *testing.T) {
	host := newMockHost("hello")
	prov := newMockPredictor()
	clock := newMockClock()
	rec := &mockRecorder{}
	eng, cancel := createTestEngineWithRecorder(host, prov, clock, rec)
	defer cancel()

	driveToShowing(t, eng, host, prov, clock, "hello w", "hello world")

	assert.True(t, eng.Dismiss(), "dismiss the visible suggestion")
	assert.Equal(t, stateIdle, eng.state, "idle after dismiss")
	assert.Nil(t, eng.current, "suggestion dropped")
	assert.Equal(t, "hello w", host.Text(), "document untouched")
	assert.Len(t, 0, host.applied, "no transaction applied")
	assert.Greater(t, host.clearCalls, 0, "decorations cleared")

	assert.False(t, eng.Dismiss(), "second dismiss is a no-op")

	_, _, _, dismissed, _, _ := rec.counts()
	assert.Equal(t, 1, dismissed, "one dismissal recorded")
}

func TestDismissFromPending(t *testing.T) {
	host := newMockHost("hello")
	prov := newMockPredictor()
	clock := newMockClock()
	rec := &mockRecorder{}
	eng, cancel := createTestEngineWithRecorder(host, prov, clock, rec)
	defer cancel()

	editDocument(eng, host, "hello w", 5, 5, " w")
	assert.Equal(t, statePending, eng.state, "pending before dismiss")

	assert.True(t, eng.Dismiss(), "dismiss cancels the pending fetch")
	assert.Equal(t, stateIdle, eng.state, "idle after dismiss")
	assert.Nil(t, eng.debounceTimer, "timer released")

	clock.Advance(testDelay)
	assert.Equal(t, 0, len(eng.eventChan), "canceled timer posts nothing")
	assert.Equal(t, 0, prov.callCount(), "predictor never called")

	_, _, _, dismissed, _, _ := rec.counts()
	assert.Equal(t, 0, dismissed, "dismissing a pending fetch is not a suggestion dismissal")
}

func TestDismissInIdle(t *testing.T) {
	host := newMockHost("hello")
	prov := newMockPredictor()
	clock := newMockClock()
	eng, cancel := createTestEngineWithContext(host, prov, clock)
	defer cancel()

	assert.False(t, eng.Dismiss(), "nothing to dismiss")
	assert.Equal(t, stateIdle, eng.state, "still idle")
}

func TestAcceptClickGate(t *testing.T) {
	host := newMockHost("hello")
	prov := newMockPredictor()
	clock := newMockClock()
	eng, cancel := createTestEngineWithContext(host, prov, clock)
	defer cancel()

	driveToShowing(t, eng, host, prov, clock, "hello w", "hello world")

	assert.False(t, eng.AcceptClick(), "click acceptance disabled by default")
	assert.Equal(t, stateShowing, eng.state, "suggestion survives gated click")
	assert.Len(t, 0, host.applied, "no transaction from gated click")
}

func TestAcceptClickEnabled(t *testing.T) {
	host := newMockHost("hello")
	prov := newMockPredictor()
	clock := newMockClock()

	eng, cancel := createTestEngineWithConfig(host, prov, clock, Config{AcceptOnClick: true})
	defer cancel()

	driveToShowing(t, eng, host, prov, clock, "hello w", "hello world")

	assert.True(t, eng.AcceptClick(), "click accepts when enabled")
	assert.Equal(t, "hello world", host.Text(), "document rewritten")
	assert.Equal(t, stateIdle, eng.state, "idle after click accept")
}

func TestEditWhileShowingReschedules(t *testing.T) {
	host := newMockHost("hello")
	prov := newMockPredictor()
	clock := newMockClock()
	eng, cancel := createTestEngineWithContext(host, prov, clock)
	defer cancel()

	driveToShowing(t, eng, host, prov, clock, "hello w", "hello world")

	clearsBefore := host.clearCalls
	editDocument(eng, host, "hello wa", 7, 7, "a")

	assert.Equal(t, statePending, eng.state, "user edit invalidates and reschedules")
	assert.Nil(t, eng.current, "stale suggestion dropped")
	assert.Greater(t, host.clearCalls, clearsBefore, "decorations cleared on invalidation")
	assert.NotNil(t, eng.debounceTimer, "new debounce armed")
	assert.Len(t, 0, host.applied, "nothing applied by the invalidation")
}

func TestDecorationsRecomputedEachShow(t *testing.T) {
	host := newMockHost("hello")
	prov := newMockPredictor()
	clock := newMockClock()
	eng, cancel := createTestEngineWithContext(host, prov, clock)
	defer cancel()

	driveToShowing(t, eng, host, prov, clock, "hello w", "hello world")
	first := host.lastRendered()

	assert.True(t, eng.Dismiss(), "dismiss first showing")

	// Detour and return, hitting the cache for the identical context
	editDocument(eng, host, "hello wq", 7, 7, "q")
	editDocument(eng, host, "hello w", 7, 8, "")
	clock.Advance(testDelay)
	drainEvent(eng)

	assert.Equal(t, stateShowing, eng.state, "second showing from cache")
	second := host.lastRendered()
	assert.Equal(t, 2, len(host.rendered), "decorations rendered per showing")
	assert.Equal(t, first, second, "identical suggestion yields identical decorations")
}
