package engine

import (
	"context"
	"sync"
	"time"

	"difftab/types"
)

// --- Mock implementations ---

// mockHost implements the Host interface for testing
type mockHost struct {
	mu      sync.Mutex
	text    string
	selFrom int
	selTo   int
	path    string
	cursor  int

	// Track method calls
	applied    []*types.Transaction
	rendered   [][]types.Decoration
	clearCalls int

	applyErr  error
	renderErr error
}

func newMockHost(text string) *mockHost {
	return &mockHost{
		text:    text,
		selFrom: len(text),
		selTo:   len(text),
		path:    "test.go",
	}
}

func (h *mockHost) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.text
}

func (h *mockHost) Selection() (from, to int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selFrom, h.selTo
}

func (h *mockHost) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

func (h *mockHost) ApplyTransaction(tx *types.Transaction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.applied = append(h.applied, tx)
	if h.applyErr != nil {
		return h.applyErr
	}
	if tx.From >= 0 && tx.To <= len(h.text) && tx.From <= tx.To {
		h.text = h.text[:tx.From] + tx.Insert + h.text[tx.To:]
	}
	h.cursor = tx.Cursor
	h.selFrom, h.selTo = tx.Cursor, tx.Cursor
	return nil
}

func (h *mockHost) RenderDecorations(decorations []types.Decoration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rendered = append(h.rendered, decorations)
	return h.renderErr
}

func (h *mockHost) ClearDecorations() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clearCalls++
	return nil
}

// setText moves the host document and cursor without going through the engine
func (h *mockHost) setText(text string, cursor int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.text = text
	h.cursor = cursor
	h.selFrom, h.selTo = cursor, cursor
}

func (h *mockHost) lastApplied() *types.Transaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.applied) == 0 {
		return nil
	}
	return h.applied[len(h.applied)-1]
}

func (h *mockHost) lastRendered() []types.Decoration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.rendered) == 0 {
		return nil
	}
	return h.rendered[len(h.rendered)-1]
}

// mockPredictor implements the Predictor interface for testing
type mockPredictor struct {
	mu          sync.Mutex
	prediction  *types.Prediction
	err         error
	predictFn   func(ctx context.Context, req *types.PredictRequest) (*types.Prediction, error)
	calls       int
	lastRequest *types.PredictRequest
}

func newMockPredictor() *mockPredictor {
	return &mockPredictor{}
}

func (p *mockPredictor) Predict(ctx context.Context, req *types.PredictRequest) (*types.Prediction, error) {
	p.mu.Lock()
	p.calls++
	p.lastRequest = req
	fn := p.predictFn
	pred, err := p.prediction, p.err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return pred, nil
}

func (p *mockPredictor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *mockPredictor) last() *types.PredictRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRequest
}

// mockRecorder implements the Recorder interface for testing
type mockRecorder struct {
	mu        sync.Mutex
	requested int
	shown     int
	accepted  int
	dismissed int
	stale     int
	cacheHits int
}

func (r *mockRecorder) PredictionRequested() { r.mu.Lock(); r.requested++; r.mu.Unlock() }
func (r *mockRecorder) PredictionShown()     { r.mu.Lock(); r.shown++; r.mu.Unlock() }
func (r *mockRecorder) SuggestionAccepted()  { r.mu.Lock(); r.accepted++; r.mu.Unlock() }
func (r *mockRecorder) SuggestionDismissed() { r.mu.Lock(); r.dismissed++; r.mu.Unlock() }
func (r *mockRecorder) StaleDropped()        { r.mu.Lock(); r.stale++; r.mu.Unlock() }
func (r *mockRecorder) CacheHit()            { r.mu.Lock(); r.cacheHits++; r.mu.Unlock() }

func (r *mockRecorder) counts() (requested, shown, accepted, dismissed, stale, cacheHits int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requested, r.shown, r.accepted, r.dismissed, r.stale, r.cacheHits
}

// mockClock implements Clock for testing
type mockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

func newMockClock() *mockClock {
	return &mockClock{
		now: time.Now(),
	}
}

func (c *mockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{
		fireTime: c.now.Add(d),
		f:        f,
		stopped:  false,
	}
	c.timers = append(c.timers, t)
	return t
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	// Copy timers to avoid holding lock during callback
	var toFire []*mockTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fireTime.After(c.now) {
			toFire = append(toFire, t)
		}
	}
	c.mu.Unlock()

	for _, t := range toFire {
		t.fire()
	}
}

type mockTimer struct {
	fireTime time.Time
	f        func()
	stopped  bool
	mu       sync.Mutex
}

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (t *mockTimer) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	f := t.f
	t.mu.Unlock()
	if f != nil {
		f()
	}
}

// --- Helper functions ---

const testDelay = 100 * time.Millisecond

func createTestEngine(host *mockHost, prov *mockPredictor, clock *mockClock) *Engine {
	eng, _ := NewEngine(prov, host, Config{
		Delay:          testDelay,
		PredictTimeout: 5 * time.Second,
	}, clock)
	return eng
}

// createTestEngineWithContext creates an engine with mainCtx set (needed for fetch tests)
func createTestEngineWithContext(host *mockHost, prov *mockPredictor, clock *mockClock) (*Engine, context.CancelFunc) {
	eng := createTestEngine(host, prov, clock)
	eng.snapshot = types.DocumentSnapshot{Text: host.Text()}
	ctx, cancel := context.WithCancel(context.Background())
	eng.mainCtx = ctx
	eng.mainCancel = cancel
	return eng, cancel
}

// createTestEngineWithConfig builds an engine with a caller-chosen config,
// snapshot primed and mainCtx set. Delay and PredictTimeout default to test
// values when zero.
func createTestEngineWithConfig(host *mockHost, prov *mockPredictor, clock *mockClock, config Config) (*Engine, context.CancelFunc) {
	if config.Delay == 0 {
		config.Delay = testDelay
	}
	if config.PredictTimeout == 0 {
		config.PredictTimeout = 5 * time.Second
	}
	eng, _ := NewEngine(prov, host, config, clock)
	eng.snapshot = types.DocumentSnapshot{Text: host.Text()}
	ctx, cancel := context.WithCancel(context.Background())
	eng.mainCtx = ctx
	eng.mainCancel = cancel
	return eng, cancel
}

func createTestEngineWithRecorder(host *mockHost, prov *mockPredictor, clock *mockClock, rec *mockRecorder) (*Engine, context.CancelFunc) {
	return createTestEngineWithConfig(host, prov, clock, Config{Metrics: rec})
}

// drainEvent pulls the next posted event and processes it on the caller's
// goroutine, so tests run the full pipeline without the event loop.
func drainEvent(eng *Engine) Event {
	evt := <-eng.eventChan
	eng.handleEvent(evt)
	return evt
}

// editDocument drives a user edit through the engine the way a host would:
// update the host state, then deliver the change event synchronously.
func editDocument(eng *Engine, host *mockHost, newText string, editFrom, editTo int, inserted string) {
	host.setText(newText, len(newText))
	eng.handleEvent(Event{Type: EventDocumentChanged, Data: &types.DocumentChange{
		Snapshot: types.DocumentSnapshot{Text: newText},
		From:     editFrom,
		To:       editTo,
		Inserted: inserted,
	}})
}
