package metrics

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"difftab/logger"
)

const (
	EventShown     = "suggestion_shown"
	EventAccepted  = "suggestion_accepted"
	EventDismissed = "suggestion_dismissed"
)

const (
	SuggestionGhostText = "GHOST_TEXT"
)

const reportTimeout = 3 * time.Second

// Event is the JSON body posted to the report endpoint.
type Event struct {
	EventType          string `json:"event_type"`
	SuggestionType     string `json:"suggestion_type"`
	Lifespan           *int64 `json:"lifespan"`
	DebugInfo          string `json:"debug_info"`
	DeviceID           string `json:"device_id"`
	PrivacyModeEnabled bool   `json:"privacy_mode_enabled"`
}

// Counts is a snapshot of the in-process lifecycle counters.
type Counts struct {
	Requested int
	Shown     int
	Accepted  int
	Dismissed int
	Stale     int
	CacheHits int
}

// Tracker counts suggestion lifecycle events. When a report URL is
// configured it also forwards shown/accepted/dismissed events to it,
// fire-and-forget; requested/stale/cache-hit stay local.
type Tracker struct {
	reportURL   string
	apiKey      string
	editorInfo  string
	deviceID    string
	privacyMode bool
	httpClient  *http.Client

	mu      sync.Mutex
	counts  Counts
	shownAt time.Time
}

// NewTracker builds a tracker. An empty reportURL disables reporting;
// counters still accumulate. The device ID persists under dataDir.
func NewTracker(reportURL, apiKey, editorInfo, dataDir string, privacyMode bool) *Tracker {
	return &Tracker{
		reportURL:   reportURL,
		apiKey:      apiKey,
		editorInfo:  editorInfo,
		deviceID:    loadOrCreateDeviceID(dataDir),
		privacyMode: privacyMode,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (t *Tracker) PredictionRequested() {
	t.mu.Lock()
	t.counts.Requested++
	t.mu.Unlock()
}

func (t *Tracker) PredictionShown() {
	t.mu.Lock()
	t.counts.Shown++
	t.shownAt = time.Now()
	t.mu.Unlock()
	t.report(EventShown, nil)
}

func (t *Tracker) SuggestionAccepted() {
	t.mu.Lock()
	t.counts.Accepted++
	t.shownAt = time.Time{}
	t.mu.Unlock()
	t.report(EventAccepted, nil)
}

func (t *Tracker) SuggestionDismissed() {
	t.mu.Lock()
	t.counts.Dismissed++
	shownAt := t.shownAt
	t.shownAt = time.Time{}
	t.mu.Unlock()

	var lifespan *int64
	if !shownAt.IsZero() {
		ms := time.Since(shownAt).Milliseconds()
		lifespan = &ms
	}
	t.report(EventDismissed, lifespan)
}

func (t *Tracker) StaleDropped() {
	t.mu.Lock()
	t.counts.Stale++
	t.mu.Unlock()
}

func (t *Tracker) CacheHit() {
	t.mu.Lock()
	t.counts.CacheHits++
	t.mu.Unlock()
}

// Counts returns a snapshot of the lifecycle counters.
func (t *Tracker) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts
}

func (t *Tracker) report(eventType string, lifespan *int64) {
	if t.reportURL == "" {
		return
	}
	ev := &Event{
		EventType:          eventType,
		SuggestionType:     SuggestionGhostText,
		Lifespan:           lifespan,
		DebugInfo:          t.editorInfo,
		DeviceID:           t.deviceID,
		PrivacyModeEnabled: t.privacyMode,
	}
	go t.send(ev)
}

func (t *Tracker) send(ev *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	body, err := json.Marshal(ev)
	if err != nil {
		logger.Debug("metrics: marshal error: %v", err)
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", t.reportURL, bytes.NewReader(body))
	if err != nil {
		logger.Debug("metrics: create request error: %v", err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		logger.Debug("metrics: send error: %v", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		logger.Debug("metrics: server returned %d for %s", resp.StatusCode, ev.EventType)
	} else {
		logger.Debug("metrics: sent %s", ev.EventType)
	}
}

func loadOrCreateDeviceID(dataDir string) string {
	if dataDir == "" {
		return GenerateUUID()
	}

	idPath := filepath.Join(dataDir, "device_id")

	data, err := os.ReadFile(idPath)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id
		}
	}

	id := GenerateUUID()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Warn("metrics: could not create data dir %s: %v", dataDir, err)
		return id
	}
	if err := os.WriteFile(idPath, []byte(id), 0644); err != nil {
		logger.Warn("metrics: could not write device_id: %v", err)
	}
	return id
}

func GenerateUUID() string {
	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	uuid[6] = (uuid[6] & 0x0f) | 0x40 // version 4
	uuid[8] = (uuid[8] & 0x3f) | 0x80 // variant 2
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		uuid[0:4], uuid[4:6], uuid[6:8], uuid[8:10], uuid[10:16])
}
