package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"difftab/assert"
)

type receivedEvent struct {
	event       Event
	auth        string
	contentType string
}

func eventServer(t *testing.T) (*httptest.Server, chan receivedEvent) {
	t.Helper()
	received := make(chan receivedEvent, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode event: %v", err)
		}
		received <- receivedEvent{
			event:       ev,
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	return srv, received
}

func waitForEvent(t *testing.T, received chan receivedEvent) receivedEvent {
	t.Helper()
	select {
	case ev := <-received:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event posted")
		return receivedEvent{}
	}
}

func TestCountsSnapshot(t *testing.T) {
	tr := NewTracker("", "", "", "", false)

	tr.PredictionRequested()
	tr.PredictionRequested()
	tr.PredictionShown()
	tr.SuggestionAccepted()
	tr.SuggestionDismissed()
	tr.StaleDropped()
	tr.CacheHit()
	tr.CacheHit()
	tr.CacheHit()

	counts := tr.Counts()
	assert.Equal(t, 2, counts.Requested, "requested")
	assert.Equal(t, 1, counts.Shown, "shown")
	assert.Equal(t, 1, counts.Accepted, "accepted")
	assert.Equal(t, 1, counts.Dismissed, "dismissed")
	assert.Equal(t, 1, counts.Stale, "stale")
	assert.Equal(t, 3, counts.CacheHits, "cache hits")
}

func TestReportPostsShownEvent(t *testing.T) {
	srv, received := eventServer(t)
	defer srv.Close()

	tr := NewTracker(srv.URL, "test-key", "nvim 0.10", t.TempDir(), false)
	tr.PredictionShown()

	got := waitForEvent(t, received)
	assert.Equal(t, EventShown, got.event.EventType, "event type")
	assert.Equal(t, SuggestionGhostText, got.event.SuggestionType, "suggestion type")
	assert.Equal(t, "nvim 0.10", got.event.DebugInfo, "debug info")
	assert.NotEqual(t, "", got.event.DeviceID, "device id present")
	assert.Nil(t, got.event.Lifespan, "no lifespan on shown")
	assert.False(t, got.event.PrivacyModeEnabled, "privacy mode off")
	assert.Equal(t, "Bearer test-key", got.auth, "authorization header")
	assert.Equal(t, "application/json", got.contentType, "content type")
}

func TestReportPostsAcceptedEvent(t *testing.T) {
	srv, received := eventServer(t)
	defer srv.Close()

	tr := NewTracker(srv.URL, "test-key", "nvim 0.10", t.TempDir(), true)
	tr.SuggestionAccepted()

	got := waitForEvent(t, received)
	assert.Equal(t, EventAccepted, got.event.EventType, "event type")
	assert.True(t, got.event.PrivacyModeEnabled, "privacy mode forwarded")
}

func TestDismissedCarriesLifespan(t *testing.T) {
	srv, received := eventServer(t)
	defer srv.Close()

	tr := NewTracker(srv.URL, "test-key", "nvim 0.10", t.TempDir(), false)
	tr.PredictionShown()
	tr.SuggestionDismissed()

	first := waitForEvent(t, received)
	second := waitForEvent(t, received)
	if first.event.EventType == EventDismissed {
		first, second = second, first
	}
	assert.Equal(t, EventShown, first.event.EventType, "shown event")
	assert.Equal(t, EventDismissed, second.event.EventType, "dismissed event")
	assert.NotNil(t, second.event.Lifespan, "lifespan set on dismissed")
	assert.GreaterOrEqual(t, int(*second.event.Lifespan), 0, "lifespan non-negative")
}

func TestDismissedWithoutShownHasNoLifespan(t *testing.T) {
	srv, received := eventServer(t)
	defer srv.Close()

	tr := NewTracker(srv.URL, "", "", t.TempDir(), false)
	tr.SuggestionDismissed()

	got := waitForEvent(t, received)
	assert.Equal(t, EventDismissed, got.event.EventType, "event type")
	assert.Nil(t, got.event.Lifespan, "no lifespan without prior shown")
	assert.Equal(t, "", got.auth, "no auth header without key")
}

func TestOnlyLifecycleEventsReported(t *testing.T) {
	srv, received := eventServer(t)
	defer srv.Close()

	tr := NewTracker(srv.URL, "", "", t.TempDir(), false)
	tr.PredictionRequested()
	tr.StaleDropped()
	tr.CacheHit()
	tr.PredictionShown()

	got := waitForEvent(t, received)
	assert.Equal(t, EventShown, got.event.EventType, "only shown posted")
}

func TestDeviceIDPersists(t *testing.T) {
	dir := t.TempDir()

	first := NewTracker("", "", "", dir, false)
	second := NewTracker("", "", "", dir, false)

	assert.NotEqual(t, "", first.deviceID, "device id generated")
	assert.Equal(t, first.deviceID, second.deviceID, "device id reused")

	data, err := os.ReadFile(filepath.Join(dir, "device_id"))
	assert.NoError(t, err, "device_id file written")
	assert.Equal(t, first.deviceID, string(data), "file matches")
}

func TestEmptyDataDirStillGetsDeviceID(t *testing.T) {
	tr := NewTracker("", "", "", "", false)
	assert.NotEqual(t, "", tr.deviceID, "device id generated without data dir")
}

func TestGenerateUUIDFormat(t *testing.T) {
	id := GenerateUUID()
	assert.Len(t, 36, id, "uuid length")
	for _, i := range []int{8, 13, 18, 23} {
		assert.Equal(t, byte('-'), id[i], "dash position")
	}
	assert.Equal(t, byte('4'), id[14], "version nibble")
	assert.NotEqual(t, GenerateUUID(), id, "uuids are random")
}
