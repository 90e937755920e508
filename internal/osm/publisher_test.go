package osm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lora-osmnotes/gateway/internal/i18n"
)

type fakeSync struct{ marked bool }

func (f *fakeSync) MarkSynced() { f.marked = true }

func newTestPublisher(apiURL string, sync SyncObserver) *Publisher {
	return NewPublisher(apiURL, time.Millisecond, false, i18n.NewLocalizer("es"), sync)
}

func TestPublishSuccess(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"properties":{"id":4242}}`))
	}))
	defer srv.Close()

	sync := &fakeSync{}
	p := newTestPublisher(srv.URL, sync)

	note, err := p.Publish(context.Background(), 4.6097, -74.0817, "hueco en la via", "es")
	if err != nil {
		t.Fatal(err)
	}
	if note.ID != 4242 {
		t.Errorf("note id = %d, expected 4242", note.ID)
	}
	if note.URL != "https://www.openstreetmap.org/note/4242" {
		t.Errorf("unexpected note url %q", note.URL)
	}
	if !sync.marked {
		t.Error("successful round-trip must mark the clock synced")
	}

	text, _ := gotBody["text"].(string)
	if text != "hueco en la via\n\nEnviado vía gateway LoRa de notas OSM" {
		t.Errorf("attribution not appended, got %q", text)
	}
	if gotBody["lat"].(float64) != 4.6097 {
		t.Errorf("lat not sent: %v", gotBody["lat"])
	}
}

func TestPublishServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := newTestPublisher(srv.URL, nil)
	_, err := p.Publish(context.Background(), 4.6, -74.0, "hueco", "es")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsPermanent(err) {
		t.Error("5xx must be transient")
	}
	if ErrorTag(err) != "http_502" {
		t.Errorf("tag = %q, expected http_502", ErrorTag(err))
	}
}

func TestPublishTooManyRequestsIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newTestPublisher(srv.URL, nil)
	_, err := p.Publish(context.Background(), 4.6, -74.0, "hueco", "es")
	if err == nil || IsPermanent(err) {
		t.Errorf("429 must be transient, got %v", err)
	}
}

func TestPublishClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := newTestPublisher(srv.URL, nil)
	_, err := p.Publish(context.Background(), 4.6, -74.0, "hueco", "es")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsPermanent(err) {
		t.Error("4xx must be permanent")
	}
	if ErrorTag(err) != "http_400" {
		t.Errorf("tag = %q, expected http_400", ErrorTag(err))
	}
}

func TestPublishConnectionRefusedIsTransient(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := newTestPublisher(url, nil)
	_, err := p.Publish(context.Background(), 4.6, -74.0, "hueco", "es")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsPermanent(err) {
		t.Error("network failure must be transient")
	}
	if tag := ErrorTag(err); tag != "network" && tag != "timeout" {
		t.Errorf("unexpected tag %q", tag)
	}
}

func TestPublishDryRunDeterministic(t *testing.T) {
	p := NewPublisher("https://unused.invalid", time.Millisecond, true, i18n.NewLocalizer("es"), nil)

	a, err := p.Publish(context.Background(), 4.6, -74.0, "hueco", "es")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := p.Publish(context.Background(), 4.6, -74.0, "hueco", "es")
	if a.ID != b.ID {
		t.Errorf("dry-run ids must be deterministic: %d vs %d", a.ID, b.ID)
	}
	c, _ := p.Publish(context.Background(), 4.6, -74.0, "otro texto", "es")
	if a.ID == c.ID {
		t.Error("different text should yield a different synthetic id")
	}
}

func TestPublishSpacing(t *testing.T) {
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
		w.Write([]byte(`{"properties":{"id":1}}`))
	}))
	defer srv.Close()

	p := NewPublisher(srv.URL, 50*time.Millisecond, false, i18n.NewLocalizer("es"), nil)
	ctx := context.Background()
	p.Publish(ctx, 4.6, -74.0, "uno", "es")
	p.Publish(ctx, 4.6, -74.0, "dos", "es")

	if len(stamps) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(stamps))
	}
	if gap := stamps[1].Sub(stamps[0]); gap < 40*time.Millisecond {
		t.Errorf("publishes not spaced: gap %s", gap)
	}
}

func TestCheckConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestPublisher("https://unused.invalid", nil)
	p.probeURL = srv.URL
	if !p.CheckConnectivity(context.Background()) {
		t.Error("expected reachable")
	}

	srv.Close()
	if p.CheckConnectivity(context.Background()) {
		t.Error("expected unreachable after close")
	}
}
