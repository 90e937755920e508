// Package osm is the rate-limited HTTPS client for the map-annotation API,
// plus the best-effort Nominatim reverse geocoder.
package osm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lora-osmnotes/gateway/internal/i18n"
	"lora-osmnotes/gateway/internal/logging"
)

// Note is a created upstream annotation.
type Note struct {
	ID  int64
	URL string
}

// PublishError classifies an upstream failure. Transient errors are retried
// on the next flush tick; permanent ones are recorded and skipped.
type PublishError struct {
	Tag       string
	Permanent bool
	Err       error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("publish %s: %v", e.Tag, e.Err)
	}
	return "publish " + e.Tag
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a permanently failing publish attempt.
func IsPermanent(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Permanent
}

// ErrorTag extracts the short tag recorded on the report row.
func ErrorTag(err error) string {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Tag
	}
	return "unknown"
}

// SyncObserver is notified after the first successful HTTPS round-trip, for
// platforms without a time-sync daemon.
type SyncObserver interface {
	MarkSynced()
}

const (
	noteURLTemplate = "https://www.openstreetmap.org/note/%d"
	publishTimeout  = 10 * time.Second
	probeTimeout    = 3 * time.Second
	defaultProbeURL = "https://api.openstreetmap.org/api/0.6/capabilities"
)

// Publisher posts notes to the annotation API. The limiter serializes calls
// globally so successive publishes are spaced by the configured minimum
// regardless of caller.
type Publisher struct {
	apiURL   string
	probeURL string
	client   *http.Client
	probe    *http.Client
	limiter  *rate.Limiter
	dryRun   bool
	loc      *i18n.Localizer
	sync     SyncObserver
	log      *zap.SugaredLogger
}

func NewPublisher(apiURL string, minInterval time.Duration, dryRun bool, loc *i18n.Localizer, sync SyncObserver) *Publisher {
	return &Publisher{
		apiURL:   apiURL,
		probeURL: defaultProbeURL,
		client:   &http.Client{Timeout: publishTimeout},
		probe:    &http.Client{Timeout: probeTimeout},
		limiter:  rate.NewLimiter(rate.Every(minInterval), 1),
		dryRun:   dryRun,
		loc:      loc,
		sync:     sync,
		log:      logging.WithComponent("osm"),
	}
}

type noteResponse struct {
	Properties struct {
		ID int64 `json:"id"`
	} `json:"properties"`
}

// Publish creates one note. The localized attribution line is appended to
// the text. Dry-run skips HTTP and returns a deterministic synthetic note.
func (p *Publisher) Publish(ctx context.Context, lat, lon float64, text, locale string) (*Note, error) {
	full := text + "\n\n" + p.loc.T(locale, i18n.MsgAttribution)

	if p.dryRun {
		id := syntheticID(full)
		p.log.Infow("dry-run publish", "lat", lat, "lon", lon, "id", id)
		return &Note{ID: id, URL: fmt.Sprintf(noteURLTemplate, id)}, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &PublishError{Tag: "canceled", Err: err}
	}

	body, err := json.Marshal(map[string]interface{}{
		"lat":  lat,
		"lon":  lon,
		"text": full,
	})
	if err != nil {
		return nil, &PublishError{Tag: "encode", Permanent: true, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, &PublishError{Tag: "request", Permanent: true, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var decoded noteResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, &PublishError{Tag: "decode", Err: err}
		}
		if p.sync != nil {
			p.sync.MarkSynced()
		}
		note := &Note{
			ID:  decoded.Properties.ID,
			URL: fmt.Sprintf(noteURLTemplate, decoded.Properties.ID),
		}
		p.log.Infow("note created", "id", note.ID, "url", note.URL)
		return note, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &PublishError{Tag: fmt.Sprintf("http_%d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &PublishError{Tag: fmt.Sprintf("http_%d", resp.StatusCode), Permanent: true}
	default:
		return nil, &PublishError{Tag: fmt.Sprintf("http_%d", resp.StatusCode)}
	}
}

// CheckConnectivity probes the upstream with a short timeout, for
// #osmstatus. Any 2xx/3xx counts as reachable.
func (p *Publisher) CheckConnectivity(ctx context.Context) bool {
	if p.dryRun {
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.probe.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 400
}

func classifyTransportError(err error) *PublishError {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return &PublishError{Tag: "timeout", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &PublishError{Tag: "timeout", Err: err}
	default:
		// Connection refused, DNS failure and everything else transient.
		return &PublishError{Tag: "network", Err: err}
	}
}

func syntheticID(text string) int64 {
	h := fnv.New32a()
	h.Write([]byte(text))
	return int64(h.Sum32())
}
