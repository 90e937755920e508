// Package api is the loopback observability surface: queue and report
// listings for a local dashboard, health and Prometheus metrics.
package api

import (
	"net/http"
	"strconv"
	"time"

	"lora-osmnotes/gateway/internal/db/repositories"
	models "lora-osmnotes/gateway/internal/models/gorm"
	"lora-osmnotes/gateway/internal/poscache"
)

const defaultReportsLimit = 50

// ReportView is the JSON shape of one report row.
type ReportView struct {
	QueueID    string     `json:"queue_id"`
	Origin     string     `json:"origin"`
	CreatedAt  time.Time  `json:"created_at"`
	Lat        float64    `json:"lat"`
	Lon        float64    `json:"lon"`
	Text       string     `json:"text"`
	Status     string     `json:"status"`
	UpstreamID *int64     `json:"upstream_id,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	LastError  *string    `json:"last_error,omitempty"`
}

// NodeView is the JSON shape of one known mesh node.
type NodeView struct {
	Origin     string    `json:"origin"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AgeSeconds int64     `json:"age_seconds"`
	SeenCount  uint64    `json:"seen_count"`
	LastSeen   time.Time `json:"last_seen"`
}

// Handlers bundles the read-only endpoints over the store and the position
// cache.
type Handlers struct {
	reports *repositories.ReportRepository
	cache   *poscache.Cache
}

func NewHandlers(reports *repositories.ReportRepository, cache *poscache.Cache) *Handlers {
	return &Handlers{reports: reports, cache: cache}
}

func reportView(rep models.Report) ReportView {
	return ReportView{
		QueueID:    rep.QueueID,
		Origin:     rep.Origin,
		CreatedAt:  rep.CreatedAt,
		Lat:        rep.Lat,
		Lon:        rep.Lon,
		Text:       rep.TextNormalized,
		Status:     rep.Status,
		UpstreamID: rep.UpstreamID,
		SentAt:     rep.SentAt,
		LastError:  rep.LastError,
	}
}

// GetQueue handles GET /api/queue: all pending reports, oldest first.
func (h *Handlers) GetQueue(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reports.PendingPage(r.Context(), defaultReportsLimit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]ReportView, 0, len(rows))
	for _, rep := range rows {
		views = append(views, reportView(rep))
	}
	respondWithSuccess(w, http.StatusOK, &views)
}

// GetReports handles GET /api/reports?limit=N: newest reports across origins.
func (h *Handlers) GetReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultReportsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	rows, err := h.reports.Recent(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]ReportView, 0, len(rows))
	for _, rep := range rows {
		views = append(views, reportView(rep))
	}
	respondWithSuccess(w, http.StatusOK, &views)
}

// GetNodes handles GET /api/nodes: every origin with a cached position.
func (h *Handlers) GetNodes(w http.ResponseWriter, r *http.Request) {
	origins := h.cache.Origins()

	views := make([]NodeView, 0, len(origins))
	for _, origin := range origins {
		pos, ok := h.cache.Get(origin)
		if !ok {
			continue
		}
		age, _ := h.cache.Age(origin)
		views = append(views, NodeView{
			Origin:     origin,
			Lat:        pos.Lat,
			Lon:        pos.Lon,
			AgeSeconds: int64(age.Seconds()),
			SeenCount:  pos.SeenCount,
			LastSeen:   pos.ReceivedAt,
		})
	}
	respondWithSuccess(w, http.StatusOK, &views)
}
