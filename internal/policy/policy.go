// Package policy decides whether a report command becomes a persisted
// report: freshness of the cached position, coordinate sanity, text
// normalization and the duplicate check.
package policy

import (
	"context"
	"fmt"
	"time"

	"lora-osmnotes/gateway/internal/commands"
	"lora-osmnotes/gateway/internal/db/repositories"
	"lora-osmnotes/gateway/internal/poscache"
)

// Outcome tags the evaluation result.
type Outcome int

const (
	OutcomeAccept Outcome = iota
	OutcomeMissingText
	OutcomeNoGPS
	OutcomeStaleGPS
	OutcomeDuplicate
	OutcomeInvalidCoords
	OutcomeTooLong
)

// Decision is the evaluation result. For OutcomeAccept, Text is the final
// payload (normalized, with the approximate marker folded in when the fix
// aged past the good threshold); it is both what gets persisted as the
// normalized text and what gets published upstream.
type Decision struct {
	Outcome     Outcome
	Lat         float64
	Lon         float64
	Approximate bool
	Text        string
}

// PositionSource is the position cache surface the engine needs.
type PositionSource interface {
	Get(origin string) (poscache.Position, bool)
}

// DuplicateChecker is the store surface the engine needs.
type DuplicateChecker interface {
	CheckDuplicate(ctx context.Context, origin, textNormalized string, latR, lonR float64, bucket int64) (bool, error)
}

// Config carries the freshness thresholds and debug switches.
type Config struct {
	PosGood    time.Duration
	PosMax     time.Duration
	MaxTextLen int
	// ApproxMarker is the localized prefix for approximate positions. Must
	// be deterministic for the configured gateway language.
	ApproxMarker string

	// BypassGPS substitutes Fallback when no position is cached and skips
	// freshness checks. Debug aid only.
	BypassGPS bool
	Fallback  poscache.Position
}

// Engine evaluates report commands.
type Engine struct {
	positions PositionSource
	store     DuplicateChecker
	cfg       Config
}

func NewEngine(positions PositionSource, store DuplicateChecker, cfg Config) *Engine {
	return &Engine{positions: positions, store: store, cfg: cfg}
}

// Evaluate runs the acceptance pipeline for one report command. The error
// return is reserved for store failures; every user-visible verdict comes
// back as a Decision.
func (e *Engine) Evaluate(ctx context.Context, origin, remaining string, now time.Time) (Decision, error) {
	normalized := commands.Normalize(remaining)
	if normalized == "" {
		return Decision{Outcome: OutcomeMissingText}, nil
	}
	if e.cfg.MaxTextLen > 0 && len([]rune(remaining)) > e.cfg.MaxTextLen {
		return Decision{Outcome: OutcomeTooLong}, nil
	}

	pos, found := e.positions.Get(origin)
	approximate := false

	if e.cfg.BypassGPS {
		if !found {
			pos = e.cfg.Fallback
		}
	} else {
		if !found {
			return Decision{Outcome: OutcomeNoGPS}, nil
		}
		if !validCoordinates(pos.Lat, pos.Lon) {
			return Decision{Outcome: OutcomeInvalidCoords}, nil
		}
		age := now.Sub(pos.ReceivedAt)
		if age < 0 {
			age = 0
		}
		if age > e.cfg.PosMax {
			return Decision{Outcome: OutcomeStaleGPS}, nil
		}
		approximate = age > e.cfg.PosGood
	}

	text := normalized
	if approximate && e.cfg.ApproxMarker != "" {
		text = e.cfg.ApproxMarker + " " + normalized
	}

	dup, err := e.store.CheckDuplicate(ctx, origin, text,
		repositories.RoundCoord(pos.Lat), repositories.RoundCoord(pos.Lon),
		repositories.TimeBucket(now))
	if err != nil {
		return Decision{}, fmt.Errorf("duplicate check: %w", err)
	}
	if dup {
		return Decision{Outcome: OutcomeDuplicate}, nil
	}

	return Decision{
		Outcome:     OutcomeAccept,
		Lat:         pos.Lat,
		Lon:         pos.Lon,
		Approximate: approximate,
		Text:        text,
	}, nil
}

// validCoordinates rejects the (0,0) default fix and out-of-range values.
func validCoordinates(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	if lat < -90 || lat > 90 {
		return false
	}
	if lon < -180 || lon > 180 {
		return false
	}
	return true
}
