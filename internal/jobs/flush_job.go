// Package jobs holds the timer-driven background workers.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lora-osmnotes/gateway/internal/clock"
	"lora-osmnotes/gateway/internal/logging"
	models "lora-osmnotes/gateway/internal/models/gorm"
	"lora-osmnotes/gateway/internal/osm"
)

// ReportStore is the store surface the flush worker drives.
type ReportStore interface {
	PendingPage(ctx context.Context, limit int) ([]models.Report, error)
	PendingBefore(ctx context.Context, t time.Time) ([]models.Report, error)
	MarkSent(ctx context.Context, queueID string, upstreamID int64, upstreamURL string, sentAt time.Time) error
	RecordError(ctx context.Context, queueID, tag string) error
	ShiftCreatedAt(ctx context.Context, ids []int64, delta time.Duration) (int64, error)
}

// StateStore is the system_state surface.
type StateStore interface {
	Load(ctx context.Context) (*models.SystemState, error)
	SetTimeCorrectionApplied(ctx context.Context, applied bool) error
	LastBroadcastDate(ctx context.Context) (string, error)
	SetLastBroadcastDate(ctx context.Context, date string) error
}

// Publisher is the upstream surface.
type Publisher interface {
	Publish(ctx context.Context, lat, lon float64, text, locale string) (*osm.Note, error)
}

// Announcer drains queue-to-sent acknowledgements after a drain pass.
type Announcer interface {
	AnnounceSent(ctx context.Context)
	DailyBroadcast() bool
}

// LanguageSource resolves an origin's locale for the attribution line.
type LanguageSource interface {
	Get(ctx context.Context, origin string) (string, error)
}

const (
	pendingPageLimit = 10
	skewThreshold    = time.Minute
)

// FlushJob periodically drains pending reports to the upstream API and runs
// the one-shot clock-skew correction.
type FlushJob struct {
	reports   ReportStore
	state     StateStore
	publisher Publisher
	notifier  Announcer
	langs     LanguageSource
	clk       clock.Clock

	displayLoc       *time.Location
	broadcastEnabled bool

	skewDone   bool
	firstCycle bool

	log *zap.SugaredLogger
}

// NewFlushJob creates a new flush worker instance.
func NewFlushJob(
	reports ReportStore,
	state StateStore,
	publisher Publisher,
	notifier Announcer,
	langs LanguageSource,
	clk clock.Clock,
	displayLoc *time.Location,
	broadcastEnabled bool,
) *FlushJob {
	return &FlushJob{
		reports:          reports,
		state:            state,
		publisher:        publisher,
		notifier:         notifier,
		langs:            langs,
		clk:              clk,
		displayLoc:       displayLoc,
		broadcastEnabled: broadcastEnabled,
		firstCycle:       true,
		log:              logging.WithComponent("flush"),
	}
}

// RunScheduled runs the flush job every interval until ctx is canceled. The
// first pass runs immediately.
func (j *FlushJob) RunScheduled(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := j.Run(ctx); err != nil {
		j.log.Errorw("flush tick failed", "error", err.Error())
	}

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.log.Errorw("flush tick failed", "error", err.Error())
			}
		case <-ctx.Done():
			j.log.Infow("flush worker shutting down")
			return
		}
	}
}

// Run executes one flush tick.
func (j *FlushJob) Run(ctx context.Context) error {
	j.applySkewCorrection(ctx)

	sent, err := j.drainPending(ctx)
	if err != nil {
		return err
	}
	if sent > 0 {
		j.log.Infow("drained pending reports", "sent", sent)
	}

	j.notifier.AnnounceSent(ctx)

	if j.broadcastEnabled && !j.firstCycle {
		j.checkDailyBroadcast(ctx)
	}
	j.firstCycle = false
	return nil
}

// drainPending publishes one page of pending reports, oldest first. A
// transient failure stops the page so the worker does not burn through rows
// while the channel is down; a permanent failure skips to the next row.
func (j *FlushJob) drainPending(ctx context.Context) (int, error) {
	page, err := j.reports.PendingPage(ctx, pendingPageLimit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rep := range page {
		if ctx.Err() != nil {
			break
		}

		note, err := j.publisher.Publish(ctx, rep.Lat, rep.Lon, rep.TextNormalized, j.locale(ctx, rep.Origin))
		if err != nil {
			tag := osm.ErrorTag(err)
			if recErr := j.reports.RecordError(ctx, rep.QueueID, tag); recErr != nil {
				j.log.Errorw("record error", "queue_id", rep.QueueID, "error", recErr.Error())
			}
			if !osm.IsPermanent(err) {
				j.log.Warnw("transient upstream failure, stopping page", "queue_id", rep.QueueID, "tag", tag)
				break
			}
			j.log.Warnw("permanent upstream failure, skipping row", "queue_id", rep.QueueID, "tag", tag)
			continue
		}

		if err := j.reports.MarkSent(ctx, rep.QueueID, note.ID, note.URL, j.clk.NowUTC()); err != nil {
			j.log.Errorw("mark sent", "queue_id", rep.QueueID, "error", err.Error())
			continue
		}
		sent++
	}
	return sent, nil
}

func (j *FlushJob) locale(ctx context.Context, origin string) string {
	if j.langs == nil {
		return ""
	}
	lang, err := j.langs.Get(ctx, origin)
	if err != nil {
		return ""
	}
	return lang
}

// applySkewCorrection shifts pending rows once per process after NTP sync.
// The expected wallclock is the boot wallclock advanced by the monotonic
// elapsed time, so only the NTP step itself lands in delta. SENT rows are
// never touched.
func (j *FlushJob) applySkewCorrection(ctx context.Context) {
	if j.skewDone {
		return
	}

	st, err := j.state.Load(ctx)
	if err != nil {
		j.log.Errorw("load system state", "error", err.Error())
		return
	}
	if st.TimeCorrectionApplied {
		j.skewDone = true
		return
	}
	if !j.clk.IsTimeSynced() {
		return
	}

	now := j.clk.NowUTC()
	expected := st.BootWallclock.UTC().Add(j.clk.Monotonic())
	delta := now.Sub(expected)

	if delta > skewThreshold || delta < -skewThreshold {
		rows, err := j.reports.PendingBefore(ctx, now)
		if err != nil {
			j.log.Errorw("load pending rows for skew correction", "error", err.Error())
			return
		}
		ids := make([]int64, 0, len(rows))
		for _, rep := range rows {
			ids = append(ids, rep.ID)
		}
		shifted, err := j.reports.ShiftCreatedAt(ctx, ids, delta)
		if err != nil {
			j.log.Errorw("shift created_at", "error", err.Error())
			return
		}
		j.log.Infow("applied clock-skew correction", "delta", delta.String(), "rows", shifted)
	}

	if err := j.state.SetTimeCorrectionApplied(ctx, true); err != nil {
		j.log.Errorw("persist time correction flag", "error", err.Error())
		return
	}
	j.skewDone = true
}

// checkDailyBroadcast advertises the gateway once per calendar day in the
// display timezone, persisted across restarts.
func (j *FlushJob) checkDailyBroadcast(ctx context.Context) {
	today := j.clk.NowUTC().In(j.displayLoc).Format("2006-01-02")

	last, err := j.state.LastBroadcastDate(ctx)
	if err != nil {
		j.log.Errorw("load last broadcast date", "error", err.Error())
		return
	}
	if last == today {
		return
	}

	if !j.notifier.DailyBroadcast() {
		j.log.Warnw("daily broadcast transmit failed")
		return
	}
	if err := j.state.SetLastBroadcastDate(ctx, today); err != nil {
		j.log.Errorw("persist broadcast date", "error", err.Error())
		return
	}
	j.log.Infow("sent daily broadcast", "date", today)
}
