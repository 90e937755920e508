// Package notify emits directed acknowledgements back through the radio
// link under a per-origin anti-spam budget.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"lora-osmnotes/gateway/internal/i18n"
	"lora-osmnotes/gateway/internal/logging"
	models "lora-osmnotes/gateway/internal/models/gorm"
)

// Transmitter is the radio surface the notifier needs.
type Transmitter interface {
	SendDirect(origin, text string) bool
	SendBroadcast(text string) bool
	IsConnected() bool
}

// AnnouncementStore is the store surface for queue-to-sent announcements.
type AnnouncementStore interface {
	UnannouncedSent(ctx context.Context) ([]models.Report, error)
	MarkAnnounced(ctx context.Context, queueID string) error
	SentCountByOrigin(ctx context.Context, origin string) (int64, error)
}

// LanguageSource resolves an origin's preferred reply language.
type LanguageSource interface {
	Get(ctx context.Context, origin string) (string, error)
}

// PlaceResolver adds a human-readable place to success acks. Optional.
type PlaceResolver interface {
	Reverse(ctx context.Context, lat, lon float64) string
}

// Anti-spam budget: at most 3 directed acks per rolling 60 s window per
// origin; overflow collapses into one summary per window.
const (
	budgetWindow = 60 * time.Second
	budgetMax    = 3

	// Privacy reminder cadence on success acks.
	privacyEvery = 5
)

type originWindow struct {
	sent        []time.Time
	lastSummary time.Time
	suppressed  int
}

// Notifier renders and transmits acknowledgements. Safe for use from the
// dispatch goroutine and the flush worker concurrently.
type Notifier struct {
	radio  Transmitter
	store  AnnouncementStore
	langs  LanguageSource
	places PlaceResolver
	loc    *i18n.Localizer
	dryRun bool
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*originWindow

	log *zap.SugaredLogger
}

func New(radio Transmitter, store AnnouncementStore, langs LanguageSource, places PlaceResolver, loc *i18n.Localizer, dryRun bool) *Notifier {
	return &Notifier{
		radio:   radio,
		store:   store,
		langs:   langs,
		places:  places,
		loc:     loc,
		dryRun:  dryRun,
		now:     time.Now,
		windows: make(map[string]*originWindow),
		log:     logging.WithComponent("notify"),
	}
}

// SetNow injects the time source for tests.
func (n *Notifier) SetNow(now func() time.Time) {
	n.now = now
}

func (n *Notifier) language(ctx context.Context, origin string) string {
	if n.langs == nil {
		return n.loc.Fallback()
	}
	lang, err := n.langs.Get(ctx, origin)
	if err != nil || lang == "" {
		return n.loc.Fallback()
	}
	return lang
}

// budgetAllow consumes one slot of origin's window, or reports exhaustion.
func (n *Notifier) budgetAllow(origin string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	w := n.windows[origin]
	if w == nil {
		w = &originWindow{}
		n.windows[origin] = w
	}

	kept := w.sent[:0]
	for _, t := range w.sent {
		if now.Sub(t) < budgetWindow {
			kept = append(kept, t)
		}
	}
	w.sent = kept

	if len(w.sent) >= budgetMax {
		w.suppressed++
		return false
	}
	w.sent = append(w.sent, now)
	return true
}

// transmit sends one directed frame, honoring dry-run.
func (n *Notifier) transmit(origin, text string) bool {
	if n.dryRun {
		n.log.Infow("dry-run ack", "origin", origin, "text", text)
		return true
	}
	return n.radio.SendDirect(origin, text)
}

// send is a budgeted directed transmit. A false return means either the
// budget was exhausted or the radio dropped the frame; both are final, acks
// are never retried.
func (n *Notifier) send(origin, text string) bool {
	if !n.budgetAllow(origin) {
		n.log.Debugw("ack suppressed by anti-spam budget", "origin", origin)
		return false
	}
	return n.transmit(origin, text)
}

// AckQueued tells the origin its report is persisted and waiting.
func (n *Notifier) AckQueued(ctx context.Context, origin, queueID string) {
	lang := n.language(ctx, origin)
	msg := n.loc.T(lang, i18n.MsgAckQueued, queueID) + n.loc.T(lang, i18n.MsgPrivacySuffix)
	n.send(origin, msg)
}

// AckSuccess tells the origin its report became an upstream note in the same
// dispatch. The privacy reminder rides along on every 5th success, counted
// from the origin's SENT rows.
func (n *Notifier) AckSuccess(ctx context.Context, origin string, upstreamID int64, upstreamURL string, lat, lon float64) {
	lang := n.language(ctx, origin)

	location := ""
	if n.places != nil {
		if place := n.places.Reverse(ctx, lat, lon); place != "" {
			location = "\n📍 " + place
		}
	}

	msg := n.loc.T(lang, i18n.MsgAckSuccess, upstreamID, upstreamURL, location)
	if n.successPrivacyDue(ctx, origin) {
		msg += n.loc.T(lang, i18n.MsgPrivacySuffix)
	}
	n.send(origin, msg)
}

func (n *Notifier) successPrivacyDue(ctx context.Context, origin string) bool {
	if n.store == nil {
		return false
	}
	count, err := n.store.SentCountByOrigin(ctx, origin)
	if err != nil {
		return false
	}
	return count > 0 && count%privacyEvery == 0
}

// AckDuplicate acknowledges an already-registered report.
func (n *Notifier) AckDuplicate(ctx context.Context, origin string) {
	lang := n.language(ctx, origin)
	msg := n.loc.T(lang, i18n.MsgDuplicate) + n.loc.T(lang, i18n.MsgPrivacySuffix)
	n.send(origin, msg)
}

// Reject sends the category-specific rejection template.
func (n *Notifier) Reject(ctx context.Context, origin string, key i18n.Key, args ...interface{}) {
	lang := n.language(ctx, origin)
	msg := n.loc.T(lang, key, args...) + n.loc.T(lang, i18n.MsgPrivacySuffix)
	n.send(origin, msg)
}

// SendCommandResponse delivers an informational reply (#osmhelp and
// friends). Counts toward the anti-spam budget.
func (n *Notifier) SendCommandResponse(ctx context.Context, origin, text string) {
	n.send(origin, text)
}

// AnnounceSent drains unannounced queue promotions. Every row is marked
// announced regardless of transmit success so acknowledgements are never
// duplicated for the lifetime of the row. Origins whose budget overflowed
// get at most one summary per window.
func (n *Notifier) AnnounceSent(ctx context.Context) {
	rows, err := n.store.UnannouncedSent(ctx)
	if err != nil {
		n.log.Errorw("load unannounced reports", "error", err.Error())
		return
	}

	for _, rep := range rows {
		if rep.UpstreamID == nil || rep.UpstreamURL == nil {
			// Sent rows always carry upstream fields; guard anyway.
			n.log.Warnw("sent row missing upstream fields", "queue_id", rep.QueueID)
		} else {
			lang := n.language(ctx, rep.Origin)
			msg := n.loc.T(lang, i18n.MsgPromoted, rep.QueueID, *rep.UpstreamID, *rep.UpstreamURL)
			n.send(rep.Origin, msg)
		}
		if err := n.store.MarkAnnounced(ctx, rep.QueueID); err != nil {
			n.log.Errorw("mark announced", "queue_id", rep.QueueID, "error", err.Error())
		}
	}

	n.flushSummaries(ctx)
}

// flushSummaries sends one collapsed "N reports flushed" ack per origin
// whose budget overflowed, at most once per budget window.
func (n *Notifier) flushSummaries(ctx context.Context) {
	type summary struct {
		origin string
		count  int
	}
	var due []summary

	n.mu.Lock()
	now := n.now()
	for origin, w := range n.windows {
		if w.suppressed == 0 {
			continue
		}
		if now.Sub(w.lastSummary) < budgetWindow {
			continue
		}
		due = append(due, summary{origin: origin, count: w.suppressed})
		w.lastSummary = now
		w.suppressed = 0
	}
	n.mu.Unlock()

	for _, s := range due {
		lang := n.language(ctx, s.origin)
		n.transmit(s.origin, n.loc.T(lang, i18n.MsgSummary, s.count))
	}
}

// DailyBroadcast advertises the gateway on the shared channel.
func (n *Notifier) DailyBroadcast() bool {
	msg := n.loc.T(n.loc.Fallback(), i18n.MsgDailyBroadcast)
	if n.dryRun {
		n.log.Infow("dry-run broadcast", "text", msg)
		return true
	}
	return n.radio.SendBroadcast(msg)
}
