// Package gateway is the dispatch core: it routes decoded radio packets
// through the parser, the policy engine and the store, and drives the
// acknowledgement path.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lora-osmnotes/gateway/internal/commands"
	"lora-osmnotes/gateway/internal/db/repositories"
	"lora-osmnotes/gateway/internal/i18n"
	"lora-osmnotes/gateway/internal/logging"
	"lora-osmnotes/gateway/internal/metrics"
	"lora-osmnotes/gateway/internal/notify"
	"lora-osmnotes/gateway/internal/osm"
	"lora-osmnotes/gateway/internal/policy"
	"lora-osmnotes/gateway/internal/poscache"
	"lora-osmnotes/gateway/internal/radio"
)

// Publisher is the upstream surface the dispatcher needs for the immediate
// send attempt and the #osmstatus connectivity probe.
type Publisher interface {
	Publish(ctx context.Context, lat, lon float64, text, locale string) (*osm.Note, error)
	CheckConnectivity(ctx context.Context) bool
}

// Options carries the dispatcher tunables.
type Options struct {
	MaxTextLen      int
	RateLimitMax    int
	RateLimitWindow time.Duration
	DisplayLoc      *time.Location
}

const listPreviewChars = 30

// Gateway routes inbound packets. HandlePacket runs on the radio reader
// goroutine; everything it touches is safe for concurrent use with the flush
// worker.
type Gateway struct {
	cache     *poscache.Cache
	engine    *policy.Engine
	reports   *repositories.ReportRepository
	langs     *repositories.LanguageRepository
	publisher Publisher
	notifier  *notify.Notifier
	loc       *i18n.Localizer
	reg       *metrics.Registry
	opts      Options

	now func() time.Time

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	log *zap.SugaredLogger
}

func New(
	cache *poscache.Cache,
	engine *policy.Engine,
	reports *repositories.ReportRepository,
	langs *repositories.LanguageRepository,
	publisher Publisher,
	notifier *notify.Notifier,
	loc *i18n.Localizer,
	reg *metrics.Registry,
	opts Options,
) *Gateway {
	return &Gateway{
		cache:     cache,
		engine:    engine,
		reports:   reports,
		langs:     langs,
		publisher: publisher,
		notifier:  notifier,
		loc:       loc,
		reg:       reg,
		opts:      opts,
		now:       time.Now,
		limiters:  make(map[string]*rate.Limiter),
		log:       logging.WithComponent("gateway"),
	}
}

// SetNow injects the time source for tests.
func (g *Gateway) SetNow(now func() time.Time) {
	g.now = now
}

func (g *Gateway) limiter(origin string) *rate.Limiter {
	g.limitersMu.Lock()
	defer g.limitersMu.Unlock()

	if l, ok := g.limiters[origin]; ok {
		return l
	}
	interval := g.opts.RateLimitWindow / time.Duration(g.opts.RateLimitMax)
	l := rate.NewLimiter(rate.Every(interval), g.opts.RateLimitMax)
	g.limiters[origin] = l
	return l
}

func (g *Gateway) language(ctx context.Context, origin string) string {
	lang, err := g.langs.Get(ctx, origin)
	if err != nil || lang == "" {
		return g.loc.Fallback()
	}
	return lang
}

// HandlePacket is the single entry point for decoded inbound frames.
func (g *Gateway) HandlePacket(ctx context.Context, pkt radio.Packet) {
	switch pkt.Kind {
	case radio.PacketPosition:
		g.reg.PacketsReceived.WithLabelValues("position").Inc()
		g.cache.Update(pkt.Origin, pkt.Lat, pkt.Lon)
		g.log.Debugw("position update", "origin", pkt.Origin, "lat", pkt.Lat, "lon", pkt.Lon)

	case radio.PacketText:
		g.reg.PacketsReceived.WithLabelValues("text").Inc()
		if pkt.HasPosition {
			g.cache.Update(pkt.Origin, pkt.Lat, pkt.Lon)
		}
		g.handleText(ctx, pkt)
	}
}

func (g *Gateway) handleText(ctx context.Context, pkt radio.Packet) {
	cmd := commands.Parse(pkt.Text)

	switch cmd.Kind {
	case commands.KindNone:
		// Unrelated mesh chatter; never answered.
		return
	case commands.KindReport:
		g.handleReport(ctx, pkt.Origin, cmd.Text)
	case commands.KindHelp:
		g.reply(ctx, pkt.Origin, i18n.MsgHelp)
	case commands.KindStatus:
		g.handleStatus(ctx, pkt.Origin)
	case commands.KindCount:
		g.handleCount(ctx, pkt.Origin)
	case commands.KindList:
		g.handleList(ctx, pkt.Origin, cmd.Limit)
	case commands.KindQueue:
		g.handleQueue(ctx, pkt.Origin)
	case commands.KindNodes:
		g.handleNodes(ctx, pkt.Origin)
	case commands.KindLang:
		g.handleLang(ctx, pkt.Origin, cmd.Language)
	}
}

func (g *Gateway) reply(ctx context.Context, origin string, key i18n.Key, args ...interface{}) {
	lang := g.language(ctx, origin)
	g.notifier.SendCommandResponse(ctx, origin, g.loc.T(lang, key, args...))
	g.reg.AcksSent.WithLabelValues("info").Inc()
}

// handleReport runs the acceptance pipeline for one #osmnote command.
func (g *Gateway) handleReport(ctx context.Context, origin, remaining string) {
	if !g.limiter(origin).Allow() {
		g.reg.ReportsRejected.WithLabelValues("rate_limited").Inc()
		g.notifier.Reject(ctx, origin, i18n.MsgRejectRateLimited)
		return
	}

	now := g.now().UTC()
	decision, err := g.engine.Evaluate(ctx, origin, remaining, now)
	if err != nil {
		g.log.Errorw("policy evaluation failed", "origin", origin, "error", err.Error())
		g.reg.ReportsRejected.WithLabelValues("store_error").Inc()
		g.notifier.Reject(ctx, origin, i18n.MsgCreateError)
		return
	}

	switch decision.Outcome {
	case policy.OutcomeMissingText:
		g.reg.ReportsRejected.WithLabelValues("missing_text").Inc()
		g.notifier.Reject(ctx, origin, i18n.MsgMissingText)
	case policy.OutcomeNoGPS:
		g.reg.ReportsRejected.WithLabelValues("no_gps").Inc()
		g.notifier.Reject(ctx, origin, i18n.MsgRejectNoGPS)
	case policy.OutcomeStaleGPS:
		g.reg.ReportsRejected.WithLabelValues("stale_gps").Inc()
		g.notifier.Reject(ctx, origin, i18n.MsgRejectStaleGPS)
	case policy.OutcomeInvalidCoords:
		g.reg.ReportsRejected.WithLabelValues("invalid_coords").Inc()
		g.notifier.Reject(ctx, origin, i18n.MsgRejectInvalidCoords)
	case policy.OutcomeTooLong:
		g.reg.ReportsRejected.WithLabelValues("too_long").Inc()
		g.notifier.Reject(ctx, origin, i18n.MsgRejectTooLong, g.opts.MaxTextLen)
	case policy.OutcomeDuplicate:
		g.reg.ReportsRejected.WithLabelValues("duplicate").Inc()
		g.notifier.AckDuplicate(ctx, origin)
	case policy.OutcomeAccept:
		g.acceptReport(ctx, origin, remaining, decision, now)
	}
}

// acceptReport persists the report, then tries one immediate upstream send.
// Any failure leaves the row pending for the flush worker; the origin gets
// the queued ack instead.
func (g *Gateway) acceptReport(ctx context.Context, origin, remaining string, decision policy.Decision, now time.Time) {
	queueID, err := g.reports.Append(ctx, origin, decision.Lat, decision.Lon,
		strings.TrimSpace(remaining), decision.Text, now)
	if err != nil {
		g.log.Errorw("append report failed", "origin", origin, "error", err.Error())
		g.reg.ReportsRejected.WithLabelValues("store_error").Inc()
		g.notifier.Reject(ctx, origin, i18n.MsgCreateError)
		return
	}
	g.reg.ReportsAccepted.Inc()
	g.log.Infow("report accepted", "origin", origin, "queue_id", queueID, "approximate", decision.Approximate)

	locale := g.language(ctx, origin)
	note, err := g.publisher.Publish(ctx, decision.Lat, decision.Lon, decision.Text, locale)
	if err != nil {
		g.reg.PublishAttempts.WithLabelValues("failure").Inc()
		if recErr := g.reports.RecordError(ctx, queueID, osm.ErrorTag(err)); recErr != nil {
			g.log.Errorw("record error", "queue_id", queueID, "error", recErr.Error())
		}
		g.log.Infow("immediate send failed, report queued", "queue_id", queueID, "tag", osm.ErrorTag(err))
		g.notifier.AckQueued(ctx, origin, queueID)
		g.reg.AcksSent.WithLabelValues("queued").Inc()
		return
	}

	if err := g.reports.MarkSent(ctx, queueID, note.ID, note.URL, g.now().UTC()); err != nil {
		// The flush worker won the race; its promotion ack covers the origin.
		g.log.Warnw("mark sent after immediate publish", "queue_id", queueID, "error", err.Error())
		return
	}
	if err := g.reports.MarkAnnounced(ctx, queueID); err != nil {
		g.log.Errorw("mark announced", "queue_id", queueID, "error", err.Error())
	}
	g.reg.PublishAttempts.WithLabelValues("success").Inc()
	g.notifier.AckSuccess(ctx, origin, note.ID, note.URL, decision.Lat, decision.Lon)
	g.reg.AcksSent.WithLabelValues("success").Inc()
}

func (g *Gateway) handleStatus(ctx context.Context, origin string) {
	lang := g.language(ctx, origin)

	online := g.publisher.CheckConnectivity(ctx)
	onlineWord := g.loc.T(lang, i18n.MsgNo)
	if online {
		onlineWord = g.loc.T(lang, i18n.MsgYes)
	}

	total, err := g.reports.TotalPending(ctx)
	if err != nil {
		g.log.Errorw("total pending", "error", err.Error())
	}
	g.reg.QueuePending.Set(float64(total))

	stats, err := g.reports.Stats(ctx, origin, g.now().UTC(), g.opts.DisplayLoc)
	if err != nil {
		g.log.Errorw("origin stats", "origin", origin, "error", err.Error())
	}

	g.reply(ctx, origin, i18n.MsgStatus, onlineWord, total, stats.Queue)
}

func (g *Gateway) handleCount(ctx context.Context, origin string) {
	stats, err := g.reports.Stats(ctx, origin, g.now().UTC(), g.opts.DisplayLoc)
	if err != nil {
		g.log.Errorw("origin stats", "origin", origin, "error", err.Error())
		return
	}
	g.reply(ctx, origin, i18n.MsgCount, stats.Today, stats.Total)
}

func (g *Gateway) handleList(ctx context.Context, origin string, limit int) {
	rows, err := g.reports.RecentByOrigin(ctx, origin, limit)
	if err != nil {
		g.log.Errorw("recent reports", "origin", origin, "error", err.Error())
		return
	}
	if len(rows) == 0 {
		g.reply(ctx, origin, i18n.MsgListEmpty)
		return
	}

	lang := g.language(ctx, origin)
	var b strings.Builder
	b.WriteString(g.loc.T(lang, i18n.MsgListHeader, len(rows)))
	for _, rep := range rows {
		icon := "⏳"
		ref := rep.QueueID
		if rep.Status == "sent" && rep.UpstreamID != nil {
			icon = "✅"
			ref = fmt.Sprintf("#%d", *rep.UpstreamID)
		}
		stamp := rep.CreatedAt.In(g.opts.DisplayLoc).Format("02/01 15:04")
		b.WriteString(fmt.Sprintf("\n%s %s %s %s", icon, ref, stamp, preview(rep.TextNormalized)))
	}
	g.notifier.SendCommandResponse(ctx, origin, b.String())
	g.reg.AcksSent.WithLabelValues("info").Inc()
}

func (g *Gateway) handleQueue(ctx context.Context, origin string) {
	total, err := g.reports.TotalPending(ctx)
	if err != nil {
		g.log.Errorw("total pending", "error", err.Error())
		return
	}
	g.reg.QueuePending.Set(float64(total))

	stats, err := g.reports.Stats(ctx, origin, g.now().UTC(), g.opts.DisplayLoc)
	if err != nil {
		g.log.Errorw("origin stats", "origin", origin, "error", err.Error())
		return
	}
	g.reply(ctx, origin, i18n.MsgQueue, total, stats.Queue)
}

func (g *Gateway) handleNodes(ctx context.Context, origin string) {
	origins := g.cache.Origins()
	if len(origins) == 0 {
		g.reply(ctx, origin, i18n.MsgNodesEmpty)
		return
	}

	lang := g.language(ctx, origin)
	var b strings.Builder
	b.WriteString(g.loc.T(lang, i18n.MsgNodesHeader, len(origins)))
	for _, o := range origins {
		age, ok := g.cache.Age(o)
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("\n%s: %s", o, age.Round(time.Second)))
	}
	g.notifier.SendCommandResponse(ctx, origin, b.String())
	g.reg.AcksSent.WithLabelValues("info").Inc()
}

func (g *Gateway) handleLang(ctx context.Context, origin, lang string) {
	if !i18n.Supported(lang) {
		g.reply(ctx, origin, i18n.MsgLangUnknown, lang)
		return
	}
	if err := g.langs.Set(ctx, origin, lang); err != nil {
		g.log.Errorw("set language", "origin", origin, "error", err.Error())
		return
	}
	// Confirm in the newly chosen language.
	g.notifier.SendCommandResponse(ctx, origin, g.loc.T(lang, i18n.MsgLangSet, lang))
	g.reg.AcksSent.WithLabelValues("info").Inc()
}

// preview clamps a report text to one short line for #osmlist.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= listPreviewChars {
		return text
	}
	return string(runes[:listPreviewChars-1]) + "…"
}
