package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lora-osmnotes/gateway/internal/clock"
	"lora-osmnotes/gateway/internal/config"
	"lora-osmnotes/gateway/internal/db"
	"lora-osmnotes/gateway/internal/db/repositories"
	"lora-osmnotes/gateway/internal/gateway"
	"lora-osmnotes/gateway/internal/i18n"
	"lora-osmnotes/gateway/internal/jobs"
	"lora-osmnotes/gateway/internal/logging"
	"lora-osmnotes/gateway/internal/metrics"
	"lora-osmnotes/gateway/internal/notify"
	"lora-osmnotes/gateway/internal/osm"
	"lora-osmnotes/gateway/internal/policy"
	"lora-osmnotes/gateway/internal/poscache"
	"lora-osmnotes/gateway/internal/radio"
	"lora-osmnotes/gateway/internal/routes"
)

const maxReportChars = 200

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	if err := logging.Init(cfg.LogLevel); err != nil {
		log.Fatalf("❌ Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	logging.Info("Gateway starting up",
		"serial_port", cfg.SerialPort,
		"data_dir", cfg.DataDir,
		"dry_run", cfg.DryRun,
		"timestamp", time.Now().Format(time.RFC3339),
	)

	clk := clock.NewSystemClock()

	gdb, err := db.OpenSQLite(cfg.DatabasePath())
	if err != nil {
		logging.Error("Failed to open store", "error", err.Error())
		log.Fatalf("❌ Failed to open store: %v", err)
	}
	logging.Info("Store opened", "path", cfg.DatabasePath())

	reportRepo := repositories.NewReportRepository(gdb)
	stateRepo := repositories.NewStateRepository(gdb)
	langRepo := repositories.NewLanguageRepository(gdb)

	if err := stateRepo.EnsureBoot(context.Background(), clk.NowUTC()); err != nil {
		logging.Error("Failed to record boot state", "error", err.Error())
		log.Fatalf("❌ Failed to record boot state: %v", err)
	}

	localizer := i18n.NewLocalizer(cfg.Language)
	cache := poscache.New()
	metricsReg := metrics.NewRegistry()

	engine := policy.NewEngine(cache, reportRepo, policy.Config{
		PosGood:      cfg.PosGood(),
		PosMax:       cfg.PosMax(),
		MaxTextLen:   maxReportChars,
		ApproxMarker: localizer.T(localizer.Fallback(), i18n.MsgApproxMarker),
		BypassGPS:    cfg.GPSValidationDisabled,
		Fallback:     poscache.Position{Lat: 4.6097, Lon: -74.0817, ReceivedAt: clk.NowUTC()},
	})

	publisher := osm.NewPublisher(cfg.OSMAPIURL, cfg.OSMRateLimit(), cfg.DryRun, localizer, clk)
	geocoder := osm.NewGeocoder(cfg.NominatimAPIURL, cfg.Language)

	adapter := radio.New(cfg.SerialPort)
	notifier := notify.New(adapter, reportRepo, langRepo, geocoder, localizer, cfg.DryRun)

	dispatcher := gateway.New(cache, engine, reportRepo, langRepo, publisher, notifier, localizer, metricsReg, gateway.Options{
		MaxTextLen:      maxReportChars,
		RateLimitMax:    cfg.UserRateLimitMax,
		RateLimitWindow: cfg.UserRateLimitWindow(),
		DisplayLoc:      cfg.Location(),
	})

	flushJob := jobs.NewFlushJob(reportRepo, stateRepo, publisher, notifier, langRepo, clk,
		cfg.Location(), cfg.DailyBroadcastEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter.OnPacket(func(pkt radio.Packet) {
		dispatcher.HandlePacket(ctx, pkt)
		metricsReg.RadioReconnects.Set(float64(adapter.Reconnects()))
	})

	upSince := time.Now()
	router := routes.RegisterRoutes(gdb, reportRepo, cache, adapter, metricsReg, upSince)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return adapter.Run(ctx)
	})

	group.Go(func() error {
		flushJob.RunScheduled(ctx, cfg.WorkerInterval())
		return nil
	})

	group.Go(func() error {
		logging.Info("Admin surface listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logging.Error("Gateway terminated", "error", err.Error())
		log.Fatalf("❌ Gateway terminated: %v", err)
	}
	logging.Info("Gateway shut down cleanly")
}
