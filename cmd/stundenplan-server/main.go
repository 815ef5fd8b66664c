package main

import (
	"flag"
	"log/slog"
	"stundenplan-backend/internal/api"
	"stundenplan-backend/internal/components/cache"
	"stundenplan-backend/internal/components/chrono"
	"stundenplan-backend/internal/scrapers/portal"
	"stundenplan-backend/internal/service"
	"stundenplan-backend/pkg/configutil"
	"stundenplan-backend/pkg/serviceutil"
	_ "time/tzdata"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "Path to the configuration file.")
	warm := flag.Bool("warm", false, "Prefetch today and tomorrow immediately on startup.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	cfg, err := configutil.ReadConfig[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	cfg.applyDefaults()
	err = cfg.validate()
	if err != nil {
		serviceutil.Fatal("validate config", err)
	}

	tel := InitTelemetry(ctx, *verbose, cfg.Telemetry)

	clock, err := chrono.NewStandardTime(cfg.Timezone)
	if err != nil {
		serviceutil.Fatal("load timezone", err)
	}

	sessionOpts, err := cfg.sessionOptions()
	if err != nil {
		serviceutil.Fatal("session options", err)
	}
	session, err := portal.NewSession(portal.ChromeLauncher{
		Headless: *cfg.Portal.Headless,
		ExecPath: cfg.Portal.ChromePath,
	}, sessionOpts, tel)
	if err != nil {
		serviceutil.Fatal("init portal session", err)
	}
	defer func() {
		err := session.Close()
		if err != nil {
			slog.Warn("close portal session", "err", err.Error())
		}
	}()

	fetcher, err := portal.NewFetcher(session, portal.NewExtractor(), cfg.fetcherOptions(), clock, tel)
	if err != nil {
		serviceutil.Fatal("init portal fetcher", err)
	}

	store := cache.New(cfg.Cache.Size, clock, tel)
	svc := service.NewService(store, session, fetcher, clock, cfg.serviceOptions(), tel)

	if !cfg.Warmer.Disabled {
		cron := chrono.NewStandardCron(clock.Location(), tel)
		defer cron.Stop()

		warmer := service.NewWarmer(svc, 0, tel)
		err = warmer.Schedule(ctx, cron, cfg.Warmer.Cron)
		if err != nil {
			serviceutil.Fatal("schedule warmer", err)
		}
		if *warm {
			go warmer.Warm(ctx)
		}
	}

	server := api.NewServer(svc, cfg.apiOptions(), clock, tel)
	err = serviceutil.StartHttpServer(ctx, cfg.Server.Port, server)
	if err != nil {
		slog.Error("http server", "err", err.Error())
		return
	}
	slog.Info("shutting down")
}
