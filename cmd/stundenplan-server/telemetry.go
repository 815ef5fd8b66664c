package main

import (
	"context"
	"log/slog"
	"stundenplan-backend/internal/components/telemetry"
	"stundenplan-backend/pkg/serviceutil"
)

func InitTelemetry(ctx context.Context, verbose bool, cfg telemetry.Config) telemetry.API {
	telemetry.InitSlog(verbose)

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	otel, err := telemetry.Setup(ctx, "stundenplan-server", cfg)
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	go func() {
		<-ctx.Done()
		err := otel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("shutdown telemetry", "err", err.Error())
		}
	}()

	tel := telemetry.SlogAPI{}
	telemetry.InstrumentPerfStats(ctx, tel)
	return tel
}
