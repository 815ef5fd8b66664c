package service

import (
	"context"
	"stundenplan-backend/internal/components/assert"
	"stundenplan-backend/internal/components/chrono"
	"stundenplan-backend/internal/components/telemetry"
	"time"
)

const report_warmer_prefetch = "warmer.prefetch"

const DefaultWarmerSpec = "0 6 * * 1-5"

// Warmer prefetches today and tomorrow so the first requests of a school day hit the cache.
type Warmer struct {
	service Service
	timeout time.Duration
	tel     telemetry.API
}

func NewWarmer(service Service, timeout time.Duration, tel telemetry.API) Warmer {
	assert.NotNil(tel, "tel")
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return Warmer{
		service: service,
		timeout: timeout,
		tel:     telemetry.NewScopedAPI("warmer", tel),
	}
}

// Warm fetches timetables and substitutions of today and tomorrow, failures are reported and
// counted but never returned.
func (w Warmer) Warm(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	today := chrono.Midnight(w.service.Now())
	failures := 0
	for _, day := range []time.Time{today, today.AddDate(0, 0, 1)} {
		_, err := w.service.Timetable(ctx, day)
		if err != nil {
			w.tel.ReportWarning(report_warmer_prefetch, err, chrono.FormatDate(day), "timetable")
			failures++
			continue
		}
		_, err = w.service.Substitutions(ctx, day)
		if err != nil {
			w.tel.ReportWarning(report_warmer_prefetch, err, chrono.FormatDate(day), "substitutions")
			failures++
		}
	}
	w.tel.ReportCount(report_warmer_prefetch, int64(failures))
	return failures
}

// Schedule registers Warm on the cron scheduler, an empty spec uses DefaultWarmerSpec.
func (w Warmer) Schedule(ctx context.Context, cron chrono.CronAPI, spec string) error {
	if spec == "" {
		spec = DefaultWarmerSpec
	}
	return cron.Cron(spec, func() {
		w.Warm(ctx)
	})
}
