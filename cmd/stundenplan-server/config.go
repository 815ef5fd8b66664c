package main

import (
	"errors"
	"fmt"
	"regexp"
	"stundenplan-backend/internal/api"
	"stundenplan-backend/internal/components/telemetry"
	"stundenplan-backend/internal/scrapers/portal"
	"stundenplan-backend/internal/service"
	"time"
)

type PortalConfig struct {
	BaseUrl       string `json:"base_url"`
	LoginPath     string `json:"login_path"`
	TimetablePath string `json:"timetable_path"`
	// AuthenticatedPattern is matched against the url the browser lands on after logging in.
	AuthenticatedPattern string  `json:"authenticated_pattern"`
	Username             string  `json:"username"`
	Password             string  `json:"password"`
	Headless             *bool   `json:"headless"`
	ChromePath           string  `json:"chrome_path"`
	PoolSize             int     `json:"pool_size"`
	SettleMs             int     `json:"settle_ms"`
	NavTimeoutMs         int     `json:"nav_timeout_ms"`
	TableTimeoutMs       int     `json:"table_timeout_ms"`
	RatePerSecond        float64 `json:"rate_per_second"`
}

type CacheConfig struct {
	Size                    int    `json:"size"`
	TimetableTtlSeconds     int    `json:"timetable_ttl_seconds"`
	SubstitutionsTtlSeconds int    `json:"substitutions_ttl_seconds"`
	Scope                   string `json:"scope"`
}

type ServerConfig struct {
	Port           int      `json:"port"`
	ApiKey         string   `json:"api_key"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type WarmerConfig struct {
	Cron string `json:"cron"`
	// Disabled turns off prefetching entirely.
	Disabled bool `json:"disabled"`
}

type Config struct {
	Portal    PortalConfig     `json:"portal"`
	Cache     CacheConfig      `json:"cache"`
	Server    ServerConfig     `json:"server"`
	Warmer    WarmerConfig     `json:"warmer"`
	Telemetry telemetry.Config `json:"telemetry"`
	Timezone  string           `json:"timezone"`
}

func withDefault[T comparable](value *T, fallback T) {
	var zero T
	if *value == zero {
		*value = fallback
	}
}

// applyDefaults fills every zero field, it does not validate.
func (c *Config) applyDefaults() {
	withDefault(&c.Portal.LoginPath, "/")
	withDefault(&c.Portal.AuthenticatedPattern, "/(today|timetable)")
	withDefault(&c.Portal.PoolSize, 1)
	withDefault(&c.Portal.SettleMs, 2000)
	withDefault(&c.Portal.NavTimeoutMs, 30_000)
	withDefault(&c.Portal.TableTimeoutMs, 30_000)
	withDefault(&c.Portal.RatePerSecond, 2)
	if c.Portal.Headless == nil {
		headless := true
		c.Portal.Headless = &headless
	}

	withDefault(&c.Cache.Size, 256)
	withDefault(&c.Cache.TimetableTtlSeconds, 3600)
	withDefault(&c.Cache.SubstitutionsTtlSeconds, 300)
	withDefault(&c.Cache.Scope, "default")

	withDefault(&c.Server.Port, 8000)
	withDefault(&c.Warmer.Cron, service.DefaultWarmerSpec)
	withDefault(&c.Timezone, "Europe/Berlin")
}

func (c Config) validate() error {
	var errs []error
	if c.Portal.BaseUrl == "" {
		errs = append(errs, errors.New("portal.base_url is required"))
	}
	if c.Portal.TimetablePath == "" {
		errs = append(errs, errors.New("portal.timetable_path is required"))
	}
	if c.Portal.Username == "" || c.Portal.Password == "" {
		errs = append(errs, errors.New("portal.username and portal.password are required"))
	}
	return errors.Join(errs...)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c Config) sessionOptions() (portal.SessionOptions, error) {
	pattern, err := regexp.Compile(c.Portal.AuthenticatedPattern)
	if err != nil {
		return portal.SessionOptions{}, fmt.Errorf("portal.authenticated_pattern: %w", err)
	}
	return portal.SessionOptions{
		BaseUrl:              c.Portal.BaseUrl,
		LoginPath:            c.Portal.LoginPath,
		AuthenticatedPattern: pattern,
		PoolSize:             c.Portal.PoolSize,
		NavigationTimeout:    ms(c.Portal.NavTimeoutMs),
		RatePerSecond:        c.Portal.RatePerSecond,
	}, nil
}

func (c Config) fetcherOptions() portal.FetcherOptions {
	return portal.FetcherOptions{
		BaseUrl:           c.Portal.BaseUrl,
		TimetablePath:     c.Portal.TimetablePath,
		Settle:            ms(c.Portal.SettleMs),
		NavigationTimeout: ms(c.Portal.NavTimeoutMs),
		TableTimeout:      ms(c.Portal.TableTimeoutMs),
	}
}

func (c Config) serviceOptions() service.Options {
	return service.Options{
		Username:         c.Portal.Username,
		Password:         c.Portal.Password,
		Scope:            c.Cache.Scope,
		TimetableTTL:     seconds(c.Cache.TimetableTtlSeconds),
		SubstitutionsTTL: seconds(c.Cache.SubstitutionsTtlSeconds),
	}
}

func (c Config) apiOptions() api.Options {
	return api.Options{
		ApiKey:         c.Server.ApiKey,
		AllowedOrigins: c.Server.AllowedOrigins,
	}
}
