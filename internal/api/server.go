// Package api serves the timetable operations over http as json envelopes.
package api

import (
	"context"
	"net/http"
	"stundenplan-backend/internal/components/assert"
	"stundenplan-backend/internal/components/chrono"
	"stundenplan-backend/internal/components/telemetry"
	"stundenplan-backend/internal/timetable"
	"time"
)

const (
	report_api_handle       = "api.handle"
	report_api_write        = "api.write"
	report_api_unauthorized = "api.unauthorized"
)

// Backend is what the handlers need from service.Service.
type Backend interface {
	ResolveDay(value string) (time.Time, error)
	Timetable(ctx context.Context, date time.Time) ([]timetable.Lesson, error)
	Substitutions(ctx context.Context, date time.Time) ([]timetable.Substitution, error)
	Cancellations(ctx context.Context, date time.Time) ([]timetable.Lesson, error)
	Week(ctx context.Context, anchor time.Time) (timetable.Week, error)
	Invalidate(prefix string) int
	Authenticated() bool
}

type Options struct {
	// ApiKey is required on every route except /health, empty disables the check.
	ApiKey         string
	AllowedOrigins []string
}

type Server struct {
	backend Backend
	opts    Options
	time    chrono.TimeAPI
	tel     telemetry.API
	mux     *http.ServeMux
	handler http.Handler
}

func NewServer(backend Backend, opts Options, clock chrono.TimeAPI, tel telemetry.API) *Server {
	assert.NotNil(backend, "backend")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "tel")

	s := &Server{
		backend: backend,
		opts:    opts,
		time:    clock,
		tel:     telemetry.NewScopedAPI("api", tel),
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.health)
	s.mux.HandleFunc("GET /api/session", s.session)
	s.mux.HandleFunc("GET /api/timetable/week", s.week)
	s.mux.HandleFunc("GET /api/timetable/{day}", s.timetable)
	s.mux.HandleFunc("GET /api/substitutions/{day}", s.substitutions)
	s.mux.HandleFunc("GET /api/cancellations/{day}", s.cancellations)
	s.mux.HandleFunc("POST /api/cache/invalidate", s.invalidate)
	s.mux.HandleFunc("/", s.notFound)

	var handler http.Handler = s.mux
	handler = s.withApiKey(handler)
	handler = s.withCors(handler)
	handler = withSecurityHeaders(handler)
	handler = s.withLogging(handler)
	handler = s.withRequestId(handler)
	s.handler = handler

	return s
}

// ServeHTTP runs the request through the middleware chain and the routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.fail(w, http.StatusNotFound, CodeNotFound, "no route for "+r.Method+" "+r.URL.Path)
}

type healthResponse struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.ok(w, healthResponse{Status: "ok", Authenticated: s.backend.Authenticated()})
}

type sessionResponse struct {
	Authenticated bool `json:"authenticated"`
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	s.ok(w, sessionResponse{Authenticated: s.backend.Authenticated()})
}

// serveDay resolves the {day} path value and responds with whatever load produces for it.
func serveDay[T any](
	s *Server,
	w http.ResponseWriter,
	r *http.Request,
	load func(ctx context.Context, date time.Time) ([]T, error),
) {
	date, err := s.backend.ResolveDay(r.PathValue("day"))
	if err != nil {
		s.failWith(w, r, err)
		return
	}
	items, err := load(r.Context(), date)
	if err != nil {
		s.failWith(w, r, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	s.ok(w, items)
}

func (s *Server) timetable(w http.ResponseWriter, r *http.Request) {
	serveDay(s, w, r, s.backend.Timetable)
}

func (s *Server) substitutions(w http.ResponseWriter, r *http.Request) {
	serveDay(s, w, r, s.backend.Substitutions)
}

func (s *Server) cancellations(w http.ResponseWriter, r *http.Request) {
	serveDay(s, w, r, s.backend.Cancellations)
}

func (s *Server) week(w http.ResponseWriter, r *http.Request) {
	anchor, err := s.backend.ResolveDay(r.URL.Query().Get("date"))
	if err != nil {
		s.failWith(w, r, err)
		return
	}
	week, err := s.backend.Week(r.Context(), anchor)
	if err != nil {
		s.failWith(w, r, err)
		return
	}
	s.ok(w, week)
}

type invalidateResponse struct {
	Prefix  string `json:"prefix"`
	Removed int    `json:"removed"`
}

func (s *Server) invalidate(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	removed := s.backend.Invalidate(prefix)
	s.ok(w, invalidateResponse{Prefix: prefix, Removed: removed})
}
