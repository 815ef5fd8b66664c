// Package client talks to the timetable http api.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"stundenplan-backend/internal/components/telemetry"
	"stundenplan-backend/internal/timetable"
	"time"

	"github.com/go-resty/resty/v2"
)

// APIError is a response whose envelope reports a failure.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *errorBody      `json:"error"`
	Timestamp string          `json:"timestamp"`
}

type Client struct {
	http *resty.Client
}

// New creates a client for the api at baseUrl, an empty apiKey sends no key.
func New(baseUrl, apiKey string, tel telemetry.API) Client {
	rc := resty.New().
		SetBaseURL(baseUrl).
		SetTimeout(2*time.Minute).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		rc.SetHeader("X-API-Key", apiKey)
	}
	if tel != nil {
		telemetry.InstrumentResty(rc, telemetry.NewScopedAPI("client", tel))
	}
	return Client{http: rc}
}

func (c Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	var env envelope
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		SetResult(&env).
		SetError(&env).
		Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if !env.Success {
		apiErr := &APIError{StatusCode: res.StatusCode(), Code: "HTTP_ERROR", Message: res.Status()}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	err = json.Unmarshal(env.Data, out)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func dayPath(kind, day string) string {
	if day == "" {
		day = "today"
	}
	return fmt.Sprintf("/api/%s/%s", kind, url.PathEscape(day))
}

// Timetable returns the lessons of day ("today", "tomorrow" or YYYY-MM-DD).
func (c Client) Timetable(ctx context.Context, day string) ([]timetable.Lesson, error) {
	var lessons []timetable.Lesson
	err := c.do(ctx, http.MethodGet, dayPath("timetable", day), nil, &lessons)
	return lessons, err
}

func (c Client) Substitutions(ctx context.Context, day string) ([]timetable.Substitution, error) {
	var subs []timetable.Substitution
	err := c.do(ctx, http.MethodGet, dayPath("substitutions", day), nil, &subs)
	return subs, err
}

func (c Client) Cancellations(ctx context.Context, day string) ([]timetable.Lesson, error) {
	var lessons []timetable.Lesson
	err := c.do(ctx, http.MethodGet, dayPath("cancellations", day), nil, &lessons)
	return lessons, err
}

// Week returns the week containing date, an empty date means the current week.
func (c Client) Week(ctx context.Context, date string) (timetable.Week, error) {
	query := url.Values{}
	if date != "" {
		query.Set("date", date)
	}
	var week timetable.Week
	err := c.do(ctx, http.MethodGet, "/api/timetable/week", query, &week)
	return week, err
}

// Invalidate drops cached entries under prefix and returns how many were removed.
func (c Client) Invalidate(ctx context.Context, prefix string) (int, error) {
	query := url.Values{}
	if prefix != "" {
		query.Set("prefix", prefix)
	}
	var res struct {
		Removed int `json:"removed"`
	}
	err := c.do(ctx, http.MethodPost, "/api/cache/invalidate", query, &res)
	return res.Removed, err
}

func (c Client) Authenticated(ctx context.Context) (bool, error) {
	var res struct {
		Authenticated bool `json:"authenticated"`
	}
	err := c.do(ctx, http.MethodGet, "/api/session", nil, &res)
	return res.Authenticated, err
}
