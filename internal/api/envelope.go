package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope wraps every response body.
type Envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp string     `json:"timestamp"`
}

type ErrorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func (s *Server) timestamp() string {
	return s.time.Now().UTC().Format(time.RFC3339)
}

func (s *Server) write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.tel.ReportWarning(report_api_write, err)
	}
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	s.write(w, http.StatusOK, Envelope{
		Success:   true,
		Data:      data,
		Timestamp: s.timestamp(),
	})
}

func (s *Server) fail(w http.ResponseWriter, status int, code, message string) {
	s.write(w, status, Envelope{
		Success: false,
		Error: &ErrorBody{
			Code:       code,
			Message:    message,
			StatusCode: status,
		},
		Timestamp: s.timestamp(),
	})
}
