package api

import (
	"context"
	"errors"
	"net/http"
	"stundenplan-backend/internal/scrapers/portal"
	"stundenplan-backend/internal/service"
)

const (
	CodeInvalidDate           = "INVALID_DATE"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeNotFound              = "NOT_FOUND"
	CodePortalLoginFailed     = "PORTAL_LOGIN_FAILED"
	CodePortalUnauthenticated = "PORTAL_UNAUTHENTICATED"
	CodePortalTimeout         = "PORTAL_TIMEOUT"
	CodeInternal              = "INTERNAL_ERROR"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{service.ErrInvalidDate, http.StatusBadRequest, CodeInvalidDate},
	{service.ErrLoginFailed, http.StatusBadGateway, CodePortalLoginFailed},
	{portal.ErrUnauthenticated, http.StatusServiceUnavailable, CodePortalUnauthenticated},
	{portal.ErrTableTimeout, http.StatusGatewayTimeout, CodePortalTimeout},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, CodePortalTimeout},
}

// classify maps an error to its status and code, unknown errors are internal.
func classify(err error) (status int, code string, known bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code, true
		}
	}
	return http.StatusInternalServerError, CodeInternal, false
}

func (s *Server) failWith(w http.ResponseWriter, r *http.Request, err error) {
	status, code, known := classify(err)
	if !known {
		s.tel.ReportBroken(report_api_handle, err, r.Method, r.URL.Path, RequestId(r.Context()))
		s.fail(w, status, code, "internal error")
		return
	}
	s.fail(w, status, code, err.Error())
}
