package web

// errors.go renders every failure as JSON. Technical detail is logged with the
// request id; the body carries the mapped user message, its support code and,
// for input and schedule errors, the precise reason (column, row, field).

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/menusync/internal/core"
)

var (
	errRateLimited   = errors.New("rate limit exceeded")
	errNoFile        = errors.New("no file provided")
	errInvalidForm   = errors.New("invalid multipart form")
	errInvalidBody   = errors.New("invalid request body")
	errInvalidSyncTy = errors.New("sync_type must be 'all', 'file', or 'sheets'")
)

// ErrorResponse is the body of every non-2xx response. It keeps the
// success/message/error shape of sync responses and adds the support code.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	uerr := core.NewUserError(err)

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", uerr.Technical.Error(),
		"code", uerr.User.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	detail := uerr.Error()
	if isRequestError(err) {
		detail = err.Error()
	}

	writeJSON(w, r, status, ErrorResponse{
		Message: uerr.User.Message,
		Error:   detail,
		Action:  uerr.User.Action,
		Code:    uerr.User.Code,
	})
}

// isRequestError reports whether err describes what was wrong with the
// request, so its text is safe and useful to return verbatim.
func isRequestError(err error) bool {
	return core.IsKind(err, core.KindInput) ||
		core.IsKind(err, core.KindSchedule) ||
		errors.Is(err, core.ErrInvalidTenant) ||
		errors.Is(err, errInvalidSyncTy) ||
		errors.Is(err, errInvalidBody)
}

// statusFor picks the HTTP status for an error returned by the service.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrJobNotFound), errors.Is(err, core.ErrScheduleNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrQueueFull), errors.Is(err, core.ErrPoolStopped):
		return http.StatusServiceUnavailable
	case isRequestError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
