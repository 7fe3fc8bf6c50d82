package server

import (
	"context"
	"net/http"

	"github.com/teranos/shelf/errors"
)

// statusFor maps the error taxonomy onto HTTP status codes. A failed
// analysis is checked first: its chain may also carry the analyzer's own
// cause, but the caller still gets the parsed records.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errors.ErrAnalysisFailed):
		return http.StatusMultiStatus
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.IsAny(err, errors.ErrDuplicateName, errors.ErrConflict):
		return http.StatusConflict
	case errors.IsAny(err, errors.ErrInvalidConfig, errors.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.IsAny(err, errors.ErrMaxDepthExceeded, errors.ErrTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var errRateLimited = errors.New("rate limit exceeded")
