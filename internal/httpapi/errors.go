package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/IvanBrykalov/computecore/modules"
	"github.com/IvanBrykalov/computecore/pool"
)

// StatusFor maps a computation error to an HTTP status code.
func StatusFor(err error) int {
	var (
		qf *pool.QueueFullError
		to *pool.TimeoutError
		uf *pool.UnitFailureError
		le *modules.LoadError
	)
	switch {
	case errors.As(err, &qf):
		return http.StatusTooManyRequests
	case errors.As(err, &to), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &uf):
		return http.StatusBadGateway
	case errors.As(err, &le), errors.Is(err, pool.ErrClosed), errors.Is(err, modules.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// retryAfterSeconds is suggested to clients shed by backpressure.
const retryAfterSeconds = 1

func (s *Server) writeComputeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("computation failed", "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeError(w, status, err.Error())
}
