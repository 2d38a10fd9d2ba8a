package apperr

import (
	"errors"
	"net/http"
)

// Error taxonomy shared by every boundary of the relay.
//
// Packages wrap these with fmt.Errorf("...: %w", ErrX) and callers classify
// with errors.Is. Handlers translate them with HTTPStatus.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderRejected    = errors.New("provider rejected request")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrStaleEvent          = errors.New("stale callback event")
	ErrNotConfigured       = errors.New("not configured")
)

// HTTPStatus maps an error to the status code returned to clients.
// Stale callback events are acknowledged, so they map to 200.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrProviderRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrStaleEvent):
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns a short stable label for err, used in response bodies and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrProviderRejected):
		return "provider_rejected"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrStaleEvent):
		return "stale_event"
	default:
		return "internal"
	}
}
