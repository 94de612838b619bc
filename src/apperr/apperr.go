package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// Error kinds shared by the editor, the server and the CLI. Callers wrap
// them with context via fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrImageTooSmall      = errors.New("image too small")
	ErrImageTooLarge      = errors.New("image too large")
	ErrNoSelection        = errors.New("no selection")
	ErrMissingInput       = errors.New("missing input")
	ErrLoadFailure        = errors.New("load failure")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrBusy               = errors.New("busy")
	ErrNotFound           = errors.New("not found")
)

// Kind returns the sentinel err wraps, or nil for unclassified errors.
func Kind(err error) error {
	for _, k := range []error{
		ErrImageTooSmall,
		ErrImageTooLarge,
		ErrNoSelection,
		ErrMissingInput,
		ErrLoadFailure,
		ErrPersistenceFailure,
		ErrBusy,
		ErrNotFound,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Message returns the text shown to the user for err. A leading
// "<kind>: " prefix is dropped so wrapped details read as a sentence.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch Kind(err) {
	case ErrNoSelection:
		return "Please select a circular area first by clicking and dragging on the image."
	case ErrBusy:
		return "Busy, please retry"
	case ErrNotFound:
		return "Session expired, please load the image again."
	}
	msg := err.Error()
	if k := Kind(err); k != nil {
		msg = strings.TrimPrefix(msg, k.Error()+": ")
	}
	return msg
}

// HTTPStatus maps err to the status code the server answers with.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case ErrImageTooSmall:
		return http.StatusUnprocessableEntity
	case ErrImageTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrNoSelection, ErrMissingInput:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBusy:
		return http.StatusServiceUnavailable
	case ErrLoadFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
