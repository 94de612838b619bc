package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindUnwraps(t *testing.T) {
	err := fmt.Errorf("%w: image is 199x500", ErrImageTooSmall)
	if Kind(err) != ErrImageTooSmall {
		t.Fatalf("expected ErrImageTooSmall, got %v", Kind(err))
	}
	if Kind(errors.New("other")) != nil {
		t.Fatal("expected nil kind for unclassified error")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrImageTooSmall, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: 100000x100000", ErrImageTooLarge), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("%w: empty url", ErrMissingInput), http.StatusBadRequest},
		{ErrNoSelection, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrBusy, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: dial", ErrLoadFailure), http.StatusBadGateway},
		{ErrPersistenceFailure, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestMessage(t *testing.T) {
	if Message(nil) != "" {
		t.Error("expected empty message for nil")
	}
	if got := Message(fmt.Errorf("wrap: %w", ErrBusy)); got != "Busy, please retry" {
		t.Errorf("unexpected busy message %q", got)
	}
	custom := fmt.Errorf("%w: Minimum dimensions are 200x200 pixels.", ErrImageTooSmall)
	if got := Message(custom); got != "Minimum dimensions are 200x200 pixels." {
		t.Errorf("expected kind prefix to be dropped, got %q", got)
	}
	if got := Message(errors.New("disk full")); got != "disk full" {
		t.Errorf("expected passthrough message, got %q", got)
	}
}
