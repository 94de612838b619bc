package notice

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"circle-thumb/src/apperr"
)

type recordingSink struct {
	mu      sync.Mutex
	visible map[Kind]string
	hides   int
}

func newRecordingSink() *recordingSink { return &recordingSink{visible: map[Kind]string{}} }

func (s *recordingSink) Show(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible[n.Kind] = n.Text
}

func (s *recordingSink) Hide(k Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.visible, k)
	s.hides++
}

func (s *recordingSink) get(k Kind) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visible[k]
	return v, ok
}

func TestDurations(t *testing.T) {
	if Succeeded("ok").Duration() != 3*time.Second {
		t.Error("success notices last 3s")
	}
	if Failed(errors.New("x")).Duration() != 5*time.Second {
		t.Error("error notices last 5s")
	}
}

func TestFailedUsesUserMessage(t *testing.T) {
	n := Failed(fmt.Errorf("%w: Selected circle is too small. Minimum diameter is 200 pixels.", apperr.ErrImageTooSmall))
	if n.Kind != Error || n.Text != "Selected circle is too small. Minimum diameter is 200 pixels." {
		t.Fatalf("unexpected notice %+v", n)
	}
}

func TestBannerHidesAfterDuration(t *testing.T) {
	sink := newRecordingSink()
	b := NewBanner(sink)
	b.durations = map[Kind]time.Duration{Success: 20 * time.Millisecond, Error: time.Hour}

	b.Success("Image loaded")
	b.Error(apperr.ErrNoSelection)
	if v, ok := sink.get(Success); !ok || v != "Image loaded" {
		t.Fatalf("success banner not shown: %q %v", v, ok)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := sink.get(Success); !ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := sink.get(Success); ok {
		t.Fatal("success banner should have been hidden")
	}
	if _, ok := sink.get(Error); !ok {
		t.Fatal("error banner should still be visible")
	}

	b.Clear()
	if _, ok := sink.get(Error); ok {
		t.Fatal("Clear should hide the error banner")
	}
}

func TestBannerReplaceRestartsTimer(t *testing.T) {
	sink := newRecordingSink()
	b := NewBanner(sink)
	b.durations = map[Kind]time.Duration{Success: 200 * time.Millisecond}

	b.Success("first")
	time.Sleep(120 * time.Millisecond)
	b.Success("second")
	time.Sleep(120 * time.Millisecond)

	// The first timer would have fired by now; the replacement keeps it up.
	if v, ok := sink.get(Success); !ok || v != "second" {
		t.Fatalf("expected the replacement to be visible, got %q %v", v, ok)
	}
}
