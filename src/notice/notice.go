// Package notice models the transient success/error banners shown after a
// user action.
package notice

import (
	"log"
	"sync"
	"time"

	"circle-thumb/src/apperr"
)

type Kind int

const (
	Success Kind = iota
	Error
)

func (k Kind) String() string {
	if k == Error {
		return "error"
	}
	return "success"
}

// Display durations per kind.
const (
	SuccessDuration = 3 * time.Second
	ErrorDuration   = 5 * time.Second
)

// Notice is one banner message.
type Notice struct {
	Kind Kind
	Text string
}

// Duration is how long the notice stays visible.
func (n Notice) Duration() time.Duration {
	if n.Kind == Error {
		return ErrorDuration
	}
	return SuccessDuration
}

// Succeeded builds a success notice.
func Succeeded(text string) Notice { return Notice{Kind: Success, Text: text} }

// Failed builds an error notice with the user-facing text for err.
func Failed(err error) Notice { return Notice{Kind: Error, Text: apperr.Message(err)} }

// Sink renders notices. Hide removes the banner of one kind.
type Sink interface {
	Show(n Notice)
	Hide(k Kind)
}

// Banner shows notices on a Sink and hides each after its duration. A new
// notice of the same kind replaces the visible one and restarts its timer.
type Banner struct {
	sink Sink

	mu     sync.Mutex
	timers map[Kind]*time.Timer
	// durations overrides Notice.Duration, for tests.
	durations map[Kind]time.Duration
}

func NewBanner(sink Sink) *Banner {
	return &Banner{sink: sink, timers: make(map[Kind]*time.Timer)}
}

// Post shows n and schedules its removal.
func (b *Banner) Post(n Notice) {
	log.Printf("Notice: %s: %s", n.Kind, n.Text)
	b.mu.Lock()
	defer b.mu.Unlock()
	if t := b.timers[n.Kind]; t != nil {
		t.Stop()
	}
	b.sink.Show(n)

	d := n.Duration()
	if o, ok := b.durations[n.Kind]; ok {
		d = o
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.timers[n.Kind] != t {
			return
		}
		delete(b.timers, n.Kind)
		b.sink.Hide(n.Kind)
	})
	b.timers[n.Kind] = t
}

// Success is shorthand for Post(Succeeded(text)).
func (b *Banner) Success(text string) { b.Post(Succeeded(text)) }

// Error is shorthand for Post(Failed(err)).
func (b *Banner) Error(err error) { b.Post(Failed(err)) }

// Clear hides every visible notice immediately.
func (b *Banner) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, t := range b.timers {
		t.Stop()
		delete(b.timers, k)
		b.sink.Hide(k)
	}
}
