package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"circle-thumb/src/apperr"
	"circle-thumb/src/compositor"
	"circle-thumb/src/session"
)

// maxSessions bounds memory held by abandoned browser tabs; the least
// recently used session is evicted beyond it.
const maxSessions = 64

// Registry holds one session per browser tab and expires idle ones.
type Registry struct {
	ttl time.Duration
	bg  compositor.Background

	mu       sync.Mutex
	sessions map[string]*session.Session
}

func NewRegistry(ttl time.Duration, bg compositor.Background) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{ttl: ttl, bg: bg, sessions: make(map[string]*session.Session)}
}

// Create registers a new empty session.
func (r *Registry) Create() (*session.Session, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	s := session.New(id, r.bg)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) >= maxSessions {
		r.evictOldestLocked()
	}
	r.sessions[id] = s
	return s, nil
}

// Get returns the session or apperr.ErrNotFound.
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %q", apperr.ErrNotFound, id)
	}
	return s, nil
}

// Delete drops a session; unknown ids are ignored.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions idle since before now-ttl and returns how many.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if now.Sub(s.LastUsed()) > r.ttl {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// RunJanitor sweeps periodically until ctx is cancelled.
func (r *Registry) RunJanitor(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := r.Sweep(now); n > 0 {
				log.Printf("Registry: expired %d idle session(s)", n)
			}
		}
	}
}

func (r *Registry) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, s := range r.sessions {
		if lu := s.LastUsed(); oldestID == "" || lu.Before(oldest) {
			oldestID, oldest = id, lu
		}
	}
	if oldestID != "" {
		delete(r.sessions, oldestID)
		log.Printf("Registry: evicted session %s", oldestID)
	}
}

func newID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
