// Package correlation maps short opaque callback tokens to the structured
// intent a button press should carry. Telegram callback payloads are
// limited to 64 bytes, so menus embed an 8-character token and the real
// payload lives here until the button is pressed.
package correlation

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates what a stored intent points at.
type Kind string

const (
	KindSubject    Kind = "subject"
	KindCoursework Kind = "coursework"
)

// Purpose records which flow issued the token.
type Purpose string

const (
	PurposeBuy  Purpose = "buy"
	PurposeSell Purpose = "sell"
)

// Intent is the structured payload a button press resolves to.
type Intent struct {
	Kind         Kind
	Year         int
	SubjectID    uuid.UUID
	CourseworkID uuid.UUID
	Purpose      Purpose
}

type entry struct {
	intent   Intent
	issuedAt time.Time
}

const (
	// DefaultTTL bounds how long an unpressed button stays resolvable.
	DefaultTTL = 24 * time.Hour
	// DefaultSweepInterval is how often expired entries are collected.
	DefaultSweepInterval = 10 * time.Minute

	tokenBytes = 4 // 8 hex characters
)

// Store issues and consumes correlation tokens. Consume is atomic:
// check-and-remove happens under one lock so a token resolves at most once.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// Option customises a Store.
type Option func(*Store)

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a store and starts the background sweep.
func NewStore(sweepEvery time.Duration, opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if sweepEvery <= 0 {
		sweepEvery = DefaultSweepInterval
	}
	go s.sweepLoop(sweepEvery)
	return s
}

// Issue stores the intent and returns a token unique among live entries.
func (s *Store) Issue(intent Intent) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		token := newToken()
		if _, exists := s.entries[token]; exists {
			continue
		}
		s.entries[token] = entry{intent: intent, issuedAt: s.now()}
		return token
	}
}

// Consume removes and returns the intent for a token. A previously
// consumed, expired, or never-issued token yields ok=false.
func (s *Store) Consume(token string) (Intent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		return Intent{}, false
	}
	delete(s.entries, token)
	if s.now().Sub(e.issuedAt) > s.ttl {
		return Intent{}, false
	}
	return e.intent, true
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the background sweep.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *Store) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	for token, e := range s.entries {
		if e.issuedAt.Before(cutoff) {
			delete(s.entries, token)
		}
	}
}

func newToken() string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to
		// a uuid-derived token to keep Issue total.
		return uuid.NewString()[:tokenBytes*2]
	}
	return hex.EncodeToString(buf)
}
