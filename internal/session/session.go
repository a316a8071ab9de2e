// Package session keeps the live sign-in flows of the session API in
// memory. A session is one sign-in attempt against one provider; it is
// discarded on delete or after sitting idle for the configured TTL.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/taar-app/ticketsync/internal/flow"
)

var (
	// ErrNotFound is returned for unknown or expired sessions.
	ErrNotFound = errors.New("session: not found")
	// ErrUnknownProvider is returned when no flow is registered for a provider.
	ErrUnknownProvider = errors.New("session: unknown provider")
	// ErrCapacity is returned when the store is full.
	ErrCapacity = errors.New("session: too many active sessions")
)

var activeSessions = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "signin_sessions_active",
		Help: "Number of live sign-in sessions by provider",
	},
	[]string{"provider"},
)

// Flow is a provider's sign-in controller as the session API drives it.
type Flow interface {
	Provider() string
	Handle(ctx context.Context, cmd flow.Command) error
	View() any
	// Close detaches the flow so that in-flight completions are discarded.
	Close()
}

// Factory creates the flow for a new session.
type Factory func() Flow

// Session is one live sign-in attempt.
type Session struct {
	ID        uuid.UUID
	Flow      Flow
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Config holds store limits.
type Config struct {
	TTL         time.Duration
	MaxSessions int
}

// Store is an in-memory session registry safe for concurrent use.
type Store struct {
	factories map[string]Factory
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewStore creates a store that builds flows with factories, keyed by
// provider name.
func NewStore(factories map[string]Factory, cfg Config, logger *slog.Logger) *Store {
	return &Store{
		factories: factories,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[uuid.UUID]*Session),
	}
}

// Supports reports whether provider has a registered flow.
func (s *Store) Supports(provider string) bool {
	_, ok := s.factories[provider]
	return ok
}

// Create starts a new session for provider.
func (s *Store) Create(provider string) (*Session, error) {
	factory, ok := s.factories[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		return nil, ErrCapacity
	}

	now := s.now()
	sess := &Session{
		ID:        uuid.New(),
		Flow:      factory(),
		CreatedAt: now,
		lastSeen:  now,
	}
	s.sessions[sess.ID] = sess
	activeSessions.WithLabelValues(provider).Inc()

	s.logger.Info("sign-in session created",
		slog.String("session_id", sess.ID.String()),
		slog.String("provider", provider),
	)
	return sess, nil
}

// Get returns a live session and marks it as used.
func (s *Store) Get(id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	sess.touch(s.now())
	return sess, nil
}

// Delete closes and removes a session.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.close(sess, "deleted")
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep closes and removes sessions idle for longer than the TTL. It
// returns how many were removed.
func (s *Store) Sweep() int {
	if s.cfg.TTL <= 0 {
		return 0
	}
	now := s.now()

	var expired []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.idleSince(now) > s.cfg.TTL {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		s.close(sess, "expired")
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done, then closes every session.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("expired sign-in sessions", slog.Int("count", n))
			}
		}
	}
}

func (s *Store) closeAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[uuid.UUID]*Session)
	s.mu.Unlock()

	for _, sess := range all {
		s.close(sess, "shutdown")
	}
}

func (s *Store) close(sess *Session, reason string) {
	sess.Flow.Close()
	activeSessions.WithLabelValues(sess.Flow.Provider()).Dec()
	s.logger.Info("sign-in session closed",
		slog.String("session_id", sess.ID.String()),
		slog.String("provider", sess.Flow.Provider()),
		slog.String("reason", reason),
	)
}
