package repository

import (
	"context"
	"strings"

	"golang.org/x/sync/semaphore"
)

// Config identifies a restic repository and the password protecting it.
type Config struct {
	Location string
	Secret   string
}

// Validate ensures both the location and the secret are set.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Location) == "" || c.Secret == "" {
		return newError(KindConfiguration, "Repository location and password are required")
	}
	return nil
}

// Session owns the repository configuration for the lifetime of the process
// and serializes every restic invocation made against it. The guard only
// covers this process; other programs touching the same repository are not
// coordinated with.
type Session struct {
	config Config
	sem    *semaphore.Weighted
}

// NewSession returns a session for cfg. The configuration never changes once
// the session is created.
func NewSession(cfg Config) *Session {
	return &Session{config: cfg, sem: semaphore.NewWeighted(1)}
}

// Config returns the session's repository configuration.
func (s *Session) Config() Config {
	return s.config
}

// With runs fn while holding the session guard. Waiters are admitted in the
// order they arrived. If ctx is done before the guard is acquired fn is never
// called and the context error is returned. The guard is released on every
// exit path, including a panic in fn.
func (s *Session) With(ctx context.Context, fn func(cfg Config) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	return fn(s.config)
}

// WithSession is the value returning form of Session.With.
func WithSession[T any](ctx context.Context, s *Session, fn func(cfg Config) (T, error)) (T, error) {
	var v T
	err := s.With(ctx, func(cfg Config) error {
		var err error
		v, err = fn(cfg)
		return err
	})
	return v, err
}
