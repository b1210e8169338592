package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type hook struct {
	name string
	stop func(ctx context.Context) error
}

// Shutdown releases resources in the reverse of their acquisition, so the HTTP server
// and background workers stop before Redis and the database go away.
// Only the first Execute runs the hooks.
type Shutdown struct {
	mu    sync.Mutex
	stack []hook
	done  bool
	log   *slog.Logger
}

func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}
	return &Shutdown{log: log}
}

// Register pushes a hook. Hooks registered after Execute are ignored.
func (s *Shutdown) Register(name string, stop func(context.Context) error) {
	if stop == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.stack = append(s.stack, hook{name: name, stop: stop})
	}
}

// Execute pops every hook, newest first. A failing hook does not stop the rest; once
// ctx expires the remaining hooks are skipped and reported as failed.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	stack := s.stack
	s.stack = nil
	s.mu.Unlock()

	started := time.Now()
	var errs []error
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		err := ctx.Err()
		if err == nil {
			t := time.Now()
			if err = h.stop(ctx); err == nil {
				s.log.Info("stopped", slog.String("component", h.name), slog.Duration("took", time.Since(t)))
				continue
			}
		}
		s.log.Error("stop failed", slog.String("component", h.name), slog.Any("error", err))
		errs = append(errs, fmt.Errorf("stop %s: %w", h.name, err))
	}

	s.log.Info("shutdown complete", slog.Duration("took", time.Since(started)), slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}
