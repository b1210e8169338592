// Package idempotency runs an operation at most once per key, with the outcome shared
// through Redis so every instance behind the webhook sees it.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrRequestInProgress is returned while another caller holds the key.
var ErrRequestInProgress = errors.New("request with this key is already in progress")

const (
	defaultLockTTL = 2 * time.Minute
	pollInterval   = 100 * time.Millisecond
)

// Operation is the work guarded by a key. Its result must be JSON-encodable.
type Operation func(ctx context.Context) (any, error)

// Result is what Execute returns. FromCache is true when the operation had already
// completed under the same key and was not run again.
type Result struct {
	Response  json.RawMessage
	FromCache bool
}

// Manager executes operations idempotently.
type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store   Store
	lockTTL time.Duration
	log     *slog.Logger
}

// NewManager returns a Manager over store.
func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{store: store, lockTTL: defaultLockTTL, log: log}
}

// UpdateKey is the key of one Telegram webhook update.
func UpdateKey(updateID int) string {
	return fmt.Sprintf("tg-update:%d", updateID)
}

func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	for {
		locked, err := m.store.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return nil, err
		}
		record, err := m.store.Get(ctx, key)
		if err != nil {
			if locked {
				m.release(ctx, key)
			}
			return nil, err
		}
		if record != nil && record.Status == StatusCompleted {
			if locked {
				m.release(ctx, key)
			}
			return &Result{Response: record.Response, FromCache: true}, nil
		}
		if locked {
			return m.run(ctx, key, ttl, fn)
		}

		if record != nil && record.Status == StatusProcessing {
			return nil, ErrRequestInProgress
		}

		// The lock holder has not written a record yet.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (m *manager) release(ctx context.Context, key string) {
	if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
		m.log.Warn("release idempotency lock", slog.String("key", key), slog.Any("error", err))
	}
}

// run executes fn while holding the lock; a completed record outlives the lock for ttl.
func (m *manager) run(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	defer m.release(ctx, key)

	if err := m.store.Set(ctx, key, &Record{Status: StatusProcessing}, m.lockTTL); err != nil {
		return nil, err
	}

	out, err := fn(ctx)
	if err != nil {
		// Drop the processing marker so a retry can run the operation again.
		if delErr := m.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			m.log.Warn("clear failed idempotency record", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, err
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode idempotent result: %w", err)
	}
	if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, Response: payload}, ttl); err != nil {
		return nil, err
	}

	return &Result{Response: payload}, nil
}
