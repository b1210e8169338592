// Package health runs dependency checks for /api/health and the readiness probe.
package health

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/craft-bot/pkg/metrics"
)

// StatusOK is reported for a passing check; a failing one reports its error text.
const StatusOK = "OK"

const checkTimeout = 5 * time.Second

type Checkable interface {
	HealthCheck(ctx context.Context) error
}

type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type Report struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
}

type component struct {
	name     string
	check    Checkable
	critical bool
}

type result struct {
	name     string
	critical bool
	err      error
}

// Checker runs the registered components. The report is unhealthy only when a
// critical component fails; other failures are listed but tolerated.
type Checker struct {
	log        *slog.Logger
	mu         sync.RWMutex
	components []component
}

func NewChecker(log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{log: log}
}

// AddCheck registers check under name, replacing an earlier registration of that name.
func (c *Checker) AddCheck(name string, check Checkable, critical bool) {
	if name == "" || check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.components {
		if c.components[i].name == name {
			c.components[i] = component{name, check, critical}
			return
		}
	}
	c.components = append(c.components, component{name, check, critical})
}

func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.components))
	for i, comp := range c.components {
		names[i] = comp.name
	}
	sort.Strings(names)
	return names
}

// Check runs every component in parallel, each under its own timeout.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	components := append([]component(nil), c.components...)
	c.mu.RUnlock()

	results := make(chan result, len(components))
	for _, comp := range components {
		go func() {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			results <- result{name: comp.name, critical: comp.critical, err: comp.check.HealthCheck(cctx)}
		}()
	}

	report := Report{Healthy: true, Components: make(map[string]string, len(components))}
	for range components {
		r := <-results
		metrics.RecordComponentHealth(r.name, r.err == nil)
		if r.err == nil {
			report.Components[r.name] = StatusOK
			continue
		}

		report.Components[r.name] = r.err.Error()
		if r.critical {
			report.Healthy = false
		}
		c.log.Error("health check failed", slog.String("component", r.name), slog.Bool("critical", r.critical), slog.Any("error", r.err))
	}
	return report
}

func NewDBChecker(db *sql.DB) Checkable {
	return CheckFunc(func(ctx context.Context) error {
		if db == nil {
			return sql.ErrConnDone
		}
		return db.PingContext(ctx)
	})
}

// Pinger is satisfied by *redis.Client.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

func NewRedisChecker(p Pinger) Checkable {
	return CheckFunc(func(ctx context.Context) error {
		if p == nil {
			return redis.ErrClosed
		}
		return p.Ping(ctx).Err()
	})
}

// BotPinger calls getMe.
type BotPinger interface {
	Ping(ctx context.Context) error
}

func NewTelegramChecker(bot BotPinger) Checkable {
	return CheckFunc(func(ctx context.Context) error {
		if bot == nil {
			return errors.New("telegram bot is not configured")
		}
		return bot.Ping(ctx)
	})
}
