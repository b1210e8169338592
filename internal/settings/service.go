// Package settings serves the runtime admin settings with config defaults.
package settings

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/repository"
)

// Defaults are the values used when a key has no row.
type Defaults struct {
	AIMessageCost int64
	NewsDailyCost int64
}

// Service reads and writes admin settings.
type Service struct {
	db       *sql.DB
	cache    *Cache
	defaults map[string]int64
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates the settings service. cache may be nil.
func NewService(db *sql.DB, defaults Defaults, cache *Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:    db,
		cache: cache,
		defaults: map[string]int64{
			domain.SettingAIMessageCost: defaults.AIMessageCost,
			domain.SettingNewsDailyCost: defaults.NewsDailyCost,
		},
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Writable reports whether key may be changed through the admin API.
func Writable(key string) bool {
	return key == domain.SettingAIMessageCost || key == domain.SettingNewsDailyCost
}

// All returns every stored setting.
func (s *Service) All(ctx context.Context) (map[string]string, error) {
	if values, err := s.cache.Get(ctx); err != nil {
		s.log.Warn("settings cache read failed", slog.Any("error", err))
	} else if values != nil {
		return values, nil
	}

	values, err := repository.NewSettingsRepository(s.db).All(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	if err := s.cache.Set(ctx, values); err != nil {
		s.log.Warn("settings cache write failed", slog.Any("error", err))
	}
	return values, nil
}

// Update stores the writable keys of values and returns the keys it changed, sorted.
// Unknown keys are ignored; a writable key must hold a non-negative integer.
func (s *Service) Update(ctx context.Context, values map[string]string) ([]string, error) {
	repo := repository.NewSettingsRepository(s.db)
	now := s.now()

	keys := make([]string, 0, len(values))
	for k := range values {
		if Writable(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := strings.TrimSpace(values[k])
		if n, err := strconv.ParseInt(v, 10, 64); err != nil || n < 0 {
			return nil, apperrors.NewValidationError(k + " must be a non-negative integer")
		}
	}

	updated := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := repo.Set(ctx, k, strings.TrimSpace(values[k]), now); err != nil {
			return updated, apperrors.NewDatabaseError(err)
		}
		updated = append(updated, k)
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("settings cache invalidate failed", slog.Any("error", err))
	}
	s.log.Info("settings updated", slog.Any("keys", updated))
	return updated, nil
}

// AIMessageCost is the caps price of one assistant message.
func (s *Service) AIMessageCost(ctx context.Context) int64 {
	return s.int(ctx, domain.SettingAIMessageCost)
}

// NewsDailyCost is the caps price of one day of news.
func (s *Service) NewsDailyCost(ctx context.Context) int64 {
	return s.int(ctx, domain.SettingNewsDailyCost)
}

// int falls back to the default on a missing, malformed or unreadable value.
func (s *Service) int(ctx context.Context, key string) int64 {
	def := s.defaults[key]

	values, err := s.All(ctx)
	if err != nil {
		s.log.Warn("settings read failed, using default", slog.String("key", key), slog.Any("error", err))
		return def
	}

	raw, ok := values[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return def
	}
	return n
}
