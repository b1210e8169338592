package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
)

// SettingsRepository reads and writes admin_settings key/value pairs.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string, at time.Time) error
}

type settingsRepository struct {
	q database.Querier
}

func NewSettingsRepository(q database.Querier) SettingsRepository {
	return &settingsRepository{q: q}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (string, error) {
	var v string
	if err := r.q.QueryRowContext(ctx, `SELECT value FROM admin_settings WHERE key = $1`, key).Scan(&v); err != nil {
		if err = notFound(err); err == ErrNotFound {
			return "", err
		}
		return "", fmt.Errorf("select setting %s: %w", key, err)
	}
	return v, nil
}

func (r *settingsRepository) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT key, value FROM admin_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (r *settingsRepository) Set(ctx context.Context, key, value string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO admin_settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, at)
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}
