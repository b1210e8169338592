// Package testutil provides an in-memory SQLite database with the application schema for package tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// NewDB opens a private in-memory database with the schema applied.
// The pool is pinned to one connection so every query sees the same database.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(context.Background(), schema)
	require.NoError(t, err, "apply test schema")

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// User describes a fixture user; zero values get defaults.
type User struct {
	TelegramID int64
	Balance    int64
	Level      string
	ReferrerID *int64
	FirstName  string
}

// InsertUser creates a user row directly, bypassing registration and the ledger.
func InsertUser(t testing.TB, db *sql.DB, u User) int64 {
	t.Helper()

	if u.Level == "" {
		u.Level = "basic"
	}
	if u.FirstName == "" {
		u.FirstName = fmt.Sprintf("user%d", u.TelegramID)
	}

	var id int64
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO users (telegram_id, system_uid, referrer_id, first_name, caps_balance, user_level)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		u.TelegramID, fmt.Sprintf("T%d", u.TelegramID), u.ReferrerID, u.FirstName, u.Balance, u.Level,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// InsertShopItem creates an active catalog item.
func InsertShopItem(t testing.TB, db *sql.DB, title string, price int64) int64 {
	t.Helper()

	var id int64
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO shop_items (category, title, price_caps, content_text, file_type)
		VALUES ('manuals', $1, $2, $3, 'text')
		RETURNING id`,
		title, price, "content of "+title,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// InsertAchievement adds an active catalog achievement.
func InsertAchievement(t testing.TB, db *sql.DB, code string, reward int64) int64 {
	t.Helper()

	var id int64
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO achievements (code, name, reward_caps) VALUES ($1, $2, $3) RETURNING id`,
		code, code, reward,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// InsertLesson adds an active lesson.
func InsertLesson(t testing.TB, db *sql.DB, title string, reward int64, order int) int64 {
	t.Helper()

	var id int64
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO university_lessons (title, content, reward_caps, order_index)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		title, "content of "+title, reward, order,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// SetSetting upserts an admin setting.
func SetSetting(t testing.TB, db *sql.DB, key, value string) {
	t.Helper()

	_, err := db.ExecContext(context.Background(), `
		INSERT INTO admin_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	require.NoError(t, err)
}

// Balance reads the user's current balance.
func Balance(t testing.TB, db *sql.DB, userID int64) int64 {
	t.Helper()

	var b int64
	require.NoError(t, db.QueryRowContext(context.Background(),
		`SELECT caps_balance FROM users WHERE id = $1`, userID).Scan(&b))
	return b
}

// Count runs a SELECT COUNT(*) style query.
func Count(t testing.TB, db *sql.DB, query string, args ...any) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}
