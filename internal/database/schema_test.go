package database

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/craft-bot/internal/testutil"
)

var (
	createTableRe = regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS (\w+) \((.*?)\n\);`)
	tableUniqueRe = regexp.MustCompile(`^UNIQUE \(([^)]+)\)`)
)

type tableDef struct {
	columns []string
	unique  []string
}

// parseMigration reads column names and unique keys from the Postgres DDL. Serial
// primary keys are left out since SQLite backs them with the rowid, not an index.
func parseMigration(t *testing.T, name string) map[string]tableDef {
	t.Helper()

	raw, err := migrationsFS.ReadFile(migrationsDir + "/" + name)
	require.NoError(t, err)

	tables := make(map[string]tableDef)
	for _, m := range createTableRe.FindAllStringSubmatch(string(raw), -1) {
		var def tableDef
		for _, line := range strings.Split(m[2], "\n") {
			line = strings.TrimSuffix(strings.TrimSpace(line), ",")
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			if u := tableUniqueRe.FindStringSubmatch(line); u != nil {
				def.unique = append(def.unique, normalizeColumns(u[1]))
				continue
			}

			fields := strings.Fields(line)
			switch strings.ToUpper(fields[0]) {
			case "PRIMARY", "FOREIGN", "CHECK", "CONSTRAINT":
				continue
			}
			def.columns = append(def.columns, fields[0])

			upper := strings.ToUpper(line)
			serial := len(fields) > 1 && strings.HasSuffix(strings.ToUpper(fields[1]), "SERIAL")
			if strings.Contains(upper, " UNIQUE") || (strings.Contains(upper, "PRIMARY KEY") && !serial) {
				def.unique = append(def.unique, fields[0])
			}
		}
		tables[m[1]] = def
	}
	return tables
}

func normalizeColumns(list string) string {
	parts := strings.Split(list, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ",")
}

func sqliteColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	require.NoError(t, err)
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		require.NoError(t, rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk))
		cols = append(cols, name)
	}
	require.NoError(t, rows.Err())
	return cols
}

func sqliteUnique(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query(fmt.Sprintf("PRAGMA index_list(%s)", table))
	require.NoError(t, err)

	var indexes []string
	for rows.Next() {
		var (
			seq, unique, partial int
			name, origin         string
		)
		require.NoError(t, rows.Scan(&seq, &name, &unique, &origin, &partial))
		if unique == 1 {
			indexes = append(indexes, name)
		}
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	keys := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		info, err := db.Query(fmt.Sprintf("PRAGMA index_info(%s)", idx))
		require.NoError(t, err)

		var cols []string
		for info.Next() {
			var (
				seqno, cid int
				name       string
			)
			require.NoError(t, info.Scan(&seqno, &cid, &name))
			cols = append(cols, name)
		}
		require.NoError(t, info.Err())
		require.NoError(t, info.Close())
		keys = append(keys, strings.Join(cols, ","))
	}
	return keys
}

func TestSQLiteSchemaMatchesMigration(t *testing.T) {
	migration := parseMigration(t, "00001_init.sql")
	require.NotEmpty(t, migration)

	db := testutil.NewDB(t)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`).Scan(&count))
	assert.Equal(t, len(migration), count, "table count")

	for table, def := range migration {
		t.Run(table, func(t *testing.T) {
			assert.ElementsMatch(t, def.columns, sqliteColumns(t, db, table), "columns")
			assert.ElementsMatch(t, def.unique, sqliteUnique(t, db, table), "unique keys")
		})
	}
}

// Every upsert in internal/repository needs a matching unique key in both schemas.
func TestConflictTargetsAreUnique(t *testing.T) {
	migration := parseMigration(t, "00001_init.sql")
	db := testutil.NewDB(t)

	tests := []struct {
		table  string
		target string
	}{
		{table: "lead_cards", target: "user_id,field_name"},
		{table: "university_progress", target: "user_id,lesson_id"},
		{table: "admin_settings", target: "key"},
		{table: "user_achievements", target: "user_id,achievement_id"},
		{table: "news_subscriptions", target: "user_id"},
		{table: "user_cart", target: "user_id,item_id"},
		{table: "referrals", target: "referrer_id,referred_id"},
		{table: "pending_referrals", target: "referred_telegram_id,referrer_telegram_id"},
	}

	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			def, ok := migration[tt.table]
			require.True(t, ok, "table missing from migration")
			assert.Contains(t, def.unique, tt.target, "migration")
			assert.Contains(t, sqliteUnique(t, db, tt.table), tt.target, "test schema")
		})
	}
}
