package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var reg sql.NullString
	require.NoError(t, db.QueryRow(`SELECT to_regclass($1)::text`, "public."+name).Scan(&reg))
	return reg.Valid
}

func TestMigrations_UpDownUp(t *testing.T) {
	connStr := StartPostgres(t)
	m := NewMigrator(t, connStr)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tables := []string{
		"accounts", "ledger_entries", "withdrawal_codes",
		"withdrawal_requests", "withdrawal_events", "idempotency_cache",
	}

	require.NoError(t, m.Up())
	for _, tbl := range tables {
		assert.True(t, tableExists(t, db, tbl), tbl)
	}
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(4), version)
	assert.False(t, dirty)

	require.NoError(t, m.Down())
	for _, tbl := range tables {
		assert.False(t, tableExists(t, db, tbl), tbl)
	}

	require.NoError(t, m.Up())
	assert.True(t, tableExists(t, db, "withdrawal_codes"))
}
