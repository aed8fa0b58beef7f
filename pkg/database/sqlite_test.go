package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/pkg/config"
)

func TestNewSQLiteOpensFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")

	db, err := NewSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}

func TestOpenMemoryReturnsNil(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
