package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	path, err := createSQLMigrationAt(dir, "Add Gift-Card balances", at)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20261019083000_add_gift_card_balances.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(body), "-- add_gift_card_balances:")
	require.NoError(t, ValidateDir(dir))

	_, err = createSQLMigrationAt(dir, "add gift card balances", at)
	require.ErrorContains(t, err, "already exists")
}

func TestCreateSQLMigrationRejectsEmptyNames(t *testing.T) {
	_, err := createSQLMigrationAt(t.TempDir(), " -- ", time.Now())
	require.Error(t, err)

	_, err = createSQLMigrationAt("", "ok", time.Now())
	require.Error(t, err)
}
