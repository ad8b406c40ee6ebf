package migration

import (
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	source, err := iofs.New(sub, ".")
	require.NoError(t, err)
	defer source.Close()

	version, err := source.First()
	require.NoError(t, err)
	count := 0
	for {
		count++
		up, _, err := source.ReadUp(version)
		require.NoError(t, err, "version %d up", version)
		body, err := io.ReadAll(up)
		require.NoError(t, err)
		up.Close()
		assert.NotEmpty(t, strings.TrimSpace(string(body)))

		down, _, err := source.ReadDown(version)
		require.NoError(t, err, "version %d down", version)
		down.Close()

		next, err := source.Next(version)
		if err != nil {
			break
		}
		version = next
	}
	assert.Equal(t, 6, count)
}

func TestAdmissionConstraintsArePartial(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, "migrations/000004_admissions.up.sql")
	require.NoError(t, err)
	sql := string(body)
	assert.Contains(t, sql, "ux_admissions_active_patient ON admissions (patient_id) WHERE status = 'ACTIVE'")
	assert.Contains(t, sql, "ux_admissions_active_room ON admissions (room_id) WHERE status = 'ACTIVE'")
}
