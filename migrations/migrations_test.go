package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsHaveUpAndDown(t *testing.T) {
	names, err := fs.Glob(files, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	for _, name := range names {
		body, err := fs.ReadFile(files, name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestEventsTableEnforcesOneEventPerVersion(t *testing.T) {
	body, err := fs.ReadFile(files, "00001_events.sql")
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), "UNIQUE (aggregate_id, version)"))
}
