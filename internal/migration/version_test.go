package migration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLatestMigrationVersion(t *testing.T) {
	v, err := LatestMigrationVersion()
	require.NoError(t, err)
	require.Equal(t, uint(1), v)
}

func TestMigrationsChecksum_Deterministic(t *testing.T) {
	first, err := MigrationsChecksum()
	require.NoError(t, err)
	require.Len(t, first, 64)

	second, err := MigrationsChecksum()
	require.NoError(t, err)
	require.Equal(t, first, second)
}
