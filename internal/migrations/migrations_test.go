package migrations

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNames_ReturnsSortedSQLFiles(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.True(t, sort.StringsAreSorted(names))
	require.Contains(t, names, "0001_init.sql")
}

func TestRead_ReturnsFileContents(t *testing.T) {
	body, err := Read("0001_init.sql")
	require.NoError(t, err)
	require.Contains(t, string(body), "CREATE TABLE")
}

func TestRead_UnknownFileErrors(t *testing.T) {
	_, err := Read("does_not_exist.sql")
	require.Error(t, err)
}
