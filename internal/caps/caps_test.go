package caps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefault(t *testing.T) {
	table, err := Load(filepath.Join(t.TempDir(), "missing.toml"), 300_000, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, int64(300_000), table.Cap("anything"))
}

func TestLoad_ReadsConfiguredCaps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caps.toml")
	require.NoError(t, os.WriteFile(path, []byte("[caps]\njobA = 60000\n"), 0o644))

	table, err := Load(path, 300_000, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, int64(60_000), table.Cap("jobA"))
	require.Equal(t, int64(300_000), table.Cap("unknown"), "unconfigured types fall back to default")
}
