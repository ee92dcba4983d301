package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSetup(t *testing.T) {
	ctx := context.Background()

	t.Run("loads file and starts logging", func(t *testing.T) {
		path := writeConfig(t, "log:\n  level: debug\n  format: console\n")

		rt, err := Setup(ctx, path, "test")
		require.NoError(t, err)
		t.Cleanup(func() { _ = rt.Close(ctx) })

		assert.Equal(t, "debug", rt.Config.Log.Level)
		assert.False(t, rt.Telemetry.Enabled())
	})

	t.Run("bad log level", func(t *testing.T) {
		path := writeConfig(t, "log:\n  level: loud\n")

		_, err := Setup(ctx, path, "test")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log")
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Setup(ctx, filepath.Join(t.TempDir(), "absent.yaml"), "test")
		assert.Error(t, err)
	})
}

func TestNewComponents(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeConfig(t, `
embeddings:
  provider: tei
  tei:
    base_url: http://127.0.0.1:1
    model: BAAI/bge-small-en-v1.5
store:
  backend: sqlite
  sqlite:
    path: `+filepath.Join(dir, "docflow.db")+`
`)

	rt, err := Setup(ctx, path, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	comps, err := rt.NewComponents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 384, comps.Embedder.Dimension())
	assert.Equal(t, "sqlite", comps.Store.Backend())
	assert.Equal(t, 2<<20, comps.MaxPayloadBytes)

	acts, err := comps.Activities(rt.Logger)
	require.NoError(t, err)
	assert.NotNil(t, acts)

	require.NoError(t, comps.Close())
	_, err = os.Stat(filepath.Join(dir, "docflow.db"))
	assert.NoError(t, err)
}
