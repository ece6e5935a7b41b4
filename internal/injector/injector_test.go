package injector

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/tilestream/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Log.Level = "silent"
	cfg.Engine.BlockSize = 17
	cfg.Engine.PatchSize = 17
	cfg.Engine.Workers = 2
	cfg.Server.Addr = ""
	cfg.Store.Enabled = true
	cfg.Store.Path = filepath.Join(t.TempDir(), "tiles.db")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestInitializeServerLoadsWorld(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.Kind = config.SourceNoise
	cfg.Source.Noise.Octaves = 2
	cfg.Store.Prewarm = 1

	srv, cleanup, err := InitializeServer(cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	require.Eventually(t, func() bool {
		srv.Tick()
		return srv.Stats().Engine.Loaded
	}, 5*time.Second, time.Millisecond)

	st := srv.Stats()
	assert.Equal(t, cfg.Engine.ViewDistance.Count(), st.Engine.Active)
	assert.Equal(t, st.Engine.Active, st.Bodies)
}

func TestInitializeServerFlyover(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Enabled = false
	cfg.Source.Kind = config.SourceFlat
	cfg.Viewer.Mode = config.ViewerFlyover
	cfg.Viewer.Start = [3]float64{100, 0, 100}

	srv, cleanup, err := InitializeServer(cfg)
	require.NoError(t, err)
	defer cleanup()

	srv.Tick()
	assert.Equal(t, 100.0, srv.Stats().Viewer.X)
}

func TestInitializeServerFailsOnMissingScene(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.Kind = config.SourceScene
	cfg.Source.Scene.Path = filepath.Join(t.TempDir(), "missing.yaml")

	_, _, err := InitializeServer(cfg)
	require.Error(t, err)
}
