package terrastream

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigSource = `
retry_malformed = true

cache {
  cpu_size = mb(64)
  gpu_size = gb(1)
  max_gpu_used = mb(512)
}

retry {
  max_count = 5
  backoff = "250ms"
}

loader {
  concurrency = 4
  rate = 20.5
  timeout = "3s"
}

frame {
  process_budget = "5ms"
  node_ttl = 10
}

bound_layer "sat" {
  url = "sat/{lod}/{x}/{y}.jpg"
  meta_url = "sat/meta/{lod}/{x}/{y}.png"
  lod_range = [3, 18]
  opacity = 0.5
}

surface "terrain" {
  mesh_url = "mesh/{lod}/{x}/{y}.bin"
  texture_url = "tex/{lod}/{x}/{y}-{sub}.jpg"
  meta_url = "meta/{lod}/{x}/{y}.mt"
  lod_range = [0, 18]
  bound_layers = ["sat"]
}

view "city" {
  surface = "terrain"
  tiles = ["12-2200-1343"]
  target_level = 14
  frames = 60
}
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig("test.hcl", []byte(testConfigSource))
	require.NoError(t, err)

	require.NotNil(t, cfg.Cache.CPUSize)
	assert.Equal(t, 64<<20, *cfg.Cache.CPUSize)
	assert.Equal(t, 1<<30, *cfg.Cache.GPUSize)
	require.Len(t, cfg.Surfaces, 1)
	assert.Equal(t, []int{0, 18}, cfg.Surfaces[0].LODRange)
	require.Len(t, cfg.BoundLayers, 1)
	assert.Equal(t, 0.5, cfg.BoundLayers[0].Opacity)

	view, err := cfg.View("city")
	require.NoError(t, err)
	assert.Equal(t, 14, view.TargetLevel)
	assert.Equal(t, []string{"12-2200-1343"}, view.Tiles)

	_, err = cfg.View("missing")
	assert.Error(t, err)
}

func TestConfigSettings(t *testing.T) {
	cfg, err := ParseConfig("test.hcl", []byte(testConfigSource))
	require.NoError(t, err)

	s, err := cfg.Settings()
	require.NoError(t, err)

	want := DefaultSettings()
	want.CPUCacheSize = 64 << 20
	want.GPUCacheSize = 1 << 30
	want.MaxGPUUsed = 512 << 20
	want.MaxRetryCount = 5
	want.RetryBackoff = 250 * time.Millisecond
	want.RetryMalformed = true
	want.LoaderConcurrency = 4
	want.LoaderRate = 20.5
	want.LoaderTimeout = 3 * time.Second
	want.ProcessBudget = 5 * time.Millisecond
	want.NodeTTL = 10
	assert.Equal(t, want, s)
}

func TestConfigSettingsDefaults(t *testing.T) {
	cfg, err := ParseConfig("empty.hcl", nil)
	require.NoError(t, err)

	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestConfigSettingsExplicitZero(t *testing.T) {
	cfg, err := ParseConfig("zero.hcl", []byte(`
retry { max_count = 0 }
cache { cpu_size = 0 }
frame { node_ttl = 0 }
`))
	require.NoError(t, err)

	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, 0, s.MaxRetryCount)
	assert.Equal(t, 0, s.CPUCacheSize)
	assert.Equal(t, 0, s.NodeTTL)
	assert.Equal(t, DefaultSettings().GPUCacheSize, s.GPUCacheSize)
}

func TestConfigSettingsNegative(t *testing.T) {
	cfg, err := ParseConfig("neg.hcl", []byte(`retry { max_count = -1 }`))
	require.NoError(t, err)

	_, err = cfg.Settings()
	assert.ErrorContains(t, err, "retry.max_count")
}

func TestConfigSettingsBadDuration(t *testing.T) {
	cfg, err := ParseConfig("bad.hcl", []byte(`retry { backoff = "soon" }`))
	require.NoError(t, err)

	_, err = cfg.Settings()
	assert.ErrorContains(t, err, "retry.backoff")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terrastream.hcl")
	require.NoError(t, os.WriteFile(path, []byte(testConfigSource), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Views, 1)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
