package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"tradecore/internal/core"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	loaded, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, core.ModeBlocking, loaded.Engine.Mode)
	assert.Equal(t, 4096, loaded.Engine.QueueSize)
	assert.Equal(t, 8, loaded.Engine.MaxConcurrentExtensions)
	assert.False(t, loaded.Engine.InstrumentIndependent)
	assert.Equal(t, []enum.Interval{enum.Interval1m}, loaded.Engine.Recorder.BarIntervals)
	assert.Equal(t, time.Local, loaded.Engine.Recorder.Location)
	assert.False(t, loaded.Journal.Enabled)
	assert.False(t, loaded.Profiling.Enabled)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "tradecore.yaml", `
recorder:
  instrument_independent: true
  log_output: true
  location: Asia/Shanghai
  bar_intervals: [5, 1, 5, 15]
runtime:
  mode: cooperative
  queue_size: 128
  max_concurrent_extensions: 2
journal:
  enabled: true
  host: db.internal
  user: recorder
  database: trades
`)
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, core.ModeCooperative, loaded.Engine.Mode)
	assert.Equal(t, 128, loaded.Engine.QueueSize)
	assert.Equal(t, 2, loaded.Engine.MaxConcurrentExtensions)
	assert.True(t, loaded.Engine.InstrumentIndependent)
	assert.True(t, loaded.Engine.Recorder.LogOutput)
	assert.Equal(t, "Asia/Shanghai", loaded.Engine.Recorder.Location.String())
	assert.Equal(t, []enum.Interval{enum.Interval1m, enum.Interval5m, enum.Interval15m}, loaded.Engine.Recorder.BarIntervals)

	require.True(t, loaded.Journal.Enabled)
	assert.Equal(t, "db.internal", loaded.Journal.Options.Host)
	assert.Equal(t, 5432, loaded.Journal.Options.Port)
	assert.Equal(t, "disable", loaded.Journal.Options.SSLMode)
	assert.Equal(t, "trades", loaded.Journal.Options.Database)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "tradecore.toml", `
[runtime]
mode = "cooperative"
`)
	t.Setenv("TRADECORE_RUNTIME_MODE", "blocking")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, core.ModeBlocking, loaded.Engine.Mode)
}

func TestValidateRejects(t *testing.T) {
	valid := func() FileConfig {
		return FileConfig{
			Recorder: RecorderConfig{BarIntervals: []int{1}},
			Runtime:  RuntimeConfig{Mode: "blocking", QueueSize: 1, MaxConcurrentExtensions: 1},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*FileConfig){
		"unknown mode":       func(c *FileConfig) { c.Runtime.Mode = "threaded" },
		"empty queue":        func(c *FileConfig) { c.Runtime.QueueSize = 0 },
		"no extension slots": func(c *FileConfig) { c.Runtime.MaxConcurrentExtensions = 0 },
		"no intervals":       func(c *FileConfig) { c.Recorder.BarIntervals = nil },
		"odd interval":       func(c *FileConfig) { c.Recorder.BarIntervals = []int{7} },
		"journal target":     func(c *FileConfig) { c.Journal.Enabled = true },
		"profiling address":  func(c *FileConfig) { c.Profiling.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			require.True(t, errors.Is(cfg.Validate(), exception.ErrMisconfiguration))
		})
	}
}

func TestUnknownLocation(t *testing.T) {
	path := writeConfig(t, "tradecore.yaml", "recorder:\n  location: Mars/Olympus\n")
	_, err := Load(path)
	require.True(t, errors.Is(err, exception.ErrMisconfiguration))
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
