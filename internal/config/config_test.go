package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/tasteid/pkg/models"
)

// isolate points the data dir at a temp dir and clears env overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TASTEID_DATA_DIR", dir)
	for _, key := range []string{
		"TASTEID_WORKER_HOST", "TASTEID_WORKER_PORT", "TASTEID_DB_DRIVER",
		"TASTEID_DB_DSN", "TASTEID_MAX_CONNS", "TASTEID_REDIS_ADDR", "TASTEID_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func writeSettings(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
}

func TestLoadFrom_MissingFileYieldsDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := LoadFrom(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkerPort, cfg.WorkerPort)
	assert.Equal(t, DefaultDBDriver, cfg.DBDriver)
	assert.Equal(t, filepath.Join(dir, "tasteid.db"), cfg.DBDSN)
	assert.Equal(t, 3, cfg.Engine.MinEvents)
	assert.Equal(t, 0.15, cfg.Engine.Drift.SignatureDelta)
}

func TestLoadFrom_SettingsOverrideDefaults(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "settings.json")
	writeSettings(t, path, `{
  "TASTEID_WORKER_PORT": 40000,
  "TASTEID_DB_DRIVER": "postgres",
  "TASTEID_DB_DSN": "postgres://localhost/tasteid",
  "TASTEID_REDIS_ADDR": "localhost:6379",
  "engine": {"min_events": 10, "drift": {"signature_delta": 0.2}}
}`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 40000, cfg.WorkerPort)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 10, cfg.Engine.MinEvents)
	assert.Equal(t, 0.2, cfg.Engine.Drift.SignatureDelta)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, 0.75, cfg.Engine.Drift.RatingDelta)
	assert.Equal(t, models.SeverityMedium, cfg.Engine.Drift.SignificantSeverity)
	assert.Equal(t, 1, cfg.Engine.PreviewMinEvents)
}

func TestLoadFrom_EnvOverridesSettings(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "settings.json")
	writeSettings(t, path, `{"TASTEID_WORKER_PORT": 40000, "TASTEID_LOG_LEVEL": "info"}`)
	t.Setenv("TASTEID_WORKER_PORT", "41000")
	t.Setenv("TASTEID_LOG_LEVEL", "debug")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 41000, cfg.WorkerPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFrom_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"TASTEID_WORKER_PORT":`},
		{name: "wrong type", body: `{"TASTEID_WORKER_PORT": "high"}`},
		{name: "unknown driver", body: `{"TASTEID_DB_DRIVER": "oracle"}`},
		{name: "port out of range", body: `{"TASTEID_WORKER_PORT": 70000}`},
		{name: "zero min events", body: `{"engine": {"min_events": 0}}`},
		{name: "min events below three", body: `{"engine": {"min_events": 1}}`},
		{name: "zero signature delta", body: `{"engine": {"drift": {"signature_delta": 0}}}`},
		{name: "unknown log level", body: `{"TASTEID_LOG_LEVEL": "loud"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			path := filepath.Join(dir, "settings.json")
			writeSettings(t, path, tt.body)

			_, err := LoadFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestValidate_EngineThresholds(t *testing.T) {
	require.NoError(t, Default().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"recompute below three events", func(c *Config) { c.Engine.MinEvents = 1 }},
		{"zero signature delta", func(c *Config) { c.Engine.Drift.SignatureDelta = 0 }},
		{"signature delta above one", func(c *Config) { c.Engine.Drift.SignatureDelta = 1.5 }},
		{"negative rating delta", func(c *Config) { c.Engine.Drift.RatingDelta = -1 }},
		{"escalation without growth", func(c *Config) { c.Engine.Drift.EscalationFactor = 1 }},
		{"unknown contradiction severity", func(c *Config) { c.Engine.Drift.ContradictionSeverity = "extreme" }},
		{"emergence above one", func(c *Config) { c.Engine.Pattern.EmergenceThreshold = 5 }},
		{"confirmation below emergence", func(c *Config) { c.Engine.Pattern.ConfirmationThreshold = 0.3 }},
		{"fade above emergence", func(c *Config) { c.Engine.Pattern.FadeThreshold = 0.5 }},
		{"drop before fade", func(c *Config) { c.Engine.Pattern.DropAfterEvents = 10 }},
		{"zero critical share", func(c *Config) { c.Engine.Pattern.CriticalShare = 0 }},
		{"zero loyalist range", func(c *Config) { c.Engine.Pattern.LoyalistRange = 0 }},
		{"edge decay of one", func(c *Config) { c.Engine.Consolidation.Graph.Decay = 1 }},
		{"unobserved decay above one", func(c *Config) { c.Engine.Consolidation.Graph.UnobservedDecay = 3 }},
		{"zero inactivity gap", func(c *Config) { c.Engine.Consolidation.InactivityGapHours = 0 }},
		{"zero population stddev", func(c *Config) { c.Engine.Signature.PopulationStdDev = 0 }},
		{"adventureness weight above one", func(c *Config) { c.Engine.Signature.SpreadWeight = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnsureAll_WritesLoadableDefaults(t *testing.T) {
	isolate(t)
	require.NoError(t, EnsureAll())
	require.FileExists(t, SettingsPath())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkerPort, cfg.WorkerPort)

	// A second call keeps the existing file.
	writeSettings(t, SettingsPath(), `{"TASTEID_WORKER_PORT": 40001}`)
	require.NoError(t, EnsureAll())
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 40001, cfg.WorkerPort)
}

func TestWatcher_ReloadsValidChanges(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "settings.json")
	writeSettings(t, path, `{}`)

	initial, err := LoadFrom(path)
	require.NoError(t, err)

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, initial, func(cfg *Config) { changes <- cfg }, zerolog.Nop())
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Invalid content is ignored.
	writeSettings(t, path, `{"TASTEID_DB_DRIVER": "oracle"}`)
	time.Sleep(100 * time.Millisecond)
	assert.Same(t, initial, w.Current())

	writeSettings(t, path, `{"engine": {"min_events": 7}}`)
	select {
	case cfg := <-changes:
		assert.Equal(t, 7, cfg.Engine.MinEvents)
		assert.Same(t, cfg, w.Current())
	case <-time.After(5 * time.Second):
		t.Fatal("settings change was not observed")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "settings.json")
	writeSettings(t, path, `{}`)

	changes := make(chan *Config, 1)
	w, err := NewWatcher(path, Default(), func(cfg *Config) { changes <- cfg }, zerolog.Nop())
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeSettings(t, filepath.Join(dir, "other.json"), `{"engine": {"min_events": 9}}`)

	select {
	case <-changes:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	assert.NoError(t, <-done)
}
