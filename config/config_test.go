package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "full", cfg.Mode)
	assert.Empty(t, cfg.DisabledSteps)
	assert.True(t, cfg.Images.Enabled)
	assert.Equal(t, int64(10<<20), cfg.Images.MaxBytes)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 100, cfg.Crawl.MaxPages)
	assert.Equal(t, ":8080", cfg.Serve.Listen)
	assert.Equal(t, "amp", cfg.Serve.Segment)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amppipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
mode: minimal
disabled_steps: [canonical]
images:
  root: /srv/public
fetch:
  timeout: 5s
serve:
  listen: ":9000"
  upstream: http://localhost:3000
`), 0o644))

	t.Setenv("AMPPIPE_SERVE_LISTEN", ":9100")
	t.Setenv("AMPPIPE_CRAWL_MAX_PAGES", "7")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "minimal", cfg.Mode)
	assert.Equal(t, []string{"canonical"}, cfg.DisabledSteps)
	assert.Equal(t, "/srv/public", cfg.Images.Root)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "http://localhost:3000", cfg.Serve.Upstream)
	assert.Equal(t, ":9100", cfg.Serve.Listen, "env overrides file")
	assert.Equal(t, 7, cfg.Crawl.MaxPages)
}

func TestLoad_EnvList(t *testing.T) {
	t.Setenv("AMPPIPE_DISABLED_STEPS", "amp-img,amp-form")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"amp-img", "amp-form"}, cfg.DisabledSteps)
}

func TestLoad_OverrideWins(t *testing.T) {
	v := New()
	v.Set("mode", "MINIMAL")

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "minimal", cfg.Mode)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		field string
	}{
		{name: "mode", key: "mode", value: "turbo", field: "mode"},
		{name: "log level", key: "log_level", value: "verbose", field: "log_level"},
		{name: "unknown step", key: "disabled_steps", value: []string{"minify"}, field: "disabled_steps"},
		{name: "upstream", key: "serve.upstream", value: "not a url", field: "upstream"},
		{name: "segment", key: "serve.segment", value: "a/b", field: "segment"},
		{name: "max pages", key: "crawl.max_pages", value: 0, field: "max_pages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Set(tt.key, tt.value)

			_, err := Load(v, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("AMPPIPE_MODE=minimal\n"), 0o644))

	// Registered so t.Setenv restores the variable after the test.
	t.Setenv("AMPPIPE_MODE", "")
	require.NoError(t, os.Unsetenv("AMPPIPE_MODE"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "minimal", cfg.Mode)
}

func TestWriteYAML(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	out := buf.String()
	assert.Contains(t, out, "mode: full")
	assert.Contains(t, out, "timeout: 30s")
	assert.Contains(t, out, "segment: amp")
	assert.Contains(t, out, "8080")
}
