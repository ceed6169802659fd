package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 750*time.Millisecond, cfg.Preview.Interval)
	assert.Equal(t, 2*time.Second, cfg.Scan.RedirectNew)
	assert.Equal(t, 1500*time.Millisecond, cfg.Scan.RedirectAttach)
	assert.Equal(t, "http://localhost:8000", cfg.Backend.URL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "nomisma.yaml", `
db: /var/lib/nomisma.sqlite3
backend:
  url: https://coins.example.org
  timeout: 10s
preview:
  interval: 1s
scan:
  redirect_attach: 500ms
`)
	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))
	assert.Equal(t, "/var/lib/nomisma.sqlite3", cfg.DB)
	assert.Equal(t, "https://coins.example.org", cfg.Backend.URL)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, time.Second, cfg.Preview.Interval)
	assert.Equal(t, 500*time.Millisecond, cfg.Scan.RedirectAttach)
	// Untouched keys keep their defaults.
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 2*time.Second, cfg.Scan.RedirectNew)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "bad.yaml", "backend:\n  urll: http://x\n")
	cfg := Default()
	assert.Error(t, cfg.LoadFile(path))
}

func TestLoadFileEmpty(t *testing.T) {
	path := writeFile(t, "empty.yaml", "")
	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"NOMISMA_ADDR":                  "127.0.0.1:9000",
		"NOMISMA_BACKEND_TOKEN":         "secret",
		"NOMISMA_PREVIEW_INTERVAL":      "250ms",
		"NOMISMA_PREVIEW_MAX_DIMENSION": "640",
		"NOMISMA_SCAN_SESSION_TTL":      "1h",
		"VITE_API_URL":                  "http://vite:8000",
	}))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "secret", cfg.Backend.Token)
	assert.Equal(t, "http://vite:8000", cfg.Backend.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Preview.Interval)
	assert.Equal(t, 640, cfg.Preview.MaxDimension)
	assert.Equal(t, time.Hour, cfg.Scan.SessionTTL)
}

func TestApplyEnvBackendURLWinsOverVite(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookupFrom(map[string]string{
		"NOMISMA_BACKEND_URL": "http://primary:8000",
		"VITE_API_URL":        "http://vite:8000",
	})))
	assert.Equal(t, "http://primary:8000", cfg.Backend.URL)
}

func TestApplyEnvInvalid(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"NOMISMA_BACKEND_TIMEOUT":       "soon",
		"NOMISMA_PREVIEW_MAX_DIMENSION": "big",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOMISMA_BACKEND_TIMEOUT")
	assert.Contains(t, err.Error(), "NOMISMA_PREVIEW_MAX_DIMENSION")
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "NOMISMA_TEST_DOTENV=from-file\n")
	t.Setenv("NOMISMA_TEST_DOTENV", "")
	os.Unsetenv("NOMISMA_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("NOMISMA_TEST_DOTENV"))
}

func TestLoadDotEnvKeepsExisting(t *testing.T) {
	path := writeFile(t, ".env", "NOMISMA_TEST_DOTENV=from-file\n")
	t.Setenv("NOMISMA_TEST_DOTENV", "from-env")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv("NOMISMA_TEST_DOTENV"))
}

func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	fs.String(FlagAddr, "", "")
	require.NoError(t, fs.Parse([]string{"--backend-url", "http://flag:8000", "--addr", ":9999", "--backend-timeout", "5s"}))

	cfg := Default()
	cfg.DB = "from-file.sqlite3"
	require.NoError(t, cfg.ApplyFlags(fs))
	assert.Equal(t, "http://flag:8000", cfg.Backend.URL)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "from-file.sqlite3", cfg.DB, "unset flags must not override")
	assert.Equal(t, "Admin", cfg.AdminUser, "unregistered flags are skipped")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Backend.URL = "localhost:8000"
	cfg.Preview.Interval = 0
	cfg.Scan.SessionTTL = -time.Minute

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend url")
	assert.Contains(t, err.Error(), "preview interval")
	assert.Contains(t, err.Error(), "session ttl")
}
