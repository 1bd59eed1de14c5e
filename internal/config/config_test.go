package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":8080"
database:
  driver: postgres
  dsn: postgres://mo@localhost/mo
assets:
  backend: minio
  minio:
    endpoint: localhost:9000
    bucket: parts
render:
  kind: pdf
  url: http://gotenberg:3000/forms/libreoffice/convert
ledger:
  single_wait: 5s
  batch_wait: 1m
  timezone: UTC
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "parts", cfg.Assets.MinIO.Bucket)
	assert.Equal(t, 5*time.Second, cfg.Ledger.SingleWait)
	assert.Equal(t, time.Minute, cfg.Ledger.BatchWait)
	assert.Equal(t, 300, cfg.ScanCode.Size)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "http:\n  addr: \":8080\"\n")
	t.Setenv("MO_HTTP_ADDR", ":7000")
	t.Setenv("MO_BATCH_WAIT", "90s")
	t.Setenv("MO_SMTP_HOST", "smtp.test.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, 90*time.Second, cfg.Ledger.BatchWait)
	assert.Equal(t, "smtp.test.com", cfg.SMTP.Host)
}

func TestInvalidConfig(t *testing.T) {
	tests := map[string]string{
		"bad driver":      "database:\n  driver: mysql\n",
		"pdf without url": "render:\n  kind: pdf\n",
		"unknown assets":  "assets:\n  backend: s3\n",
		"bad timezone":    "ledger:\n  timezone: Mars/Olympus\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	t.Setenv("MO_SINGLE_WAIT", "soon")
	_, err := Load(writeConfig(t, ""))
	assert.Error(t, err)
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
