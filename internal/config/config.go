// Package config loads moledger settings from a YAML file with MO_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"moledger/internal/assets"
	"moledger/internal/notify"
	"moledger/internal/scancode"
)

// DefaultPath is read when no --config flag is given. A missing default
// file is not an error.
const DefaultPath = "moledger.yaml"

// Backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	AssetsNone  = "none"
	AssetsDir   = "dir"
	AssetsMinIO = "minio"

	RenderXLSX = "xlsx"
	RenderPDF  = "pdf"
)

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN string `yaml:"dsn"`
}

type TemplateConfig struct {
	// Path is an xlsx template. Empty uses the built-in template.
	Path  string `yaml:"path"`
	Sheet string `yaml:"sheet"`
}

type AssetsConfig struct {
	Backend string             `yaml:"backend"`
	Dir     string             `yaml:"dir"`
	MinIO   assets.MinIOConfig `yaml:"minio"`
}

type ScanCodeConfig struct {
	URL     string        `yaml:"url"`
	Size    int           `yaml:"size"`
	Timeout time.Duration `yaml:"timeout"`
}

type RenderConfig struct {
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type LedgerConfig struct {
	SingleWait time.Duration `yaml:"single_wait"`
	BatchWait  time.Duration `yaml:"batch_wait"`
	// Timezone decides which calendar month an MO id belongs to.
	Timezone string `yaml:"timezone"`
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Template TemplateConfig `yaml:"template"`
	Assets   AssetsConfig   `yaml:"assets"`
	ScanCode ScanCodeConfig `yaml:"scancode"`
	Render   RenderConfig   `yaml:"render"`
	SMTP     notify.Config  `yaml:"smtp"`
	Ledger   LedgerConfig   `yaml:"ledger"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTP:     HTTPConfig{Addr: ":9000"},
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: "moledger.db"},
		Assets:   AssetsConfig{Backend: AssetsDir, Dir: "images"},
		ScanCode: ScanCodeConfig{URL: scancode.DefaultURL, Size: scancode.DefaultSize, Timeout: 10 * time.Second},
		Render:   RenderConfig{Kind: RenderXLSX, Timeout: 60 * time.Second},
		SMTP:     notify.Config{Port: 587},
		Ledger:   LedgerConfig{SingleWait: 30 * time.Second, BatchWait: 60 * time.Second},
	}
}

// Load reads path (DefaultPath when empty), applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	c.HTTP.Addr = envString("MO_HTTP_ADDR", c.HTTP.Addr)
	c.Database.Driver = envString("MO_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = envString("MO_DB_DSN", c.Database.DSN)
	c.Template.Path = envString("MO_TEMPLATE_PATH", c.Template.Path)
	c.Template.Sheet = envString("MO_TEMPLATE_SHEET", c.Template.Sheet)

	c.Assets.Backend = envString("MO_ASSETS_BACKEND", c.Assets.Backend)
	c.Assets.Dir = envString("MO_ASSETS_DIR", c.Assets.Dir)
	m := &c.Assets.MinIO
	m.Endpoint = envString("MO_MINIO_ENDPOINT", m.Endpoint)
	m.AccessKey = envString("MO_MINIO_ACCESS_KEY", m.AccessKey)
	m.SecretKey = envString("MO_MINIO_SECRET_KEY", m.SecretKey)
	m.Region = envString("MO_MINIO_REGION", m.Region)
	m.Bucket = envString("MO_MINIO_BUCKET", m.Bucket)
	m.Prefix = envString("MO_MINIO_PREFIX", m.Prefix)
	if m.UseSSL, err = envBool("MO_MINIO_USE_SSL", m.UseSSL); err != nil {
		return err
	}

	c.ScanCode.URL = envString("MO_SCANCODE_URL", c.ScanCode.URL)
	if c.ScanCode.Size, err = envInt("MO_SCANCODE_SIZE", c.ScanCode.Size); err != nil {
		return err
	}
	c.Render.Kind = envString("MO_RENDER_KIND", c.Render.Kind)
	c.Render.URL = envString("MO_RENDER_URL", c.Render.URL)

	c.SMTP.Host = envString("MO_SMTP_HOST", c.SMTP.Host)
	if c.SMTP.Port, err = envInt("MO_SMTP_PORT", c.SMTP.Port); err != nil {
		return err
	}
	c.SMTP.User = envString("MO_SMTP_USER", c.SMTP.User)
	c.SMTP.Password = envString("MO_SMTP_PASSWORD", c.SMTP.Password)
	c.SMTP.From = envString("MO_SMTP_FROM", c.SMTP.From)

	if c.Ledger.SingleWait, err = envDuration("MO_SINGLE_WAIT", c.Ledger.SingleWait); err != nil {
		return err
	}
	if c.Ledger.BatchWait, err = envDuration("MO_BATCH_WAIT", c.Ledger.BatchWait); err != nil {
		return err
	}
	c.Ledger.Timezone = envString("MO_TIMEZONE", c.Ledger.Timezone)
	return nil
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database driver must be %s or %s, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database dsn is required")
	}
	switch c.Assets.Backend {
	case AssetsNone:
	case AssetsDir:
		if c.Assets.Dir == "" {
			return errors.New("assets dir is required for the dir backend")
		}
	case AssetsMinIO:
		if err := c.Assets.MinIO.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown assets backend %q", c.Assets.Backend)
	}
	switch c.Render.Kind {
	case RenderXLSX:
	case RenderPDF:
		if c.Render.URL == "" {
			return errors.New("render url is required for pdf output")
		}
	default:
		return fmt.Errorf("unknown render kind %q", c.Render.Kind)
	}
	if c.Ledger.SingleWait <= 0 || c.Ledger.BatchWait <= 0 {
		return errors.New("ledger lock waits must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Ledger.Timezone. Empty means the host's local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Ledger.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return nil, fmt.Errorf("ledger timezone: %w", err)
	}
	return loc, nil
}
