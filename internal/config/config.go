// Package config loads console configuration from defaults, an optional YAML
// file, the environment and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the console reads.
const EnvPrefix = "NOMISMA_"

// Config is the complete console configuration.
type Config struct {
	DB        string  `yaml:"db"`
	Addr      string  `yaml:"addr"`
	AdminUser string  `yaml:"admin_user"`
	Log       string  `yaml:"log"`
	Backend   Backend `yaml:"backend"`
	Preview   Preview `yaml:"preview"`
	Scan      Scan    `yaml:"scan"`
}

// Backend configures the collection backend client.
type Backend struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Preview configures live microscope preview polling.
type Preview struct {
	Interval    time.Duration `yaml:"interval"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// MaxDimension downscales preview frames whose longer edge exceeds it.
	// Zero serves frames unchanged.
	MaxDimension int `yaml:"max_dimension"`
}

// Scan configures the scan wizard.
type Scan struct {
	SessionTTL     time.Duration `yaml:"session_ttl"`
	RedirectNew    time.Duration `yaml:"redirect_new"`
	RedirectAttach time.Duration `yaml:"redirect_attach"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DB:        "nomisma.sqlite3",
		Addr:      ":8080",
		AdminUser: "Admin",
		Backend: Backend{
			URL:     "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Preview: Preview{
			Interval:     750 * time.Millisecond,
			IdleTimeout:  30 * time.Second,
			MaxDimension: 960,
		},
		Scan: Scan{
			SessionTTL:     12 * time.Hour,
			RedirectNew:    2000 * time.Millisecond,
			RedirectAttach: 1500 * time.Millisecond,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// non-empty), the .env file in the working directory and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := LoadDotEnv(".env"); err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped and existing variables win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays NOMISMA_* variables read through lookup. VITE_API_URL is
// accepted for the backend URL when NOMISMA_BACKEND_URL is unset.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(name string, dst *time.Duration) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = d
	}

	str("DB", &c.DB)
	str("ADDR", &c.Addr)
	str("ADMIN_USER", &c.AdminUser)
	str("LOG", &c.Log)
	if v, ok := lookup("VITE_API_URL"); ok && v != "" {
		c.Backend.URL = v
	}
	str("BACKEND_URL", &c.Backend.URL)
	str("BACKEND_TOKEN", &c.Backend.Token)
	dur("BACKEND_TIMEOUT", &c.Backend.Timeout)
	dur("PREVIEW_INTERVAL", &c.Preview.Interval)
	dur("PREVIEW_IDLE_TIMEOUT", &c.Preview.IdleTimeout)
	if v, ok := lookup(EnvPrefix + "PREVIEW_MAX_DIMENSION"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPREVIEW_MAX_DIMENSION: %w", EnvPrefix, err))
		} else {
			c.Preview.MaxDimension = n
		}
	}
	dur("SCAN_SESSION_TTL", &c.Scan.SessionTTL)
	dur("SCAN_REDIRECT_NEW", &c.Scan.RedirectNew)
	dur("SCAN_REDIRECT_ATTACH", &c.Scan.RedirectAttach)

	return errors.Join(errs...)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DB) == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend url %q must be an absolute http(s) URL", c.Backend.URL))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend timeout must be positive"))
	}
	if c.Preview.Interval <= 0 {
		errs = append(errs, errors.New("preview interval must be positive"))
	}
	if c.Preview.IdleTimeout < 0 {
		errs = append(errs, errors.New("preview idle timeout must not be negative"))
	}
	if c.Preview.MaxDimension < 0 {
		errs = append(errs, errors.New("preview max dimension must not be negative"))
	}
	if c.Scan.SessionTTL <= 0 {
		errs = append(errs, errors.New("scan session ttl must be positive"))
	}
	if c.Scan.RedirectNew < 0 || c.Scan.RedirectAttach < 0 {
		errs = append(errs, errors.New("scan redirect delays must not be negative"))
	}
	return errors.Join(errs...)
}
