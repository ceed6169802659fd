package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Flag names shared by the commands.
const (
	FlagConfig         = "config"
	FlagDB             = "db"
	FlagAddr           = "addr"
	FlagAdminUser      = "admin-user"
	FlagLog            = "log"
	FlagBackendURL     = "backend-url"
	FlagBackendToken   = "backend-token"
	FlagBackendTimeout = "backend-timeout"
)

// RegisterFlags adds the persistent configuration flags to fs. Their defaults
// are empty so that only flags given on the command line override the file
// and the environment.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(FlagConfig, "c", "", "YAML config file")
	fs.StringP(FlagDB, "d", "", "SQLite database path (default nomisma.sqlite3)")
	fs.StringP(FlagLog, "l", "", "log file path (default: stdout/stderr only)")
	fs.String(FlagBackendURL, "", "collection backend URL (default http://localhost:8000)")
	fs.String(FlagBackendToken, "", "bearer token for the backend")
	fs.Duration(FlagBackendTimeout, 0, "backend request timeout (default 30s)")
}

// ApplyFlags overlays every flag of fs that was set on the command line.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	strs := map[string]*string{
		FlagDB:           &c.DB,
		FlagAddr:         &c.Addr,
		FlagAdminUser:    &c.AdminUser,
		FlagLog:          &c.Log,
		FlagBackendURL:   &c.Backend.URL,
		FlagBackendToken: &c.Backend.Token,
	}
	for name, dst := range strs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return fmt.Errorf("reading --%s: %w", name, err)
		}
		*dst = v
	}
	if fs.Lookup(FlagBackendTimeout) != nil && fs.Changed(FlagBackendTimeout) {
		d, err := fs.GetDuration(FlagBackendTimeout)
		if err != nil {
			return fmt.Errorf("reading --%s: %w", FlagBackendTimeout, err)
		}
		c.Backend.Timeout = d
	}
	return nil
}
