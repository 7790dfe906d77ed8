// Package daemon wires configuration, storage and the HTTP API into a
// running server.
package daemon

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/star-achiever/star/internal/achievement"
	"github.com/star-achiever/star/internal/client"
)

// Config is the contents of $STAR_HOME/config.toml.
type Config struct {
	API         APIConfig         `toml:"api"`
	Storage     StorageConfig     `toml:"storage"`
	Metrics     MetricsConfig     `toml:"metrics"`
	Sync        SyncConfig        `toml:"sync"`
	Celebration CelebrationConfig `toml:"celebration"`
	Log         LogConfig         `toml:"log"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	RequestTimeout string `toml:"request_timeout"`
}

// StorageConfig locates the SQLite database. Empty means $STAR_HOME/data.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// SyncConfig is the client side: where the CLI syncs to and how.
type SyncConfig struct {
	BaseURL       string `toml:"base_url"`
	FamilyID      string `toml:"family_id"`
	LoadTimeout   string `toml:"load_timeout"`
	SaveTimeout   string `toml:"save_timeout"`
	RetryAttempts int    `toml:"retry_attempts"`
	RetryBackoff  string `toml:"retry_backoff"`
	SettleDelay   string `toml:"settle_delay"`
	SavedReset    string `toml:"saved_reset"`
	Timezone      string `toml:"timezone"`
}

// CelebrationConfig times the achievement presentation.
type CelebrationConfig struct {
	Duration     string `toml:"duration"`
	PendingDelay string `toml:"pending_delay"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8787,
			RequestTimeout: "30s",
		},
		Metrics: MetricsConfig{Enabled: true},
		Sync: SyncConfig{
			BaseURL:       "http://127.0.0.1:8787/api/sync",
			LoadTimeout:   "8s",
			SaveTimeout:   "5s",
			RetryAttempts: 3,
			RetryBackoff:  "1s",
			SettleDelay:   "50ms",
			SavedReset:    "2s",
			Timezone:      "Local",
		},
		Celebration: CelebrationConfig{
			Duration:     "2s",
			PendingDelay: "300ms",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Home returns $STAR_HOME, or ~/.star.
func Home() string {
	if h := os.Getenv("STAR_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".star"
	}
	return filepath.Join(home, ".star")
}

// ConfigPath is the default config file location.
func ConfigPath() string { return filepath.Join(Home(), "config.toml") }

// LoadConfig overlays the TOML file at path on the defaults. A missing file
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes c to path as TOML, creating the parent directory.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Validate checks every duration, the port and the time zone.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	for name, v := range map[string]string{
		"api.request_timeout":       c.API.RequestTimeout,
		"sync.load_timeout":         c.Sync.LoadTimeout,
		"sync.save_timeout":         c.Sync.SaveTimeout,
		"sync.retry_backoff":        c.Sync.RetryBackoff,
		"sync.settle_delay":         c.Sync.SettleDelay,
		"sync.saved_reset":          c.Sync.SavedReset,
		"celebration.duration":      c.Celebration.Duration,
		"celebration.pending_delay": c.Celebration.PendingDelay,
	} {
		if _, err := parseDuration(v, 0); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if _, err := c.Sync.Location(); err != nil {
		return err
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.API.Host, strconv.Itoa(c.API.Port))
}

// StorageDir resolves the database directory.
func (c Config) StorageDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return filepath.Join(Home(), "data")
}

// RequestTimeout is the parsed api.request_timeout.
func (c Config) RequestTimeout() time.Duration {
	d, _ := parseDuration(c.API.RequestTimeout, 30*time.Second)
	return d
}

// Location resolves sync.timezone. "Local" and "" mean the system zone.
func (s SyncConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || strings.EqualFold(s.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("sync.timezone: %w", err)
	}
	return loc, nil
}

// Remote builds the HTTP sync client.
func (c Config) Remote() *client.HTTPRemote {
	r := client.NewHTTPRemote(c.Sync.BaseURL)
	r.LoadTimeout, _ = parseDuration(c.Sync.LoadTimeout, client.DefaultLoadTimeout)
	r.SaveTimeout, _ = parseDuration(c.Sync.SaveTimeout, client.DefaultSaveTimeout)
	return r
}

// StoreConfig builds the local store configuration.
func (c Config) StoreConfig() (client.Config, error) {
	cfg := client.DefaultConfig()
	loc, err := c.Sync.Location()
	if err != nil {
		return cfg, err
	}
	cfg.FamilyID = c.Sync.FamilyID
	cfg.Location = loc
	if c.Sync.RetryAttempts > 0 {
		cfg.RetryAttempts = c.Sync.RetryAttempts
	}
	cfg.RetryBackoff, _ = parseDuration(c.Sync.RetryBackoff, cfg.RetryBackoff)
	cfg.SettleDelay, _ = parseDuration(c.Sync.SettleDelay, cfg.SettleDelay)
	cfg.SavedReset, _ = parseDuration(c.Sync.SavedReset, cfg.SavedReset)
	cfg.Presenter = achievement.PresenterConfig{
		Duration:     durationOr(c.Celebration.Duration, cfg.Presenter.Duration),
		PendingDelay: durationOr(c.Celebration.PendingDelay, cfg.Presenter.PendingDelay),
	}
	return cfg, nil
}

// NewLogger builds the slog logger described by the [log] section.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(orDefault(l.Level, "info"))); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(orDefault(l.Format, "text")) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("log.format %q: want text or json", l.Format)
}

// parseDuration parses s, returning def for an empty string.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, err
	}
	if d < 0 {
		return def, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// durationOr parses s, falling back to def when s is empty or invalid.
func durationOr(s string, def time.Duration) time.Duration {
	d, _ := parseDuration(s, def)
	return d
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
