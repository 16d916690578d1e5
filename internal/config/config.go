package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const mib = 1024 * 1024

type ServerConfig struct {
	Port int `toml:"port"`
	// shared secret gating the status and metrics endpoints; empty
	// disables them entirely
	StatusSecret string `toml:"status_secret"`
}

type StorageConfig struct {
	UploadDir   string `toml:"upload_dir"`
	MetricsFile string `toml:"metrics_file"`
	// global cap on total payload bytes across all live bundles
	MaxDiskMB int64 `toml:"max_disk_mb"`
}

type ShareConfig struct {
	// per-session cap on the sum of an upload batch's sizes
	SessionCapMB int64 `toml:"session_cap_mb"`
	ExpiryHours  int   `toml:"expiry_hours"`
	// how often the reaper sweeps for expired bundles
	SweepMinutes int `toml:"sweep_minutes"`
}

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Share   ShareConfig   `toml:"share"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: 9090,
		},
		Storage: StorageConfig{
			UploadDir:   "uploads",
			MetricsFile: "metrics/metrics.json",
			MaxDiskMB:   1024,
		},
		Share: ShareConfig{
			SessionCapMB: 100,
			ExpiryHours:  24,
			SweepMinutes: 60,
		},
	}
}

// Load reads the configuration from the given TOML file, then applies env
// overrides. If the file does not exist, it is created with default values
// so a fresh deployment has something to edit.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("opening config file: %w", err)
		}
		cfg := Default()
		if err = write(path, cfg); err != nil {
			return Config{}, fmt.Errorf("config file not exists, writing defaults: %w", err)
		}
		cfg.applyEnv()
		return cfg, nil
	}
	defer f.Close()

	cfg, err := read(f)
	if err != nil {
		return Config{}, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides file values with the environment knobs the service has
// always honored.
func (c *Config) applyEnv() {
	if v, ok := lookupInt("PORT"); ok {
		c.Server.Port = v
	}
	if v, ok := lookupInt("MAX_UPLOADS_DISK_MB"); ok {
		c.Storage.MaxDiskMB = int64(v)
	}
	if v, ok := lookupInt("EXPIRY_HOURS"); ok {
		c.Share.ExpiryHours = v
	}
	if v := os.Getenv("STATUS_SECRET"); v != "" {
		c.Server.StatusSecret = v
	}
}

func (c Config) MaxDiskBytes() int64 { return c.Storage.MaxDiskMB * mib }

func (c Config) SessionCapBytes() int64 { return c.Share.SessionCapMB * mib }

func (c Config) Expiry() time.Duration { return time.Duration(c.Share.ExpiryHours) * time.Hour }

func (c Config) SweepEvery() time.Duration {
	return time.Duration(c.Share.SweepMinutes) * time.Minute
}

func lookupInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func read(r io.Reader) (Config, error) {
	cfg := new(Config)
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config file: %w", err)
	}
	return *cfg, nil
}

func write(path string, c Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()
	if err = toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encoding config file: %w", err)
	}
	return nil
}
