// Package hostconfig loads the optional YAML configuration controlling the
// state file location, cache TTLs, and timeouts.
package hostconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/davidahmann/hoststate/core/scancache"
	"github.com/davidahmann/hoststate/core/statedoc"
)

const (
	DefaultConfigFileName = ".hoststate.yaml"
	DefaultStateFileName  = ".hoststate.json"

	DefaultScanTimeout = 60 * time.Second
	DefaultLockTimeout = 5 * time.Second
)

type Config struct {
	StatePath   string    `yaml:"state_path"`
	ScanTimeout string    `yaml:"scan_timeout"`
	LockTimeout string    `yaml:"lock_timeout"`
	CacheTTL    CacheTTLs `yaml:"cache_ttl"`
}

// CacheTTLs carries per-category durations as strings ("30s", "5m").
// An empty field keeps the built-in default.
type CacheTTLs struct {
	System   string `yaml:"system"`
	Hardware string `yaml:"hardware"`
	Network  string `yaml:"network"`
	Software string `yaml:"software"`
	Services string `yaml:"services"`
	Gaming   string `yaml:"gaming"`
}

// Load reads a YAML config. A missing file yields the zero config when
// allowMissing is set, so the CLI works with no configuration at all.
func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("config path is required")
	}

	// #nosec G304 -- config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Config{}, nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	configuration.normalize()
	return configuration, nil
}

func (configuration *Config) normalize() {
	configuration.StatePath = strings.TrimSpace(configuration.StatePath)
	configuration.ScanTimeout = strings.TrimSpace(configuration.ScanTimeout)
	configuration.LockTimeout = strings.TrimSpace(configuration.LockTimeout)
	configuration.CacheTTL.System = strings.TrimSpace(configuration.CacheTTL.System)
	configuration.CacheTTL.Hardware = strings.TrimSpace(configuration.CacheTTL.Hardware)
	configuration.CacheTTL.Network = strings.TrimSpace(configuration.CacheTTL.Network)
	configuration.CacheTTL.Software = strings.TrimSpace(configuration.CacheTTL.Software)
	configuration.CacheTTL.Services = strings.TrimSpace(configuration.CacheTTL.Services)
	configuration.CacheTTL.Gaming = strings.TrimSpace(configuration.CacheTTL.Gaming)
}

// DefaultConfigPath is ~/.hoststate.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigFileName), nil
}

// ResolveStatePath returns the configured state path, defaulting to
// ~/.hoststate.json.
func (configuration Config) ResolveStatePath() (string, error) {
	if configuration.StatePath != "" {
		return configuration.StatePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultStateFileName), nil
}

// ResolveScanTimeout parses the configured scan timeout.
func (configuration Config) ResolveScanTimeout() (time.Duration, error) {
	return parseDuration("scan_timeout", configuration.ScanTimeout, DefaultScanTimeout)
}

// ResolveLockTimeout parses the configured lock timeout.
func (configuration Config) ResolveLockTimeout() (time.Duration, error) {
	return parseDuration("lock_timeout", configuration.LockTimeout, DefaultLockTimeout)
}

// ResolveTTLs merges the configured per-category TTLs over the cache
// defaults.
func (configuration Config) ResolveTTLs() (map[statedoc.Category]time.Duration, error) {
	ttls := scancache.DefaultTTLs()
	overrides := map[statedoc.Category]string{
		statedoc.CategorySystem:   configuration.CacheTTL.System,
		statedoc.CategoryHardware: configuration.CacheTTL.Hardware,
		statedoc.CategoryNetwork:  configuration.CacheTTL.Network,
		statedoc.CategorySoftware: configuration.CacheTTL.Software,
		statedoc.CategoryServices: configuration.CacheTTL.Services,
		statedoc.CategoryGaming:   configuration.CacheTTL.Gaming,
	}
	for category, raw := range overrides {
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("cache_ttl.%s: %w", category, err)
		}
		if parsed < 0 {
			return nil, fmt.Errorf("cache_ttl.%s: must not be negative", category)
		}
		ttls[category] = parsed
	}
	return ttls, nil
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s: must be positive", field)
	}
	return parsed, nil
}
