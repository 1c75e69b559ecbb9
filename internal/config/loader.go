package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/25smoking/chanwatch/internal/embedded"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const DefaultFileName = "chanwatch.yaml"

// ========== Registry ==========

type RegistryKind string

const (
	RegistryHost   RegistryKind = "host"
	RegistryConsul RegistryKind = "consul"
	RegistryFile   RegistryKind = "file"
)

type RegistryConfig struct {
	Kind   RegistryKind `yaml:"kind"`
	Host   HostConfig   `yaml:"host"`
	Consul ConsulConfig `yaml:"consul"`
	File   FileConfig   `yaml:"file"`
}

type HostConfig struct {
	// IncludeRemote adds one entity per remote address a local process talks to.
	IncludeRemote bool `yaml:"include_remote"`
}

type ConsulConfig struct {
	Address    string `yaml:"address"`
	Scheme     string `yaml:"scheme"`
	Datacenter string `yaml:"datacenter"`
	Token      string `yaml:"token"`
}

type FileConfig struct {
	Path string `yaml:"path"`
}

// ========== Scanner ==========

type ScanConfig struct {
	IntervalMs      int `yaml:"interval_ms"`
	MaxBackoffMs    int `yaml:"max_backoff_ms"`
	StaleAfterScans int `yaml:"stale_after_scans"`
}

func (s ScanConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

func (s ScanConfig) MaxBackoff() time.Duration {
	return time.Duration(s.MaxBackoffMs) * time.Millisecond
}

// ========== UI / Log ==========

type UIConfig struct {
	TickMs int `yaml:"tick_ms"`
}

func (u UIConfig) Tick() time.Duration {
	return time.Duration(u.TickMs) * time.Millisecond
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type Config struct {
	Scan     ScanConfig     `yaml:"scan"`
	Registry RegistryConfig `yaml:"registry"`
	UI       UIConfig       `yaml:"ui"`
	Log      LogConfig      `yaml:"log"`
}

// ========== Loader Functions ==========

func loadConfigData(configPath string) ([]byte, error) {
	// 1. 尝试从文件系统加载
	if configPath != "" {
		return os.ReadFile(configPath)
	}
	if _, err := os.Stat(GetConfigPath(DefaultFileName)); err == nil {
		return os.ReadFile(GetConfigPath(DefaultFileName))
	}

	// 2. 回退到内嵌配置
	return embedded.Content.ReadFile("config/" + DefaultFileName)
}

// Default returns the embedded configuration.
func Default() *Config {
	data, err := embedded.Content.ReadFile("config/" + DefaultFileName)
	if err != nil {
		panic(fmt.Sprintf("embedded config missing: %v", err))
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		panic(fmt.Sprintf("embedded config invalid: %v", err))
	}
	return &cfg
}

// Read reads configPath, or the default locations when it is empty. Values
// missing from the file keep their embedded defaults. The result is not
// validated, so callers can apply overrides first.
func Read(configPath string) (*Config, error) {
	data, err := loadConfigData(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Load is Read followed by Validate.
func Load(configPath string) (*Config, error) {
	cfg, err := Read(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var ErrInvalid = errors.New("invalid config")

func (c *Config) Validate() error {
	var errs error
	if c.Scan.IntervalMs <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("scan.interval_ms must be positive, got %d", c.Scan.IntervalMs))
	}
	if c.Scan.MaxBackoffMs < c.Scan.IntervalMs {
		errs = multierr.Append(errs, fmt.Errorf("scan.max_backoff_ms (%d) must be >= scan.interval_ms (%d)", c.Scan.MaxBackoffMs, c.Scan.IntervalMs))
	}
	if c.Scan.StaleAfterScans < 1 {
		errs = multierr.Append(errs, fmt.Errorf("scan.stale_after_scans must be >= 1, got %d", c.Scan.StaleAfterScans))
	}
	if c.UI.TickMs <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("ui.tick_ms must be positive, got %d", c.UI.TickMs))
	}
	switch c.Registry.Kind {
	case RegistryHost, RegistryConsul:
	case RegistryFile:
		if c.Registry.File.Path == "" {
			errs = multierr.Append(errs, errors.New("registry.file.path is required for the file registry"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown registry.kind %q", c.Registry.Kind))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if errs != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, errs)
	}
	return nil
}

// GetConfigPath 获取配置文件的路径（兼容不同运行环境）
func GetConfigPath(filename string) string {
	candidates := []string{
		filepath.Join("config", filename),
		filepath.Join(".", filename),
	}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "chanwatch", filename))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// 默认返回第一个路径
	return candidates[0]
}
