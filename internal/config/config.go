// Package config loads spineprep settings from YAML or TOML files and merges
// them with environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mrsinham/spineprep/internal/logging"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported config format")
	ErrInvalidConfig     = errors.New("invalid config")
)

// Config represents the application configuration
type Config struct {
	// Workers is the parallelism of batch commands; 0 means one per CPU.
	Workers int `yaml:"workers" toml:"workers"`

	// Backup keeps a copy of every dependent file before it is rewritten.
	Backup bool `yaml:"backup" toml:"backup"`

	// Resources is the folder holding the label taxonomy files.
	Resources string `yaml:"resources" toml:"resources"`

	Log     logging.Config `yaml:"log" toml:"log"`
	Convert ConvertConfig  `yaml:"convert" toml:"convert"`
	Preview PreviewConfig  `yaml:"preview" toml:"preview"`
}

// ConvertConfig holds the BIDS naming settings.
type ConvertConfig struct {
	Remap          []string `yaml:"remap" toml:"remap"`
	ImageSuffix    string   `yaml:"image_suffix" toml:"image_suffix"`
	LabelSuffix    string   `yaml:"label_suffix" toml:"label_suffix"`
	DerivativesDir string   `yaml:"derivatives_dir" toml:"derivatives_dir"`
}

type PreviewConfig struct {
	Size    int     `yaml:"size" toml:"size"`
	Opacity float64 `yaml:"opacity" toml:"opacity"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Workers:   0,
		Backup:    true,
		Resources: filepath.Join("totalspineseg", "resources"),
		Log:       logging.DefaultConfig(),
		Convert: ConvertConfig{
			Remap:          []string{"1=101"},
			ImageSuffix:    "T2w",
			LabelSuffix:    "label-spine_dseg",
			DerivativesDir: "labels_iso",
		},
		Preview: PreviewConfig{Size: 512, Opacity: 0.5},
	}
}

// Load reads path over the defaults. The format follows the extension:
// .yaml, .yml or .toml.
func Load(path string) (*Config, error) {
	var decode func([]byte, *Config) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decode = func(data []byte, cfg *Config) error { return yaml.Unmarshal(data, cfg) }
	case ".toml":
		decode = func(data []byte, cfg *Config) error {
			_, err := toml.Decode(string(data), cfg)
			return err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToYAML writes cfg to path, creating the directory if needed.
func SaveToYAML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.Preview.Size < 0 {
		return fmt.Errorf("%w: preview size must be >= 0, got %d", ErrInvalidConfig, c.Preview.Size)
	}
	if c.Preview.Opacity < 0 || c.Preview.Opacity > 1 {
		return fmt.Errorf("%w: preview opacity must be within 0..1, got %g", ErrInvalidConfig, c.Preview.Opacity)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "auto", "json", "console", "pretty", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// LoadEnvFiles loads the given .env files in order, later files overriding
// earlier ones, and returns the files that were found.
func LoadEnvFiles(files ...string) []string {
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Overload(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	return loaded
}

// Keys shared by the config file, SPINEPREP_* environment variables and flags.
const (
	KeyWorkers   = "workers"
	KeyBackup    = "backup"
	KeyResources = "resources"
	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
	KeyLogFile   = "log.file"
)

// NewViper returns a viper instance reading SPINEPREP_* variables, with the
// values of c as defaults. Flags bound to it take precedence over both.
func (c *Config) NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(strings.TrimSuffix(logging.EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyWorkers, c.Workers)
	v.SetDefault(KeyBackup, c.Backup)
	v.SetDefault(KeyResources, c.Resources)
	v.SetDefault(KeyLogLevel, c.Log.Level)
	v.SetDefault(KeyLogFormat, c.Log.Format)
	v.SetDefault(KeyLogFile, c.Log.File)
	return v
}

// Merge copies the resolved values of v back into c.
func (c *Config) Merge(v *viper.Viper) error {
	c.Workers = v.GetInt(KeyWorkers)
	c.Backup = v.GetBool(KeyBackup)
	c.Resources = v.GetString(KeyResources)
	c.Log.Level = v.GetString(KeyLogLevel)
	c.Log.Format = v.GetString(KeyLogFormat)
	c.Log.File = v.GetString(KeyLogFile)
	return c.Validate()
}
