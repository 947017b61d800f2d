package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Project struct {
		Root    string   `yaml:"root"`
		Ignored []string `yaml:"ignored"` // extra directory names skipped when searching for roots
	} `yaml:"project"`
	Index struct {
		Path string `yaml:"path"`
	} `yaml:"index"`
	Lookup struct {
		Match string `yaml:"match"` // "textual" or "structural"
	} `yaml:"lookup"`
	Watch struct {
		Debounce time.Duration `yaml:"debounce"`
	} `yaml:"watch"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Project.Root = "."
	cfg.Index.Path = "wmref.db"
	cfg.Lookup.Match = "textual"
	cfg.Watch.Debounce = 300 * time.Millisecond
	cfg.Log.Level = "info"
	return cfg
}

// LoadConfig reads path on top of the defaults. A missing file is not an
// error. Environment variables, including those from a .env file, win over
// the file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load YAML config
	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	// 3. Override with Environment Variables if present
	if root := os.Getenv("WMREF_ROOT"); root != "" {
		cfg.Project.Root = root
	}
	if db := os.Getenv("WMREF_DB"); db != "" {
		cfg.Index.Path = db
	}
	if match := os.Getenv("WMREF_MATCH"); match != "" {
		cfg.Lookup.Match = match
	}
	if level := os.Getenv("WMREF_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	return cfg, cfg.Validate()
}

// Validate rejects values the rest of the tool cannot act on.
func (c *Config) Validate() error {
	switch c.Lookup.Match {
	case "textual", "structural":
	default:
		return fmt.Errorf("lookup.match must be textual or structural, got %q", c.Lookup.Match)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}
