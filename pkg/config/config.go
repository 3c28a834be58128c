// Package config loads micro settings from project and user config files.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/charliemeyer/pickcode-micro/pkg/evaluator"
)

// File names searched by Load.
const (
	ProjectFile = ".micro.yaml"
	UserDir     = ".micro"
	UserFile    = "config.yaml"
)

// Config holds the settings the CLI and runtime read at startup.
type Config struct {
	// MaxDepth bounds nested function calls. Zero means the evaluator default.
	MaxDepth int `yaml:"maxDepth,omitempty"`
	// Trace is a path that receives NDJSON trace events for every run.
	Trace string `yaml:"trace,omitempty"`
	// Pretty selects human-readable diagnostics.
	Pretty bool `yaml:"pretty,omitempty"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{MaxDepth: evaluator.DefaultMaxDepth}
}

// Limits returns the evaluator limits described by c.
func (c *Config) Limits() evaluator.Limits {
	if c == nil {
		return evaluator.Limits{}
	}
	return evaluator.Limits{MaxDepth: c.MaxDepth}
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Load reads configuration from projectDir/.micro.yaml, falling back to
// ~/.micro/config.yaml and then to Default. It returns the path the settings
// came from, or "" for defaults. A file that exists but cannot be decoded is
// an error rather than a fallback.
func Load(projectDir string) (*Config, string, error) {
	// Try project config
	projectPath := filepath.Join(projectDir, ProjectFile)
	cfg, err := LoadFile(projectPath)
	if err == nil {
		return cfg, projectPath, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, projectPath, err
	}

	// Try user config
	homeDir, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(homeDir, UserDir, UserFile)
		cfg, err := LoadFile(userPath)
		if err == nil {
			return cfg, userPath, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, userPath, err
		}
	}

	return Default(), "", nil
}

// LoadFile decodes a single config file. Unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := Default()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.MaxDepth < 0 {
		return nil, fmt.Errorf("config %s: maxDepth must not be negative, got %d", path, cfg.MaxDepth)
	}
	if cfg.MaxDepth > evaluator.MaxDepthCeiling {
		return nil, fmt.Errorf("config %s: maxDepth must be at most %d, got %d", path, evaluator.MaxDepthCeiling, cfg.MaxDepth)
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = evaluator.DefaultMaxDepth
	}
	return cfg, nil
}
