package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the fibarc configuration file
// (~/.config/fibarc/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	OutputDir  string `yaml:"output_dir"`
	CatalogDir string `yaml:"catalog_dir"`
	Jobs       *int64 `yaml:"jobs"`

	// Server
	ServerAddress     string   `yaml:"server_address"`
	ArchiveRoot       string   `yaml:"archive_root"`
	RequestsPerSecond *float64 `yaml:"requests_per_second"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fibarc", "config.yaml")
}

// applyBatchConfig applies config file defaults to batch command variables
// when the corresponding CLI flag was not explicitly set.
func applyBatchConfig(c *cli.Command, cfg Config, jobs *int64, outputDir, catalogDir *string) {
	if cfg.Jobs != nil && !c.IsSet("jobs") {
		*jobs = *cfg.Jobs
	}
	if cfg.OutputDir != "" && !c.IsSet("output-dir") {
		*outputDir = cfg.OutputDir
	}
	if cfg.CatalogDir != "" && !c.IsSet("catalog") {
		*catalogDir = cfg.CatalogDir
	}
	applyLogConfig(c, cfg)
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr, root, catalogDir *string, rps *float64) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.ArchiveRoot != "" && !c.IsSet("root") {
		*root = cfg.ArchiveRoot
	}
	if cfg.CatalogDir != "" && !c.IsSet("catalog") {
		*catalogDir = cfg.CatalogDir
	}
	if cfg.RequestsPerSecond != nil && !c.IsSet("rps") {
		*rps = *cfg.RequestsPerSecond
	}
	applyLogConfig(c, cfg)
}

func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
