package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables, e.g. EML2TXT_LOG_LEVEL.
const EnvPrefix = "EML2TXT"

// Config holds application configuration
type Config struct {
	// Conversion settings
	InputDir       string `mapstructure:"input"`
	OutputDir      string `mapstructure:"output"`
	AttachmentsDir string `mapstructure:"attachments"`
	Recursive      bool   `mapstructure:"recursive"`
	Extract        bool   `mapstructure:"extract"`

	// Ledger database; empty disables it for conversions
	LedgerPath string `mapstructure:"ledger"`

	// Logging
	LogLevel string `mapstructure:"log-level"`
	LogFile  string `mapstructure:"log-file"`
	LogJSON  bool   `mapstructure:"log-json"`

	// Server settings for the ledger browser
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		LogFile:  "stderr",
		Host:     "localhost",
		Port:     "8080",
	}
}

// NewViper returns a viper instance seeded with the defaults, reading
// EML2TXT_* environment variables and, if configFile is set, a YAML file.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("input", def.InputDir)
	v.SetDefault("output", def.OutputDir)
	v.SetDefault("attachments", def.AttachmentsDir)
	v.SetDefault("recursive", def.Recursive)
	v.SetDefault("extract", def.Extract)
	v.SetDefault("ledger", def.LedgerPath)
	v.SetDefault("log-level", def.LogLevel)
	v.SetDefault("log-file", def.LogFile)
	v.SetDefault("log-json", def.LogJSON)
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load builds a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	return cfg, nil
}

// ResolveConversion validates the conversion settings and fills in the
// directory defaults: output next to the input, attachments in an
// "attachments" folder of the output directory.
func (c *Config) ResolveConversion() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.InputDir == "" {
		return errors.New("input folder is required")
	}

	input, err := filepath.Abs(c.InputDir)
	if err != nil {
		return fmt.Errorf("resolve input folder: %w", err)
	}
	info, err := os.Stat(input)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a valid directory", input)
	}
	c.InputDir = input

	if c.OutputDir == "" {
		c.OutputDir = input
	}
	if c.OutputDir, err = filepath.Abs(c.OutputDir); err != nil {
		return fmt.Errorf("resolve output folder: %w", err)
	}

	if !c.Extract {
		c.AttachmentsDir = ""
		return nil
	}
	if c.AttachmentsDir == "" {
		c.AttachmentsDir = filepath.Join(c.OutputDir, "attachments")
	}
	if c.AttachmentsDir, err = filepath.Abs(c.AttachmentsDir); err != nil {
		return fmt.Errorf("resolve attachments folder: %w", err)
	}
	return nil
}

// ResolveServe validates the settings used by the ledger browser.
func (c *Config) ResolveServe() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.LedgerPath == "" {
		return errors.New("--ledger is required")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid --log-level: %s", c.LogLevel)
	}
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}
