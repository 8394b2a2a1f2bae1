// Package config provides configuration loading for bulletin-import.
// Supports a YAML file, a .env file, environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spherical/bulletin-import/internal/country"
	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/existing"
)

// Extraction providers.
const (
	ProviderMistral    = "mistral"
	ProviderOpenRouter = "openrouter"
)

// DefaultIDPrefix prefixes every synthetic organization and individual id.
const DefaultIDPrefix = "INBP"

// Config holds all configuration for a run.
type Config struct {
	Extraction ExtractionConfig `yaml:"extraction"`
	Existing   ExistingConfig   `yaml:"existing"`
	Country    CountryConfig    `yaml:"country"`
	Export     ExportConfig     `yaml:"export"`
	Log        LogConfig        `yaml:"log"`
}

// ExtractionConfig selects and tunes the document extraction service.
type ExtractionConfig struct {
	Provider string        `yaml:"provider"` // mistral or openrouter
	Model    string        `yaml:"model"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	APIKey   string        `yaml:"api_key"`
	MaxPages int           `yaml:"max_pages"`
}

// ExistingConfig locates the prior exports of the target system.
type ExistingConfig struct {
	Dir                 string `yaml:"dir"`
	OrganizationPattern string `yaml:"organization_pattern"`
	IndividualPattern   string `yaml:"individual_pattern"`
}

// CountryConfig describes the country sheet of the import template.
type CountryConfig struct {
	Sheet        string `yaml:"sheet"`
	DefaultCode  string `yaml:"default_code"`
	DefaultLabel string `yaml:"default_label"`
}

// ExportConfig holds id prefixes and output workbook naming.
type ExportConfig struct {
	OrganizationIDPrefix   string `yaml:"organization_id_prefix"`
	IndividualIDPrefix     string `yaml:"individual_id_prefix"`
	OrganizationSheet      string `yaml:"organization_sheet"`
	OrganizationFilePrefix string `yaml:"organization_file_prefix"`
	IndividualSheet        string `yaml:"individual_sheet"`
	IndividualFilePrefix   string `yaml:"individual_file_prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Load reads configuration from a YAML file and applies environment
// overrides. Variables from a .env file in the working directory are loaded
// first and never replace variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, domain.ConfigError("load .env file", err)
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError("read config file", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, domain.ConfigError("validate config", err)
	}

	return cfg, nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Extraction: ExtractionConfig{
			Provider: ProviderMistral,
			Timeout:  2 * time.Minute,
			MaxPages: 1,
		},
		Existing: ExistingConfig{
			Dir:                 "./existants",
			OrganizationPattern: existing.DefaultOrganizationPattern.String(),
			IndividualPattern:   existing.DefaultIndividualPattern.String(),
		},
		Country: CountryConfig{
			Sheet:        country.DefaultSheet,
			DefaultCode:  country.DefaultCode,
			DefaultLabel: country.DefaultLabel,
		},
		Export: ExportConfig{
			OrganizationIDPrefix:   DefaultIDPrefix,
			IndividualIDPrefix:     DefaultIDPrefix,
			OrganizationSheet:      "Entreprise",
			OrganizationFilePrefix: "Import_Entreprise",
			IndividualSheet:        "Personnes",
			IndividualFilePrefix:   "Import_Stagiaires",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Extraction.Provider != ProviderMistral && c.Extraction.Provider != ProviderOpenRouter {
		return fmt.Errorf("invalid extraction provider: %s", c.Extraction.Provider)
	}

	if c.Extraction.Timeout <= 0 {
		return fmt.Errorf("extraction timeout must be positive")
	}

	if c.Extraction.MaxPages < 1 {
		return fmt.Errorf("max_pages must be at least 1")
	}

	for name, pattern := range map[string]string{
		"organization_pattern": c.Existing.OrganizationPattern,
		"individual_pattern":   c.Existing.IndividualPattern,
	} {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("%s must capture the numeric file prefix", name)
		}
	}

	if strings.TrimSpace(c.Country.DefaultCode) == "" {
		return fmt.Errorf("country default_code is required")
	}

	if strings.TrimSpace(c.Export.OrganizationIDPrefix) == "" || strings.TrimSpace(c.Export.IndividualIDPrefix) == "" {
		return fmt.Errorf("id prefixes are required")
	}

	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// RequireAPIKey reports a config error when the selected provider has no key.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Extraction.APIKey) == "" {
		return domain.ConfigError(fmt.Sprintf("no API key for provider %s (set %s)",
			c.Extraction.Provider, apiKeyEnv(c.Extraction.Provider)), nil)
	}
	return nil
}

// IDScheme returns the synthetic id prefixes.
func (c *Config) IDScheme() domain.IDScheme {
	return domain.IDScheme{
		OrganizationPrefix: c.Export.OrganizationIDPrefix,
		IndividualPrefix:   c.Export.IndividualIDPrefix,
	}
}

// Sources returns the prior-export locations. Patterns are compiled by
// Validate, so a loaded config never panics here.
func (c *Config) Sources() existing.Sources {
	return existing.Sources{
		Dir:                 c.Existing.Dir,
		OrganizationPattern: regexp.MustCompile(c.Existing.OrganizationPattern),
		IndividualPattern:   regexp.MustCompile(c.Existing.IndividualPattern),
	}
}

func apiKeyEnv(provider string) string {
	if provider == ProviderOpenRouter {
		return "OPENROUTER_API_KEY"
	}
	return "MISTRAL_API_KEY"
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EXTRACTION_PROVIDER"); v != "" {
		cfg.Extraction.Provider = strings.ToLower(strings.TrimSpace(v))
	}

	// The key follows the provider chosen above.
	if v := os.Getenv(apiKeyEnv(cfg.Extraction.Provider)); v != "" {
		cfg.Extraction.APIKey = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Extraction.Model = v
	}

	if v := os.Getenv("EXISTING_DIR"); v != "" {
		cfg.Existing.Dir = v
	}

	if v := os.Getenv("ID_PREFIX"); v != "" {
		cfg.Export.OrganizationIDPrefix = v
		cfg.Export.IndividualIDPrefix = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
