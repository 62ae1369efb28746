// Package config loads runtime settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type AirtableConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	BaseID  string `yaml:"base_id"`
	Table   string `yaml:"table"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type PipelineConfig struct {
	// Attempts is the total outbound attempt budget per generation call.
	Attempts int `yaml:"attempts"`
	// BackoffInitial is the first retry delay; it doubles per retry.
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	// AttemptTimeout bounds each outbound attempt.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	// RateLimitRPS bounds the outbound generation request rate. <=0 disables.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

type Config struct {
	ListenAddr     string         `yaml:"listen_addr"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	LogLevel       string         `yaml:"log_level"`
	LogFormat      string         `yaml:"log_format"`
	Airtable       AirtableConfig `yaml:"airtable"`
	Gemini         GeminiConfig   `yaml:"gemini"`
	Pipeline       PipelineConfig `yaml:"pipeline"`
}

func defaults() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		LogFormat:  "text",
		Airtable: AirtableConfig{
			BaseURL: "https://api.airtable.com",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Pipeline: PipelineConfig{
			Attempts:       5,
			BackoffInitial: 1 * time.Second,
			AttemptTimeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment variables. Environment references inside the YAML
// (${VAR}) are expanded before parsing.
func Load(path string) (Config, error) {
	cfg := defaults()

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(b))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envString(&cfg.ListenAddr, "LISTEN_ADDR")
	envString(&cfg.LogLevel, "LOG_LEVEL")
	envString(&cfg.LogFormat, "LOG_FORMAT")

	envString(&cfg.Airtable.BaseURL, "AIRTABLE_BASE_URL")
	envString(&cfg.Airtable.Token, "AIRTABLE_API_KEY")
	envString(&cfg.Airtable.BaseID, "AIRTABLE_BASE_ID")
	envString(&cfg.Airtable.Table, "AIRTABLE_TABLE_NAME")

	envString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	envString(&cfg.Gemini.Model, "GEMINI_MODEL")
	envString(&cfg.Gemini.BaseURL, "GEMINI_BASE_URL")

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.AllowedOrigins = origins
	}

	if err := envInt(&cfg.Pipeline.Attempts, "MAX_ATTEMPTS"); err != nil {
		return err
	}
	if err := envDuration(&cfg.Pipeline.BackoffInitial, "BACKOFF_INITIAL"); err != nil {
		return err
	}
	if err := envDuration(&cfg.Pipeline.AttemptTimeout, "ATTEMPT_TIMEOUT"); err != nil {
		return err
	}
	if err := envFloat(&cfg.Pipeline.RateLimitRPS, "RATE_LIMIT_RPS"); err != nil {
		return err
	}
	return nil
}

// Validate checks the settings that have no usable default.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Airtable.Token) == "" {
		missing = append(missing, "AIRTABLE_API_KEY")
	}
	if strings.TrimSpace(c.Airtable.BaseID) == "" {
		missing = append(missing, "AIRTABLE_BASE_ID")
	}
	if strings.TrimSpace(c.Airtable.Table) == "" {
		missing = append(missing, "AIRTABLE_TABLE_NAME")
	}
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func envString(dst *string, varName string) {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		*dst = v
	}
}

func envInt(dst *int, varName string) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func envFloat(dst *float64, varName string) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func envDuration(dst *time.Duration, varName string) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}
