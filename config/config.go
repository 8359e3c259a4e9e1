package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Config holds the job configuration.
type Config struct {
	TokenURL       string
	SearchURL      string
	Country        string
	Operation      string
	PropertyType   string
	MaxItems       int
	Timeout        time.Duration
	KeyFile        string
	LocationsFile  string
	OutputFile     string
	OutputFormat   string // csv, json, or dual
	PostgresDSN    string
	DedupeMaxSize  int
	PushgatewayURL string
	UserAgent      string
	Verbose        bool
}

// DefaultConfig returns the defaults for the public idealista API.
func DefaultConfig() *Config {
	return &Config{
		TokenURL:       "https://api.idealista.com/oauth/token",
		SearchURL:      "https://api.idealista.com/3.5/es/search",
		Country:        "es",
		Operation:      "sale",
		PropertyType:   "homes",
		MaxItems:       50,
		Timeout:        30 * time.Second,
		KeyFile:        defaultKeyFile(),
		LocationsFile:  "",
		OutputFile:     "idealista_price_trends.csv",
		OutputFormat:   "csv",
		PostgresDSN:    "",
		DedupeMaxSize:  0,
		PushgatewayURL: "",
		UserAgent:      "idealista-price-trends/1.0",
		Verbose:        false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateURL("token URL", c.TokenURL); err != nil {
		return err
	}
	if err := validateURL("search URL", c.SearchURL); err != nil {
		return err
	}
	if c.Country == "" {
		return fmt.Errorf("country cannot be empty")
	}
	if c.Operation != "sale" && c.Operation != "rent" {
		return fmt.Errorf("operation must be sale or rent")
	}
	if c.PropertyType == "" {
		return fmt.Errorf("property type cannot be empty")
	}
	if c.MaxItems <= 0 {
		return fmt.Errorf("max items must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.KeyFile == "" {
		return fmt.Errorf("key file cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.DedupeMaxSize < 0 {
		return fmt.Errorf("dedupe max size cannot be negative")
	}
	if c.PushgatewayURL != "" {
		if err := validateURL("pushgateway URL", c.PushgatewayURL); err != nil {
			return err
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

func defaultKeyFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "idealista_api_key.json"
	}
	return filepath.Join(home, "idealista_api_key.json")
}
