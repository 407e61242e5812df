// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PrinterConfig holds the thermal printer connection settings.
type PrinterConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Width is the printable width in pixels (384 for 58mm paper,
	// 576 for 80mm).
	Width int `yaml:"width"`
}

// LimitsConfig holds the admission ceilings.
type LimitsConfig struct {
	DailyPrints   int   `yaml:"daily_prints"`
	MaxTextLength int   `yaml:"max_text_length"`
	MaxImages     int   `yaml:"max_images"`
	MaxImageMB    int64 `yaml:"max_image_mb"`
	MaxTotalMB    int64 `yaml:"max_total_mb"`
}

// MailConfig holds the mail provider settings (inbound webhook + outbound
// notifications + attachment fetch).
type MailConfig struct {
	APIBaseURL    string `yaml:"api_base_url"`
	APIKey        string `yaml:"api_key"`
	FromAddress   string `yaml:"from_address"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// VisionConfig holds the image-moderation collaborator settings. Leave
// Endpoint empty to run without image moderation (fail-open, logged).
type VisionConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`

	// OAuth2 client-credentials flow, used instead of APIKey when set.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
}

// Config holds all configuration for the print bridge.
type Config struct {
	Printer PrinterConfig
	Limits  LimitsConfig
	Mail    MailConfig
	Vision  VisionConfig

	// Blocklist is the set of disallowed text tokens.
	Blocklist []string

	// FooterText is printed at the bottom of every receipt.
	FooterText string

	// APIToken is the pre-shared bearer credential for /api/print.
	APIToken string

	// RedisURL enables the Redis rate-limit store and event dedup when set.
	RedisURL string

	// DatabaseURL enables the Postgres outcome journal when set.
	DatabaseURL string

	// EventsPollInterval controls the provider events poller.
	EventsPollInterval time.Duration
	EventsPollLookback time.Duration

	// SweepInterval controls the in-memory rate-limit sweep.
	SweepInterval time.Duration

	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Printer   PrinterConfig `yaml:"printer"`
	Limits    LimitsConfig  `yaml:"limits"`
	Mail      MailConfig    `yaml:"mail"`
	Vision    VisionConfig  `yaml:"vision"`
	Blocklist []string      `yaml:"blocklist"`
	Footer    string        `yaml:"footer"`
	Server    struct {
		Port     int    `yaml:"port"`
		APIToken string `yaml:"api_token"`
	} `yaml:"server"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
}

// defaultBlocklist is used when the YAML does not supply one.
var defaultBlocklist = []string{
	"viagra", "casino", "lottery", "bitcoin giveaway", "wire transfer",
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. The YAML file is optional:
// a missing file falls back to env vars and defaults so the printtest CLI
// can run without one.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	if err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Printer:            raw.Printer,
		Limits:             raw.Limits,
		Mail:               raw.Mail,
		Vision:             raw.Vision,
		Blocklist:          raw.Blocklist,
		FooterText:         raw.Footer,
		APIToken:           firstNonEmpty(raw.Server.APIToken, os.Getenv("API_TOKEN")),
		RedisURL:           firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		DatabaseURL:        firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		EventsPollInterval: envOrDefaultDuration("EVENTS_POLL_INTERVAL", 5*time.Minute),
		EventsPollLookback: envOrDefaultDuration("EVENTS_POLL_LOOKBACK", 30*time.Minute),
		SweepInterval:      envOrDefaultDuration("SWEEP_INTERVAL", time.Hour),
		Port:               raw.Server.Port,
	}

	// Env fallbacks and defaults for everything the YAML left empty.
	if cfg.Printer.Host == "" {
		cfg.Printer.Host = envOrDefault("PRINTER_HOST", "")
	}
	if cfg.Printer.Port == 0 {
		cfg.Printer.Port = envOrDefaultInt("PRINTER_PORT", 9100)
	}
	if cfg.Printer.Width == 0 {
		cfg.Printer.Width = envOrDefaultInt("PRINTER_WIDTH", 384)
	}

	if cfg.Limits.DailyPrints == 0 {
		cfg.Limits.DailyPrints = envOrDefaultInt("DAILY_PRINTS", 5)
	}
	if cfg.Limits.MaxTextLength == 0 {
		cfg.Limits.MaxTextLength = envOrDefaultInt("MAX_TEXT_LENGTH", 500)
	}
	if cfg.Limits.MaxImages == 0 {
		cfg.Limits.MaxImages = envOrDefaultInt("MAX_IMAGES", 2)
	}
	if cfg.Limits.MaxImageMB == 0 {
		cfg.Limits.MaxImageMB = int64(envOrDefaultInt("MAX_IMAGE_MB", 5))
	}
	if cfg.Limits.MaxTotalMB == 0 {
		cfg.Limits.MaxTotalMB = int64(envOrDefaultInt("MAX_TOTAL_MB", 10))
	}

	if cfg.Mail.APIBaseURL == "" {
		cfg.Mail.APIBaseURL = envOrDefault("MAIL_API_BASE_URL", "https://api.resend.com")
	}
	if cfg.Mail.APIKey == "" {
		cfg.Mail.APIKey = os.Getenv("MAIL_API_KEY")
	}
	if cfg.Mail.FromAddress == "" {
		cfg.Mail.FromAddress = os.Getenv("MAIL_FROM_ADDRESS")
	}
	if cfg.Mail.WebhookSecret == "" {
		cfg.Mail.WebhookSecret = os.Getenv("MAIL_WEBHOOK_SECRET")
	}

	if len(cfg.Blocklist) == 0 {
		cfg.Blocklist = defaultBlocklist
	}
	if cfg.FooterText == "" {
		cfg.FooterText = envOrDefault("FOOTER_TEXT", "sent to the receipt printer")
	}
	if cfg.Port == 0 {
		cfg.Port = envOrDefaultInt("PORT", 8080)
	}

	if cfg.APIToken == "" {
		return nil, fmt.Errorf("API_TOKEN is required — the /api/print endpoint needs a pre-shared bearer credential")
	}
	if cfg.Printer.Host == "" {
		return nil, fmt.Errorf("PRINTER_HOST is required")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
