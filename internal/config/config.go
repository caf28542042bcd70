// Package config loads and validates the gateway's static YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default config file locations, checked in order when no explicit path is given.
var configPaths = []string{
	"./ruuvigw.yaml",
	"./ruuvigw.yml",
	"~/.config/ruuvigw/config.yaml",
	"/etc/ruuvigw/config.yaml",
}

const defaultTokenLifetime = 3600 * time.Second

// IdentityConfig points at the device's RS256 key material.
type IdentityConfig struct {
	PublicKeyPath  string        `yaml:"public_key_path" validate:"required"`
	PrivateKeyPath string        `yaml:"private_key_path" validate:"required"`
	CACertsPath    string        `yaml:"ca_certs_path,omitempty"`
	TokenLifetime  time.Duration `yaml:"token_lifetime,omitempty"`
}

// Lifetime returns the configured token lifetime, clamped to the 3600s
// default when unset or non-positive.
func (c IdentityConfig) Lifetime() time.Duration {
	if c.TokenLifetime <= 0 {
		return defaultTokenLifetime
	}
	return c.TokenLifetime
}

// IoTCoreConfig identifies the device within its IoT Core registry.
type IoTCoreConfig struct {
	DeviceID string `yaml:"device_id" validate:"required"`
	ProjectID string `yaml:"project_id" validate:"required"`
	Region    string `yaml:"region" validate:"required"`
	Registry  string `yaml:"registry" validate:"required"`
}

// ClientID builds the MQTT client identifier IoT Core expects.
func (c IoTCoreConfig) ClientID() string {
	return fmt.Sprintf("projects/%s/locations/%s/registries/%s/devices/%s",
		c.ProjectID, c.Region, c.Registry, c.DeviceID)
}

// LoggingConfig configures the slog-backed logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	Output string `yaml:"output,omitempty"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address,omitempty"`
}

// StatusConfig configures the ambient HTTP status/debug server.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address,omitempty"`
}

// Config is the full static configuration document.
type Config struct {
	Identity IdentityConfig `yaml:"identity" validate:"required"`
	IoTCore  IoTCoreConfig  `yaml:"iotcore" validate:"required"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Status   StatusConfig   `yaml:"status"`
}

// Load reads configuration from path, or the first existing default
// location when path is empty.
func Load(path string) (*Config, error) {
	if path != "" {
		return loadFile(path)
	}

	for _, p := range configPaths {
		if len(p) > 0 && p[0] == '~' {
			home, err := os.UserHomeDir()
			if err == nil {
				p = filepath.Join(home, p[2:])
			}
		}
		if _, err := os.Stat(p); err == nil {
			return loadFile(p)
		}
	}

	return nil, fmt.Errorf("config: no configuration file found in %v", configPaths)
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate enforces the struct tags above via go-playground/validator.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}
