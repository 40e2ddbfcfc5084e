package config

import (
	"errors"
	"fmt"
	"os"

	"tregate/pkg/logging"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from the given file path, starting from the
// defaults. A missing file is not an error; a malformed one is.
func LoadConfig(configFilePath string) (Config, error) {
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config file at %s, using defaults", configFilePath)
			config.ApplyEnvOverrides()
			return config, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		// config malformed
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	config.ApplyEnvOverrides()

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// Validate checks the invariants the rest of the system assumes.
func (c *Config) Validate() error {
	if c.IdentityProvider.ClientID == "" {
		return fmt.Errorf("identityProvider.clientID must be set")
	}
	if c.IdentityProvider.ExternalURL == "" || c.IdentityProvider.InternalURL == "" {
		return fmt.Errorf("identityProvider external and internal URLs must be set")
	}
	if c.Signing.Secret == "" {
		return fmt.Errorf("signing.secret must be set (TREGATE_SIGNING_SECRET)")
	}
	if c.Signing.Audience == "" {
		return fmt.Errorf("signing.audience must not be empty")
	}
	return nil
}
