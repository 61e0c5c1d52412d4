// Package config loads the simulator's deployment settings.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// RedisPasswordEnv names the environment variable holding the redis password.
const RedisPasswordEnv = "AMMSIM_REDIS_PASSWORD"

type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

type RegistryConfig struct {
	FeeBps                      uint16 `yaml:"feeBps"`
	ProtocolFeePortionBps       uint16 `yaml:"protocolFeePortionBps"`
	FeeRecipient                string `yaml:"feeRecipient"`
	DisableMinimumLiquidityLock bool   `yaml:"disableMinimumLiquidityLock"`
}

type RouterConfig struct {
	Address string `yaml:"address"`
	// ForwardingFeeBps overrides the router default when set.
	ForwardingFeeBps *uint16 `yaml:"forwardingFeeBps"`
}

type VenueConfig struct {
	Account string `yaml:"account"`
}

// RedisConfig enables shipping notifications to a redis stream when Addr is
// set. The password is read from RedisPasswordEnv.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"maxLen"`
	Password string `yaml:"-"`
}

type Config struct {
	Controller string         `yaml:"controller"`
	Registry   RegistryConfig `yaml:"registry"`
	Router     RouterConfig   `yaml:"router"`
	Venue      VenueConfig    `yaml:"venue"`
	Tokens     []TokenConfig  `yaml:"tokens"`
	Redis      RedisConfig    `yaml:"redis"`
}

// LoadConfig reads and validates the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Redis.Password = os.Getenv(RedisPasswordEnv)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	addresses := []struct {
		field, value string
	}{
		{"controller", c.Controller},
		{"registry.feeRecipient", c.Registry.FeeRecipient},
		{"router.address", c.Router.Address},
		{"venue.account", c.Venue.Account},
	}
	for _, a := range addresses {
		if err := checkAddress(a.field, a.value); err != nil {
			return err
		}
	}
	if len(c.Tokens) == 0 {
		return errors.New("config: tokens cannot be empty")
	}
	for i, t := range c.Tokens {
		if err := checkAddress(fmt.Sprintf("tokens[%d].address", i), t.Address); err != nil {
			return err
		}
		if t.Symbol == "" {
			return fmt.Errorf("config: tokens[%d].symbol cannot be empty", i)
		}
	}
	if c.Redis.MaxLen < 0 {
		return errors.New("config: redis.maxLen cannot be negative")
	}
	return nil
}

func checkAddress(field, value string) error {
	if !common.IsHexAddress(value) {
		return fmt.Errorf("config: %s %q is not a hex address", field, value)
	}
	if common.HexToAddress(value) == (common.Address{}) {
		return fmt.Errorf("config: %s cannot be the zero address", field)
	}
	return nil
}

// Address parses a value already checked by validate.
func Address(value string) common.Address {
	return common.HexToAddress(value)
}
