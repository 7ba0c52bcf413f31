package server

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration. Values come from an HCL file
// with environment variables taking precedence, so deployments can override
// secrets without touching the file.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Duels  DuelSettings   `hcl:"duels,block"`
}

// ServerSettings contains process-level configuration.
type ServerSettings struct {
	Addr        string `hcl:"addr,optional" env:"DUELS_ADDR"`
	DatabaseURL string `hcl:"database_url,optional" env:"DATABASE_URL"`
	ChainAPIURL string `hcl:"chain_api_url,optional" env:"CHAIN_API_URL"`
	LogLevel    string `hcl:"log_level,optional" env:"DUELS_LOG_LEVEL"`
}

// DuelSettings contains the game engine's stake bounds.
type DuelSettings struct {
	MinAmount int64 `hcl:"min_amount,optional" env:"DUELS_MIN_AMOUNT"`
	MaxAmount int64 `hcl:"max_amount,optional" env:"DUELS_MAX_AMOUNT"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Addr:        "localhost:8080",
			DatabaseURL: "postgres://localhost:5432/duels?sslmode=disable",
			ChainAPIURL: "https://eos.greymass.com",
			LogLevel:    "info",
		},
		Duels: DuelSettings{
			MinAmount: 1000,
			MaxAmount: 10000000,
		},
	}
}

// LoadConfig reads configuration from an HCL file, falling back to defaults
// when the file does not exist, then applies environment overrides.
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(filename); err == nil {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(filename)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
		}

		var loaded Config
		diags = gohcl.DecodeBody(file.Body, nil, &loaded)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
		}
		applyFileConfig(config, &loaded)
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	return config, nil
}

func applyFileConfig(config, loaded *Config) {
	if loaded.Server.Addr != "" {
		config.Server.Addr = loaded.Server.Addr
	}
	if loaded.Server.DatabaseURL != "" {
		config.Server.DatabaseURL = loaded.Server.DatabaseURL
	}
	if loaded.Server.ChainAPIURL != "" {
		config.Server.ChainAPIURL = loaded.Server.ChainAPIURL
	}
	if loaded.Server.LogLevel != "" {
		config.Server.LogLevel = loaded.Server.LogLevel
	}
	if loaded.Duels.MinAmount != 0 {
		config.Duels.MinAmount = loaded.Duels.MinAmount
	}
	if loaded.Duels.MaxAmount != 0 {
		config.Duels.MaxAmount = loaded.Duels.MaxAmount
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address must be set")
	}
	if c.Server.DatabaseURL == "" {
		return fmt.Errorf("database URL must be set")
	}
	if c.Server.ChainAPIURL == "" {
		return fmt.Errorf("chain API URL must be set")
	}
	if c.Duels.MinAmount <= 0 {
		return fmt.Errorf("minimum bet must be positive")
	}
	if c.Duels.MaxAmount < c.Duels.MinAmount {
		return fmt.Errorf("maximum bet must not be below the minimum")
	}
	return nil
}
