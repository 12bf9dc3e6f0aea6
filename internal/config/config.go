// Package config loads the engine's two configuration surfaces.
//
// AlgorithmConfig is a TOML file listing the algorithms to run on
// startup — read once, validated, and handed to the Algo Container.
// MarketConfig holds exchange credentials, sourced from the environment
// (with an optional .env file for local development) and never logged.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"sniper-engine/pkg/types"
)

// AlgoSpec is one entry in the AlgorithmConfig TOML list.
type AlgoSpec struct {
	Base     string `mapstructure:"base"`
	Quote    string `mapstructure:"quote"`
	AlgoType string `mapstructure:"algo_type"`
	AlgoID   string `mapstructure:"algo_id"`
	Side     string `mapstructure:"side"`
	Quantity string `mapstructure:"quantity"`
	Price    string `mapstructure:"price"`
}

// AlgorithmConfig is the top-level shape of the TOML config file: a flat
// list of algorithms to instantiate on startup.
type AlgorithmConfig struct {
	Algorithms []AlgoSpec `mapstructure:"algorithms"`
}

// ToParameters converts the raw TOML spec into the typed, decimal-backed
// AlgoParameters the container expects. Called once per entry at load
// time so malformed decimals are rejected before the engine starts.
func (s AlgoSpec) ToParameters() (types.AlgoParameters, error) {
	qty, err := decimal.NewFromString(s.Quantity)
	if err != nil {
		return types.AlgoParameters{}, fmt.Errorf("algo %s: parse quantity: %w", s.AlgoID, err)
	}
	price, err := decimal.NewFromString(s.Price)
	if err != nil {
		return types.AlgoParameters{}, fmt.Errorf("algo %s: parse price: %w", s.AlgoID, err)
	}

	side := types.Side(strings.ToUpper(s.Side))
	if side != types.Buy && side != types.Sell {
		return types.AlgoParameters{}, fmt.Errorf("algo %s: side must be BUY or SELL, got %q", s.AlgoID, s.Side)
	}

	algoType := types.AlgoType(strings.ToUpper(s.AlgoType))
	if algoType == "" {
		algoType = types.AlgoSniper
	}

	return types.AlgoParameters{
		Base:     strings.ToUpper(s.Base),
		Quote:    strings.ToUpper(s.Quote),
		AlgoType: algoType,
		AlgoID:   s.AlgoID,
		Side:     side,
		Quantity: qty,
		Price:    price,
	}, nil
}

// LoadAlgorithmConfig reads the TOML algorithm list from path.
func LoadAlgorithmConfig(path string) (*AlgorithmConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read algorithm config: %w", err)
	}

	var cfg AlgorithmConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal algorithm config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that every algo entry is well-formed and algo_id is
// unique across the set.
func (c *AlgorithmConfig) Validate() error {
	if len(c.Algorithms) == 0 {
		return fmt.Errorf("algorithm config must list at least one algorithm")
	}
	seen := make(map[string]bool, len(c.Algorithms))
	for _, a := range c.Algorithms {
		if a.AlgoID == "" {
			return fmt.Errorf("algo entry missing algo_id")
		}
		if seen[a.AlgoID] {
			return fmt.Errorf("duplicate algo_id %q", a.AlgoID)
		}
		seen[a.AlgoID] = true
		if a.Base == "" || a.Quote == "" {
			return fmt.Errorf("algo %s: base and quote are required", a.AlgoID)
		}
		if _, err := a.ToParameters(); err != nil {
			return err
		}
	}
	return nil
}

// MarketConfig holds exchange credentials. Required: API_KEY and
// API_SECRET. Loaded from the environment; a .env file in the working
// directory is consulted first (if present) for development convenience,
// then real environment variables take precedence.
type MarketConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
	WSBaseURL string
}

// LoadMarketConfig loads exchange credentials from the environment.
func LoadMarketConfig() (*MarketConfig, error) {
	_ = godotenv.Load() // optional .env file; absence is not an error

	cfg := &MarketConfig{
		APIKey:    os.Getenv("API_KEY"),
		APISecret: os.Getenv("API_SECRET"),
		BaseURL:   os.Getenv("EXCHANGE_BASE_URL"),
		WSBaseURL: os.Getenv("EXCHANGE_WS_URL"),
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY is required")
	}
	if cfg.APISecret == "" {
		return nil, fmt.Errorf("API_SECRET is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.exchange.example.com"
	}
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = "wss://stream.exchange.example.com"
	}

	return cfg, nil
}
