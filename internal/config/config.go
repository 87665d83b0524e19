package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	PrivateKey      string
	Factory         string
	PositionManager string
	ReserveToken    string

	PGDSN      string
	LedgerFile string

	TokensSold        string
	FallbackRatio     string
	Slippage          string
	OfferingFinalized bool
	ReserveDeposited  string
	ReserveUSDPrice   string

	GasLimit uint64
	GasPrice string

	MintDeadline   time.Duration
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	ReadRetries    int
	ReadBackoff    time.Duration

	ReconcilePositions bool
	LogLevel           string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOTSTRAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("ledger-file", "./data/distributions.jsonl")
	v.SetDefault("fallback-ratio", "1")
	v.SetDefault("slippage", "0.005")
	v.SetDefault("mint-deadline", 20*time.Minute)
	v.SetDefault("confirm-timeout", 3*time.Minute)
	v.SetDefault("poll-interval", 2*time.Second)
	v.SetDefault("read-retries", 5)
	v.SetDefault("read-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:             v.GetString("rpc"),
		PrivateKey:         v.GetString("private-key"),
		Factory:            v.GetString("factory"),
		PositionManager:    v.GetString("position-manager"),
		ReserveToken:       v.GetString("reserve-token"),
		PGDSN:              v.GetString("pg-dsn"),
		LedgerFile:         v.GetString("ledger-file"),
		TokensSold:         v.GetString("tokens-sold"),
		FallbackRatio:      v.GetString("fallback-ratio"),
		Slippage:           v.GetString("slippage"),
		OfferingFinalized:  v.GetBool("offering-finalized"),
		ReserveDeposited:   v.GetString("reserve-deposited"),
		ReserveUSDPrice:    v.GetString("reserve-usd-price"),
		GasLimit:           v.GetUint64("gas-limit"),
		GasPrice:           v.GetString("gas-price"),
		MintDeadline:       v.GetDuration("mint-deadline"),
		ConfirmTimeout:     v.GetDuration("confirm-timeout"),
		PollInterval:       v.GetDuration("poll-interval"),
		ReadRetries:        v.GetInt("read-retries"),
		ReadBackoff:        v.GetDuration("read-backoff"),
		ReconcilePositions: v.GetBool("reconcile-positions"),
		LogLevel:           v.GetString("log-level"),
	}

	return cfg, nil
}
