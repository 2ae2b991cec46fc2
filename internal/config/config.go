// Package config loads multichannel.Config from a file and SMBMC_* environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (SMBMC_*)
//  2. Configuration file (yaml, toml or json)
//  3. multichannel.DefaultConfig
package config

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/aptpod/smb-go/errors"
	"github.com/aptpod/smb-go/multichannel"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys use underscores, e.g. SMBMC_SCORING_BASE.
const EnvPrefix = "SMBMC"

// Load reads configuration from configPath (optional), the environment and
// defaults, then validates it. A missing file is not an error.
func Load(configPath string) (*multichannel.Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if configPath != "" {
		if err := readConfigFile(v); err != nil {
			return nil, err
		}
	}

	cfg := multichannel.DefaultConfig()
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Settings flattens cfg into dotted keys, the same keys Load accepts.
func Settings(cfg multichannel.Config) map[string]any {
	return map[string]any{
		"enabled":                    cfg.Enabled,
		"max_channels":               cfg.MaxChannels,
		"strategy":                   cfg.Strategy.String(),
		"health_check_interval":      cfg.HealthCheckInterval.String(),
		"idle_timeout":               cfg.IdleTimeout.String(),
		"discovery_interval":         cfg.DiscoveryInterval.String(),
		"max_retries":                cfg.MaxRetries,
		"retry_base_interval":        cfg.RetryBaseInterval.String(),
		"retry_max_interval":         cfg.RetryMaxInterval.String(),
		"attempt_timeout":            cfg.AttemptTimeout.String(),
		"replacement_attempts":       cfg.ReplacementAttempts,
		"large_transfer_threshold":   cfg.LargeTransferThreshold,
		"binding_policy":             cfg.BindingPolicy.String(),
		"high_error_rate":            cfg.HighErrorRate,
		"scoring.base":               cfg.Scoring.Base,
		"scoring.interface_divisor":  cfg.Scoring.InterfaceDivisor,
		"scoring.busy_penalty":       cfg.Scoring.BusyPenalty,
		"scoring.primary_bonus":      cfg.Scoring.PrimaryBonus,
		"scoring.error_rate_high":    cfg.Scoring.ErrorRateHigh,
		"scoring.error_penalty_high": cfg.Scoring.ErrorPenaltyHigh,
		"scoring.error_rate_low":     cfg.Scoring.ErrorRateLow,
		"scoring.error_penalty_low":  cfg.Scoring.ErrorPenaltyLow,
	}
}

// Keys returns the keys of Settings in sorted order.
func Keys() []string {
	settings := Settings(multichannel.DefaultConfig())
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about.
	for k, val := range Settings(multichannel.DefaultConfig()) {
		v.SetDefault(k, val)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

// readConfigFile reads the configured file. A missing file leaves the defaults in place.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || os.IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// durationDecodeHook accepts "30s" style strings and raw nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
