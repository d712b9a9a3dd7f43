package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix of variables overriding file values, e.g.
// MYMED_TRIGGER__INTERVAL=45s sets trigger.interval
const EnvPrefix = "MYMED_"

// ConfigFileEnv names the YAML file the CLI loads with File
const ConfigFileEnv = "MYMED_CONFIG"

type fileValues struct {
	BadgerPath string `koanf:"badger_path"`
	// MYMED_TOKEN lands here through the env layer
	Token      string `koanf:"token"`
	Pushover   struct {
		APIToken string `koanf:"api_token"`
	} `koanf:"pushover"`
	Telegram struct {
		Token string `koanf:"token"`
	} `koanf:"telegram"`
	Auth struct {
		JWTSecret string `koanf:"jwt_secret"`
	} `koanf:"auth"`
	Weight struct {
		DSN string `koanf:"dsn"`
	} `koanf:"weight"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
	Trigger struct {
		Interval       time.Duration `koanf:"interval"`
		SnoozeMinutes  int           `koanf:"snooze_minutes"`
		GateOnSchedule bool          `koanf:"gate_on_schedule"`
	} `koanf:"trigger"`
	Metrics struct {
		Addr string `koanf:"addr"`
	} `koanf:"metrics"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"weight.dsn":               DefaultWeightDSN,
		"log.level":                DefaultLogLevel,
		"trigger.interval":         DefaultTriggerInterval.String(),
		"trigger.snooze_minutes":   DefaultSnoozeMinutes,
		"trigger.gate_on_schedule": false,
		"metrics.addr":             DefaultMetricsAddr,
	}
}

// File is a Config layered from defaults, an optional YAML file and
// MYMED_ prefixed environment variables
type File struct {
	values fileValues
}

// LoadFile builds a File config. A missing path only skips the file layer.
func LoadFile(path string) (*File, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	f := &File{}
	if err := k.Unmarshal("", &f.values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return f, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func requiredValue(val, key string) (string, error) {
	if val == "" {
		return "", fmt.Errorf("config key %s is not set: %w", key, ErrEnvVariableNotSet)
	}

	return val, nil
}

// BadgerPath for the database directory
func (f *File) BadgerPath() (string, error) {
	return requiredValue(f.values.BadgerPath, "badger_path")
}

// PushoverAPIToken getter
func (f *File) PushoverAPIToken() (string, error) {
	return requiredValue(f.values.Pushover.APIToken, "pushover.api_token")
}

// TelegramToken getter
func (f *File) TelegramToken() (string, error) {
	return requiredValue(f.values.Telegram.Token, "telegram.token")
}

// JWTSecret getter
func (f *File) JWTSecret() (string, error) {
	return requiredValue(f.values.Auth.JWTSecret, "auth.jwt_secret")
}

// WeightDSN getter
func (f *File) WeightDSN() string {
	return f.values.Weight.DSN
}

// LogLevel getter
func (f *File) LogLevel() string {
	return f.values.Log.Level
}

// TriggerInterval getter
func (f *File) TriggerInterval() time.Duration {
	if f.values.Trigger.Interval <= 0 {
		return DefaultTriggerInterval
	}

	return f.values.Trigger.Interval
}

// SnoozeMinutes getter
func (f *File) SnoozeMinutes() int {
	if f.values.Trigger.SnoozeMinutes <= 0 {
		return DefaultSnoozeMinutes
	}

	return f.values.Trigger.SnoozeMinutes
}

// GateOnSchedule getter
func (f *File) GateOnSchedule() bool {
	return f.values.Trigger.GateOnSchedule
}

// MetricsAddr getter
func (f *File) MetricsAddr() string {
	return f.values.Metrics.Addr
}

// SessionToken getter
func (f *File) SessionToken() string {
	return f.values.Token
}

// Load picks File when MYMED_CONFIG is set and Env otherwise
func Load() (Config, error) {
	if path, ok := os.LookupEnv(ConfigFileEnv); ok && path != "" {
		return LoadFile(path)
	}

	return &Env{}, nil
}
