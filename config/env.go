package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// BadgerPathEnv name
	BadgerPathEnv = "BADGER_PATH"
	// PushoverAPITokenEnv name
	PushoverAPITokenEnv = "PUSHOVER_API_TOKEN"
	// TelegramTokenEnv name
	TelegramTokenEnv = "TELEGRAM_TOKEN"
	// JWTSecretEnv name
	JWTSecretEnv = "JWT_SECRET"
	// WeightDSNEnv name
	WeightDSNEnv = "WEIGHT_DSN"
	// LogLevelEnv name
	LogLevelEnv = "LOG_LEVEL"
	// TriggerIntervalEnv name, a Go duration such as "30s"
	TriggerIntervalEnv = "TRIGGER_INTERVAL"
	// SnoozeMinutesEnv name
	SnoozeMinutesEnv = "SNOOZE_MINUTES"
	// GateOnScheduleEnv name
	GateOnScheduleEnv = "TRIGGER_GATE_ON_SCHEDULE"
	// MetricsAddrEnv name, empty disables the metrics listener
	MetricsAddrEnv = "METRICS_ADDR"
	// SessionTokenEnv name, printed by user login
	SessionTokenEnv = "MYMED_TOKEN"
)

var (
	// ErrEnvVariableNotSet occurs when an environment variable is not set
	ErrEnvVariableNotSet = errors.New("environment variable is not set")
)

// LoadDotEnv reads KEY=value pairs from the given files (".env" when none
// are given) into the environment. Missing files are ignored and variables
// already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	return nil
}

// Env variable Config implementation
type Env struct {
}

// BadgerPath for the database directory
func (e *Env) BadgerPath() (string, error) {
	return required(BadgerPathEnv, "badger path")
}

// PushoverAPIToken getter
func (e *Env) PushoverAPIToken() (string, error) {
	return required(PushoverAPITokenEnv, "pushover API token")
}

// TelegramToken getter
func (e *Env) TelegramToken() (string, error) {
	return required(TelegramTokenEnv, "telegram bot token")
}

// JWTSecret used to sign session tokens
func (e *Env) JWTSecret() (string, error) {
	return required(JWTSecretEnv, "JWT secret")
}

// WeightDSN for the weight row store
func (e *Env) WeightDSN() string {
	return optional(WeightDSNEnv, DefaultWeightDSN)
}

// LogLevel getter
func (e *Env) LogLevel() string {
	return optional(LogLevelEnv, DefaultLogLevel)
}

// TriggerInterval between reminder scans
func (e *Env) TriggerInterval() time.Duration {
	d, err := time.ParseDuration(optional(TriggerIntervalEnv, ""))
	if err != nil || d <= 0 {
		return DefaultTriggerInterval
	}

	return d
}

// SnoozeMinutes used for snooze actions coming from notifications
func (e *Env) SnoozeMinutes() int {
	n, err := strconv.Atoi(optional(SnoozeMinutesEnv, ""))
	if err != nil || n <= 0 {
		return DefaultSnoozeMinutes
	}

	return n
}

// GateOnSchedule getter
func (e *Env) GateOnSchedule() bool {
	b, _ := strconv.ParseBool(optional(GateOnScheduleEnv, "false"))

	return b
}

// MetricsAddr getter
func (e *Env) MetricsAddr() string {
	val, ok := os.LookupEnv(MetricsAddrEnv)
	if !ok {
		return DefaultMetricsAddr
	}

	return val
}

// SessionToken getter
func (e *Env) SessionToken() string {
	return optional(SessionTokenEnv, "")
}

func required(name, what string) (string, error) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf(
			"unable to get %s from env variable %s: %w",
			what,
			name,
			ErrEnvVariableNotSet,
		)
	}

	return val, nil
}

func optional(name, fallback string) string {
	if val, ok := os.LookupEnv(name); ok && val != "" {
		return val
	}

	return fallback
}
