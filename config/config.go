package config

import "time"

// Defaults shared by every Config implementation
const (
	DefaultWeightDSN       = "sqlite://mymed-weight.db"
	DefaultLogLevel        = "info"
	DefaultTriggerInterval = 30 * time.Second
	DefaultSnoozeMinutes   = 10
	DefaultMetricsAddr     = ":9090"
)

// Config for application setup
type Config interface {
	BadgerPath() (string, error)
	PushoverAPIToken() (string, error)
	TelegramToken() (string, error)
	JWTSecret() (string, error)
	WeightDSN() string
	LogLevel() string
	TriggerInterval() time.Duration
	SnoozeMinutes() int
	GateOnSchedule() bool
	MetricsAddr() string
	// SessionToken signed by user login, empty when commands should prompt
	SessionToken() string
}
