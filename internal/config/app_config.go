package config

import (
	"time"
)

type AppConfig struct {
	Port           int           `yaml:"port" env:"APP_PORT" env-default:"8080"`
	DefaultTimeout time.Duration `yaml:"default_timeout" env-default:"5s"`
	LogLevel       string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs     bool          `yaml:"pretty_logs" env-default:"false"`
}
