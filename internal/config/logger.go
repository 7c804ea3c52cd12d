package config

import "log/slog"

type Logger struct {
	Level  slog.Level `env:"LEVEL,expand" envDefault:"warn"`
	Format string     `env:"FORMAT" envDefault:"text"`
}
