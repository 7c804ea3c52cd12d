package config

import "time"

type Polling struct {
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"5s"`
	RetryAttempts   int           `env:"RETRY_ATTEMPTS" envDefault:"2"`
	RetryDelay      time.Duration `env:"RETRY_DELAY" envDefault:"1s"`
}

type HTTP struct {
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	FanoutLimit    int           `env:"FANOUT_LIMIT" envDefault:"8"`
}
