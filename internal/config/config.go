package config

import (
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const Prefix = "PIPELINE_MONITOR_"

type Config struct {
	APIBaseURL          string `env:"API_BASE_URL,expand"`
	FileDownloadBaseURL string `env:"FILE_DOWNLOAD_BASE_URL,expand"`
	ConverterBaseURL    string `env:"CONVERTER_BASE_URL,expand"`
	StateDir            string `env:"STATE_DIR,expand"`
	MetricsAddr         string `env:"METRICS_ADDR"`

	Polling Polling `envPrefix:"POLLING_"`
	HTTP    HTTP    `envPrefix:"HTTP_"`
	Logger  Logger  `envPrefix:"LOGGER_"`
	S3      S3      `envPrefix:"S3_"`
}

// EffectiveFileDownloadBaseURL falls back to the API base when no file
// base is configured.
func (c Config) EffectiveFileDownloadBaseURL() string {
	if v := strings.TrimSpace(c.FileDownloadBaseURL); v != "" {
		return v
	}
	return strings.TrimSpace(c.APIBaseURL)
}

// Parse loads dotEnvFiles (missing files are ignored, set variables are
// kept) and then reads the PIPELINE_MONITOR_ environment.
func Parse(dotEnvFiles ...string) (*Config, error) {
	if len(dotEnvFiles) == 0 {
		dotEnvFiles = []string{".env"}
	}
	for _, p := range dotEnvFiles {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return nil, errors.Wrapf(err, "load %s", p)
		}
	}

	conf, err := env.ParseAsWithOptions[Config](env.Options{
		Prefix: Prefix,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &conf, nil
}
