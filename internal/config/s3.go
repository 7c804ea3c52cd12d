package config

import "strings"

type S3 struct {
	Endpoint  string `env:"ENDPOINT,expand"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"pipeline-exports"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
	Prefix    string `env:"PREFIX" envDefault:"exports/"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
}

func (s S3) Configured() bool {
	return strings.TrimSpace(s.Endpoint) != "" &&
		strings.TrimSpace(s.AccessKey) != "" &&
		strings.TrimSpace(s.SecretKey) != ""
}
