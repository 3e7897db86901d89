package config

import "time"

type Provider struct {
	BaseURL      string        `env:"PROVIDER_BASE_URL,notEmpty"`
	FetchTimeout time.Duration `env:"PROVIDER_FETCH_TIMEOUT" envDefault:"10s"`
}
