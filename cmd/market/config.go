package market

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Quote            string `envconfig:"REFERENCE_QUOTE" default:"USDT"`
	ReferenceEnabled bool   `envconfig:"REFERENCE_ENABLED" default:"true"`
	ReferenceURL     string `envconfig:"REFERENCE_BASE_URL" default:""`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
