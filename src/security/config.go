package security

import (
	"encoding/base64"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ExchangeCRKey is a base64 encoded 32 byte key used to open sealed
	// exchange credentials.
	ExchangeCRKey string `envconfig:"EXCHANGE_CREDENTIALS_KEY"`
}

// Key decodes ExchangeCRKey.
func (c Config) Key() ([]byte, error) {
	if c.ExchangeCRKey == "" {
		return nil, ErrNoKey
	}
	key, err := base64.StdEncoding.DecodeString(c.ExchangeCRKey)
	if err != nil {
		return nil, fmt.Errorf("decode EXCHANGE_CREDENTIALS_KEY: %w", err)
	}
	return key, nil
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
