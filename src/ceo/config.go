package ceo

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RebalanceScoreFloor float64 `envconfig:"REBALANCE_SCORE_FLOOR" default:"0.1"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
