package events

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Brokers empty disables publishing.
	Brokers        []string `envconfig:"KAFKA_BROKERS"`
	DecisionsTopic string   `envconfig:"KAFKA_DECISIONS_TOPIC" default:"orchestrator.decisions"`
	TradesTopic    string   `envconfig:"KAFKA_TRADES_TOPIC" default:"orchestrator.trades"`
	ClientID       string   `envconfig:"KAFKA_CLIENT_ID" default:"agentorchestrator"`
}

func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
