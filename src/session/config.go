package session

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DefaultCapital     float64       `envconfig:"SESSION_DEFAULT_CAPITAL" default:"10000"`
	AutoUpdateInterval time.Duration `envconfig:"SESSION_TICK_INTERVAL" default:"30s"`
	AutoStart          bool          `envconfig:"SESSION_AUTO_START" default:"false"`
	TrailLookback      int           `envconfig:"SESSION_TRAIL_LOOKBACK" default:"20"`
	TrailInterval      string        `envconfig:"SESSION_TRAIL_INTERVAL" default:"1m"`
	RosterFile         string        `envconfig:"SESSION_ROSTER_FILE"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
