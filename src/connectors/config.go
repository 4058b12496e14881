package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AsterAPIKey     string        `envconfig:"ASTER_API_KEY"`
	AsterAPISecret  string        `envconfig:"ASTER_API_SECRET"`
	AsterBaseURL    string        `envconfig:"ASTER_BASE_URL" default:"https://fapi.asterdex.com"`
	RecvWindow      int64         `envconfig:"ASTER_RECV_WINDOW" default:"5000"`
	RatePerSecond   float64       `envconfig:"ASTER_RATE_PER_SECOND" default:"10"`
	RequestTimeout  time.Duration `envconfig:"ASTER_REQUEST_TIMEOUT" default:"15s"`
	Symbols         []string      `envconfig:"MARKET_SYMBOLS" default:"BTCUSDT,ETHUSDT,SOLUSDT,BNBUSDT"`
	FixtureBalance  float64       `envconfig:"FIXTURE_BALANCE" default:"100000"`
	ForceFixture    bool          `envconfig:"FORCE_FIXTURE" default:"false"`
	EnrichFunding   bool          `envconfig:"ASTER_ENRICH_FUNDING" default:"true"`
	EnrichOpenInter bool          `envconfig:"ASTER_ENRICH_OPEN_INTEREST" default:"false"`
}

// HasCredentials reports whether the live client can sign requests.
func (c Config) HasCredentials() bool {
	return c.AsterAPIKey != "" && c.AsterAPISecret != ""
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
