package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"agentorchestrator/cmd/market"
	"agentorchestrator/cmd/serve"
	"agentorchestrator/cmd/simulate"
	"agentorchestrator/src/app"
	"agentorchestrator/src/connectors"
	"agentorchestrator/src/security"
)

var Version string

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		_, _ = fmt.Fprintln(os.Stderr, "failed to load .env:", err)
	}
	app.SetupLogger()

	cliApp := cli.NewApp()
	cliApp.Name = "orchestrator"
	cliApp.Usage = "Multi-agent perpetuals trading orchestrator"
	cliApp.Version = Version

	cliApp.Commands = []cli.Command{
		serveCMD,
		simulateCMD,
		marketCMD,
		sealSecretCMD,
	}

	if err := cliApp.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serveCMD = cli.Command{
		Name:   "serve",
		Usage:  "run the session control API",
		Action: serveAction,
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "offline", Usage: "force the fixture gateway and offline decisions"},
			cli.Float64Flag{Name: "capital", Usage: "default session capital"},
		},
		Description: `Serve the HTTP control surface until SIGINT/SIGTERM`,
	}
	simulateCMD = cli.Command{
		Name:   "simulate",
		Usage:  "run an offline session for a number of ticks",
		Action: simulateAction,
		Flags: []cli.Flag{
			cli.IntFlag{Name: "ticks", Value: 10, Usage: "number of evaluation cycles"},
			cli.Float64Flag{Name: "capital", Value: 10000, Usage: "session capital"},
		},
		Description: `Run a deterministic session against the fixture gateway`,
	}
	marketCMD = cli.Command{
		Name:      "market",
		Usage:     "print a market snapshot",
		Action:    marketAction,
		ArgsUsage: "[SYMBOL...]",
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "no-reference", Usage: "skip the Binance reference prices"},
		},
		Description: `Fetch one snapshot from the configured gateway`,
	}
	sealSecretCMD = cli.Command{
		Name:        "seal-secret",
		Usage:       "encrypt a credential with EXCHANGE_CREDENTIALS_KEY",
		Action:      sealSecretAction,
		ArgsUsage:   "VALUE",
		Description: `Print an enc: value usable for ASTER_API_SECRET or any LLM API key`,
	}
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveAction(c *cli.Context) error {
	logrus.WithField("cmd", "serve").Info("Starting serve CMD")

	s := &serve.Serve{
		Offline: c.Bool("offline"),
		Capital: c.Float64("capital"),
	}
	if err := s.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func simulateAction(c *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()

	sim := &simulate.Simulation{
		Log:     logrus.WithField("cmd", "simulate"),
		Ticks:   c.Int("ticks"),
		Capital: c.Float64("capital"),
		Out:     os.Stdout,
	}
	if err := sim.Start(ctx); err != nil {
		logrus.WithError(err).Error("Starting simulate cmd")
		return err
	}
	return nil
}

func marketAction(c *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()

	cfg := market.GetConfig()
	if c.Bool("no-reference") {
		cfg.ReferenceEnabled = false
	}

	var symbols []string
	for _, arg := range c.Args() {
		symbols = append(symbols, strings.ToUpper(arg))
	}

	gwCfg, err := app.GatewayConfig()
	if err != nil {
		return err
	}

	m := &market.Market{
		Log:     logrus.WithField("cmd", "market"),
		Gateway: connectors.NewGateway(gwCfg),
		Config:  cfg,
		Out:     os.Stdout,
	}
	return m.Start(ctx, symbols)
}

func sealSecretAction(c *cli.Context) error {
	value := c.Args().First()
	if value == "" {
		return cli.NewExitError("a value argument is required", 2)
	}
	key, err := security.GetConfig().Key()
	if err != nil {
		return err
	}
	sealed, err := security.Seal(key, value)
	if err != nil {
		return err
	}
	fmt.Println(sealed)
	return nil
}
