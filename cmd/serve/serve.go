package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"agentorchestrator/src/app"
	"agentorchestrator/src/server"
)

type Serve struct {
	Offline bool
	// Capital overrides SESSION_DEFAULT_CAPITAL when positive.
	Capital float64
}

// Start serves the control API until SIGINT or SIGTERM. With
// SESSION_AUTO_START a session is created and auto-updated right away.
func (s *Serve) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	a, err := app.Build(ctx, app.Options{Offline: s.Offline})
	if err != nil {
		logrus.WithError(err).Error("Failed to build orchestrator")
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close event publisher")
		}
	}()
	defer a.Manager.StopAutoUpdate()

	capital := a.Session.DefaultCapital
	if s.Capital > 0 {
		capital = s.Capital
	}

	if a.Session.AutoStart {
		sess, err := a.Manager.CreateSession(ctx, capital)
		if err != nil {
			logrus.WithError(err).Error("Failed to create startup session")
			return err
		}
		if err := a.Manager.StartAutoUpdate(sess.ID, a.Session.AutoUpdateInterval); err != nil {
			logrus.WithError(err).Error("Failed to start auto-update")
			return err
		}
	}

	cfg := server.GetConfig()
	router := server.NewRouter(server.Routes{
		Manager:            a.Manager,
		Store:              a.Store,
		DefaultCapital:     capital,
		DefaultInterval:    a.Session.AutoUpdateInterval,
		StreamPollInterval: cfg.StreamPollInterval,
	})

	logrus.WithFields(logrus.Fields{
		"port": cfg.Port,
		"live": a.Gateway.IsLive(),
	}).Info("Starting session control API")

	return server.StartServer(ctx, cfg.Port, router, cfg.ShutdownTimeout)
}
