package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"agentorchestrator/src/handler"
	"agentorchestrator/src/repository"
	"agentorchestrator/src/session"
)

// Routes wires the control surface. Store may be nil when persistence is off.
type Routes struct {
	Manager            *session.Manager
	Store              *repository.DecisionRepository
	DefaultCapital     float64
	DefaultInterval    time.Duration
	StreamPollInterval time.Duration
}

func NewRouter(routes Routes) chi.Router {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	svc := routes.Manager
	r.Group(func(r chi.Router) {
		r.Post("/sessions", handler.CreateSessionHandler(svc, routes.DefaultCapital))
		r.Get("/sessions", handler.ListSessionsHandler(svc))

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", handler.GetSessionHandler(svc))
			r.Post("/tick", handler.TickHandler(svc))
			r.Post("/auto-update", handler.StartAutoUpdateHandler(svc, routes.DefaultInterval))
			r.Delete("/auto-update", handler.StopAutoUpdateHandler(svc))
			r.Post("/pause", handler.LifecycleHandler(svc.PauseSession))
			r.Post("/resume", handler.LifecycleHandler(svc.ResumeSession))
			r.Post("/stop", handler.LifecycleHandler(svc.StopSession))
			r.Get("/risk", handler.RiskReportHandler(svc))
			r.Get("/stream", handler.StreamSessionHandler(svc, routes.StreamPollInterval))

			// keep a nil store a nil interface
			if routes.Store != nil {
				r.Get("/decisions", handler.DecisionsHandler(svc, routes.Store))
			} else {
				r.Get("/decisions", handler.DecisionsHandler(svc, nil))
			}
		})
	})

	return r
}

// StartServer serves until ctx is canceled, then shuts down gracefully.
func StartServer(ctx context.Context, port string, h http.Handler, shutdownTimeout time.Duration) error {
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server crashed")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
