package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"agentorchestrator/src/model"
)

// autoUpdate tracks the single process-wide auto-update loop.
type autoUpdate struct {
	mu        sync.Mutex
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// StartAutoUpdate ticks the session every interval until stopped. Starting a
// new loop replaces any loop already running.
func (m *Manager) StartAutoUpdate(id string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("auto-update interval must be positive, got %s", interval)
	}
	st, err := m.state(id)
	if err != nil {
		return err
	}
	if st.snapshot.Load().Status == model.SessionStopped {
		return ErrSessionStopped
	}

	m.StopAutoUpdate()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.auto.mu.Lock()
	m.auto.sessionID = id
	m.auto.cancel = cancel
	m.auto.done = done
	m.auto.mu.Unlock()

	go m.runLoop(ctx, id, interval, done)

	m.logger.WithFields(logrus.Fields{
		"session_id": id,
		"interval":   interval.String(),
	}).Info("auto-update started")
	return nil
}

// StopAutoUpdate halts the loop and waits for it to exit.
func (m *Manager) StopAutoUpdate() {
	m.auto.mu.Lock()
	cancel, done := m.auto.cancel, m.auto.done
	m.auto.sessionID = ""
	m.auto.cancel = nil
	m.auto.done = nil
	m.auto.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// AutoUpdateSession reports which session the loop drives, if any.
func (m *Manager) AutoUpdateSession() (string, bool) {
	m.auto.mu.Lock()
	defer m.auto.mu.Unlock()
	return m.auto.sessionID, m.auto.cancel != nil
}

func (m *Manager) stopAutoUpdateFor(id string) {
	if current, ok := m.AutoUpdateSession(); ok && current == id {
		m.StopAutoUpdate()
	}
}

func (m *Manager) runLoop(ctx context.Context, id string, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := m.logger.WithField("session_id", id)

	for {
		select {
		case <-ctx.Done():
			log.Info("auto-update stopped")
			return

		case <-ticker.C:
			err := m.Tick(ctx, id)
			switch {
			case err == nil:
			case errors.Is(err, ErrTickInProgress):
				log.Debug("previous tick still running, skipping")
			case errors.Is(err, ErrSessionNotFound):
				log.WithError(err).Error("auto-update session vanished")
				return
			case errors.Is(err, context.Canceled):
				log.Info("auto-update stopped")
				return
			default:
				log.WithError(err).Warn("auto-update tick failed")
			}

			if s, err := m.GetSession(id); err == nil && s.Status == model.SessionStopped {
				log.Info("session stopped, auto-update exiting")
				return
			}
		}
	}
}
