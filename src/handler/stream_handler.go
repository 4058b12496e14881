package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"agentorchestrator/src/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const streamWriteWait = 5 * time.Second

// changed reports whether a snapshot is worth pushing again.
func changed(prev, next *model.TradingSession) bool {
	if prev == nil {
		return true
	}
	if prev.Status != next.Status || prev.LastTickError != next.LastTickError {
		return true
	}
	switch {
	case prev.LastTickAt == nil:
		return next.LastTickAt != nil
	case next.LastTickAt == nil:
		return true
	default:
		return !prev.LastTickAt.Equal(*next.LastTickAt)
	}
}

// StreamSessionHandler pushes a snapshot over a websocket whenever the
// session ticks or changes status. The stream ends once the session stops.
func StreamSessionHandler(svc sessionService, poll time.Duration) http.HandlerFunc {
	if poll <= 0 {
		poll = time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := svc.GetSession(id); err != nil {
			writeError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithError(err).Warn("websocket upgrade failed")
			return
		}
		defer conn.Close()

		log := logger.WithField("session_id", id)

		// drain client frames so close messages are noticed
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(poll)
		defer ticker.Stop()

		var last *model.TradingSession
		for {
			s, err := svc.GetSession(id)
			if err != nil {
				log.WithError(err).Warn("stream session vanished")
				return
			}
			if changed(last, s) {
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteJSON(s); err != nil {
					log.WithError(err).Debug("stream client gone")
					return
				}
				last = s
			}
			if s.Status == model.SessionStopped {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session stopped"),
					time.Now().Add(streamWriteWait))
				return
			}

			select {
			case <-r.Context().Done():
				return
			case <-closed:
				return
			case <-ticker.C:
			}
		}
	}
}
