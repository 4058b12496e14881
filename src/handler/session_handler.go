package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"agentorchestrator/src/connectors"
	"agentorchestrator/src/model"
	"agentorchestrator/src/risk"
	"agentorchestrator/src/session"
)

// sessionService is the slice of *session.Manager the control surface drives.
type sessionService interface {
	CreateSession(ctx context.Context, totalCapital float64) (*model.TradingSession, error)
	GetSession(id string) (*model.TradingSession, error)
	GetAllSessions() []*model.TradingSession
	Tick(ctx context.Context, id string) error
	StartAutoUpdate(id string, interval time.Duration) error
	StopAutoUpdate()
	AutoUpdateSession() (string, bool)
	PauseSession(id string) (*model.TradingSession, error)
	ResumeSession(id string) (*model.TradingSession, error)
	StopSession(id string) (*model.TradingSession, error)
	RiskReport(id string) (risk.Report, error)
}

// decisionLister reads the persisted verdict log.
type decisionLister interface {
	ListCEODecisions(ctx context.Context, sessionID string, limit int) ([]model.CEODecision, error)
}

type createSessionPayload struct {
	TotalCapital *float64 `json:"totalCapital"`
}

type autoUpdatePayload struct {
	IntervalMs int64 `json:"intervalMs"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
	case errors.Is(err, session.ErrTickInProgress), errors.Is(err, session.ErrSessionStopped):
		http.Error(w, err.Error(), http.StatusConflict)
	case connectors.IsGatewayError(err):
		http.Error(w, session.StaleDataMessage, http.StatusBadGateway)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "tick canceled", http.StatusServiceUnavailable)
	default:
		logger.WithError(err).Error("session request failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// CreateSessionHandler starts a session. A missing totalCapital falls back to defaultCapital.
func CreateSessionHandler(svc sessionService, defaultCapital float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createSessionPayload
		if r.ContentLength != 0 {
			decoder := json.NewDecoder(r.Body)
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(&payload); err != nil {
				logger.WithError(err).Warn("invalid create session payload")
				http.Error(w, "Invalid payload", http.StatusBadRequest)
				return
			}
		}

		capital := defaultCapital
		if payload.TotalCapital != nil {
			capital = *payload.TotalCapital
		}
		if capital <= 0 {
			http.Error(w, "totalCapital must be positive", http.StatusBadRequest)
			return
		}

		s, err := svc.CreateSession(r.Context(), capital)
		if err != nil {
			logger.WithError(err).Warn("failed to create session")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, s)
	}
}

func ListSessionsHandler(svc sessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.GetAllSessions())
	}
}

func GetSessionHandler(svc sessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.GetSession(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// TickHandler runs one cycle synchronously and returns the resulting snapshot.
func TickHandler(svc sessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := svc.Tick(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		s, err := svc.GetSession(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// StartAutoUpdateHandler replaces any running loop. intervalMs defaults to defaultInterval.
func StartAutoUpdateHandler(svc sessionService, defaultInterval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload autoUpdatePayload
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				http.Error(w, "Invalid payload", http.StatusBadRequest)
				return
			}
		}

		interval := defaultInterval
		if payload.IntervalMs != 0 {
			interval = time.Duration(payload.IntervalMs) * time.Millisecond
		}
		if interval <= 0 {
			http.Error(w, "intervalMs must be positive", http.StatusBadRequest)
			return
		}

		id := chi.URLParam(r, "id")
		if err := svc.StartAutoUpdate(id, interval); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"sessionId":  id,
			"intervalMs": interval.Milliseconds(),
		})
	}
}

// StopAutoUpdateHandler halts the loop when it drives this session.
func StopAutoUpdateHandler(svc sessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := svc.GetSession(id); err != nil {
			writeError(w, err)
			return
		}
		if current, ok := svc.AutoUpdateSession(); ok && current == id {
			svc.StopAutoUpdate()
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// LifecycleHandler wraps pause, resume and stop.
func LifecycleHandler(op func(id string) (*model.TradingSession, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := op(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func RiskReportHandler(svc sessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.RiskReport(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// DecisionsHandler serves the verdict log, from the store when one is
// configured and from the in-memory session otherwise.
func DecisionsHandler(svc sessionService, store decisionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		limit := 0
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		s, err := svc.GetSession(id)
		if err != nil {
			writeError(w, err)
			return
		}

		if store == nil {
			decisions := s.Decisions
			if limit > 0 && len(decisions) > limit {
				decisions = decisions[:limit]
			}
			writeJSON(w, http.StatusOK, decisions)
			return
		}

		decisions, err := store.ListCEODecisions(r.Context(), id, limit)
		if err != nil {
			logger.WithError(err).WithField("session_id", id).Error("failed to list verdicts")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, decisions)
	}
}
