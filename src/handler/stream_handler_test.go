package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentorchestrator/src/model"
)

func TestStreamSessionHandler(t *testing.T) {
	api := newTestAPI(t, nil)
	api.router.Get("/sessions/{id}/stream", StreamSessionHandler(api.manager, 10*time.Millisecond))
	s := api.create(t)

	srv := httptest.NewServer(api.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + s.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first model.TradingSession
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, s.ID, first.ID)
	assert.Nil(t, first.LastTickAt)

	require.NoError(t, api.manager.Tick(context.Background(), s.ID))

	var ticked model.TradingSession
	require.NoError(t, conn.ReadJSON(&ticked))
	assert.NotNil(t, ticked.LastTickAt)
	assert.Len(t, ticked.Decisions, 1)

	_, err = api.manager.StopSession(s.ID)
	require.NoError(t, err)

	var stopped model.TradingSession
	require.NoError(t, conn.ReadJSON(&stopped))
	assert.Equal(t, model.SessionStopped, stopped.Status)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStreamSessionHandlerUnknownSession(t *testing.T) {
	api := newTestAPI(t, nil)
	api.router.Get("/sessions/{id}/stream", StreamSessionHandler(api.manager, 10*time.Millisecond))

	rr := api.do("GET", "/sessions/nope/stream", "")
	assert.Equal(t, 404, rr.Code)
}

func TestChangedDetectsTicks(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Second)
	base := &model.TradingSession{Status: model.SessionRunning, LastTickAt: &now}

	assert.True(t, changed(nil, base))
	assert.False(t, changed(base, &model.TradingSession{Status: model.SessionRunning, LastTickAt: &now}))
	assert.True(t, changed(base, &model.TradingSession{Status: model.SessionRunning, LastTickAt: &later}))
	assert.True(t, changed(base, &model.TradingSession{Status: model.SessionPaused, LastTickAt: &now}))
	assert.True(t, changed(base, &model.TradingSession{Status: model.SessionRunning, LastTickAt: &now, LastTickError: "stale"}))
}
