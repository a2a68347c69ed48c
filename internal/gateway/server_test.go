package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohr-michael/agentrt/internal/channel"
	"github.com/dohr-michael/agentrt/internal/entity"
	"github.com/dohr-michael/agentrt/internal/governance"
	"github.com/dohr-michael/agentrt/internal/llm"
	"github.com/dohr-michael/agentrt/internal/storage"
	"github.com/dohr-michael/agentrt/internal/workflow"
)

type fakeProvider struct{}

func (fakeProvider) Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResult, error) {
	return llm.GenerateResult{Text: "ack", Parts: []llm.Part{{Type: llm.TextPart, Text: "ack"}}, FinishReason: "stop"}, nil
}

type fakeProfiles struct{}

func (fakeProfiles) Resolve(ctx context.Context, agentID string) (workflow.AgentProfile, error) {
	return workflow.AgentProfile{SystemPrompt: "be helpful"}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pool := entity.NewPool(db)
	t.Cleanup(pool.Stop)

	gov := governance.New(db, db)
	runner := workflow.NewRunner(db, db, db, gov, fakeProvider{}, fakeProfiles{}, nil)
	facade := channel.NewFacade(pool, db, db, db, runner)
	return NewServer(facade, "localhost", 0)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "personal-agent", body["service"])
}

func TestHandleCreateChannel_Succeeds(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"channelType":"CLI","agentId":"agent:1"}`)
	req := httptest.NewRequest(http.MethodPost, "/channels/chan:1/create", body)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]bool
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp["ok"])
}

func TestHandleCreateChannel_RejectsMissingFields(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/channels/chan:1/create", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSendMessage_StreamsSSEFrames(t *testing.T) {
	srv := newTestServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/channels/chan:1/create", strings.NewReader(`{"channelType":"CLI","agentId":"agent:1"}`))
	createW := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(createW, createReq)
	require.Equal(t, http.StatusOK, createW.Code)

	msgReq := httptest.NewRequest(http.MethodPost, "/channels/chan:1/messages", strings.NewReader(`{"content":"hello"}`))
	msgW := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(msgW, msgReq)

	require.Equal(t, http.StatusOK, msgW.Code)
	assert.Equal(t, "text/event-stream", msgW.Header().Get("Content-Type"))

	body := msgW.Body.String()
	assert.Contains(t, body, "event: turn.started")
	assert.Contains(t, body, "event: turn.completed")
	assert.Contains(t, body, "id: 1")
}

func TestHandleSendMessage_UnknownChannelReturns404(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/channels/missing/messages", strings.NewReader(`{"content":"hi"}`))
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHistory_ReturnsTurnsAfterMessage(t *testing.T) {
	srv := newTestServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/channels/chan:1/create", strings.NewReader(`{"channelType":"CLI","agentId":"agent:1"}`))
	createW := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(createW, createReq)
	require.Equal(t, http.StatusOK, createW.Code)

	msgReq := httptest.NewRequest(http.MethodPost, "/channels/chan:1/messages", strings.NewReader(`{"content":"hello"}`))
	msgW := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(msgW, msgReq)
	require.Equal(t, http.StatusOK, msgW.Code)

	histReq := httptest.NewRequest(http.MethodPost, "/channels/chan:1/history", nil)
	histW := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(histW, histReq)

	require.Equal(t, http.StatusOK, histW.Code)
	var turns []storage.TurnRecord
	require.NoError(t, json.NewDecoder(histW.Body).Decode(&turns))
	assert.Len(t, turns, 2)
}

func TestHandleHistory_UnknownChannelReturns404(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/channels/missing/history", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
