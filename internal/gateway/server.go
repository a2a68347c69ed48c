// Package gateway is the HTTP surface spec.md §6 describes: channel
// lifecycle, message streaming over SSE, and turn history, served by a
// chi router the way the teacher's gateway server was built.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/agentrt/internal/channel"
	"github.com/dohr-michael/agentrt/internal/entity"
	"github.com/dohr-michael/agentrt/internal/storage"
)

// Server is the personal-agent runtime's HTTP server.
type Server struct {
	httpServer *http.Server
	channels   *channel.Facade
	host       string
	port       int
}

// NewServer creates a Server wired to the channel facade.
func NewServer(channels *channel.Facade, host string, port int) *Server {
	s := &Server{channels: channels, host: host, port: port}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", s.handleHealth)
	r.Post("/channels/{channelId}/create", s.handleCreateChannel)
	r.Post("/channels/{channelId}/messages", s.handleSendMessage)
	r.Post("/channels/{channelId}/history", s.handleHistory)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}
	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "personal-agent"})
}

type createChannelRequest struct {
	ChannelType string `json:"channelType"`
	AgentID     string `json:"agentId"`
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")

	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if req.AgentID == "" || (req.ChannelType != string(storage.ChannelCLI) && req.ChannelType != string(storage.ChannelHTTP)) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agentId and channelType (CLI|HTTP) are required"})
		return
	}

	if err := s.channels.CreateChannel(r.Context(), channelID, storage.ChannelType(req.ChannelType), req.AgentID); err != nil {
		slog.Error("gateway: create channel", "channel_id", channelID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	stream, err := s.channels.SendMessage(r.Context(), channelID, req.Content)
	if err != nil {
		var notFound *storage.ChannelNotFound
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, canFlush := w.(http.Flusher)
	for ev := range stream {
		writeSSEFrame(w, ev)
		if canFlush {
			flusher.Flush()
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, ev entity.Event) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", ev.Name, ev.Sequence, data)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")

	turns, err := s.channels.GetHistory(r.Context(), channelID)
	if err != nil {
		var notFound *storage.ChannelNotFound
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
