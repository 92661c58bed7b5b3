package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/obby/fs-coalescer/internal/hub"
	"github.com/obby/fs-coalescer/internal/log"
	"github.com/obby/fs-coalescer/internal/watcher"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// HTTPServer streams flushed batches to browsers over SSE and WebSocket
type HTTPServer struct {
	hub      *hub.Hub
	buffer   *watcher.EventBuffer
	mux      *http.ServeMux
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(h *hub.Hub, buffer *watcher.EventBuffer, port int) *HTTPServer {
	mux := http.NewServeMux()
	s := &HTTPServer{
		hub:    h,
		buffer: buffer,
		mux:    mux,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: log.NewModuleLogger("server", "http"),
	}

	// Register routes
	mux.HandleFunc("GET /sse", s.handleSSE)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /queue", s.handleQueue)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s
}

// Handler returns the server's routes
func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

// handleSSE handles a Server-Sent Events connection
func (s *HTTPServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	kinds, err := kindsFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	client := s.subscribe(kinds)
	defer s.hub.Unregister(client)

	s.logger.Info("New SSE connection", "client_id", client.ID, "kinds", kinds)

	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", client.ID)
	flusher.Flush()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("Error marshaling batch", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: batch\ndata: %s\n\n", msg.Seq, data)
			flusher.Flush()

		case <-pingTicker.C:
			fmt.Fprintf(w, "event: ping\ndata: %s\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()

		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "client_id", client.ID)
			return
		}
	}
}

// handleWebSocket streams batches as JSON text frames
func (s *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	kinds, err := kindsFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := s.subscribe(kinds)
	defer s.hub.Unregister(client)

	s.logger.Info("New WebSocket connection", "client_id", client.ID, "kinds", kinds)

	// The read loop only notices the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Warn("WebSocket read error", "client_id", client.ID, "error", err)
				}
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Warn("Error writing batch", "client_id", client.ID, "error", err)
				return
			}

		case <-pingTicker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			s.logger.Info("WebSocket client disconnected", "client_id", client.ID)
			return
		}
	}
}

// handleQueue returns the pending, not yet flushed events
func (s *HTTPServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, EventBatch{
		Events:    s.buffer.Snapshot(),
		Timestamp: time.Now().Unix(),
	})
}

// handleHealth provides health check endpoint
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"clients":   s.hub.ClientCount(),
		"pending":   s.buffer.Len(),
	})
}

func (s *HTTPServer) subscribe(kinds []string) *hub.Client {
	client := s.hub.NewClient()
	for _, kind := range kinds {
		client.Subscribe(kind)
	}
	s.hub.Register(client)
	return client
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// kindsFromRequest reads ?kinds=created,renamed, falling back to ?topics=
func kindsFromRequest(r *http.Request) ([]string, error) {
	param := r.URL.Query().Get("kinds")
	if param == "" {
		param = r.URL.Query().Get("topics")
	}
	if param == "" {
		return []string{hub.AllTopics}, nil
	}

	var names []string
	for _, name := range strings.Split(param, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return parseKinds(names)
}

// Start serves until Stop. A clean shutdown returns nil.
func (s *HTTPServer) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server gracefully
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
