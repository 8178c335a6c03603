// Package server provides the HTTP server for the causes daemon: a REST API
// over the document store plus SSE and WebSocket collection streams.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/internal/daemon/store"
	"github.com/grovetools/causes/pkg/daemon"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	maxDocumentBytes = 1 << 20
	writeTimeout     = 10 * time.Second
	pongTimeout      = 60 * time.Second
)

// RunningConfig holds the active daemon settings. It is exposed via the
// /api/config endpoint so clients can verify what config is active.
type RunningConfig struct {
	Addr         string    `json:"addr"`
	DBPath       string    `json:"db_path,omitempty"`
	SeedDir      string    `json:"seed_dir,omitempty"`
	AuthRequired bool      `json:"auth_required"`
	StartedAt    time.Time `json:"started_at"`
}

// Server serves the daemon API.
type Server struct {
	logger        *logrus.Entry
	store         *store.Store
	server        *http.Server
	token         string
	heartbeat     time.Duration
	upgrader      websocket.Upgrader
	runningConfig *RunningConfig
}

// New creates a new Server instance backed by st.
func New(st *store.Store, logger *logrus.Entry) *Server {
	return &Server{
		logger:    logger,
		store:     st,
		heartbeat: 15 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// SetToken requires every API request to carry "Authorization: Bearer
// <token>". An empty token disables authentication.
func (s *Server) SetToken(token string) {
	s.token = token
}

// SetHeartbeat sets the interval of SSE keep-alive comments and WebSocket
// pings.
func (s *Server) SetHeartbeat(d time.Duration) {
	if d > 0 {
		s.heartbeat = d
	}
}

// SetRunningConfig sets the running configuration for the server.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.runningConfig = cfg
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET "+daemon.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/config", s.authorized(s.handleGetConfig))
	mux.HandleFunc("GET /api/collections", s.authorized(s.handleListCollections))
	mux.HandleFunc("GET /api/collections/{name}", s.authorized(s.handleGetCollection))
	mux.HandleFunc("PUT /api/collections/{name}", s.authorized(s.handleReplaceCollection))
	mux.HandleFunc("GET /api/collections/{name}/stream", s.authorized(s.handleStream))
	mux.HandleFunc("GET /api/collections/{name}/ws", s.authorized(s.handleWebSocket))
	mux.HandleFunc("GET /api/collections/{name}/documents/{id}", s.authorized(s.handleGetDocument))
	mux.HandleFunc("PUT /api/collections/{name}/documents/{id}", s.authorized(s.handlePutDocument))
	mux.HandleFunc("DELETE /api/collections/{name}/documents/{id}", s.authorized(s.handleDeleteDocument))

	return h2c.NewHandler(mux, &http2.Server{})
}

// ListenAndServe starts the daemon on addr: either "unix://<path>" or a TCP
// host:port. It blocks until the server stops or fails.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := Listen(addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithField("addr", l.Addr().String()).Info("Daemon listening")
	err := s.server.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Listen opens the listener for addr. Unix sockets replace a stale socket
// file and are restricted to the owner.
func Listen(addr string) (net.Listener, error) {
	socketPath, ok := strings.CutPrefix(addr, "unix://")
	if !ok {
		return net.Listen("tcp", addr)
	}

	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}
	return listener, nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || got == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="causes"`)
			writeError(w, http.StatusUnauthorized, errors.PermissionDenied(r.PathValue("name"), fmt.Errorf("missing bearer token")))
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			writeError(w, http.StatusForbidden, errors.PermissionDenied(r.PathValue("name"), fmt.Errorf("invalid token")))
			return
		}
		next(w, r)
	}
}

// handleGetConfig returns the running configuration as JSON.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.runningConfig == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.runningConfig)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	infos := s.store.Collections()
	out := make([]daemon.CollectionInfo, len(infos))
	for i, info := range infos {
		out[i] = daemon.CollectionInfo{Name: info.Name, Seq: info.Seq, Count: info.Count}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotFrame(s.store.Snapshot(r.PathValue("name")), ""))
}

func (s *Server) handleReplaceCollection(w http.ResponseWriter, r *http.Request) {
	var docs []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*maxDocumentBytes)).Decode(&docs); err != nil {
		writeError(w, http.StatusBadRequest, errors.MalformedRecord("", err))
		return
	}
	u, err := s.store.Replace(r.PathValue("name"), docs)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotFrame(u, ""))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	name, id := r.PathValue("name"), r.PathValue("id")
	doc, ok := s.store.Get(name, id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.NotFound("document", id))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, errors.MalformedRecord(r.PathValue("id"), err))
		return
	}
	u, err := s.store.Put(r.PathValue("name"), r.PathValue("id"), body)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.logger.WithFields(logrus.Fields{"collection": u.Collection, "id": r.PathValue("id"), "seq": u.Seq}).Debug("Document stored")
	writeJSON(w, http.StatusOK, snapshotFrame(u, ""))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.Delete(r.PathValue("name"), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotFrame(u, ""))
}

// handleStream provides Server-Sent Events (SSE) for one collection. The
// current snapshot is sent first, then a full snapshot after every change.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Ensure the connection supports flushing
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	name := r.PathValue("name")

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe before reading the snapshot so no change is missed.
	ch := s.store.Subscribe(name)
	defer s.store.Unsubscribe(ch)

	fmt.Fprintf(w, ": connected\n\n")
	initial := s.store.Snapshot(name)
	if err := writeEvent(w, snapshotFrame(initial, "")); err != nil {
		s.logger.WithError(err).Error("Failed to marshal snapshot")
		return
	}
	flusher.Flush()
	sent := initial.Seq

	log := s.logger.WithField("collection", name)
	log.Debug("SSE client connected")

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("SSE client disconnected")
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case u, ok := <-ch:
			if !ok {
				return
			}
			if u.Seq <= sent {
				continue
			}
			if err := writeEvent(w, snapshotFrame(u, "")); err != nil {
				log.WithError(err).Error("Failed to marshal update")
				continue
			}
			flusher.Flush()
			sent = u.Seq
		}
	}
}

// writeEvent writes one SSE event: "data: {json}\n\n".
func writeEvent(w io.Writer, frame daemon.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// handleWebSocket streams the same snapshots as handleStream over a
// WebSocket, one JSON frame per text message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	defer ws.Close()

	log := s.logger.WithField("collection", name)
	ch := s.store.Subscribe(name)
	defer s.store.Unsubscribe(ch)

	// Reads only serve control frames and close detection.
	closed := make(chan struct{})
	ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(frame daemon.Frame) error {
		ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		return ws.WriteJSON(frame)
	}

	initial := s.store.Snapshot(name)
	if err := send(snapshotFrame(initial, daemon.FrameSnapshot)); err != nil {
		return
	}
	sent := initial.Seq
	log.Debug("WebSocket client connected")

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			log.Debug("WebSocket client disconnected")
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case u, ok := <-ch:
			if !ok {
				return
			}
			if u.Seq <= sent {
				continue
			}
			if err := send(snapshotFrame(u, daemon.FrameSnapshot)); err != nil {
				log.WithError(err).Debug("WebSocket write failed")
				return
			}
			sent = u.Seq
		}
	}
}

func snapshotFrame(u store.Update, frameType string) daemon.Frame {
	return daemon.Frame{
		Type:       frameType,
		Collection: u.Collection,
		Seq:        u.Seq,
		Documents:  u.Documents,
	}
}

func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeMalformedRecord, errors.ErrCodeInvalidQuery:
		return http.StatusBadRequest
	case errors.ErrCodeDuplicateID:
		return http.StatusConflict
	case errors.ErrCodePermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, daemon.NewErrorFrame(err))
}
