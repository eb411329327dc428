// Package server exposes the HTTP surface: the WebSocket upgrade
// endpoint, health check, Prometheus metrics, and message history.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Rishab-Kumar09/ChatGenius/internal/auth"
	"github.com/Rishab-Kumar09/ChatGenius/internal/store"
)

// Server bundles the hub with its HTTP handlers and collaborators.
type Server struct {
	cfg      Config
	hub      *Hub
	auth     *auth.Service
	store    store.Store
	metrics  *Metrics
	upgrader websocket.Upgrader
}

// NewServer wires a hub, auth service, and store into an HTTP-facing
// server. Call StartHub before serving traffic.
func NewServer(cfg Config, st store.Store, authSvc *auth.Service) *Server {
	metrics := NewMetrics()
	origins := newOriginPolicy(cfg.AllowedOrigins)

	return &Server{
		cfg:     cfg,
		hub:     NewHub(cfg, st, metrics),
		auth:    authSvc,
		store:   st,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// Hub returns the server's hub for lifecycle coordination.
func (s *Server) Hub() *Hub { return s.hub }

// StartHub launches the hub's event loop.
func (s *Server) StartHub() {
	go s.hub.Run()
	log.Println("Hub started and ready to manage WebSocket connections")
}

// handleWebSocket authenticates the handshake, upgrades the connection,
// and hands it to the hub. Identity failures reject before the upgrade.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.Identify(r)
	if err != nil {
		log.Printf("Rejected WebSocket handshake from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, userID)
	s.hub.Register(client)
}

// handleHealth is a plain-text liveness endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ChatGenius hub is running!\n"))
}

// handleHistory serves recent messages for one conversation from the
// durable store. The hub keeps no authoritative history of its own.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "conversation key required", http.StatusBadRequest)
		return
	}

	var channelID, dmID string
	if rest, ok := strings.CutPrefix(key, "dm:"); ok {
		dmID = rest
	} else {
		channelID = key
	}

	limit := s.cfg.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed < limit {
			limit = parsed
		}
	}

	messages, err := s.store.Recent(r.Context(), channelID, dmID, limit)
	if err != nil {
		log.Printf("History query for %q failed: %v", key, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(messages); err != nil {
		log.Printf("Error writing history response: %v", err)
	}
}
