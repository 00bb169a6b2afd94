package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/wricardo/evacuation-drill/drill/config"
	"github.com/wricardo/evacuation-drill/drill/engine"
	"github.com/wricardo/evacuation-drill/drill/session"
	"github.com/wricardo/evacuation-drill/transport/websocket"
	"go.uber.org/zap"
)

// RoomView is the read side of the shared room
type RoomView interface {
	Snapshot() *engine.Snapshot
	CellCount(p engine.Position) int
	InBounds(p engine.Position) bool
}

// SessionView is the read side of the session registry
type SessionView interface {
	List() []session.Info
	Get(id string) (session.Info, error)
	CountByState() map[string]int
}

// ConfigLister lists scenario files
type ConfigLister interface {
	ListConfigs() ([]*config.ConfigInfo, error)
}

// Server represents the read-only monitor API
type Server struct {
	room     RoomView
	sessions SessionView
	config   *config.DrillConfig
	configs  ConfigLister
	hub      *websocket.Hub
	router   *mux.Router
	logger   *zap.SugaredLogger
}

// Option configures optional monitor features
type Option func(*Server)

// WithHub mounts the websocket watcher endpoint at /ws
func WithHub(hub *websocket.Hub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithConfigs exposes the scenario files known to the config manager
func WithConfigs(configs ConfigLister) Option {
	return func(s *Server) { s.configs = configs }
}

// NewServer creates a new monitor server
func NewServer(room RoomView, sessions SessionView, cfg *config.DrillConfig, logger *zap.SugaredLogger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		room:     room,
		sessions: sessions,
		config:   cfg,
		router:   mux.NewRouter(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Routes live on the root router so a method mismatch answers 405
	s.router.HandleFunc("/api/health", s.handleHealth).Methods("GET")

	// Room
	s.router.HandleFunc("/api/room", s.handleRoom).Methods("GET")
	s.router.HandleFunc("/api/room/cells/{row:[0-9]+}/{col:[0-9]+}", s.handleCell).Methods("GET")

	// Occupants
	s.router.HandleFunc("/api/occupants", s.handleListOccupants).Methods("GET")
	s.router.HandleFunc("/api/occupants/{id}", s.handleGetOccupant).Methods("GET")

	// Configuration
	s.router.HandleFunc("/api/config", s.handleConfig).Methods("GET")
	s.router.HandleFunc("/api/configs", s.handleListConfigs).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// RoomResponse is the body of GET /api/room
type RoomResponse struct {
	*engine.Snapshot
	Door   engine.Position `json:"door"`
	Seated int             `json:"seated"`
	States map[string]int  `json:"states"`
}

// CellResponse is the body of GET /api/room/cells/{row}/{col}
type CellResponse struct {
	Pos        engine.Position `json:"pos"`
	Count      int             `json:"count"`
	MaxPerCell int             `json:"max_per_cell"`
	Full       bool            `json:"full"`
	Door       bool            `json:"door"`
	Occupants  []string        `json:"occupants"`
}

// Room Handlers

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	snap := s.room.Snapshot()
	respondJSON(w, http.StatusOK, RoomResponse{
		Snapshot: snap,
		Door:     s.config.Door,
		Seated:   snap.Seated(),
		States:   s.sessions.CountByState(),
	})
}

func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	row, errRow := strconv.Atoi(vars["row"])
	col, errCol := strconv.Atoi(vars["col"])
	if errRow != nil || errCol != nil {
		respondError(w, http.StatusBadRequest, "row and col must be integers")
		return
	}

	pos := engine.Position{Row: row, Col: col}
	if !s.room.InBounds(pos) {
		respondError(w, http.StatusNotFound, "cell "+pos.String()+" is outside the room")
		return
	}

	// Names come from the registry, so they may lag the grid by one step
	names := []string{}
	for _, info := range s.sessions.List() {
		if info.Entered && !info.Exited && info.Pos == pos {
			names = append(names, info.Name)
		}
	}

	count := s.room.CellCount(pos)
	respondJSON(w, http.StatusOK, CellResponse{
		Pos:        pos,
		Count:      count,
		MaxPerCell: s.config.MaxPerCell,
		Full:       count >= s.config.MaxPerCell,
		Door:       pos == s.config.Door,
		Occupants:  names,
	})
}

// Occupant Handlers

func (s *Server) handleListOccupants(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List()

	query := r.URL.Query()
	state := query.Get("state")
	order := query.Get("order") // "asc" (default), "desc"
	limitStr := query.Get("limit")

	if state != "" {
		filtered := make([]session.Info, 0, len(sessions))
		for _, info := range sessions {
			if info.State == state {
				filtered = append(filtered, info)
			}
		}
		sessions = filtered
	}

	if order == "" {
		order = "asc"
	}
	if order == "desc" {
		sort.SliceStable(sessions, func(i, j int) bool {
			return sessions[i].ConnectedAt.After(sessions[j].ConnectedAt)
		})
	}

	total := len(sessions)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(sessions),
		"total":     total,
		"occupants": sessions,
		"order":     order,
	})
}

func (s *Server) handleGetOccupant(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, err := s.sessions.Get(id)
	if errors.Is(err, session.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, info)
}

// Configuration Handlers

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.config)
}

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	if s.configs == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"configs": []*config.ConfigInfo{},
			"count":   0,
		})
		return
	}

	configs, err := s.configs.ListConfigs()
	if err != nil {
		s.logger.Warnw("Failed to list configs", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"configs": configs,
		"count":   len(configs),
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusNotFound, "live updates are disabled")
		return
	}

	topic := r.URL.Query().Get("session")
	if topic != websocket.AllSessions {
		if _, err := s.sessions.Get(topic); err != nil {
			http.Error(w, "Invalid session", http.StatusNotFound)
			return
		}
	}

	s.hub.ServeWS(w, r, topic)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
