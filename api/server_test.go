package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/wricardo/evacuation-drill/drill/config"
	"github.com/wricardo/evacuation-drill/drill/engine"
	"github.com/wricardo/evacuation-drill/drill/session"
	"github.com/wricardo/evacuation-drill/transport/websocket"
)

// MockConfigLister implements ConfigLister for testing
type MockConfigLister struct {
	ListConfigsFunc func() ([]*config.ConfigInfo, error)
}

func (m *MockConfigLister) ListConfigs() ([]*config.ConfigInfo, error) {
	if m.ListConfigsFunc != nil {
		return m.ListConfigsFunc()
	}
	return []*config.ConfigInfo{}, nil
}

type testEnv struct {
	room     *engine.Room
	sessions *session.Manager
	config   *config.DrillConfig
	server   *Server
}

func setupTestServer(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Width = 3
	cfg.Height = 2
	cfg.MaxPerCell = 2

	room, err := engine.NewRoom(cfg.Room(), engine.NewDoorMover(cfg.Width, cfg.Height, cfg.Door))
	if err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}
	sessions := session.NewManager()

	return &testEnv{
		room:     room,
		sessions: sessions,
		config:   cfg,
		server:   NewServer(room, sessions, cfg, nil, opts...),
	}
}

// seat puts an occupant in the room and registers a matching session
func (e *testEnv) seat(t *testing.T, name string, pos engine.Position) session.Info {
	t.Helper()
	e.room.Enter(engine.NewOccupant(name, pos))
	info := e.sessions.Create("127.0.0.1:1", "active")
	if err := e.sessions.Update(info.ID, func(i *session.Info) {
		i.Name = name
		i.Pos = pos
		i.Entered = true
	}); err != nil {
		t.Fatalf("Failed to update session: %v", err)
	}
	got, _ := e.sessions.Get(info.ID)
	return got
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	env := setupTestServer(t)
	w := env.get(t, "/api/health")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %s", ct)
	}
}

func TestHandleRoom(t *testing.T) {
	env := setupTestServer(t)
	env.seat(t, "ana", engine.Position{Row: 1, Col: 2})
	env.seat(t, "ben", engine.Position{Row: 1, Col: 2})

	w := env.get(t, "/api/room")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Width         int            `json:"width"`
		Height        int            `json:"height"`
		Grid          [][]int        `json:"grid"`
		OccupantCount int            `json:"occupant_count"`
		FreeRescuers  int            `json:"free_rescuers"`
		Seated        int            `json:"seated"`
		States        map[string]int `json:"states"`
	}
	decode(t, w, &resp)

	if resp.Width != 3 || resp.Height != 2 {
		t.Errorf("Expected 3x2 room, got %dx%d", resp.Width, resp.Height)
	}
	if resp.Grid[1][2] != 2 {
		t.Errorf("Expected 2 occupants at (1,2), got %d", resp.Grid[1][2])
	}
	if resp.OccupantCount != 2 || resp.Seated != 2 {
		t.Errorf("Expected 2 occupants, got count=%d seated=%d", resp.OccupantCount, resp.Seated)
	}
	if resp.FreeRescuers != config.DefaultRescuers {
		t.Errorf("Expected %d free rescuers, got %d", config.DefaultRescuers, resp.FreeRescuers)
	}
	if resp.States["active"] != 2 {
		t.Errorf("Expected 2 active sessions, got %v", resp.States)
	}
}

func TestHandleCell(t *testing.T) {
	env := setupTestServer(t)
	env.seat(t, "ana", engine.Position{Row: 0, Col: 1})
	env.seat(t, "ben", engine.Position{Row: 0, Col: 1})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		check      func(t *testing.T, c CellResponse)
	}{
		{
			name:       "full cell",
			path:       "/api/room/cells/0/1",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, c CellResponse) {
				if c.Count != 2 || !c.Full {
					t.Errorf("Expected a full cell with 2, got %+v", c)
				}
				if len(c.Occupants) != 2 {
					t.Errorf("Expected 2 named occupants, got %v", c.Occupants)
				}
				if c.Door {
					t.Error("(0,1) is not the door")
				}
			},
		},
		{
			name:       "door cell",
			path:       "/api/room/cells/0/0",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, c CellResponse) {
				if !c.Door || c.Count != 0 || c.Full {
					t.Errorf("Expected an empty door cell, got %+v", c)
				}
			},
		},
		{
			name:       "outside the room",
			path:       "/api/room/cells/5/0",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "not a number",
			path:       "/api/room/cells/a/0",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.get(t, tt.path)
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.check != nil {
				var c CellResponse
				decode(t, w, &c)
				tt.check(t, c)
			}
		})
	}
}

func TestHandleListOccupants(t *testing.T) {
	env := setupTestServer(t)
	first := env.seat(t, "ana", engine.Position{Row: 0, Col: 0})
	time.Sleep(2 * time.Millisecond)
	second := env.seat(t, "ben", engine.Position{Row: 1, Col: 1})
	env.sessions.Update(second.ID, func(i *session.Info) { i.State = "exiting" })

	type listResponse struct {
		Count     int            `json:"count"`
		Total     int            `json:"total"`
		Occupants []session.Info `json:"occupants"`
	}

	tests := []struct {
		name    string
		query   string
		wantIDs []string
		total   int
	}{
		{"all in connect order", "", []string{first.ID, second.ID}, 2},
		{"newest first", "?order=desc", []string{second.ID, first.ID}, 2},
		{"filter by state", "?state=exiting", []string{second.ID}, 1},
		{"limit", "?limit=1", []string{first.ID}, 2},
		{"bad limit ignored", "?limit=zero", []string{first.ID, second.ID}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.get(t, "/api/occupants"+tt.query)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			var resp listResponse
			decode(t, w, &resp)

			if resp.Total != tt.total {
				t.Errorf("Expected total %d, got %d", tt.total, resp.Total)
			}
			if resp.Count != len(tt.wantIDs) {
				t.Fatalf("Expected %d occupants, got %d", len(tt.wantIDs), resp.Count)
			}
			for i, id := range tt.wantIDs {
				if resp.Occupants[i].ID != id {
					t.Errorf("Occupant %d: expected %s, got %s", i, id, resp.Occupants[i].ID)
				}
			}
		})
	}
}

func TestHandleGetOccupant(t *testing.T) {
	env := setupTestServer(t)
	info := env.seat(t, "ana", engine.Position{Row: 1, Col: 0})

	w := env.get(t, "/api/occupants/"+info.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var got session.Info
	decode(t, w, &got)
	if got.Name != "ana" || got.Pos != (engine.Position{Row: 1, Col: 0}) {
		t.Errorf("Unexpected occupant: %+v", got)
	}

	w = env.get(t, "/api/occupants/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	var errResp map[string]string
	decode(t, w, &errResp)
	if errResp["error"] == "" {
		t.Error("Expected an error message")
	}
}

func TestHandleConfig(t *testing.T) {
	env := setupTestServer(t)

	w := env.get(t, "/api/config")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var got config.DrillConfig
	decode(t, w, &got)
	if got.Width != 3 || got.Height != 2 || got.MaxPerCell != 2 {
		t.Errorf("Unexpected config: %+v", got)
	}
}

func TestHandleListConfigs(t *testing.T) {
	t.Run("no manager", func(t *testing.T) {
		env := setupTestServer(t)
		w := env.get(t, "/api/configs")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("with manager", func(t *testing.T) {
		lister := &MockConfigLister{
			ListConfigsFunc: func() ([]*config.ConfigInfo, error) {
				return []*config.ConfigInfo{{ConfigID: "gym", Name: "Gym", Width: 20, Height: 30}}, nil
			},
		}
		env := setupTestServer(t, WithConfigs(lister))
		w := env.get(t, "/api/configs")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var resp struct {
			Configs []config.ConfigInfo `json:"configs"`
			Count   int                 `json:"count"`
		}
		decode(t, w, &resp)
		if resp.Count != 1 || resp.Configs[0].ConfigID != "gym" {
			t.Errorf("Unexpected configs: %+v", resp)
		}
	})

	t.Run("manager error", func(t *testing.T) {
		lister := &MockConfigLister{
			ListConfigsFunc: func() ([]*config.ConfigInfo, error) {
				return nil, errors.New("disk on fire")
			},
		}
		env := setupTestServer(t, WithConfigs(lister))
		w := env.get(t, "/api/configs")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", w.Code)
		}
	})
}

func TestMethodNotAllowed(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{"POST", "/api/room"},
		{"DELETE", "/api/occupants/abc"},
		{"PUT", "/api/room/cells/0/0"},
		{"POST", "/api/configs"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}"))
			w := httptest.NewRecorder()
			env.server.ServeHTTP(w, req)

			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("Expected status 405, got %d", w.Code)
			}
		})
	}

	// Unknown paths are still 404
	w := env.get(t, "/api/nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for an unknown path, got %d", w.Code)
	}
}

func TestWebSocketEndpoint(t *testing.T) {
	t.Run("disabled without hub", func(t *testing.T) {
		env := setupTestServer(t)
		w := env.get(t, "/ws")
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		hub := websocket.NewHub(nil, nil)
		env := setupTestServer(t, WithHub(hub))
		w := env.get(t, "/ws?session=missing")
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("upgrade", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		env := setupTestServer(t)
		hub := websocket.NewHub(env.room, nil)
		go hub.Run(ctx)
		env.server = NewServer(env.room, env.sessions, env.config, nil, WithHub(hub))

		server := httptest.NewServer(env.server)
		defer server.Close()

		wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
		conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("Failed to connect to WebSocket: %v", err)
		}
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(time.Second))
		var msg websocket.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Failed to read initial message: %v", err)
		}
		if msg.Room == nil || msg.Room.Width != 3 {
			t.Errorf("Expected the room snapshot, got %+v", msg)
		}
	})
}
