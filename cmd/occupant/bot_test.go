package main

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/evacuation-drill/drill/codec"
	"github.com/wricardo/evacuation-drill/drill/engine"
	"github.com/wricardo/evacuation-drill/drill/handler"
	"github.com/wricardo/evacuation-drill/transport/tcp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func startDrill(t *testing.T, cfg engine.RoomConfig, door engine.Position, format codec.Format) string {
	t.Helper()
	// Handler goroutines can outlive the test, so the server does not log to t
	logger := zap.NewNop().Sugar()

	room, err := engine.NewRoom(cfg, engine.NewDoorMover(cfg.Width, cfg.Height, door))
	require.NoError(t, err)

	h, err := handler.New(room, format, logger)
	require.NoError(t, err)

	srv, err := tcp.Listen("127.0.0.1:0", h, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv.Addr().String()
}

func botConfig(addr string, format codec.Format, width, height int, door engine.Position) BotConfig {
	return BotConfig{
		Addr:        addr,
		Format:      format,
		Width:       width,
		Height:      height,
		Door:        door,
		DialTimeout: time.Second,
		DialRetries: 2,
		RetryMin:    time.Millisecond,
		RetryMax:    10 * time.Millisecond,
		MaxMoves:    1000,
	}
}

func TestRunBots(t *testing.T) {
	tests := []struct {
		name   string
		format codec.Format
		room   engine.RoomConfig
		door   engine.Position
		count  int
	}{
		{
			name:   "corner door json",
			format: codec.JSON,
			room:   engine.RoomConfig{Width: 4, Height: 4, MaxPerCell: 1, Rescuers: 2},
			door:   engine.Position{Row: 0, Col: 0},
			count:  12,
		},
		{
			name:   "side door msgpack",
			format: codec.Msgpack,
			room:   engine.RoomConfig{Width: 5, Height: 3, MaxPerCell: 2, Rescuers: 1},
			door:   engine.Position{Row: 2, Col: 2},
			count:  8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := startDrill(t, tt.room, tt.door, tt.format)
			cfg := botConfig(addr, tt.format, tt.room.Width, tt.room.Height, tt.door)

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()

			results := RunBots(ctx, cfg, tt.count, "bot", 42, zaptest.NewLogger(t).Sugar())
			require.Len(t, results, tt.count)

			for _, r := range results {
				assert.NoError(t, r.Err, r.Name)
				assert.True(t, r.Freed, r.Name)
				assert.GreaterOrEqual(t, r.Moves, engine.ManhattanDistance(r.Start, tt.door)+1, r.Name)
			}

			s := summarize(results, time.Second)
			assert.Equal(t, tt.count, s.Freed)
			assert.Zero(t, s.Failed)
		})
	}
}

func TestRunBots_SharedStart(t *testing.T) {
	room := engine.RoomConfig{Width: 3, Height: 3, MaxPerCell: 1, Rescuers: 1}
	door := engine.Position{Row: 0, Col: 2}
	addr := startDrill(t, room, door, codec.JSON)

	cfg := botConfig(addr, codec.JSON, room.Width, room.Height, door)
	cfg.Start = &engine.Position{Row: 2, Col: 0}

	results := RunBots(context.Background(), cfg, 5, "crowd", 1, zaptest.NewLogger(t).Sugar())
	s := summarize(results, 0)
	assert.Equal(t, 5, s.Freed)
	for _, r := range results {
		assert.Equal(t, *cfg.Start, r.Start)
	}
}

func TestRunBots_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	cfg := botConfig(addr, codec.JSON, 2, 2, engine.Position{})
	cfg.DialTimeout = 100 * time.Millisecond

	results := RunBots(context.Background(), cfg, 2, "lost", 7, zaptest.NewLogger(t).Sugar())
	s := summarize(results, 0)
	assert.Equal(t, 2, s.Failed)
	for _, r := range results {
		assert.Error(t, r.Err)
		assert.Zero(t, r.Moves)
	}
}

func TestRunBots_Cancelled(t *testing.T) {
	// Nobody ever answers, so the bot blocks until the context is cancelled
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()

	cfg := botConfig(ln.Addr().String(), codec.JSON, 2, 2, engine.Position{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	results := RunBots(ctx, cfg, 1, "stuck", 3, zaptest.NewLogger(t).Sugar())
	require.Len(t, results, 1)
	assert.False(t, results[0].Freed)
	assert.Error(t, results[0].Err)
}

func TestNextDirection(t *testing.T) {
	door := engine.Position{Row: 0, Col: 0}
	exits := engine.NewDoorMover(3, 3, door).ExitDirections()

	tests := []struct {
		name   string
		pos    engine.Position
		denied int
		want   engine.Direction
	}{
		{"rows first", engine.Position{Row: 2, Col: 2}, 0, engine.Up},
		{"other axis after a refusal", engine.Position{Row: 2, Col: 2}, 1, engine.Left},
		{"single useful direction", engine.Position{Row: 0, Col: 2}, 3, engine.Left},
		{"out through the door", door, 0, exits[0]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextDirection(tt.pos, door, exits, tt.denied))
		})
	}
}

func TestValidateBotConfig(t *testing.T) {
	valid := botConfig("x", codec.JSON, 3, 3, engine.Position{Row: 0, Col: 1})
	require.NoError(t, validateBotConfig(valid))

	tests := []struct {
		name   string
		mutate func(*BotConfig)
	}{
		{"empty room", func(c *BotConfig) { c.Width = 0 }},
		{"door inside", func(c *BotConfig) { c.Door = engine.Position{Row: 1, Col: 1} }},
		{"door outside", func(c *BotConfig) { c.Door = engine.Position{Row: -1, Col: 0} }},
		{"retry order", func(c *BotConfig) { c.RetryMax = 0 }},
		{"no moves", func(c *BotConfig) { c.MaxMoves = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, validateBotConfig(cfg))
		})
	}
}

func TestSummarize(t *testing.T) {
	results := []Result{
		{Freed: true, Moves: 3, Denied: 1, Elapsed: time.Second},
		{Freed: true, Moves: 5, Elapsed: 3 * time.Second},
		{Err: errors.New("boom"), Moves: 1},
	}
	s := summarize(results, 4*time.Second)
	assert.Equal(t, Summary{Bots: 3, Freed: 2, Failed: 1, Moves: 9, Denied: 1, Slowest: 3 * time.Second, Elapsed: 4 * time.Second}, s)
}
