package handler

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/evacuation-drill/drill/codec"
	"github.com/wricardo/evacuation-drill/drill/engine"
	"github.com/wricardo/evacuation-drill/drill/session"
	"go.uber.org/zap/zaptest"
)

// countingRoom wraps a real room and counts Enter/Leave calls
type countingRoom struct {
	*engine.Room
	mu     sync.Mutex
	enters int
	leaves int
}

func (r *countingRoom) Enter(o *engine.Occupant) {
	r.mu.Lock()
	r.enters++
	r.mu.Unlock()
	r.Room.Enter(o)
}

func (r *countingRoom) Leave(o *engine.Occupant) {
	r.mu.Lock()
	r.leaves++
	r.mu.Unlock()
	r.Room.Leave(o)
}

func (r *countingRoom) calls() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enters, r.leaves
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	room     *countingRoom
	sessions *session.Manager
	events   *recordingPublisher
	handler  *Handler
}

func newFixture(t *testing.T, width, height, maxPerCell, rescuers int, opts ...engine.RoomOption) *fixture {
	t.Helper()
	room, err := engine.NewRoom(engine.RoomConfig{
		Width:      width,
		Height:     height,
		MaxPerCell: maxPerCell,
		Rescuers:   rescuers,
	}, engine.NewDoorMover(width, height, engine.Position{Row: 0, Col: 0}), opts...)
	require.NoError(t, err)

	f := &fixture{
		room:     &countingRoom{Room: room},
		sessions: session.NewManager(),
		events:   &recordingPublisher{},
	}
	f.handler, err = New(f.room, codec.JSON, zaptest.NewLogger(t).Sugar(),
		WithRegistry(f.sessions), WithPublisher(f.events))
	require.NoError(t, err)
	return f
}

// connect starts a handler goroutine and returns the peer's codec plus a
// channel closed when the handler returns
func (f *fixture) connect(t *testing.T) (*codec.Conn, net.Conn, <-chan struct{}) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.handler.Handle(serverSide)
	}()
	client, err := codec.New(codec.JSON, clientSide)
	require.NoError(t, err)
	t.Cleanup(func() { clientSide.Close() })
	return client, clientSide, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not finish")
	}
}

func TestNew(t *testing.T) {
	room, err := engine.NewRoom(engine.RoomConfig{Width: 1, Height: 1, MaxPerCell: 1, Rescuers: 1},
		engine.NewDoorMover(1, 1, engine.Position{}))
	require.NoError(t, err)

	_, err = New(nil, codec.JSON, nil)
	assert.ErrorIs(t, err, engine.ErrInvalidRoom)

	_, err = New(room, codec.Format("xml"), nil)
	assert.ErrorIs(t, err, codec.ErrUnknownFormat)

	h, err := New(room, codec.Msgpack, nil)
	require.NoError(t, err)
	assert.NotNil(t, h.logger)
}

func TestHandle_DisconnectBeforeEntry(t *testing.T) {
	f := newFixture(t, 3, 3, 1, 1)
	_, clientSide, done := f.connect(t)

	clientSide.Close()
	waitDone(t, done)

	enters, leaves := f.room.calls()
	assert.Equal(t, 0, enters)
	assert.Equal(t, 0, leaves)
	assert.Equal(t, 0, f.room.OccupantCount())
	assert.Equal(t, 0, f.sessions.Count())
	assert.Equal(t, []string{EventConnected, EventDisconnected}, f.events.types())
}

func TestHandle_IdentityOutsideRoom(t *testing.T) {
	f := newFixture(t, 3, 3, 1, 1)
	client, _, done := f.connect(t)

	require.NoError(t, client.SendIdentity(codec.Identity{Name: "lost", Pos: engine.Position{Row: 3, Col: 0}}))
	waitDone(t, done)

	enters, _ := f.room.calls()
	assert.Equal(t, 0, enters)
	assert.Equal(t, 0, f.room.OccupantCount())
}

func TestHandle_ExitAndFree(t *testing.T) {
	f := newFixture(t, 3, 3, 1, 1)
	client, _, done := f.connect(t)

	require.NoError(t, client.SendIdentity(codec.Identity{Name: "ana", Pos: engine.Position{Row: 0, Col: 1}}))

	require.NoError(t, client.SendDirection(engine.Left))
	code, err := client.ReceiveResponse()
	require.NoError(t, err)
	assert.Equal(t, engine.OK, code)

	require.NoError(t, client.SendDirection(engine.Up))
	code, err = client.ReceiveResponse()
	require.NoError(t, err)
	assert.Equal(t, engine.OK, code)

	code, err = client.ReceiveResponse()
	require.NoError(t, err)
	assert.Equal(t, engine.Free, code)

	waitDone(t, done)

	enters, leaves := f.room.calls()
	assert.Equal(t, 1, enters)
	assert.Equal(t, 1, leaves)
	assert.Equal(t, 0, f.room.OccupantCount())
	assert.Equal(t, 0, f.room.Snapshot().Seated())
	assert.Equal(t, 1, f.room.FreeRescuers())
	assert.Equal(t, 0, f.sessions.Count())
	assert.Equal(t, []string{
		EventConnected, EventEntered, EventMoved, EventExited, EventMasked, EventFreed, EventDisconnected,
	}, f.events.types())
}

func TestHandle_OccupiedResponse(t *testing.T) {
	f := newFixture(t, 3, 3, 1, 1)

	b, _, _ := f.connect(t)
	require.NoError(t, b.SendIdentity(codec.Identity{Name: "b", Pos: engine.Position{Row: 0, Col: 1}}))

	a, _, _ := f.connect(t)
	require.NoError(t, a.SendIdentity(codec.Identity{Name: "a", Pos: engine.Position{Row: 0, Col: 0}}))

	// Wait until both are seated
	require.Eventually(t, func() bool { return f.room.OccupantCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.SendDirection(engine.Right))
	code, err := a.ReceiveResponse()
	require.NoError(t, err)
	assert.Equal(t, engine.Occupied, code)

	assert.Equal(t, 1, f.room.CellCount(engine.Position{Row: 0, Col: 0}))
	assert.Equal(t, 1, f.room.CellCount(engine.Position{Row: 0, Col: 1}))

	var aInfo session.Info
	for _, info := range f.sessions.List() {
		if info.Name == "a" {
			aInfo = info
		}
	}
	require.Eventually(t, func() bool {
		got, err := f.sessions.Get(aInfo.ID)
		return err == nil && got.Denied == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, engine.Position{Row: 0, Col: 0}, aInfo.Pos)
}

func TestHandle_DisconnectWhileActive(t *testing.T) {
	f := newFixture(t, 3, 3, 1, 1)
	client, clientSide, done := f.connect(t)

	require.NoError(t, client.SendIdentity(codec.Identity{Name: "ana", Pos: engine.Position{Row: 1, Col: 1}}))
	require.NoError(t, client.SendDirection(engine.Down))
	_, err := client.ReceiveResponse()
	require.NoError(t, err)

	clientSide.Close()
	waitDone(t, done)

	enters, leaves := f.room.calls()
	assert.Equal(t, 1, enters)
	assert.Equal(t, 1, leaves)
	assert.Equal(t, 0, f.room.OccupantCount())
}

func TestHandle_MalformedDirection(t *testing.T) {
	f := newFixture(t, 3, 3, 1, 1)
	serverSide, clientSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.handler.Handle(serverSide)
	}()
	defer clientSide.Close()

	_, err := clientSide.Write([]byte(`{"type":"identity","name":"ana","row":2,"col":2}` + "\n"))
	require.NoError(t, err)
	_, err = clientSide.Write([]byte(`{"type":"move","direction":"diagonal"}` + "\n"))
	require.NoError(t, err)

	waitDone(t, done)

	enters, leaves := f.room.calls()
	assert.Equal(t, 1, enters)
	assert.Equal(t, 1, leaves)
}

func TestHandle_ConcurrentEvacuation(t *testing.T) {
	const occupants = 9
	f := newFixture(t, 3, 3, 1, 2, engine.WithMaskHook(func(*engine.Occupant) {
		time.Sleep(time.Millisecond)
	}))

	var wg sync.WaitGroup
	errs := make(chan error, occupants)
	for i := 0; i < occupants; i++ {
		client, _, _ := f.connect(t)
		start := engine.Position{Row: i / 3, Col: i % 3}
		wg.Add(1)
		go func(name string, client *codec.Conn, pos engine.Position) {
			defer wg.Done()
			errs <- walkOut(client, name, pos)
		}(fmt.Sprintf("o%d", i), client, start)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	require.Eventually(t, func() bool { return f.sessions.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.room.OccupantCount())
	assert.Equal(t, 0, f.room.Snapshot().Seated())
	assert.Equal(t, 2, f.room.FreeRescuers())
}

// walkOut heads for the door at (0,0), retrying blocked steps, and waits for FREE
func walkOut(c *codec.Conn, name string, pos engine.Position) error {
	if err := c.SendIdentity(codec.Identity{Name: name, Pos: pos}); err != nil {
		return err
	}
	door := engine.Position{}
	for attempts := 0; attempts < 10000; attempts++ {
		dir := engine.Up
		if dirs := engine.TowardDoor(pos, door); len(dirs) > 0 {
			dir = dirs[attempts%len(dirs)]
		}
		if err := c.SendDirection(dir); err != nil {
			return err
		}
		code, err := c.ReceiveResponse()
		if err != nil {
			return err
		}
		if code != engine.OK {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		if pos == door {
			code, err := c.ReceiveResponse()
			if err != nil {
				return err
			}
			if code != engine.Free {
				return fmt.Errorf("%s: expected FREE, got %s", name, code)
			}
			return nil
		}
		pos = engine.Step(pos, dir)
	}
	return fmt.Errorf("%s never got out", name)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_identity", AwaitingIdentity.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "exiting", Exiting.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "unknown", State(42).String())
}
