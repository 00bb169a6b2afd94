package handler

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/wricardo/evacuation-drill/drill/codec"
	"github.com/wricardo/evacuation-drill/drill/engine"
	"github.com/wricardo/evacuation-drill/drill/session"
	"go.uber.org/zap"
)

// Option configures a Handler
type Option func(*Handler)

// WithRegistry records every connection's progress in r
func WithRegistry(r Registry) Option {
	return func(h *Handler) {
		h.sessions = r
	}
}

// WithPublisher sends every protocol step to p
func WithPublisher(p Publisher) Option {
	return func(h *Handler) {
		h.events = p
	}
}

// Handler runs the drill protocol for one connection at a time. A single
// Handler is shared by all connections; per-connection state lives on the
// goroutine calling Handle.
type Handler struct {
	room     Room
	format   codec.Format
	sessions Registry
	events   Publisher
	logger   *zap.SugaredLogger
}

// New creates a handler driving room with the given wire format
func New(room Room, format codec.Format, logger *zap.SugaredLogger, opts ...Option) (*Handler, error) {
	if room == nil {
		return nil, fmt.Errorf("%w: room cannot be nil", engine.ErrInvalidRoom)
	}
	if _, err := codec.ParseFormat(string(format)); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	h := &Handler{
		room:     room,
		format:   format,
		sessions: noopRegistry{},
		events:   noopPublisher{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle runs the protocol on conn until the occupant is free or the peer
// goes away, then closes conn. It never returns early for another
// connection's sake; the only wait on other occupants is for a rescuer.
func (h *Handler) Handle(conn net.Conn) {
	c := &connection{
		h:     h,
		conn:  conn,
		state: AwaitingIdentity,
	}

	info := h.sessions.Create(conn.RemoteAddr().String(), c.state.String())
	c.id = info.ID
	c.log = h.logger.With("session", c.id, "remote", info.RemoteAddr)
	c.publish(EventConnected, "", "")

	defer c.close()

	wire, err := codec.New(h.format, conn)
	if err != nil {
		c.log.Errorw("Failed to create codec", "error", err)
		return
	}
	c.codec = wire

	for c.state != Closed {
		switch c.state {
		case AwaitingIdentity:
			c.state = c.awaitIdentity()
		case Active:
			c.state = c.active()
		case Exiting:
			c.state = c.exiting()
		}
		c.sync()
	}
}

// connection is the state owned by one Handle call
type connection struct {
	h        *Handler
	conn     net.Conn
	codec    codec.ServerCodec
	id       string
	log      *zap.SugaredLogger
	state    State
	occupant *engine.Occupant
	left     bool
	moves    int
	denied   int
}

func (c *connection) awaitIdentity() State {
	id, err := c.codec.ReceiveIdentity()
	if err != nil {
		c.logReadError("identity", err)
		return Closed
	}
	if !c.h.room.InBounds(id.Pos) {
		c.log.Warnw("Rejected identity outside the room", "name", id.Name, "pos", id.Pos.String())
		return Closed
	}

	c.occupant = engine.NewOccupant(id.Name, id.Pos)
	c.h.room.Enter(c.occupant)
	c.log = c.log.With("name", id.Name)
	c.log.Infow("Occupant entered", "pos", id.Pos.String())
	c.publish(EventEntered, "", "")
	return Active
}

func (c *connection) active() State {
	dir, err := c.codec.ReceiveDirection()
	if err != nil {
		c.logReadError("direction", err)
		c.leave()
		return Closed
	}

	from := c.occupant.Pos
	allowed := c.h.room.TryMove(c.occupant, dir)
	c.moves++

	code := engine.OK
	event := EventMoved
	switch {
	case !allowed:
		code = engine.Occupied
		event = EventBlocked
		c.denied++
	case c.occupant.Exited:
		event = EventExited
	}
	c.log.Debugw("Move requested", "direction", dir, "from", from.String(), "to", c.occupant.Pos.String(), "code", code)

	if err := c.codec.SendResponse(code); err != nil {
		c.log.Warnw("Failed to send move response", "error", err)
		c.leave()
		return Closed
	}
	c.publish(event, dir, code)

	if c.occupant.Exited {
		c.log.Infow("Occupant left the room, waiting for a rescuer")
		return Exiting
	}
	return Active
}

func (c *connection) exiting() State {
	start := time.Now()
	c.h.room.AcquireMask(c.occupant)
	c.publish(EventMasked, "", "")
	c.leave()

	if err := c.codec.SendResponse(engine.Free); err != nil {
		c.log.Warnw("Failed to send FREE", "error", err)
		return Closed
	}
	c.publish(EventFreed, "", engine.Free)
	c.log.Infow("Occupant is free", "waited", time.Since(start).String())
	return Closed
}

// leave releases the occupant from the room count exactly once
func (c *connection) leave() {
	if c.occupant == nil || c.left {
		return
	}
	c.h.room.Leave(c.occupant)
	c.left = true
}

func (c *connection) close() {
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.log.Debugw("Failed to close connection", "error", err)
	}
	c.publish(EventDisconnected, "", "")
	if err := c.h.sessions.Delete(c.id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		c.log.Warnw("Failed to remove session", "error", err)
	}
}

// sync copies the occupant's state into the session registry
func (c *connection) sync() {
	err := c.h.sessions.Update(c.id, func(i *session.Info) {
		i.State = c.state.String()
		i.Moves = c.moves
		i.Denied = c.denied
		if c.occupant != nil {
			i.Name = c.occupant.Name
			i.Pos = c.occupant.Pos
			i.Entered = true
			i.Exited = c.occupant.Exited
			i.HasMask = c.occupant.HasMask
		}
	})
	if err != nil {
		c.log.Debugw("Failed to update session", "error", err)
	}
}

func (c *connection) publish(eventType string, dir engine.Direction, code engine.Response) {
	event := Event{
		Type:      eventType,
		SessionID: c.id,
		Direction: dir,
		Code:      code,
		Timestamp: time.Now(),
	}
	if c.occupant != nil {
		event.Name = c.occupant.Name
		event.Pos = c.occupant.Pos
	}
	c.h.events.Publish(event)
}

func (c *connection) logReadError(what string, err error) {
	if errors.Is(err, codec.ErrMalformed) {
		c.log.Warnw("Malformed "+what+", closing connection", "state", c.state.String(), "error", err)
		return
	}
	c.log.Infow("Connection closed by peer", "state", c.state.String(), "error", err)
}
