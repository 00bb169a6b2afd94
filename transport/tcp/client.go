package tcp

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/wricardo/evacuation-drill/drill/codec"
	"github.com/wricardo/evacuation-drill/drill/engine"
)

// ErrUnexpectedResponse is returned when the server answers out of protocol
var ErrUnexpectedResponse = errors.New("unexpected response")

// Client plays one occupant against a drill server
type Client struct {
	conn  net.Conn
	codec codec.ClientCodec
}

// Dial connects to a drill server speaking format
func Dial(addr string, format codec.Format, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return NewClient(conn, format)
}

// NewClient wraps an established connection
func NewClient(conn net.Conn, format codec.Format) (*Client, error) {
	wire, err := codec.New(format, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{conn: conn, codec: wire}, nil
}

// Identify sends the occupant's name and start position
func (c *Client) Identify(name string, pos engine.Position) error {
	return c.codec.SendIdentity(codec.Identity{Name: name, Pos: pos})
}

// Move requests one step and reports whether the server allowed it
func (c *Client) Move(dir engine.Direction) (bool, error) {
	if err := c.codec.SendDirection(dir); err != nil {
		return false, err
	}
	code, err := c.codec.ReceiveResponse()
	if err != nil {
		return false, err
	}
	switch code {
	case engine.OK:
		return true, nil
	case engine.Occupied:
		return false, nil
	}
	return false, fmt.Errorf("%w: %s after move", ErrUnexpectedResponse, code)
}

// AwaitFree blocks until the server reports the occupant is free. Call it
// after the move that stepped through the door.
func (c *Client) AwaitFree() error {
	code, err := c.codec.ReceiveResponse()
	if err != nil {
		return err
	}
	if code != engine.Free {
		return fmt.Errorf("%w: %s while waiting for FREE", ErrUnexpectedResponse, code)
	}
	return nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}
