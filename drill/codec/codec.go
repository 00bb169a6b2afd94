package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/wricardo/evacuation-drill/drill/engine"
)

var (
	ErrMalformed     = errors.New("malformed message")
	ErrUnknownFormat = errors.New("unknown codec format")
)

// Format selects the wire encoding
type Format string

const (
	JSON    Format = "json"
	Msgpack Format = "msgpack"
)

// ParseFormat accepts a format name in any letter case
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case JSON, Msgpack:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Message types
const (
	TypeIdentity = "identity"
	TypeMove     = "move"
	TypeResponse = "response"
)

// Message is the single envelope exchanged in both directions
type Message struct {
	Type      string `json:"type" msgpack:"type"`
	Name      string `json:"name,omitempty" msgpack:"name,omitempty"`
	Row       int    `json:"row" msgpack:"row"`
	Col       int    `json:"col" msgpack:"col"`
	Direction string `json:"direction,omitempty" msgpack:"direction,omitempty"`
	Code      string `json:"code,omitempty" msgpack:"code,omitempty"`
}

// Identity is what an occupant announces when it connects
type Identity struct {
	Name string
	Pos  engine.Position
}

// ServerCodec is the drill server's side of a connection
type ServerCodec interface {
	ReceiveIdentity() (Identity, error)
	ReceiveDirection() (engine.Direction, error)
	SendResponse(code engine.Response) error
}

// ClientCodec is an occupant's side of a connection
type ClientCodec interface {
	SendIdentity(id Identity) error
	SendDirection(dir engine.Direction) error
	ReceiveResponse() (engine.Response, error)
}

type encoder interface {
	Encode(v interface{}) error
}

type decoder interface {
	Decode(v interface{}) error
}

// Conn frames Messages over a byte stream. It implements both ServerCodec
// and ClientCodec and is not safe for concurrent use.
type Conn struct {
	format Format
	enc    encoder
	dec    decoder
}

// New wraps rw with the given format
func New(format Format, rw io.ReadWriter) (*Conn, error) {
	c := &Conn{format: format}
	switch format {
	case JSON:
		c.enc = json.NewEncoder(rw)
		c.dec = json.NewDecoder(rw)
	case Msgpack:
		c.enc = msgpack.NewEncoder(rw)
		c.dec = msgpack.NewDecoder(rw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return c, nil
}

// Format returns the wire encoding in use
func (c *Conn) Format() Format {
	return c.format
}

// ReceiveIdentity reads the identity message that opens a session
func (c *Conn) ReceiveIdentity() (Identity, error) {
	msg, err := c.receive(TypeIdentity)
	if err != nil {
		return Identity{}, err
	}
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		return Identity{}, fmt.Errorf("%w: identity without a name", ErrMalformed)
	}
	if len(name) > engine.MaxNameLength {
		return Identity{}, fmt.Errorf("%w: name longer than %d bytes", ErrMalformed, engine.MaxNameLength)
	}
	return Identity{Name: name, Pos: engine.Position{Row: msg.Row, Col: msg.Col}}, nil
}

// ReceiveDirection reads one movement request
func (c *Conn) ReceiveDirection() (engine.Direction, error) {
	msg, err := c.receive(TypeMove)
	if err != nil {
		return "", err
	}
	dir, err := engine.ParseDirection(msg.Direction)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return dir, nil
}

// SendResponse writes a response code
func (c *Conn) SendResponse(code engine.Response) error {
	return c.send(Message{Type: TypeResponse, Code: string(code)})
}

// SendIdentity writes the identity message
func (c *Conn) SendIdentity(id Identity) error {
	return c.send(Message{Type: TypeIdentity, Name: id.Name, Row: id.Pos.Row, Col: id.Pos.Col})
}

// SendDirection writes one movement request
func (c *Conn) SendDirection(dir engine.Direction) error {
	return c.send(Message{Type: TypeMove, Direction: string(dir)})
}

// ReceiveResponse reads a response code
func (c *Conn) ReceiveResponse() (engine.Response, error) {
	msg, err := c.receive(TypeResponse)
	if err != nil {
		return "", err
	}
	code := engine.Response(msg.Code)
	if !code.Valid() {
		return "", fmt.Errorf("%w: unknown response code %q", ErrMalformed, msg.Code)
	}
	return code, nil
}

func (c *Conn) send(msg Message) error {
	if err := c.enc.Encode(&msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Conn) receive(want string) (Message, error) {
	var msg Message
	if err := c.dec.Decode(&msg); err != nil {
		if isTransportError(err) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type != want {
		return Message{}, fmt.Errorf("%w: expected %s, got %q", ErrMalformed, want, msg.Type)
	}
	return msg, nil
}

// isTransportError separates a dead connection from bad bytes
func isTransportError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
