package config

import (
	"fmt"
	"time"

	"github.com/wricardo/evacuation-drill/drill/engine"
)

const (
	DefaultWidth       = 10
	DefaultHeight      = 10
	DefaultMaxPerCell  = 1
	DefaultRescuers    = 2
	DefaultPort        = 5555
	DefaultMonitorPort = 8080
	DefaultCodec       = "json"
)

// DrillConfig is the full set of startup parameters for a drill server.
// It is fixed once the server starts.
type DrillConfig struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Width       int             `json:"width" yaml:"width"`
	Height      int             `json:"height" yaml:"height"`
	MaxPerCell  int             `json:"max_per_cell" yaml:"max_per_cell"`
	Rescuers    int             `json:"rescuers" yaml:"rescuers"`
	Door        engine.Position `json:"door" yaml:"door"`

	// MaskDuration keeps a rescuer busy for this long per occupant
	MaskDuration Duration `json:"mask_duration,omitempty" yaml:"mask_duration,omitempty"`

	Host        string `json:"host,omitempty" yaml:"host,omitempty"`
	Port        int    `json:"port" yaml:"port"`
	Codec       string `json:"codec" yaml:"codec"`
	MonitorHost string `json:"monitor_host,omitempty" yaml:"monitor_host,omitempty"`
	MonitorPort int    `json:"monitor_port" yaml:"monitor_port"`
}

// Default returns the built-in drill configuration
func Default() *DrillConfig {
	return &DrillConfig{
		Name:        "default",
		Description: "Default 10x10 classroom with one door in the top-left corner",
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		MaxPerCell:  DefaultMaxPerCell,
		Rescuers:    DefaultRescuers,
		Door:        engine.Position{Row: 0, Col: 0},
		Port:        DefaultPort,
		Codec:       DefaultCodec,
		MonitorPort: DefaultMonitorPort,
	}
}

// Validate checks the configuration for a runnable drill
func (c *DrillConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if err := c.Room().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Door.Row < 0 || c.Door.Col < 0 || c.Door.Row >= c.Height || c.Door.Col >= c.Width {
		return fmt.Errorf("%w: door %v is outside the %dx%d grid", ErrInvalidConfig, c.Door, c.Width, c.Height)
	}
	if !engine.OnBoundary(c.Width, c.Height, c.Door) {
		return fmt.Errorf("%w: door %v must be on the room boundary", ErrInvalidConfig, c.Door)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be between 0 and 65535, got %d", ErrInvalidConfig, c.Port)
	}
	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("%w: monitor_port must be between 0 and 65535, got %d", ErrInvalidConfig, c.MonitorPort)
	}
	switch c.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("%w: codec must be json or msgpack, got %q", ErrInvalidConfig, c.Codec)
	}
	return nil
}

// Room returns the engine-level room parameters
func (c *DrillConfig) Room() engine.RoomConfig {
	return engine.RoomConfig{
		Width:        c.Width,
		Height:       c.Height,
		MaxPerCell:   c.MaxPerCell,
		Rescuers:     c.Rescuers,
		MaskDuration: time.Duration(c.MaskDuration),
	}
}

// Addr returns the drill listen address
func (c *DrillConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MonitorAddr returns the monitor HTTP listen address
func (c *DrillConfig) MonitorAddr() string {
	return fmt.Sprintf("%s:%d", c.MonitorHost, c.MonitorPort)
}

// Clone returns a copy that can be modified independently
func (c *DrillConfig) Clone() *DrillConfig {
	cp := *c
	return &cp
}
