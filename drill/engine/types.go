package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Direction is a single-step movement request from an occupant
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Directions lists every direction in the order bots try them
var Directions = []Direction{Up, Down, Left, Right}

// Response is the code relayed to a peer after each protocol step
type Response string

const (
	OK       Response = "OK"
	Occupied Response = "OCCUPIED"
	Free     Response = "FREE"
)

const (
	// Validation constants
	MinGridSize   = 1
	MaxGridSize   = 100
	MinPerCell    = 1
	MaxRescuers   = 1024
	MaxNameLength = 64
)

var (
	ErrInvalidRoom      = errors.New("invalid room")
	ErrInvalidDirection = errors.New("invalid direction")
)

// ParseDirection accepts a direction name in any letter case
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return d, nil
}

// Valid reports whether d is one of the four known directions
func (d Direction) Valid() bool {
	switch d {
	case Up, Down, Left, Right:
		return true
	}
	return false
}

// Valid reports whether r is a known response code
func (r Response) Valid() bool {
	switch r {
	case OK, Occupied, Free:
		return true
	}
	return false
}

// Position is a (row, col) grid coordinate
type Position struct {
	Row int `json:"row" yaml:"row"`
	Col int `json:"col" yaml:"col"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d)", p.Row, p.Col)
}

// Occupant is the per-connection drill state. It is owned by exactly one
// connection handler; Room operations mutate it only on that handler's behalf.
type Occupant struct {
	Name    string   `json:"name"`
	Pos     Position `json:"pos"`
	Exited  bool     `json:"exited"`
	HasMask bool     `json:"has_mask"`
}

// NewOccupant creates an occupant seated at pos
func NewOccupant(name string, pos Position) *Occupant {
	return &Occupant{Name: name, Pos: pos}
}

// Snapshot is a point-in-time copy of the room's counters. The grid, the
// occupant count and the rescuer pool are read under separate locks, so the
// three parts agree with each other only when no handler is mid-operation.
type Snapshot struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	MaxPerCell    int     `json:"max_per_cell"`
	Grid          [][]int `json:"grid"`
	OccupantCount int     `json:"occupant_count"`
	Rescuers      int     `json:"rescuers"`
	FreeRescuers  int     `json:"free_rescuers"`
}

// Seated sums the grid cells
func (s *Snapshot) Seated() int {
	total := 0
	for _, row := range s.Grid {
		for _, n := range row {
			total += n
		}
	}
	return total
}
