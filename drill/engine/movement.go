package engine

// Mover maps a position and a direction to the candidate position of a
// single step, and reports whether that step leaves the room through an exit.
// The room never interprets the geometry itself.
type Mover interface {
	Next(from Position, dir Direction) (to Position, exits bool)
}

// MoverFunc adapts a plain function to the Mover interface
type MoverFunc func(from Position, dir Direction) (Position, bool)

// Next calls f
func (f MoverFunc) Next(from Position, dir Direction) (Position, bool) {
	return f(from, dir)
}

// Step returns the neighbour of from in the given direction. Unknown
// directions return from unchanged.
func Step(from Position, dir Direction) Position {
	to := from
	switch dir {
	case Up:
		to.Row--
	case Down:
		to.Row++
	case Left:
		to.Col--
	case Right:
		to.Col++
	}
	return to
}

// DoorMover is a room with a single door on its boundary. A step that would
// leave the grid starting from the door cell is an exit; a step off the grid
// anywhere else is just an out-of-bounds candidate.
type DoorMover struct {
	Width  int
	Height int
	Door   Position
}

// NewDoorMover creates a mover for a width x height room with the given door cell
func NewDoorMover(width, height int, door Position) *DoorMover {
	return &DoorMover{Width: width, Height: height, Door: door}
}

// Next implements Mover
func (m *DoorMover) Next(from Position, dir Direction) (Position, bool) {
	to := Step(from, dir)
	if to == from {
		return from, false
	}
	if m.inBounds(to) {
		return to, false
	}
	return to, from == m.Door
}

// ExitDirections returns the directions that step out of the room from the door
func (m *DoorMover) ExitDirections() []Direction {
	var dirs []Direction
	for _, d := range Directions {
		if !m.inBounds(Step(m.Door, d)) {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// OnBoundary reports whether p lies on the outer ring of the grid
func OnBoundary(width, height int, p Position) bool {
	return p.Row == 0 || p.Col == 0 || p.Row == height-1 || p.Col == width-1
}

func (m *DoorMover) inBounds(p Position) bool {
	return p.Row >= 0 && p.Col >= 0 && p.Row < m.Height && p.Col < m.Width
}

// ManhattanDistance calculates the Manhattan distance between two positions
func ManhattanDistance(from, to Position) int {
	dr := from.Row - to.Row
	if dr < 0 {
		dr = -dr
	}
	dc := from.Col - to.Col
	if dc < 0 {
		dc = -dc
	}
	return dr + dc
}

// TowardDoor returns the directions that reduce the distance from p to the
// door, rows first
func TowardDoor(p, door Position) []Direction {
	var dirs []Direction
	switch {
	case p.Row > door.Row:
		dirs = append(dirs, Up)
	case p.Row < door.Row:
		dirs = append(dirs, Down)
	}
	switch {
	case p.Col > door.Col:
		dirs = append(dirs, Left)
	case p.Col < door.Col:
		dirs = append(dirs, Right)
	}
	return dirs
}
