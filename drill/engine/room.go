package engine

import (
	"fmt"
	"sync"
	"time"
)

// RoomConfig holds the fixed dimensions and limits of a room
type RoomConfig struct {
	Width      int
	Height     int
	MaxPerCell int
	Rescuers   int

	// MaskDuration is how long a rescuer slot stays busy per occupant
	MaskDuration time.Duration
}

// Validate checks the limits a room can be built with
func (c RoomConfig) Validate() error {
	if c.Width < MinGridSize || c.Width > MaxGridSize {
		return fmt.Errorf("%w: width must be between %d and %d, got %d", ErrInvalidRoom, MinGridSize, MaxGridSize, c.Width)
	}
	if c.Height < MinGridSize || c.Height > MaxGridSize {
		return fmt.Errorf("%w: height must be between %d and %d, got %d", ErrInvalidRoom, MinGridSize, MaxGridSize, c.Height)
	}
	if c.MaxPerCell < MinPerCell {
		return fmt.Errorf("%w: max per cell must be at least %d, got %d", ErrInvalidRoom, MinPerCell, c.MaxPerCell)
	}
	if c.Rescuers < 1 || c.Rescuers > MaxRescuers {
		return fmt.Errorf("%w: rescuers must be between 1 and %d, got %d", ErrInvalidRoom, MaxRescuers, c.Rescuers)
	}
	if c.MaskDuration < 0 {
		return fmt.Errorf("%w: mask duration cannot be negative", ErrInvalidRoom)
	}
	return nil
}

// RoomOption customizes a Room at construction
type RoomOption func(*Room)

// WithMaskHook registers fn to run while a rescuer slot is held, after the
// occupant has been given its mask
func WithMaskHook(fn func(*Occupant)) RoomOption {
	return func(r *Room) {
		r.maskHook = fn
	}
}

// Room is the shared drill world. The grid, the occupant counter and the
// rescuer pool each have their own lock; no method holds two of them at once.
type Room struct {
	width      int
	height     int
	maxPerCell int
	mover      Mover

	gridMu sync.Mutex
	grid   [][]int

	countMu   sync.Mutex
	occupants int

	rescuers     *RescuerPool
	maskDuration time.Duration
	maskHook     func(*Occupant)
}

// NewRoom creates an empty room with every rescuer slot free
func NewRoom(config RoomConfig, mover Mover, opts ...RoomOption) (*Room, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if mover == nil {
		return nil, fmt.Errorf("%w: mover cannot be nil", ErrInvalidRoom)
	}

	grid := make([][]int, config.Height)
	for i := range grid {
		grid[i] = make([]int, config.Width)
	}

	r := &Room{
		width:        config.Width,
		height:       config.Height,
		maxPerCell:   config.MaxPerCell,
		mover:        mover,
		grid:         grid,
		rescuers:     NewRescuerPool(config.Rescuers),
		maskDuration: config.MaskDuration,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Enter seats the occupant at its starting cell. The per-cell cap is not
// applied to the starting cell.
func (r *Room) Enter(o *Occupant) {
	r.countMu.Lock()
	r.occupants++
	r.countMu.Unlock()

	r.gridMu.Lock()
	r.grid[o.Pos.Row][o.Pos.Col]++
	r.gridMu.Unlock()
}

// TryMove moves the occupant one step if the destination has room, or lets
// it out if the step is an exit. A denied move changes nothing.
func (r *Room) TryMove(o *Occupant, dir Direction) bool {
	if !dir.Valid() {
		return false
	}
	to, exits := r.mover.Next(o.Pos, dir)

	r.gridMu.Lock()
	defer r.gridMu.Unlock()

	allowed := exits || (r.InBounds(to) && r.grid[to.Row][to.Col] < r.maxPerCell)
	if !allowed {
		return false
	}

	r.grid[o.Pos.Row][o.Pos.Col]--
	if exits {
		o.Exited = true
		return true
	}
	r.grid[to.Row][to.Col]++
	o.Pos = to
	return true
}

// Leave removes the occupant from the aggregate count. It must be called
// exactly once for every Enter.
func (r *Room) Leave(o *Occupant) {
	r.countMu.Lock()
	r.occupants--
	r.countMu.Unlock()
}

// AcquireMask waits for a free rescuer, masks the occupant and hands the
// rescuer back.
func (r *Room) AcquireMask(o *Occupant) {
	r.rescuers.Acquire()
	defer r.rescuers.Release()

	o.HasMask = true
	if r.maskDuration > 0 {
		time.Sleep(r.maskDuration)
	}
	if r.maskHook != nil {
		r.maskHook(o)
	}
}

// InBounds reports whether p is a cell of the grid
func (r *Room) InBounds(p Position) bool {
	return p.Row >= 0 && p.Col >= 0 && p.Row < r.height && p.Col < r.width
}

// Width returns the number of columns
func (r *Room) Width() int { return r.width }

// Height returns the number of rows
func (r *Room) Height() int { return r.height }

// MaxPerCell returns the per-cell occupancy cap
func (r *Room) MaxPerCell() int { return r.maxPerCell }

// CellCount returns the occupants currently on p, or 0 outside the grid
func (r *Room) CellCount(p Position) int {
	if !r.InBounds(p) {
		return 0
	}
	r.gridMu.Lock()
	defer r.gridMu.Unlock()
	return r.grid[p.Row][p.Col]
}

// OccupantCount returns the number of occupants that entered and have not left
func (r *Room) OccupantCount() int {
	r.countMu.Lock()
	defer r.countMu.Unlock()
	return r.occupants
}

// FreeRescuers returns the number of idle rescuer slots
func (r *Room) FreeRescuers() int {
	return r.rescuers.Free()
}

// Snapshot copies the room state for monitoring
func (r *Room) Snapshot() *Snapshot {
	s := &Snapshot{
		Width:      r.width,
		Height:     r.height,
		MaxPerCell: r.maxPerCell,
		Grid:       make([][]int, r.height),
		Rescuers:   r.rescuers.Size(),
	}

	r.gridMu.Lock()
	for i, row := range r.grid {
		s.Grid[i] = append([]int(nil), row...)
	}
	r.gridMu.Unlock()

	s.OccupantCount = r.OccupantCount()
	s.FreeRescuers = r.rescuers.Free()
	return s
}
