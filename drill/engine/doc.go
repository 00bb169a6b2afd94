// Package engine provides the shared room state for the evacuation drill.
//
// The engine package implements:
//   - A bounded-occupancy grid with per-cell caps
//   - An aggregate occupant counter
//   - A fixed pool of rescuer slots gating the mask step
//   - Direction handling and the door-based exit rule
//
// Core Types:
//
// Room is the single shared world. It is constructed once at startup and
// handed by pointer to every connection handler. Occupant is the state one
// handler owns for its connection. Mover decides where a step lands and
// whether it leaves the room; DoorMover is the default implementation.
//
// Concurrency:
//
// The grid, the occupant counter and the rescuer pool are guarded by three
// independent locks that are never held together. A move's capacity check and
// its grid update happen under a single grid lock acquisition, so two
// occupants racing for the last free place in a cell cannot both get it.
// The counter and the grid are updated separately and only agree once no
// handler is mid-operation.
//
// Usage:
//
//	mover := engine.NewDoorMover(3, 3, engine.Position{Row: 0, Col: 0})
//	room, err := engine.NewRoom(engine.RoomConfig{
//		Width: 3, Height: 3, MaxPerCell: 1, Rescuers: 2,
//	}, mover)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	occupant := engine.NewOccupant("ana", engine.Position{Row: 1, Col: 1})
//	room.Enter(occupant)
//	if room.TryMove(occupant, engine.Up) && occupant.Exited {
//		room.AcquireMask(occupant)
//	}
//	room.Leave(occupant)
package engine
