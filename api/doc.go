// Package api provides the read-only HTTP monitor for a running drill.
//
// Endpoints:
//
// Room:
//   - GET /api/room - Grid counts, occupant count, rescuers, door
//   - GET /api/room/cells/{row}/{col} - One cell, with the names seen there
//
// Occupants:
//   - GET /api/occupants - Live connections (?state=, ?order=asc|desc, ?limit=)
//   - GET /api/occupants/{id} - One connection
//
// Configuration:
//   - GET /api/config - The drill's startup configuration
//   - GET /api/configs - Scenario files in the config directory
//
// Live updates:
//   - GET /ws - WebSocket stream of drill events (?session=<id> to follow one)
//
// Nothing here mutates the room. The drill itself is only reachable over
// its TCP protocol.
//
// Errors are returned as JSON with an appropriate HTTP status code:
//
//	{"error": "error message"}
package api
