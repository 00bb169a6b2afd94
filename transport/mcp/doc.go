// Package mcp exposes the drill monitor to AI agents over the Model Context
// Protocol.
//
// The Client is a thin proxy: every tool issues a GET against the monitor's
// REST API and renders the answer as text. Nothing it does can change the
// room.
//
// MCP Tools:
//   - room_state: Grid of occupant counts with totals and free rescuers
//   - list_occupants: Live connections, optionally filtered by state
//   - get_occupant: One connection in detail
//   - describe_cell: Count, capacity, door flag and names on one cell
//   - drill_config: The drill's startup configuration
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer()) for local MCP clients
//   - HTTP: POST /mcp on the monitor listener
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
