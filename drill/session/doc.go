// Package session tracks live drill connections for monitoring.
//
// Each connection handler registers itself when a peer connects, pushes a
// copy of its occupant's state after every protocol step and removes itself
// when the connection closes. The records are never read back by the room;
// they exist so the REST monitor, the websocket watchers and the MCP tools
// can show who is where.
//
// Concurrency:
//
// The manager is safe for concurrent use. All reads return copies, so
// callers never share memory with a running handler.
//
// Usage:
//
//	manager := session.NewManager()
//	info := manager.Create(conn.RemoteAddr().String(), "awaiting_identity")
//	defer manager.Delete(info.ID)
//
//	manager.Update(info.ID, func(i *session.Info) {
//		i.State = "active"
//	})
package session
