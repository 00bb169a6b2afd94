// Package handler runs the drill protocol for a single connection.
//
// Every accepted connection moves through four states:
//
//	AwaitingIdentity -> Active -> Exiting -> Closed
//
// In AwaitingIdentity the handler reads the occupant's name and start
// position and places them in the room. In Active it answers each move with
// OK or OCCUPIED. Once a move takes the occupant through the door the
// handler waits for a rescuer, removes the occupant from the room count and
// sends FREE. A read or write failure in any state closes the connection;
// an occupant who was already counted is removed from the count exactly once.
//
// The handler never blocks on other connections except while waiting for a
// rescuer. Monitoring hooks (Registry and Publisher) are optional and must
// not block.
//
// Usage:
//
//	h, err := handler.New(room, codec.JSON, logger,
//		handler.WithRegistry(sessions),
//		handler.WithPublisher(hub))
//	...
//	go h.Handle(conn)
package handler
