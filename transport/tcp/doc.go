// Package tcp provides the drill's TCP listener and an occupant client.
//
// The server runs a single accept loop and starts one goroutine per accepted
// connection. Those goroutines are never joined; each one closes its own
// connection when the protocol ends. Accept errors are logged and retried
// after a short backoff.
//
// Usage:
//
//	srv, err := tcp.Listen(":5555", h, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	go srv.Serve(ctx)
//
//	client, err := tcp.Dial("localhost:5555", codec.JSON, time.Second)
//	client.Identify("ana", engine.Position{Row: 2, Col: 3})
//	ok, err := client.Move(engine.Up)
package tcp
