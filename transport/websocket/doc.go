// Package websocket streams drill events to browser and CLI watchers.
//
// The Hub implements handler.Publisher: every connection handler publishes
// its protocol steps into a buffered queue and the hub's event loop fans
// them out. Publish never blocks a handler; if watchers fall behind, events
// are dropped and slow watchers are disconnected.
//
// Message Protocol:
//
// Watchers only receive. Each frame is one JSON object:
//
//	{"event": {"type": "moved", "session_id": "...", "name": "ana", ...},
//	 "room":  {"width": 10, "height": 10, "grid": [[...]], ...}}
//
// The first frame after connecting carries only "room".
//
// Topics:
//
// A watcher connecting with ?session=<id> sees only that connection's
// events. Without it the watcher sees every event.
//
// Usage:
//
//	hub := websocket.NewHub(room, logger)
//	go hub.Run(ctx)
//
//	h, _ := handler.New(room, codec.JSON, logger, handler.WithPublisher(hub))
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("session"))
//	})
package websocket
