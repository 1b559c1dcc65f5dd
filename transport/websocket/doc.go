// Package websocket streams run events to browser and CLI watchers.
//
// A central Hub owns the subscriber sets. Clients subscribe to a single run
// by ID when they connect (the API passes ?run=<id>) and receive one JSON
// Message per frame:
//
//	{"run_id": "…", "event": "episode_complete", "data": {…}}
//
// The Hub implements the service Notifier, so the run service publishes
// episode_complete and training_done events straight into it. Publish never
// blocks the training loop: when the broadcast queue is full the event is
// dropped and a warning is logged. Clients that cannot keep up with their
// own send buffer are disconnected.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("run"))
//	})
//
// Incoming frames are read only to keep the connection alive.
package websocket
