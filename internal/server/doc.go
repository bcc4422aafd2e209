// Package server provides the local HTTP API of a navsync agent: status,
// event history, router location and page state as JSON, plus an SSE
// re-feed of local signals.
//
// # Endpoints
//
//   - GET  /health: liveness plus the connected flag
//   - GET  /status: push channel status and router counters
//   - POST /reconnect: drop the current stream and reconnect immediately
//   - GET  /history: the bounded navigation event history, newest first
//   - GET  /location: current router location and its entries
//   - POST /navigate: push a route onto the local router ({"route": "/y14-report"})
//   - POST /back: step the router back one entry
//   - GET  /page: state of the mounted page (404 when none is mounted)
//   - GET  /event: SSE stream of local bus signals
//
// # Event Stream
//
// /event starts with the current sse-status signal and then forwards every
// bus event as a named SSE event (sse-navigation, sse-status). A heartbeat
// comment is written on Config.Heartbeat. Slow readers lose events rather
// than blocking the bus.
//
// # Errors
//
// Failures use a common JSON body:
//
//	{"error": {"code": "INVALID_REQUEST", "message": "route is required"}}
//
// # Usage
//
//	srv := server.New(&server.Config{Addr: "127.0.0.1:3002", EnableCORS: true}, agent)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
