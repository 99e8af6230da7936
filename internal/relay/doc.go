// Package relay exposes a gateway over HTTP and websockets, and provides a
// client that implements gateway.Gateway against such a server.
//
// A Server fronts any gateway (SQLite, Postgres/Redis, in-memory) so that
// engines on other machines can share one canvas. A Client is what those
// engines use as their gateway.
//
// # Wire Protocol
//
// All bodies are JSON.
//
//	GET    /pixels              -> 200 [Record]
//	PUT    /pixels/{id}         body Record -> 204
//	DELETE /pixels?exclude=<id> -> 204
//	GET    /changes             websocket; one Change per text frame
//
// PUT rejects ids that are not "x_y" and bodies whose coordinates do not
// match the id. Failures are reported as {"error": "..."} with a 4xx or 5xx
// status. Gateway failures map to 502.
//
// When the server's change feed ends, it closes each websocket with
// CloseGoingAway and the reason as close text.
//
// Clients identify themselves with the X-Client-ID header; the server only
// logs it.
package relay
