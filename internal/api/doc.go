// Package api implements the HTTP REST API and WebSocket server for homedash.
//
// This package provides:
//   - A WebSocket protocol that drives one control surface per connection
//   - A REST mirror of the same surfaces for scripts and health probes
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # WebSocket Protocol
//
// A connection starts in the unknown session state. The client signs in
// either with a ticket from POST /api/v1/auth/ws-ticket (query parameter
// "ticket") or by sending an "auth" message carrying an access token. If
// neither arrives within the configured auth wait, the session settles to
// unauthenticated.
//
// The client asks for a view with "open". The server answers with "view"
// events naming the view actually shown: gated views fall back to "login"
// when signed out and to "loading" while the session is unknown. While a
// gated view is shown the server pushes "frame" events, latest wins.
// "intent" messages toggle lights and fans or set a fan speed; the
// response arrives once the store has accepted or refused the write.
// Every session transition is pushed as a "session" event, so a
// revocation elsewhere drops the client back to login without a reconnect.
//
// # REST Mirror
//
// GET /lights, /fans and /environment return one frame each. The toggle
// and speed endpoints run the same intents as the WebSocket. Store
// failures map to access_denied (403), unavailable (503) and timeout
// (504), the same codes WebSocket clients receive.
//
// # Audit and History
//
// Every intent, from either surface, is written to the audit trail with
// its outcome, as are sign-ins, sign-outs and revocations. Writes are
// queued and never hold up a request. GET /audit pages through the trail;
// GET /history returns the local state history of one series.
package api
