// Package panel serves the homedash web shell.
//
// The shell is a single page that signs in over the REST API, opens the
// WebSocket and draws whatever view and frames the server pushes. It holds
// no device logic of its own; every routing and state decision is made by
// the server. The assets are embedded with go:embed so the binary has no
// runtime dependency on external files.
//
// Paths that match no asset are client views (/lights, /fan) and get
// index.html, so a reload keeps the user on the same view.
package panel
