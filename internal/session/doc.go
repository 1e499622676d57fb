// Package session holds the per-client Session Gate and the routing rule
// that keeps gated views behind it.
//
// A Gate starts Unknown and moves to Authenticated or Unauthenticated only
// when the identity provider reports something: a token resolved, a
// session revoked, a token expired. Views read the gate through Route:
//
//	gate := session.NewGate()
//	binding, err := session.Bind(ctx, gate, provider, token)
//	...
//	view := session.Route(session.ViewFan, gate.Snapshot())
//
// Route never returns a gated view for a client that is not Authenticated,
// so no device subscription is ever opened on behalf of an anonymous
// client.
package session
