// Package control implements the control surfaces: lights, fans and the
// environment dashboard.
//
// A surface mirrors a handful of store paths and turns user intents into
// store writes. Each surface owns an event loop; every change to its view
// state happens on that loop:
//
//	stream pump ──┐
//	write result ─┼──▶ task queue ──▶ loop ──▶ render(Frame)
//	user intent ──┘
//
// Stream pumps and write goroutines never touch view state; they post a
// task and return. The render callback is only ever called from the loop,
// and never after Close returns.
//
// # Consistency
//
// Writes are not applied locally. A toggle shows its effect when the
// store echoes the new value back, as it would for a change made by any
// other client. The one exception is the fan speed draft: the percentage
// the user picked is shown, flagged optimistic, until the echo confirms
// it, the write completes and a later echo arrives, or the write fails.
//
// Failed writes leave mirrored state untouched and raise a dismissible
// Notice classified by Classify.
package control
