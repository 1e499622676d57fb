// Package realtime bridges view state to the realtime store.
//
// A Bridge turns store paths into Streams: lazy, cancellable sequences of
// store.Value that start with the path's current value and continue with
// every change. All streams of one path share a single backend listener,
// opened by the first Subscribe and released by the last Cancel, so the
// number of live listeners tracks the number of visible widgets.
//
// Writes go straight to the backend. The bridge never updates anything
// locally on a write: the change becomes visible when the backend echoes
// it through the path's feed, exactly as a change made by any other
// client or by the hardware itself.
//
// Usage:
//
//	b := realtime.NewBridge(backend, 5*time.Second)
//	s, err := b.Subscribe("Lampu/dapur")
//	if err != nil { ... }
//	defer s.Cancel()
//	for v := range s.Values(ctx) {
//	    render(v)
//	}
package realtime
