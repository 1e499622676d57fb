// Package store is the realtime key-value store the dashboard reads and
// writes device state through.
//
// A store holds one JSON value per path ("Lampu/dapur", "Kipas/kamar",
// "dht22/temperature"). A path may also hold nothing at all; that absent
// state is a Value of its own and is distinct from false or zero.
//
// Two backends implement Backend:
//
//   - Memory keeps values in process. Used for development and tests.
//   - MQTT keeps each value as a retained message on the broker, so
//     hardware publishing to the same topics and every dashboard replica
//     see one shared state. The broker resolves concurrent writers (last
//     write wins).
//
// Guarded wraps either backend with per-path write rules evaluated
// against the Actor carried in the write's context.
//
// Usage:
//
//	mem := store.NewMemory()
//	cancel, err := mem.Watch("Lampu/dapur", func(v store.Value) {
//	    on, ok := v.Bool()
//	    ...
//	})
//	defer cancel()
//	err = mem.Set(ctx, "Lampu/dapur", store.BoolValue(true))
package store
