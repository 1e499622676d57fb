// Package device describes the devices the dashboard controls and how
// their state is laid out in the realtime store.
//
// # Store layout
//
//	Lampu/<room>             light, boolean
//	Kipas/<fan>              fan power, boolean
//	Kipas/kecepatan<fan>     fan speed, integer 0-180 (hardware scale)
//	dht22/temperature        temperature reading, number (read-only)
//	dht22/humidity           humidity reading, number (read-only)
//
// # Key Types
//
//   - Catalog: The configured rooms and fans
//   - Switch: Tri-state projection of a boolean path (unset, off, on)
//   - Reading: Projection of a numeric sensor path
//   - SQLiteHistory: Local history of confirmed states, fed by telemetry
//
// Every projection accepts an absent or mistyped store value and maps it
// to a defined state; nothing here fails on bad remote data.
//
// Fan speed is stored on the hardware's 0-180 scale and shown as a 0-100
// percentage. SpeedToRaw and SpeedToDisplay convert between the two; a
// percentage survives the round trip unchanged.
package device
