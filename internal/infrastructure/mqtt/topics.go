package mqtt

import "strings"

// Topic layout under a site prefix (default "homedash"):
//
//	<prefix>/state/<path>   retained value of a realtime store path
//	<prefix>/system/status  retained online/offline status of this service
//
// Store paths live under their own subtree so no path can collide with
// a system topic.
const (
	stateSegment  = "state"
	systemSegment = "system"
)

// Topics builds topic names for one prefix.
type Topics struct {
	Prefix string
}

// State returns the topic holding the value of a store path.
//
// Example: Topics{"homedash"}.State("Lampu/dapur") → "homedash/state/Lampu/dapur"
func (t Topics) State(path string) string {
	return t.Prefix + "/" + stateSegment + "/" + path
}

// PathOf is the inverse of State. ok is false for topics outside the
// state subtree.
func (t Topics) PathOf(topic string) (path string, ok bool) {
	path, ok = strings.CutPrefix(topic, t.Prefix+"/"+stateSegment+"/")
	if !ok || path == "" {
		return "", false
	}
	return path, true
}

// SystemStatus is where the service announces itself (retained, with LWT).
func (t Topics) SystemStatus() string {
	return t.Prefix + "/" + systemSegment + "/status"
}
