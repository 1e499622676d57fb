package store

import (
	"fmt"
	"strings"
)

// reservedChars may not appear in a path. MQTT treats + and # as
// wildcards; the rest are reserved so paths stay portable across
// realtime databases.
const reservedChars = ".$#[]+"

// Clean validates p and strips surrounding spaces and slashes.
//
// "/Lampu/dapur/" becomes "Lampu/dapur". Empty paths, empty segments
// ("Lampu//dapur") and reserved characters are rejected with
// ErrInvalidPath.
func Clean(p string) (string, error) {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if strings.ContainsAny(p, reservedChars) {
		return "", fmt.Errorf("%w: %q contains one of %q", ErrInvalidPath, p, reservedChars)
	}
	for seg := range strings.SplitSeq(p, "/") {
		if strings.TrimSpace(seg) == "" {
			return "", fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, p)
		}
	}
	return p, nil
}
