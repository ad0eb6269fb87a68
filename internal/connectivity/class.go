package connectivity

import (
	"context"
	"strings"
)

// Class is the kind of network the device is currently attached to.
type Class string

const (
	ClassNone     Class = "none"
	ClassWifi     Class = "wifi"
	ClassCellular Class = "cellular"
	ClassEthernet Class = "ethernet"
)

// ParseClass converts a configured value. The empty string is not a class.
func ParseClass(value string) (Class, bool) {
	switch c := Class(strings.ToLower(strings.TrimSpace(value))); c {
	case ClassNone, ClassWifi, ClassCellular, ClassEthernet:
		return c, true
	default:
		return "", false
	}
}

// Connected reports whether any network is available.
func (c Class) Connected() bool {
	return c == ClassWifi || c == ClassCellular || c == ClassEthernet
}

// Metered reports whether traffic on this class should be rationed.
// Ethernet is treated like Wi-Fi.
func (c Class) Metered() bool {
	return c == ClassCellular
}

// rank orders classes so the best available link wins.
func (c Class) rank() int {
	switch c {
	case ClassEthernet:
		return 3
	case ClassWifi:
		return 2
	case ClassCellular:
		return 1
	default:
		return 0
	}
}

// Better reports whether c is preferred over other.
func (c Class) Better(other Class) bool {
	return c.rank() > other.rank()
}

// Source reports the current class and, while Run is active, sends every
// transition on changes.
type Source interface {
	Current() Class
	Run(ctx context.Context, changes chan<- Class) error
}
