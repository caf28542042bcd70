// Package beacon defines the immutable record produced by the scanner and
// consumed by the broker client.
package beacon

import (
	"time"

	"github.com/commatea/ruuvi-gateway/internal/ruuvi"
)

// Beacon is one decoded RuuviTag v5 observation. Immutable after construction.
type Beacon struct {
	Data      ruuvi.Telemetry `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Address   string          `json:"address"` // 48-bit EUI as reported by the scanner, colon-separated, e.g. "aa:bb:cc:dd:ee:ff"
}

// New constructs a Beacon captured at the current instant.
func New(data ruuvi.Telemetry, address string) Beacon {
	return Beacon{
		Data:      data,
		Timestamp: time.Now().UTC(),
		Address:   address,
	}
}
