// Package scanner owns the BLE adapter and turns passively-observed
// advertisements into decoded beacons for the broker client.
package scanner

import "time"

// Advertisement is one BLE advertising report, reduced to the fields the
// scanner needs: the device address and its raw manufacturer-data bytes
// (company ID prefix included, as they appear on-air).
type Advertisement struct {
	Address        string
	ManufacturerID []byte
}

// Adapter abstracts the local BLE host stack so the scanner's state machine
// can be exercised without real hardware. A concrete implementation backs
// this with tinygo.org/x/bluetooth.
type Adapter interface {
	// Reserve selects the adapter at index and cycles it down/up to clear
	// errant state, mirroring the recovery policy after an unclean prior
	// session.
	Reserve(index uint) error

	// Release returns the adapter to an unreserved state. Safe to call
	// even if Reserve was never called or already failed.
	Release() error

	// StartScan begins a passive scan, delivering reports to handler until
	// StopScan is called. Non-blocking: scanning happens on the adapter's
	// own goroutine/callback.
	StartScan(handler func(Advertisement)) error

	// StopScan halts an in-progress scan. Idempotent.
	StopScan() error
}

// Clock abstracts time.Now for deterministic tests of stuck-stack detection.
type Clock func() time.Time
