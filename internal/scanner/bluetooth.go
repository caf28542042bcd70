package scanner

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinygoAdapter backs Adapter with the local host's BLE controller via
// tinygo.org/x/bluetooth. tinygo exposes exactly one local adapter
// (bluetooth.DefaultAdapter); Reserve accepts any index and always binds
// that adapter. A non-zero index is not logged or reported.
type TinygoAdapter struct {
	mu       sync.Mutex
	adapter  *bluetooth.Adapter
	scanning bool
	done     chan struct{}
}

// NewTinygoAdapter wraps the process-wide default adapter.
func NewTinygoAdapter() *TinygoAdapter {
	return &TinygoAdapter{adapter: bluetooth.DefaultAdapter}
}

// Reserve enables the adapter. tinygo has no explicit down/up adapter cycle
// API; Enable is idempotent and serves the same errant-state-clearing role.
func (a *TinygoAdapter) Reserve(index uint) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("scanner: enable adapter: %w", err)
	}
	return nil
}

// Release stops any in-progress scan. tinygo has no adapter teardown call.
func (a *TinygoAdapter) Release() error {
	return a.StopScan()
}

// StartScan begins a passive scan, reconstructing the raw on-air
// manufacturer-data bytes (company ID little-endian, then the payload) from
// tinygo's pre-decoded ManufacturerDataElement so the frame codec can apply
// its byte-level recognition unchanged.
func (a *TinygoAdapter) StartScan(handler func(Advertisement)) error {
	a.mu.Lock()
	if a.scanning {
		a.mu.Unlock()
		return nil
	}
	a.scanning = true
	a.done = make(chan struct{})
	a.mu.Unlock()

	go func() {
		_ = a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			for _, elem := range result.ManufacturerData() {
				raw := make([]byte, 0, 2+len(elem.Data))
				raw = append(raw, byte(elem.CompanyID), byte(elem.CompanyID>>8))
				raw = append(raw, elem.Data...)
				handler(Advertisement{
					Address:        result.Address.String(),
					ManufacturerID: raw,
				})
			}
		})
		close(a.done)
	}()
	return nil
}

// StopScan halts the scan started by StartScan.
func (a *TinygoAdapter) StopScan() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.scanning {
		return nil
	}
	a.scanning = false
	if err := a.adapter.StopScan(); err != nil {
		return fmt.Errorf("scanner: stop scan: %w", err)
	}
	return nil
}
