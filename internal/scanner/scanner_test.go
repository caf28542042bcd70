package scanner

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/commatea/ruuvi-gateway/internal/cnc"
)

// fakeAdapter is a hand-driven Adapter stub: tests push advertisements
// directly through the handler captured from StartScan.
type fakeAdapter struct {
	reserveErr error
	handler    func(Advertisement)
	scanning   bool
	released   int
}

func (f *fakeAdapter) Reserve(index uint) error { return f.reserveErr }
func (f *fakeAdapter) Release() error {
	f.released++
	f.scanning = false
	return nil
}
func (f *fakeAdapter) StartScan(handler func(Advertisement)) error {
	f.handler = handler
	f.scanning = true
	return nil
}
func (f *fakeAdapter) StopScan() error {
	f.scanning = false
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func v5Advert(address string, temp int16) Advertisement {
	payload := make([]byte, 24)
	payload[0] = byte(uint16(temp) >> 8)
	payload[1] = byte(uint16(temp))
	raw := append([]byte{0x99, 0x04, 0x05}, payload...)
	return Advertisement{Address: address, ManufacturerID: raw}
}

func TestScanner_ConfigThenShutdown(t *testing.T) {
	adapter := &fakeAdapter{}
	bus := cnc.NewBus(8)
	s := New(adapter, bus, discardLogger())

	done := make(chan Outcome, 1)
	go func() { done <- s.Run() }()

	cfg := cnc.NewCollectConfig()
	cfg.Collecting = true
	bus.Commands <- cnc.NewConfig(cfg)

	// Give the loop a tick to apply the config and start scanning.
	time.Sleep(50 * time.Millisecond)
	if !adapter.scanning {
		t.Fatal("expected scanner to be actively scanning after Config")
	}

	bus.Commands <- cnc.NewCommand(cnc.Shutdown)

	select {
	case outcome := <-done:
		if outcome != CleanExit {
			t.Errorf("Run() = %v, want CleanExit", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after SHUTDOWN")
	}
	if adapter.released == 0 {
		t.Error("expected adapter to be released on shutdown")
	}
}

func TestScanner_ForwardsDecodedBeacon(t *testing.T) {
	adapter := &fakeAdapter{}
	bus := cnc.NewBus(8)
	s := New(adapter, bus, discardLogger())

	go s.Run()

	cfg := cnc.NewCollectConfig()
	cfg.Collecting = true
	bus.Commands <- cnc.NewConfig(cfg)
	time.Sleep(50 * time.Millisecond)

	adapter.handler(v5Advert("aa:bb:cc:dd:ee:ff", 4860))

	select {
	case b := <-bus.Beacons:
		if b.Address != "aa:bb:cc:dd:ee:ff" {
			t.Errorf("Address = %s", b.Address)
		}
		if b.Data.Temperature != 24.3 {
			t.Errorf("Temperature = %v, want 24.3", b.Data.Temperature)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected beacon on bus")
	}

	bus.Commands <- cnc.NewCommand(cnc.Shutdown)
}

func TestScanner_ResetReturnsToConfigured(t *testing.T) {
	adapter := &fakeAdapter{}
	bus := cnc.NewBus(8)
	s := New(adapter, bus, discardLogger())

	done := make(chan Outcome, 1)
	go func() { done <- s.Run() }()

	cfg := cnc.NewCollectConfig()
	bus.Commands <- cnc.NewConfig(cfg)
	time.Sleep(50 * time.Millisecond)

	bus.Commands <- cnc.NewCommand(cnc.Reset)

	select {
	case outcome := <-done:
		if outcome != Restart {
			t.Errorf("Run() = %v, want Restart", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after RESET")
	}
}

func TestScanner_StuckStackTriggersRestart(t *testing.T) {
	adapter := &fakeAdapter{}
	bus := cnc.NewBus(8)
	s := New(adapter, bus, discardLogger())
	fixedNow := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return fixedNow }

	done := make(chan Outcome, 1)
	go func() { done <- s.Run() }()

	cfg := cnc.NewCollectConfig()
	cfg.StuckDataThreshold = 1
	bus.Commands <- cnc.NewConfig(cfg)
	time.Sleep(50 * time.Millisecond)

	adapter.handler(v5Advert("11:22:33:44:55:66", 100))
	time.Sleep(20 * time.Millisecond)

	fixedNow = fixedNow.Add(5 * time.Second)
	adapter.handler(v5Advert("11:22:33:44:55:66", 100))

	select {
	case outcome := <-done:
		if outcome != Restart {
			t.Errorf("Run() = %v, want Restart", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after stuck-stack detection")
	}
}
