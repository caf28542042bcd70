package scanner

import (
	"log/slog"
	"time"

	"github.com/commatea/ruuvi-gateway/internal/beacon"
	"github.com/commatea/ruuvi-gateway/internal/cnc"
	"github.com/commatea/ruuvi-gateway/internal/metrics"
	"github.com/commatea/ruuvi-gateway/internal/ruuvi"
)

// Outcome is the result of one run() call, handed back to the supervisor.
type Outcome int

const (
	CleanExit Outcome = iota
	Restart
)

func (o Outcome) String() string {
	if o == CleanExit {
		return "clean_exit"
	}
	return "restart"
}

// state is the scanner's own FSM state, distinct from Outcome.
type state int

const (
	unconfigured state = iota
	configured
	scanningState
	terminal
)

const pollInterval = 100 * time.Millisecond

// observed tracks the first-seen beacon for an address, for stuck-stack
// detection.
type observed struct {
	telemetryString string
	seenAt          time.Time
}

// Scanner owns zero-or-one BLE adapter and emits validated beacons onto the
// C&C bus's Beacons channel. Not safe for concurrent use; one goroutine runs
// Run at a time.
type Scanner struct {
	adapter Adapter
	bus     *cnc.Bus
	log     *slog.Logger
	now     Clock

	state       state
	adapterIdx  uint
	hasAdapter  bool
	activeCfg   cnc.CollectConfig
	stuckWindow map[string]observed

	pendingAdverts chan Advertisement
}

// New constructs a Scanner. log must not be nil.
func New(adapter Adapter, bus *cnc.Bus, log *slog.Logger) *Scanner {
	return &Scanner{
		adapter:        adapter,
		bus:            bus,
		log:            log,
		now:            time.Now,
		state:          unconfigured,
		stuckWindow:    make(map[string]observed),
		pendingAdverts: make(chan Advertisement, 256),
	}
}

// Run executes the scanner's state machine until it exits cleanly or needs
// the supervisor to restart it. If adapterIdx/hasAdapter is already set on
// entry (an unclean prior exit left state behind), it attempts the recovery
// policy described in the scanner's design: release, reserve, start_scan;
// any failure clears all state and returns Restart.
func (s *Scanner) Run() Outcome {
	if s.hasAdapter {
		if err := s.recoverUncleanEntry(); err != nil {
			s.log.Warn("scanner: recovery from unclean entry failed", "error", err)
			s.resetState()
			return Restart
		}
	}

	for {
		select {
		case msg := <-s.bus.Commands:
			if msg.IsConfig {
				if outcome, done := s.handleConfig(msg.Config.CollectConfig); done {
					return outcome
				}
			} else {
				if outcome, done := s.handleCommand(msg.Command); done {
					return outcome
				}
			}
		default:
		}

		if s.state == scanningState {
			if outcome, done := s.drainAdvertisements(); done {
				return outcome
			}
		}

		time.Sleep(pollInterval)
	}
}

func (s *Scanner) recoverUncleanEntry() error {
	if err := s.adapter.Release(); err != nil {
		return err
	}
	if err := s.adapter.Reserve(s.adapterIdx); err != nil {
		return err
	}
	if err := s.startScan(); err != nil {
		return err
	}
	s.state = scanningState
	return nil
}

func (s *Scanner) resetState() {
	s.state = unconfigured
	s.hasAdapter = false
	s.adapterIdx = 0
	s.activeCfg = cnc.CollectConfig{}
	s.stuckWindow = make(map[string]observed)
}

// handleConfig applies an incoming CollectConfig, returning (outcome, true)
// when Run should return immediately.
func (s *Scanner) handleConfig(next cnc.CollectConfig) (Outcome, bool) {
	switch s.state {
	case unconfigured:
		s.adapterIdx = next.Bluetooth.AdapterIndex
		s.hasAdapter = true
		s.activeCfg = next
		s.state = configured
		if err := s.reserveAndScan(); err != nil {
			s.log.Error("scanner: reserve/scan failed", "error", err)
			s.resetState()
			return Restart, true
		}
		return 0, false

	case scanningState:
		if next == s.activeCfg {
			return 0, false
		}
		if next.Bluetooth.AdapterIndex != s.adapterIdx {
			_ = s.adapter.StopScan()
			s.adapterIdx = next.Bluetooth.AdapterIndex
			s.activeCfg = next
			s.state = configured
			return Restart, true
		}
		s.activeCfg = next
		return 0, false

	case configured:
		s.adapterIdx = next.Bluetooth.AdapterIndex
		s.activeCfg = next
		if err := s.reserveAndScan(); err != nil {
			s.log.Error("scanner: reserve/scan failed", "error", err)
			s.resetState()
			return Restart, true
		}
		return 0, false
	}
	return 0, false
}

func (s *Scanner) reserveAndScan() error {
	if err := s.adapter.Reserve(s.adapterIdx); err != nil {
		return err
	}
	if err := s.startScan(); err != nil {
		return err
	}
	s.state = scanningState
	return nil
}

func (s *Scanner) startScan() error {
	return s.adapter.StartScan(func(adv Advertisement) {
		select {
		case s.pendingAdverts <- adv:
		default:
		}
	})
}

func (s *Scanner) handleCommand(cmd cnc.Command) (Outcome, bool) {
	switch cmd.Kind {
	case cnc.Shutdown:
		_ = s.adapter.Release()
		s.state = terminal
		return CleanExit, true
	case cnc.Reset:
		if s.state == scanningState {
			_ = s.adapter.StopScan()
			s.state = configured
			return Restart, true
		}
	}
	return 0, false
}

// drainAdvertisements consumes any buffered advertisements, recognizes
// Ruuvi v5 frames, decodes them, checks for a stuck stack, and forwards
// valid beacons onto the bus.
func (s *Scanner) drainAdvertisements() (Outcome, bool) {
	for {
		select {
		case adv := <-s.pendingAdverts:
			formatTag, payload, ok := ruuvi.RecognizeFrame(adv.ManufacturerID)
			if !ok {
				continue
			}
			if formatTag != ruuvi.FormatV5 {
				s.log.Debug("scanner: unsupported format tag", "tag", formatTag, "address", adv.Address)
				metrics.BeaconsDropped.WithLabelValues(metrics.DropReasonUnsupportedFormat).Inc()
				continue
			}
			telemetry, err := ruuvi.Decode(payload)
			if err != nil {
				s.log.Warn("scanner: decode error", "error", err, "address", adv.Address)
				metrics.BeaconsDropped.WithLabelValues(metrics.DropReasonDecodeError).Inc()
				continue
			}
			metrics.BeaconsDecoded.WithLabelValues(adv.Address).Inc()

			if stuck := s.checkStuck(adv.Address, telemetry); stuck {
				_ = s.adapter.Release()
				s.state = configured
				return Restart, true
			}

			select {
			case s.bus.Beacons <- beacon.New(telemetry, adv.Address):
			default:
				s.log.Warn("scanner: beacon channel full, dropping observation", "address", adv.Address)
				metrics.BeaconsDropped.WithLabelValues(metrics.DropReasonChannelFull).Inc()
			}
		default:
			return 0, false
		}
	}
}

// checkStuck implements stuck-stack detection: the first beacon for an
// address is recorded; once the configured threshold has elapsed, an
// unchanged formatted payload means the stack is presumed stuck.
func (s *Scanner) checkStuck(address string, telemetry ruuvi.Telemetry) bool {
	now := s.now()
	formatted := telemetry.String()
	threshold := time.Duration(s.activeCfg.StuckDataThreshold) * time.Second
	if threshold <= 0 {
		threshold = 180 * time.Second
	}

	prior, ok := s.stuckWindow[address]
	if !ok {
		s.stuckWindow[address] = observed{telemetryString: formatted, seenAt: now}
		return false
	}

	if now.Sub(prior.seenAt) < threshold {
		return false
	}

	if prior.telemetryString == formatted {
		return true
	}

	s.stuckWindow[address] = observed{telemetryString: formatted, seenAt: now}
	return false
}
