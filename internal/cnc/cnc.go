// Package cnc defines the command-and-control message types exchanged
// between the Broker Client and the Scanner, and the channel pair they
// travel on.
package cnc

import (
	"fmt"

	"github.com/commatea/ruuvi-gateway/internal/beacon"
)

// CommandKind enumerates the control verbs the Broker Client forwards onto
// the bus after receiving them from the command topic, or originates itself
// (RESET on watchdog expiry).
type CommandKind int

const (
	Collect CommandKind = iota
	Pause
	Shutdown
	Reset
)

func (k CommandKind) String() string {
	switch k {
	case Collect:
		return "collect"
	case Pause:
		return "pause"
	case Shutdown:
		return "shutdown"
	case Reset:
		return "reset"
	default:
		return fmt.Sprintf("cnc.CommandKind(%d)", int(k))
	}
}

// Command is the C&C payload carrying a bare control verb.
type Command struct {
	Kind CommandKind
}

const (
	defaultStuckDataThreshold = 180
	defaultAdapterIndex       = 0
)

// BluetoothConfig selects which local adapter the scanner should reserve.
type BluetoothConfig struct {
	AdapterIndex uint
}

// CollectConfig is the retained configuration document published on the
// config topic. Ordered equality (==, field by field) is required so the
// Broker Client can suppress redundant reconfiguration when the retained
// message is replayed unchanged.
type CollectConfig struct {
	Collecting         bool
	EventSubfolder     string
	StuckDataThreshold int
	CollectionSize     uint
	Bluetooth          BluetoothConfig
}

// NewCollectConfig fills in defaults for any field the caller leaves unset:
// stuck_data_threshold defaults to 180s (clamped >0), bluetooth.adapter_index
// defaults to 0.
func NewCollectConfig() CollectConfig {
	return CollectConfig{
		StuckDataThreshold: defaultStuckDataThreshold,
		Bluetooth:          BluetoothConfig{AdapterIndex: defaultAdapterIndex},
	}
}

// CollectionSizeOrDefault returns the effective batch size: 0 and 1 are
// equivalent (publish-per-beacon).
func (c CollectConfig) CollectionSizeOrDefault() uint {
	return c.CollectionSize
}

// Batching reports whether this config calls for array-batched publishes
// rather than one publish per beacon.
func (c CollectConfig) Batching() bool {
	return c.CollectionSizeOrDefault() > 1
}

// WithStuckDataThreshold clamps and sets the threshold, applying the 180s
// default when seconds <= 0.
func (c CollectConfig) WithStuckDataThreshold(seconds int) CollectConfig {
	if seconds <= 0 {
		seconds = defaultStuckDataThreshold
	}
	c.StuckDataThreshold = seconds
	return c
}

// Config wraps a CollectConfig for transit on the C&C bus. The Broker Client
// emits Config after parsing a config document that differs from its active
// one, and re-sends its active config (the zero value if none has arrived
// yet) after forwarding a RESET command.
type Config struct {
	CollectConfig CollectConfig
}

// Message is the tagged union carried on the command/config leg of the bus.
// Exactly one of Command/Config is meaningful, selected by Kind.
type Message struct {
	IsConfig bool
	Command  Command
	Config   Config
}

// NewCommand wraps a bare control verb for transit.
func NewCommand(kind CommandKind) Message {
	return Message{IsConfig: false, Command: Command{Kind: kind}}
}

// NewConfig wraps a retained configuration document for transit.
func NewConfig(cfg CollectConfig) Message {
	return Message{IsConfig: true, Config: Config{CollectConfig: cfg}}
}

// Bus is the pair of channels connecting the Broker Client to the Scanner:
// Commands carries control/config messages broker→scanner, Beacons carries
// decoded observations scanner→broker. The channels are bounded by the
// capacity given to NewBus: a send on Commands blocks once that many
// messages are pending, and the Scanner drops a beacon rather than block
// when Beacons is full. Receivers drain them via non-blocking receives,
// matching the "no shared mutable state across worker boundaries"
// requirement.
type Bus struct {
	Commands chan Message
	Beacons  chan beacon.Beacon
}

// NewBus constructs a Bus with the given channel capacity. A capacity of 0
// yields synchronous channels; workers must poll them non-blockingly either
// way, so any capacity merely bounds how much can be pending before a
// sender sees backpressure.
func NewBus(capacity int) *Bus {
	return &Bus{
		Commands: make(chan Message, capacity),
		Beacons:  make(chan beacon.Beacon, capacity),
	}
}
