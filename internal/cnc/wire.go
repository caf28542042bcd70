package cnc

import (
	"encoding/json"
	"fmt"
)

// bluetoothWire mirrors BluetoothConfig on the wire; adapter_index is
// optional so an absent object still defaults to adapter 0.
type bluetoothWire struct {
	AdapterIndex *uint `json:"adapter_index,omitempty"`
}

// collectConfigWire is the JSON shape of CollectConfig: every field but
// collecting is optional, each falling back to its documented default.
type collectConfigWire struct {
	Collecting         bool           `json:"collecting"`
	EventSubfolder     *string        `json:"event_subfolder,omitempty"`
	StuckDataThreshold *int           `json:"stuck_data_threshold,omitempty"`
	CollectionSize     *uint          `json:"collection_size,omitempty"`
	Bluetooth          *bluetoothWire `json:"bluetooth,omitempty"`
}

// MarshalJSON renders the active CollectConfig for the state topic.
func (c CollectConfig) MarshalJSON() ([]byte, error) {
	adapterIndex := c.Bluetooth.AdapterIndex
	wire := collectConfigWire{
		Collecting:         c.Collecting,
		StuckDataThreshold: &c.StuckDataThreshold,
		CollectionSize:     &c.CollectionSize,
		Bluetooth:          &bluetoothWire{AdapterIndex: &adapterIndex},
	}
	if c.EventSubfolder != "" {
		wire.EventSubfolder = &c.EventSubfolder
	}
	return json.Marshal(wire)
}

// UnmarshalJSON parses a config-topic document, applying defaults for any
// field left absent: stuck_data_threshold to 180s (clamped >0), adapter_index
// to 0.
func (c *CollectConfig) UnmarshalJSON(data []byte) error {
	var wire collectConfigWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("cnc: decode CollectConfig: %w", err)
	}

	parsed := NewCollectConfig()
	parsed.Collecting = wire.Collecting
	if wire.EventSubfolder != nil {
		parsed.EventSubfolder = *wire.EventSubfolder
	}
	if wire.StuckDataThreshold != nil {
		parsed = parsed.WithStuckDataThreshold(*wire.StuckDataThreshold)
	}
	if wire.CollectionSize != nil {
		parsed.CollectionSize = *wire.CollectionSize
	}
	if wire.Bluetooth != nil && wire.Bluetooth.AdapterIndex != nil {
		parsed.Bluetooth.AdapterIndex = *wire.Bluetooth.AdapterIndex
	}

	*c = parsed
	return nil
}

// commandKindWire maps CommandKind to and from its lowercase wire tag.
var commandKindWire = map[CommandKind]string{
	Collect:  "collect",
	Pause:    "pause",
	Shutdown: "shutdown",
	Reset:    "reset",
}

var commandKindFromWire = func() map[string]CommandKind {
	m := make(map[string]CommandKind, len(commandKindWire))
	for k, v := range commandKindWire {
		m[v] = k
	}
	return m
}()

// commandWire is the JSON shape of an inbound command-topic message.
type commandWire struct {
	Command string `json:"command"`
}

// MarshalJSON renders a Command for publication.
func (c Command) MarshalJSON() ([]byte, error) {
	tag, ok := commandKindWire[c.Kind]
	if !ok {
		return nil, fmt.Errorf("cnc: unknown command kind %d", int(c.Kind))
	}
	return json.Marshal(commandWire{Command: tag})
}

// UnmarshalJSON parses a command-topic message.
func (c *Command) UnmarshalJSON(data []byte) error {
	var wire commandWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("cnc: decode Command: %w", err)
	}
	kind, ok := commandKindFromWire[wire.Command]
	if !ok {
		return fmt.Errorf("cnc: unrecognized command %q", wire.Command)
	}
	c.Kind = kind
	return nil
}
