package broker

import (
	"fmt"
	"strings"
)

// topics builds every MQTT topic the broker client publishes to or
// subscribes on: config, commands and state are rooted at
// /devices/<device_id>/, per-tag events/attach/detach at /devices/<ADDR>/.
type topics struct {
	deviceRoot string
}

func newTopics(deviceID string) topics {
	return topics{deviceRoot: fmt.Sprintf("/devices/%s", deviceID)}
}

func (t topics) config() string      { return t.deviceRoot + "/config" }
func (t topics) commandRoot() string { return t.deviceRoot + "/commands" }
func (t topics) state() string       { return t.deviceRoot + "/state" }

// canonicalAddress renders a device address (as supplied by the scanner,
// colon-separated lowercase hex) as the canonical uppercase-hex form used
// in per-tag topics.
func canonicalAddress(address string) string {
	return strings.ToUpper(strings.ReplaceAll(address, ":", ""))
}

func (t topics) events(address, subfolder string) string {
	base := fmt.Sprintf("/devices/%s/events", canonicalAddress(address))
	if subfolder != "" {
		base += "/" + subfolder
	}
	return base
}

func (t topics) attach(address string) string {
	return fmt.Sprintf("/devices/%s/attach", canonicalAddress(address))
}

func (t topics) detach(address string) string {
	return fmt.Sprintf("/devices/%s/detach", canonicalAddress(address))
}

// isCommandTopic reports whether topic falls under the commands/# wildcard.
func (t topics) isCommandTopic(topic string) bool {
	return strings.HasPrefix(topic, t.commandRoot())
}
