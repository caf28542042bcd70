// Package broker maintains the authenticated MQTT session to the cloud IoT
// broker, multiplexes inbound C&C, and publishes telemetry with batching
// and per-tag framing.
package broker

// InboundMessage is one message delivered on a subscribed topic.
type InboundMessage struct {
	Topic   string
	Payload []byte
}

// MQTTClient abstracts the broker session so the Broker Client's state
// machine can be exercised without a live MQTT connection. A concrete
// implementation backs this with eclipse/paho.mqtt.golang.
type MQTTClient interface {
	// Connect opens a session using the given password (a freshly issued
	// JWT) and subscribes at QoS 1 to configTopic and commandTopicRoot+"/#".
	Connect(password string, configTopic, commandTopicRoot string) error

	// Disconnect closes the session. Safe to call when already disconnected.
	Disconnect()

	// IsConnected reports whether the underlying session is alive.
	IsConnected() bool

	// Publish sends payload at QoS 1 to topic.
	Publish(topic string, payload []byte) error

	// Inbox delivers messages received on subscribed topics.
	Inbox() <-chan InboundMessage
}
