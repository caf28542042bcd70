package broker

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttKeepAlive     = 5 * time.Minute
	mqttConnectWait   = 5 * time.Second
	mqttPublishQoS    = 1
	mqttSubscribeQoS  = 1
	mqttUsername      = "not_used"
	mqttBrokerAddress = "ssl://mqtt.googleapis.com:8883"
)

// PahoClient backs MQTTClient with a real TLS session to the IoT Core
// broker, built fresh on every Connect call (the JWT password changes each
// time, so the underlying paho client is rebuilt rather than reused).
type PahoClient struct {
	clientID  string
	caCerts   string
	client    mqtt.Client
	inbox     chan InboundMessage
	connected bool
}

// NewPahoClient constructs a client for the given IoT Core client ID
// (projects/<p>/locations/<r>/registries/<reg>/devices/<d>). caCertsPath is
// optional; when empty the system root CA pool is used.
func NewPahoClient(clientID, caCertsPath string) *PahoClient {
	return &PahoClient{
		clientID: clientID,
		caCerts:  caCertsPath,
		inbox:    make(chan InboundMessage, 256),
	}
}

func (p *PahoClient) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if p.caCerts == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(p.caCerts)
	if err != nil {
		return nil, fmt.Errorf("broker: read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("broker: parse CA bundle %s", p.caCerts)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// Connect builds a fresh paho client with the given JWT as password,
// connects, and subscribes to configTopic and commandTopicRoot+"/#".
func (p *PahoClient) Connect(password string, configTopic, commandTopicRoot string) error {
	tlsCfg, err := p.tlsConfig()
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(mqttBrokerAddress)
	opts.SetClientID(p.clientID)
	opts.SetUsername(mqttUsername)
	opts.SetPassword(password)
	opts.SetTLSConfig(tlsCfg)
	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetConnectTimeout(mqttConnectWait)
	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	opts.SetProtocolVersion(4) // MQTT 3.1.1
	opts.SetConnectionLostHandler(func(mqtt.Client, error) {
		p.connected = false
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker: connect: %w", err)
	}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case p.inbox <- InboundMessage{Topic: msg.Topic(), Payload: msg.Payload()}:
		default:
		}
	}

	subToken := client.Subscribe(configTopic, mqttSubscribeQoS, handler)
	subToken.Wait()
	if err := subToken.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("broker: subscribe %s: %w", configTopic, err)
	}

	cmdToken := client.Subscribe(commandTopicRoot+"/#", mqttSubscribeQoS, handler)
	cmdToken.Wait()
	if err := cmdToken.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("broker: subscribe %s/#: %w", commandTopicRoot, err)
	}

	p.client = client
	p.connected = true
	return nil
}

// Disconnect tears down the session.
func (p *PahoClient) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.connected = false
}

// IsConnected reports session liveness.
func (p *PahoClient) IsConnected() bool {
	return p.connected && p.client != nil && p.client.IsConnected()
}

// Publish sends payload at QoS 1.
func (p *PahoClient) Publish(topic string, payload []byte) error {
	if p.client == nil {
		return fmt.Errorf("broker: publish %s: not connected", topic)
	}
	token := p.client.Publish(topic, mqttPublishQoS, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker: publish %s: %w", topic, err)
	}
	return nil
}

// Inbox returns the channel of received messages.
func (p *PahoClient) Inbox() <-chan InboundMessage {
	return p.inbox
}
