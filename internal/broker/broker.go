package broker

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/commatea/ruuvi-gateway/internal/beacon"
	"github.com/commatea/ruuvi-gateway/internal/cnc"
	"github.com/commatea/ruuvi-gateway/internal/credential"
	"github.com/commatea/ruuvi-gateway/internal/metrics"
)

// Outcome is the result of one Run() call, handed back to the supervisor.
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

type state int

const (
	disconnected state = iota
	connected
	terminal
)

const (
	pollInterval     = 100 * time.Millisecond
	silenceWatchdog  = 58 * time.Second
	pauseKeepAlive   = 4 * time.Minute
	renewalGuard     = 60 * time.Second
	pendingCapFactor = 8
)

// Broker maintains the authenticated MQTT session, multiplexes inbound
// C&C, and publishes telemetry. Not safe for concurrent use; one goroutine
// runs Run at a time.
type Broker struct {
	client MQTTClient
	creds  *credential.Source
	bus    *cnc.Bus
	topics topics
	log    *slog.Logger
	now    Clock

	state      state
	activeCfg  cnc.CollectConfig
	lastSeen   time.Time
	pauseSince *time.Time

	pending map[string][]beacon.Beacon

	// OnBeacon, if set, is called with every beacon observed on the bus
	// regardless of collecting state — used to tee live observations to
	// the debug status server without coupling it to publish logic.
	OnBeacon func(beacon.Beacon)

	shutdown chan struct{}
}

// Clock abstracts time.Now for deterministic watchdog tests.
type Clock func() time.Time

// New constructs a Broker. deviceID is the gateway's own IoT Core client
// identity (used for config/commands/state); per-tag topics are addressed
// by the observed beacon's own MAC.
func New(client MQTTClient, creds *credential.Source, deviceID string, bus *cnc.Bus, log *slog.Logger) *Broker {
	return &Broker{
		client:   client,
		creds:    creds,
		bus:      bus,
		topics:   newTopics(deviceID),
		log:      log,
		now:      time.Now,
		state:    disconnected,
		pending:  make(map[string][]beacon.Beacon),
		shutdown: make(chan struct{}, 1),
	}
}

// Shutdown requests a graceful stop from outside the worker, mirroring the
// SHUTDOWN command a client would otherwise send over the commands topic.
// Safe to call once from any goroutine; further calls are no-ops.
func (b *Broker) Shutdown() {
	select {
	case b.shutdown <- struct{}{}:
	default:
	}
}

// Run executes the broker's state machine until SHUTDOWN (CleanExit) or a
// condition requiring the supervisor to restart this worker (Restart).
func (b *Broker) Run() Outcome {
	if err := b.connect(); err != nil {
		b.log.Error("broker: initial connect failed", "error", err)
		return Restart
	}
	b.lastSeen = b.now()

	for {
		select {
		case <-b.shutdown:
			b.detachAllTags()
			b.client.Disconnect()
			b.state = terminal
			return CleanExit
		default:
		}

		if b.now().Sub(b.lastSeen) >= silenceWatchdog {
			b.log.Warn("broker: beacon silence watchdog fired")
			b.bus.Commands <- cnc.NewCommand(cnc.Reset)
			b.client.Disconnect()
			b.state = disconnected
			return Restart
		}

		if outcome, done := b.drainInbox(); done {
			return outcome
		}

		if outcome, done := b.drainBeacons(); done {
			return outcome
		}

		if !b.activeCfg.Collecting && b.pauseSince != nil {
			if b.now().Sub(*b.pauseSince) >= pauseKeepAlive {
				b.publishState()
				now := b.now()
				b.pauseSince = &now
			}
		}

		time.Sleep(pollInterval)
	}
}

func (b *Broker) connect() error {
	if b.client.IsConnected() {
		b.client.Disconnect()
	}
	metrics.Reconnects.Inc()
	token, err := b.creds.IssueNew(b.now())
	if err != nil {
		metrics.BrokerConnected.Set(0)
		return err
	}
	if err := b.client.Connect(token, b.topics.config(), b.topics.commandRoot()); err != nil {
		metrics.BrokerConnected.Set(0)
		return err
	}
	b.state = connected
	metrics.BrokerConnected.Set(1)
	b.reattachKnownTags()
	return nil
}

// ensureFreshSession renews the JWT and rebuilds the session whenever it is
// within the expiry guard or already dead, before any publish proceeds.
func (b *Broker) ensureFreshSession() error {
	if b.creds.IsValid(b.now(), renewalGuard) && b.client.IsConnected() {
		return nil
	}
	return b.connect()
}

func (b *Broker) publish(topic string, payload []byte) error {
	if err := b.ensureFreshSession(); err != nil {
		return err
	}
	correlationID := uuid.NewString()
	kind := topicKindFor(topic, b.topics)
	if err := b.client.Publish(topic, payload); err != nil {
		b.log.Error("broker: publish failed", "topic", topic, "correlation_id", correlationID, "error", err)
		metrics.Publishes.WithLabelValues(kind, metrics.StatusFailed).Inc()
		return err
	}
	b.log.Debug("broker: published", "topic", topic, "correlation_id", correlationID)
	metrics.Publishes.WithLabelValues(kind, metrics.StatusSuccess).Inc()
	return nil
}

// topicKindFor labels a topic for the publishes metric: state for the state
// topic, events for every other topic (attach and detach included). Attach
// and detach outcomes are additionally counted in AttachEvents by tryAttach,
// reattachKnownTags and detachAllTags.
func topicKindFor(topic string, t topics) string {
	if topic == t.state() {
		return metrics.TopicKindState
	}
	return metrics.TopicKindEvents
}

func (b *Broker) publishState() {
	data, err := json.MarshalIndent(b.activeCfg, "", "  ")
	if err != nil {
		b.log.Error("broker: marshal state", "error", err)
		return
	}
	_ = b.publish(b.topics.state(), data)
}

func (b *Broker) setCollectingState(collecting bool) {
	b.activeCfg.Collecting = collecting
	b.publishState()
}

func (b *Broker) enableCollecting() {
	b.setCollectingState(true)
	b.pauseSince = nil
}

func (b *Broker) disableCollecting() {
	b.setCollectingState(false)
	now := b.now()
	b.pauseSince = &now
}

// reattachKnownTags republishes attach for every tag already in the pending
// map, dropping any tag whose attach fails.
func (b *Broker) reattachKnownTags() {
	for address := range b.pending {
		if err := b.publish(b.topics.attach(address), []byte("{}")); err != nil {
			metrics.AttachEvents.WithLabelValues(metrics.KindAttach, metrics.StatusFailed).Inc()
			delete(b.pending, address)
			continue
		}
		metrics.AttachEvents.WithLabelValues(metrics.KindAttach, metrics.StatusSuccess).Inc()
	}
}

func (b *Broker) detachAllTags() {
	for address := range b.pending {
		status := metrics.StatusSuccess
		if err := b.publish(b.topics.detach(address), []byte("{}")); err != nil {
			status = metrics.StatusFailed
		}
		metrics.AttachEvents.WithLabelValues(metrics.KindDetach, status).Inc()
	}
}

func (b *Broker) drainInbox() (Outcome, bool) {
	for {
		select {
		case msg := <-b.client.Inbox():
			switch {
			case msg.Topic == b.topics.config():
				b.handleConfigMessage(msg.Payload)
			case b.topics.isCommandTopic(msg.Topic):
				if outcome, done := b.handleCommandMessage(msg.Payload); done {
					return outcome, true
				}
			default:
				b.log.Debug("broker: message on unrecognized topic", "topic", msg.Topic)
			}
		default:
			return 0, false
		}
	}
}

func (b *Broker) handleConfigMessage(payload []byte) {
	var next cnc.CollectConfig
	if err := json.Unmarshal(payload, &next); err != nil {
		b.log.Warn("broker: unparseable config message", "error", err)
		return
	}
	if next == b.activeCfg {
		return
	}
	b.activeCfg = next
	if next.Collecting {
		b.enableCollecting()
	} else {
		b.disableCollecting()
	}
	b.bus.Commands <- cnc.NewConfig(next)
}

func (b *Broker) handleCommandMessage(payload []byte) (Outcome, bool) {
	var cmd cnc.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.log.Warn("broker: unparseable command message", "error", err)
		return 0, false
	}

	b.bus.Commands <- cnc.NewCommand(cmd.Kind)

	switch cmd.Kind {
	case cnc.Collect:
		b.activeCfg.Collecting = true
		b.enableCollecting()
	case cnc.Pause:
		b.activeCfg.Collecting = false
		b.disableCollecting()
	case cnc.Shutdown:
		b.detachAllTags()
		b.client.Disconnect()
		b.state = terminal
		return CleanExit, true
	case cnc.Reset:
		b.client.Disconnect()
		b.state = disconnected
		b.bus.Commands <- cnc.NewConfig(b.activeCfg)
		return Restart, true
	}
	return 0, false
}

func (b *Broker) drainBeacons() (Outcome, bool) {
	for {
		select {
		case bcn := <-b.bus.Beacons:
			b.lastSeen = b.now()
			if b.OnBeacon != nil {
				b.OnBeacon(bcn)
			}
			if b.activeCfg.Collecting {
				b.handleBeacon(bcn)
			}
		default:
			return 0, false
		}
	}
}

func (b *Broker) handleBeacon(bcn beacon.Beacon) {
	if !b.tryAttach(bcn.Address) {
		return
	}

	size := int(b.activeCfg.CollectionSizeOrDefault())
	if size <= 1 {
		data, err := json.MarshalIndent(bcn, "", "  ")
		if err != nil {
			b.log.Error("broker: marshal beacon", "error", err)
			return
		}
		if err := b.publish(b.topics.events(bcn.Address, b.activeCfg.EventSubfolder), data); err != nil {
			b.log.Error("broker: beacon publish dropped", "address", bcn.Address, "error", err)
		}
		return
	}

	batch := append(b.pending[bcn.Address], bcn)
	if len(batch) >= size {
		data, err := json.MarshalIndent(batch, "", "  ")
		if err != nil {
			b.log.Error("broker: marshal batch", "error", err)
			b.pending[bcn.Address] = capPending(batch, size)
			return
		}
		if err := b.publish(b.topics.events(bcn.Address, b.activeCfg.EventSubfolder), data); err != nil {
			b.log.Warn("broker: batch publish failed, retrying next trigger", "address", bcn.Address, "error", err)
			b.pending[bcn.Address] = capPending(batch, size)
			return
		}
		b.pending[bcn.Address] = nil
		return
	}
	b.pending[bcn.Address] = capPending(batch, size)
}

// capPending bounds a pending batch to collection_size*8 entries, dropping
// the oldest first, so a persistently failing publish cannot grow memory
// without limit.
func capPending(batch []beacon.Beacon, size int) []beacon.Beacon {
	limit := size * pendingCapFactor
	if limit <= 0 || len(batch) <= limit {
		return batch
	}
	return batch[len(batch)-limit:]
}

// tryAttach publishes an attach claim the first time address is seen while
// collecting. Returns false (caller should drop the beacon) if attach fails.
func (b *Broker) tryAttach(address string) bool {
	if _, known := b.pending[address]; known {
		return true
	}
	if err := b.publish(b.topics.attach(address), []byte("{}")); err != nil {
		b.log.Warn("broker: attach failed, dropping beacon", "address", address, "error", err)
		metrics.AttachEvents.WithLabelValues(metrics.KindAttach, metrics.StatusFailed).Inc()
		metrics.BeaconsDropped.WithLabelValues(metrics.DropReasonAttachFailed).Inc()
		return false
	}
	metrics.AttachEvents.WithLabelValues(metrics.KindAttach, metrics.StatusSuccess).Inc()
	b.pending[address] = nil
	return true
}
