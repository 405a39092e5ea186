package poweredup

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/poweredup/internal/control"
	"github.com/nerrad567/poweredup/internal/hub"
	"github.com/nerrad567/poweredup/internal/infrastructure/config"
	"github.com/nerrad567/poweredup/internal/infrastructure/mqtt"
	"github.com/nerrad567/poweredup/internal/lwp3"
)

const (
	// defaultCommandTimeout bounds one command's transport writes.
	defaultCommandTimeout = 5 * time.Second

	// qosValue is used for high-rate value samples; everything else is QoS 1.
	qosValue byte = 0
	qosState byte = 1

	sourceMQTT = "mqtt"
)

// Logger is the structured logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the subset of the MQTT client the bridge uses.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Session is the hub session as seen by the bridge. SessionAdapter wraps a
// *hub.Session to satisfy it.
type Session interface {
	control.Hub
	HubStatus

	Topics() hub.Topics
	Properties() hub.Properties
	Ports() []hub.PortRecord
	Port(port uint8) (hub.PortRecord, error)
	PortDevice(port uint8) (control.Device, error)
	SubscribeValues(ctx context.Context, port, mode uint8, delta uint32) (<-chan hub.Sample, func(), error)
}

// SampleSink receives every value sample the bridge forwards.
// telemetry.Recorder satisfies it.
type SampleSink interface {
	RecordSample(ioType lwp3.IOType, s hub.Sample)
}

// NoticeSink receives every hub notification.
type NoticeSink interface {
	RecordNotice(n hub.Notice)
}

// CommandLog persists each command with its acknowledgement.
// *audit.SQLiteRepository satisfies it.
type CommandLog interface {
	RecordCommand(ctx context.Context, cmd control.Command, ack control.Ack) error
}

// BridgeOptions holds the dependencies for creating a Bridge.
type BridgeOptions struct {
	// HubID names the hub in MQTT topics. Required.
	HubID string

	// Version is reported in health messages.
	Version string

	// Session is the connected hub. Required.
	Session Session

	// MQTT is the broker client. When nil the bridge only feeds sinks.
	MQTT MQTTClient

	// Subscriptions lists the port modes to stream while their port is ready.
	Subscriptions []config.SubscriptionConfig

	// HealthInterval is the health publishing period. Default: 30s.
	HealthInterval time.Duration

	// CommandTimeout bounds a single command. Default: 5s.
	CommandTimeout time.Duration

	SampleSinks []SampleSink
	NoticeSinks []NoticeSink

	// CommandLog records executed commands. Optional.
	CommandLog CommandLog

	Logger Logger
}

// Stats are bridge counters.
type Stats struct {
	ValuesPublished uint64 `json:"values_published"`
	Commands        uint64 `json:"commands"`
	CommandsFailed  uint64 `json:"commands_failed"`
	Subscriptions   int    `json:"subscriptions"`
}

// Bridge connects one hub session to MQTT and to the registered sinks.
type Bridge struct {
	hubID          string
	session        Session
	mqtt           MQTTClient
	subs           []config.SubscriptionConfig
	commandTimeout time.Duration
	sampleSinks    []SampleSink
	noticeSinks    []NoticeSink
	commandLog     CommandLog
	health         *HealthReporter
	topics         mqtt.Topics

	// active maps a port to the cancel function of its value stream.
	active   map[uint8]func()
	activeMu sync.Mutex

	valuesPublished atomic.Uint64
	commands        atomic.Uint64
	commandsFailed  atomic.Uint64

	// ctx bounds in-flight commands and value streams; cancelled by Stop.
	ctx       context.Context
	ctxCancel context.CancelFunc

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge. Call Start to begin bridging.
//
// Parameters:
//   - opts: Session and HubID are required; everything else is optional
//
// Returns:
//   - *Bridge: Ready to start
//   - error: ErrSessionRequired or ErrHubIDRequired
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Session == nil {
		return nil, ErrSessionRequired
	}
	if opts.HubID == "" {
		return nil, ErrHubIDRequired
	}

	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		hubID:          opts.HubID,
		session:        opts.Session,
		mqtt:           opts.MQTT,
		subs:           opts.Subscriptions,
		commandTimeout: timeout,
		sampleSinks:    opts.SampleSinks,
		noticeSinks:    opts.NoticeSinks,
		commandLog:     opts.CommandLog,
		active:         make(map[uint8]func()),
		ctx:            ctx,
		ctxCancel:      cancel,
		done:           make(chan struct{}),
		logger:         opts.Logger,
	}

	var publisher HealthPublisher
	if opts.MQTT != nil {
		publisher = opts.MQTT
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		HubID:     opts.HubID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: publisher,
		Hub:       opts.Session,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to command topics, publishes the current hub state and
// port records, starts the configured value streams for ready ports, and
// begins health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Subscribe before the snapshot below so no port_ready is missed.
	notices := b.session.Topics().HubNotification.Subscribe()

	if b.mqtt != nil {
		portTopic := b.topics.AllPortCommands(b.hubID)
		if err := b.mqtt.Subscribe(portTopic, qosState, b.handlePortCommand); err != nil {
			notices.Close()
			return fmt.Errorf("subscribe to port commands: %w", err)
		}
		hubTopic := b.topics.HubCommand(b.hubID)
		if err := b.mqtt.Subscribe(hubTopic, qosState, b.handleHubCommand); err != nil {
			notices.Close()
			return fmt.Errorf("subscribe to hub commands: %w", err)
		}
		b.logInfo("subscribed to commands", "port_topic", portTopic, "hub_topic", hubTopic)
	}

	b.publishState()
	for _, rec := range b.session.Ports() {
		if rec.Ready {
			b.portReady(rec)
		}
	}

	b.wg.Add(1)
	go b.watchNotices(notices)

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}

	b.logInfo("bridge started", "hub_id", b.hubID, "subscriptions", len(b.subs))
	return nil
}

// Stop ends every value stream and health reporting. Safe to call more
// than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.stopAllValues()
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	b.activeMu.Lock()
	n := len(b.active)
	b.activeMu.Unlock()
	return Stats{
		ValuesPublished: b.valuesPublished.Load(),
		Commands:        b.commands.Load(),
		CommandsFailed:  b.commandsFailed.Load(),
		Subscriptions:   n,
	}
}

// watchNotices forwards hub notifications until the session ends or the
// bridge stops.
func (b *Bridge) watchNotices(recv *hub.Receiver[hub.Notice]) {
	defer b.wg.Done()
	defer recv.Close()

	for {
		select {
		case <-b.done:
			return
		case n, ok := <-recv.C:
			if !ok {
				b.sessionEnded()
				return
			}
			b.handleNotice(n)
		}
	}
}

func (b *Bridge) handleNotice(n hub.Notice) {
	for _, sink := range b.noticeSinks {
		sink.RecordNotice(n)
	}

	switch n.Kind {
	case hub.NoticeProperty:
		b.publishState()
	case hub.NoticePortReady:
		rec, err := b.session.Port(n.Port)
		if err != nil {
			b.logDebug("ready port vanished", "port", n.Port, "error", err)
			return
		}
		b.portReady(rec)
		b.publishState()
	case hub.NoticeDetached:
		b.stopValues(n.Port)
		// An empty retained payload clears the port's info topic.
		b.publish(b.topics.PortInfo(b.hubID, n.Port), nil, qosState, true)
		b.publishNotice(n)
		b.publishState()
	default:
		b.publishNotice(n)
	}
}

func (b *Bridge) sessionEnded() {
	b.logWarn("hub session ended", "hub_id", b.hubID)
	b.stopAllValues()
	b.publishState()
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}
}

// portReady publishes a port's record and starts its configured streams.
func (b *Bridge) portReady(rec hub.PortRecord) {
	b.publishJSON(b.topics.PortInfo(b.hubID, rec.Port), NewPortInfoMessage(b.hubID, rec), true)

	for _, sub := range b.subs {
		if sub.Port == rec.Port {
			b.startValues(rec.IOType, sub)
			// A port reports one input mode at a time.
			break
		}
	}
}

func (b *Bridge) startValues(ioType lwp3.IOType, sub config.SubscriptionConfig) {
	b.activeMu.Lock()
	defer b.activeMu.Unlock()

	if _, running := b.active[sub.Port]; running {
		return
	}
	select {
	case <-b.done:
		return
	default:
	}

	ch, cancel, err := b.session.SubscribeValues(b.ctx, sub.Port, sub.Mode, sub.Delta)
	if err != nil {
		b.logError("failed to subscribe to port values", err)
		return
	}
	b.active[sub.Port] = cancel
	b.health.SetSubscriptionCount(len(b.active))

	b.wg.Add(1)
	go b.pumpValues(ioType, ch)

	b.logInfo("streaming port values", "port", sub.Port, "mode", sub.Mode, "kind", ioType.String())
}

func (b *Bridge) stopValues(port uint8) {
	b.activeMu.Lock()
	cancel, ok := b.active[port]
	delete(b.active, port)
	b.health.SetSubscriptionCount(len(b.active))
	b.activeMu.Unlock()

	if ok {
		cancel()
	}
}

func (b *Bridge) stopAllValues() {
	b.activeMu.Lock()
	cancels := make([]func(), 0, len(b.active))
	for port, cancel := range b.active {
		cancels = append(cancels, cancel)
		delete(b.active, port)
	}
	b.health.SetSubscriptionCount(0)
	b.activeMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (b *Bridge) pumpValues(ioType lwp3.IOType, ch <-chan hub.Sample) {
	defer b.wg.Done()
	for s := range ch {
		b.forwardSample(ioType, s)
	}
}

func (b *Bridge) forwardSample(ioType lwp3.IOType, s hub.Sample) {
	for _, sink := range b.sampleSinks {
		sink.RecordSample(ioType, s)
	}
	if b.publishJSON(b.topics.PortValue(b.hubID, s.Port), NewValueMessage(b.hubID, ioType, s), false) {
		b.valuesPublished.Add(1)
	}
}

// handlePortCommand executes a command received on a port command topic.
func (b *Bridge) handlePortCommand(topic string, payload []byte) error {
	pt, err := mqtt.ParsePortTopic(topic)
	if err != nil {
		return err
	}

	cmd, err := control.Decode(payload, sourceMQTT)
	if err == nil {
		var dev control.Device
		if dev, err = b.session.PortDevice(pt.Port); err == nil {
			ctx, cancel := context.WithTimeout(b.ctx, b.commandTimeout)
			err = control.ExecutePort(ctx, dev, cmd)
			cancel()
		}
	}

	port := pt.Port
	b.acknowledge(cmd, control.NewAck(b.hubID, &port, cmd, err))
	if err != nil {
		return fmt.Errorf("port %d command %q: %w", pt.Port, cmd.Command, err)
	}
	b.logDebug("port command executed", "port", pt.Port, "command", cmd.Command, "command_id", cmd.ID)
	return nil
}

// handleHubCommand executes a command received on the hub command topic.
func (b *Bridge) handleHubCommand(_ string, payload []byte) error {
	cmd, err := control.Decode(payload, sourceMQTT)
	if err == nil {
		ctx, cancel := context.WithTimeout(b.ctx, b.commandTimeout)
		err = control.ExecuteHub(ctx, b.session, cmd)
		cancel()
	}

	b.acknowledge(cmd, control.NewAck(b.hubID, nil, cmd, err))
	if err != nil {
		return fmt.Errorf("hub command %q: %w", cmd.Command, err)
	}
	b.logDebug("hub command executed", "command", cmd.Command, "command_id", cmd.ID)
	return nil
}

func (b *Bridge) acknowledge(cmd control.Command, ack control.Ack) {
	b.commands.Add(1)
	if ack.Status == control.AckFailed {
		b.commandsFailed.Add(1)
	}
	b.publishJSON(b.topics.HubAck(b.hubID), ack, false)

	if b.commandLog == nil {
		return
	}
	if cmd.Source == "" {
		cmd.Source = sourceMQTT
	}
	if err := b.commandLog.RecordCommand(b.ctx, cmd, ack); err != nil {
		b.logError("failed to record command", err)
	}
}

func (b *Bridge) publishState() {
	ports := b.session.Ports()
	ids := make([]uint8, 0, len(ports))
	for _, rec := range ports {
		ids = append(ids, rec.Port)
	}
	b.publishJSON(b.topics.HubState(b.hubID), StateMessage{
		HubID:      b.hubID,
		Timestamp:  time.Now().UTC(),
		Connected:  b.session.Connected(),
		Properties: b.session.Properties(),
		Ports:      ids,
	}, true)
}

func (b *Bridge) publishNotice(n hub.Notice) {
	b.publishJSON(b.topics.HubNotice(b.hubID), NewNoticeMessage(b.hubID, n), false)
}

// publishJSON reports whether the message was handed to the broker.
func (b *Bridge) publishJSON(topic string, v any, retained bool) bool {
	if b.mqtt == nil {
		return false
	}
	payload, err := json.Marshal(v)
	if err != nil {
		b.logError("failed to marshal message", err)
		return false
	}
	qos := qosState
	if _, ok := v.(ValueMessage); ok {
		qos = qosValue
	}
	return b.publish(topic, payload, qos, retained)
}

func (b *Bridge) publish(topic string, payload []byte, qos byte, retained bool) bool {
	if b.mqtt == nil {
		return false
	}
	if err := b.mqtt.Publish(topic, payload, qos, retained); err != nil {
		b.logDebug("publish failed", "topic", topic, "error", err)
		return false
	}
	return true
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
