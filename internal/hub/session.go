package hub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/poweredup/internal/lwp3"
)

// Default session settings.
const (
	// defaultWriteTimeout bounds a single transport write when the caller's
	// context carries no deadline.
	defaultWriteTimeout = 2 * time.Second
)

// Logger is the structured logging interface used by the session.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Session.
type Options struct {
	// Logger is an optional structured logger.
	Logger Logger

	// TopicBuffer is the per-subscriber buffer of every topic.
	// Default: DefaultTopicBuffer.
	TopicBuffer int

	// WriteTimeout bounds writes whose context has no deadline.
	// Default: 2s.
	WriteTimeout time.Duration

	// Name, Kind and Address seed Properties from discovery. The hub's own
	// property reports overwrite Name once they arrive.
	Name    string
	Kind    Kind
	Address string
}

// Properties is the hub's identity and status as last reported.
type Properties struct {
	Name            string          `json:"name"`
	Kind            Kind            `json:"kind"`
	Address         string          `json:"address"`
	FirmwareVersion string          `json:"firmware_version,omitempty"`
	HardwareVersion string          `json:"hardware_version,omitempty"`
	MAC             string          `json:"mac,omitempty"`
	Manufacturer    string          `json:"manufacturer,omitempty"`
	BatteryPercent  uint8           `json:"battery_percent"`
	RSSI            int8            `json:"rssi"`
	Button          bool            `json:"button"`
	Alerts          map[string]bool `json:"alerts,omitempty"`
	LastAction      string          `json:"last_action,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (p Properties) clone() Properties {
	c := p
	if p.Alerts != nil {
		c.Alerts = make(map[string]bool, len(p.Alerts))
		for k, v := range p.Alerts {
			c.Alerts[k] = v
		}
	}
	return c
}

// Stats are session counters.
type Stats struct {
	FramesReceived  uint64 `json:"frames_received"`
	MalformedFrames uint64 `json:"malformed_frames"`
	FeedbackFrames  uint64 `json:"feedback_frames"`
	FramesSent      uint64 `json:"frames_sent"`
	WriteErrors     uint64 `json:"write_errors"`
	DroppedItems    uint64 `json:"dropped_items"`
}

// Topics are the broadcast channels a session publishes on.
type Topics struct {
	SingleValue     *Topic[*lwp3.PortValueSingle]
	CombinedValue   *Topic[*lwp3.PortValueCombined]
	NetworkCommand  *Topic[*lwp3.NetworkCommand]
	HubNotification *Topic[Notice]
}

func newTopics(buffer int) Topics {
	return Topics{
		SingleValue:     NewTopic[*lwp3.PortValueSingle](buffer),
		CombinedValue:   NewTopic[*lwp3.PortValueCombined](buffer),
		NetworkCommand:  NewTopic[*lwp3.NetworkCommand](buffer),
		HubNotification: NewTopic[Notice](buffer),
	}
}

func (t Topics) close() {
	t.SingleValue.Close()
	t.CombinedValue.Close()
	t.NetworkCommand.Close()
	t.HubNotification.Close()
}

func (t Topics) dropped() uint64 {
	return t.SingleValue.Dropped() + t.CombinedValue.Dropped() +
		t.NetworkCommand.Dropped() + t.HubNotification.Dropped()
}

// identityProperties are requested once on connect.
var identityProperties = [...]lwp3.HubPropertyRef{
	lwp3.PropAdvertisingName,
	lwp3.PropFwVersion,
	lwp3.PropHwVersion,
	lwp3.PropBatteryVoltage,
	lwp3.PropRSSI,
	lwp3.PropPrimaryMAC,
}

// liveProperties report on change for the lifetime of the session.
var liveProperties = [...]lwp3.HubPropertyRef{
	lwp3.PropBatteryVoltage,
	lwp3.PropRSSI,
}

// Session is one connected hub.
//
// The dispatcher goroutine is the only reader of the transport's event
// stream. mu guards props and registry; it is held for in-memory mutation
// and the handful of follow-up writes the negotiation issues, never while
// waiting for a reply.
type Session struct {
	transport Transport
	w         *writer
	topics    Topics

	mu       sync.Mutex
	props    Properties
	registry *Registry

	ctx    context.Context
	cancel context.CancelFunc
	done   *closeOnce

	framesReceived  atomic.Uint64
	malformedFrames atomic.Uint64
	feedbackFrames  atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// Connect starts a session on an open transport.
//
// The dispatcher starts before the identity requests go out so no reply is
// missed. The session outlives ctx; call Disconnect to end it.
//
// Parameters:
//   - ctx: Bounds the initial property requests
//   - t: Connected transport; the session takes ownership
//   - opts: Session options
//
// Returns:
//   - *Session: Running session
//   - error: ErrNilTransport, or the first failed request
func Connect(ctx context.Context, t Transport, opts Options) (*Session, error) {
	if t == nil {
		return nil, ErrNilTransport
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	done := newCloseOnce()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		transport: t,
		w:         &writer{t: t, done: done, timeout: opts.WriteTimeout},
		topics:    newTopics(opts.TopicBuffer),
		props: Properties{
			Name:    opts.Name,
			Kind:    opts.Kind,
			Address: opts.Address,
		},
		registry: NewRegistry(),
		ctx:      runCtx,
		cancel:   cancel,
		done:     done,
		logger:   opts.Logger,
	}
	s.registry.OnReady = s.portReady

	go s.dispatch()

	for _, ref := range identityProperties {
		if err := s.w.send(ctx, lwp3.RequestProperty(ref)); err != nil {
			s.Disconnect()
			return nil, fmt.Errorf("requesting %s: %w", ref, err)
		}
	}
	for _, ref := range liveProperties {
		if err := s.w.send(ctx, lwp3.EnablePropertyUpdates(ref)); err != nil {
			s.Disconnect()
			return nil, fmt.Errorf("enabling %s updates: %w", ref, err)
		}
	}

	s.logInfo("hub session started", "name", opts.Name, "address", opts.Address, "kind", opts.Kind.String())
	return s, nil
}

// Disconnect closes the transport and waits for the dispatcher to exit.
func (s *Session) Disconnect() {
	if err := s.transport.Close(); err != nil {
		s.logError("closing transport", err)
	}
	s.cancel()
	<-s.done.Done()
}

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done.Done()
}

// Connected reports whether the session is still running.
func (s *Session) Connected() bool {
	select {
	case <-s.done.Done():
		return false
	default:
		return true
	}
}

// Topics returns the session's broadcast topics.
func (s *Session) Topics() Topics {
	return s.topics
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		FramesReceived:  s.framesReceived.Load(),
		MalformedFrames: s.malformedFrames.Load(),
		FeedbackFrames:  s.feedbackFrames.Load(),
		FramesSent:      s.w.sent.Load(),
		WriteErrors:     s.w.failed.Load(),
		DroppedItems:    s.topics.dropped(),
	}
}

// Properties returns a copy of the hub's identity and status.
func (s *Session) Properties() Properties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props.clone()
}

// Ports returns copies of every port record, ordered by port id.
func (s *Session) Ports() []PortRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Snapshot()
}

// Port returns a copy of one port record.
func (s *Session) Port(port uint8) (PortRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.registry.Get(port)
	if !ok {
		return PortRecord{}, fmt.Errorf("%w: %d", ErrNotFound, port)
	}
	return rec, nil
}

// Device returns a command handle for the device on a port.
func (s *Session) Device(port uint8) (Device, error) {
	rec, err := s.Port(port)
	if err != nil {
		return Device{}, err
	}
	return s.newDevice(rec), nil
}

// DeviceByKind returns a handle for the lowest numbered port holding a
// device of kind t.
func (s *Session) DeviceByKind(t lwp3.IOType) (Device, error) {
	devices := s.DevicesByKind(t)
	if len(devices) == 0 {
		return Device{}, fmt.Errorf("%w: no %s attached", ErrNotFound, t)
	}
	return devices[0], nil
}

// DevicesByKind returns handles for every port holding a device of kind t,
// ordered by port id.
func (s *Session) DevicesByKind(t lwp3.IOType) []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Device
	for _, port := range s.registry.PortsOfKind(t) {
		rec, _ := s.registry.Get(port)
		out = append(out, s.newDevice(rec))
	}
	return out
}

// WaitReady blocks until the port's negotiation completes.
//
// Returns ErrNotFound if the port is not attached or detaches while
// waiting, ErrDisconnected if the session ends, or ctx.Err().
func (s *Session) WaitReady(ctx context.Context, port uint8) (PortRecord, error) {
	s.mu.Lock()
	ready, removed, err := s.registry.waiters(port)
	s.mu.Unlock()
	if err != nil {
		return PortRecord{}, err
	}

	select {
	case <-ready:
		return s.Port(port)
	case <-removed:
		return PortRecord{}, fmt.Errorf("%w: %d detached", ErrNotFound, port)
	case <-s.done.Done():
		return PortRecord{}, ErrDisconnected
	case <-ctx.Done():
		return PortRecord{}, ctx.Err()
	}
}

// RequestProperty asks the hub to report a property once.
func (s *Session) RequestProperty(ctx context.Context, ref lwp3.HubPropertyRef) error {
	return s.w.send(ctx, lwp3.RequestProperty(ref))
}

// EnableUpdates asks the hub to report a property whenever it changes.
func (s *Session) EnableUpdates(ctx context.Context, ref lwp3.HubPropertyRef) error {
	return s.w.send(ctx, lwp3.EnablePropertyUpdates(ref))
}

// DisableUpdates stops unsolicited reports of a property.
func (s *Session) DisableUpdates(ctx context.Context, ref lwp3.HubPropertyRef) error {
	return s.w.send(ctx, lwp3.DisablePropertyUpdates(ref))
}

// SetName changes the hub's advertising name.
func (s *Session) SetName(ctx context.Context, name string) error {
	m, err := lwp3.SetAdvertisingName(name)
	if err != nil {
		return err
	}
	return s.w.send(ctx, m)
}

// Action sends a hub action such as switch off or busy indication.
func (s *Session) Action(ctx context.Context, a lwp3.HubActionType) error {
	return s.w.send(ctx, lwp3.Action(a))
}

// EnableAlert subscribes to a hub alert.
func (s *Session) EnableAlert(ctx context.Context, a lwp3.AlertType) error {
	return s.w.send(ctx, lwp3.Alert(a, lwp3.AlertOpEnable))
}

// DisableAlert unsubscribes from a hub alert.
func (s *Session) DisableAlert(ctx context.Context, a lwp3.AlertType) error {
	return s.w.send(ctx, lwp3.Alert(a, lwp3.AlertOpDisable))
}

// RequestAlert asks for the current state of a hub alert.
func (s *Session) RequestAlert(ctx context.Context, a lwp3.AlertType) error {
	return s.w.send(ctx, lwp3.Alert(a, lwp3.AlertOpRequestUpdate))
}

// SetupVirtualPort asks the hub to combine two ports. The hub answers with
// a virtual attach event that creates the composite record.
func (s *Session) SetupVirtualPort(ctx context.Context, portA, portB uint8) error {
	for _, p := range [...]uint8{portA, portB} {
		if _, err := s.Port(p); err != nil {
			return err
		}
	}
	return s.w.send(ctx, &lwp3.VirtualPortSetup{Connect: true, PortA: portA, PortB: portB})
}

// DisconnectVirtualPort asks the hub to split a virtual port.
func (s *Session) DisconnectVirtualPort(ctx context.Context, port uint8) error {
	rec, err := s.Port(port)
	if err != nil {
		return err
	}
	if !rec.Virtual {
		return fmt.Errorf("%w: port %d is not virtual", ErrUnsupported, port)
	}
	return s.w.send(ctx, &lwp3.VirtualPortSetup{Port: port})
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// logInfo logs an info message if logger is set.
func (s *Session) logInfo(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (s *Session) logWarn(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (s *Session) logError(msg string, err error) {
	if logger := s.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (s *Session) logDebug(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
