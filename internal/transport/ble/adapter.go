package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/nerrad567/poweredup/internal/hub"
)

// LPF2 GATT identifiers.
const (
	LPF2ServiceUUID        = "00001623-1212-efde-1623-785feabcd123"
	LPF2CharacteristicUUID = "00001624-1212-efde-1623-785feabcd123"
)

// Default adapter settings.
const (
	defaultScanTimeout    = 10 * time.Second
	defaultConnectTimeout = 15 * time.Second
	defaultEventBuffer    = 64
)

// Config holds adapter settings. Zero values use the defaults.
type Config struct {
	// ScanTimeout bounds Discover when the context has no deadline.
	ScanTimeout time.Duration

	// ConnectTimeout bounds Connect when the context has no deadline.
	ConnectTimeout time.Duration

	// EventBuffer is the capacity of a connection's event channel.
	EventBuffer int
}

// Adapter is the host Bluetooth adapter.
type Adapter struct {
	adapter *bluetooth.Adapter
	cfg     Config

	// scanMu serialises scans; the radio supports one at a time.
	scanMu sync.Mutex

	mu    sync.Mutex
	seen  map[string]bluetooth.Address
	conns map[string]*Conn

	logger   hub.Logger
	loggerMu sync.RWMutex
}

// Open enables the default Bluetooth adapter.
func Open(cfg Config) (*Adapter, error) {
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = defaultScanTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	adapter := bluetooth.DefaultAdapter
	if adapter == nil {
		return nil, ErrAdapterUnavailable
	}
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}

	a := &Adapter{
		adapter: adapter,
		cfg:     cfg,
		seen:    make(map[string]bluetooth.Address),
		conns:   make(map[string]*Conn),
	}
	adapter.SetConnectHandler(a.connectionChanged)
	return a, nil
}

// SetLogger sets the logger for the adapter.
func (a *Adapter) SetLogger(logger hub.Logger) {
	a.loggerMu.Lock()
	a.logger = logger
	a.loggerMu.Unlock()
}

func (a *Adapter) logDebug(msg string, keysAndValues ...any) {
	a.loggerMu.RLock()
	logger := a.logger
	a.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (a *Adapter) logInfo(msg string, keysAndValues ...any) {
	a.loggerMu.RLock()
	logger := a.logger
	a.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// Discover scans for LEGO hubs passing filter.
//
// With a name or address filter the scan stops at the first match;
// otherwise it runs until ctx (or the configured scan timeout) expires and
// returns every hub seen.
//
// Parameters:
//   - ctx: Bounds the scan
//   - filter: Hub selection; the zero Filter matches any hub
//
// Returns:
//   - []hub.Discovered: Matching hubs in the order first seen
//   - error: ErrNoHubFound, or the adapter's scan error
func (a *Adapter) Discover(ctx context.Context, filter hub.Filter) ([]hub.Discovered, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ScanTimeout)
		defer cancel()
	}

	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	set := newScanSet(filter)
	errc := make(chan error, 1)
	go func() {
		errc <- a.adapter.Scan(func(ad *bluetooth.Adapter, r bluetooth.ScanResult) {
			d, ok := identify(r.LocalName(), r.Address.String(), r.RSSI, r.ManufacturerData())
			if !ok {
				return
			}
			a.mu.Lock()
			a.seen[strings.ToUpper(d.Address)] = r.Address
			a.mu.Unlock()

			if set.add(d) {
				_ = ad.StopScan()
			}
		})
	}()

	select {
	case err := <-errc:
		if err != nil {
			return nil, fmt.Errorf("ble: scan: %w", err)
		}
	case <-ctx.Done():
		_ = a.adapter.StopScan()
		<-errc
	}

	found := set.results()
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHubFound, describe(filter))
	}
	a.logInfo("scan finished", "hubs", len(found))
	return found, nil
}

func describe(f hub.Filter) string {
	switch {
	case f.Name != "" && f.Address != "":
		return fmt.Sprintf("name %q address %s", f.Name, f.Address)
	case f.Name != "":
		return fmt.Sprintf("name %q", f.Name)
	case f.Address != "":
		return "address " + f.Address
	default:
		return "any hub"
	}
}

// Connect opens a GATT connection to a discovered hub and enables
// notifications on its LPF2 characteristic.
func (a *Adapter) Connect(ctx context.Context, d hub.Discovered) (*Conn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ConnectTimeout)
		defer cancel()
	}

	addr, err := a.address(ctx, d.Address)
	if err != nil {
		return nil, err
	}

	type result struct {
		dev bluetooth.Device
		err error
	}
	resc := make(chan result, 1)
	go func() {
		dev, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		resc <- result{dev, err}
	}()

	var dev bluetooth.Device
	select {
	case r := <-resc:
		if r.err != nil {
			return nil, fmt.Errorf("ble: connecting to %s: %w", d.Address, r.err)
		}
		dev = r.dev
	case <-ctx.Done():
		// A late connection is torn down once it completes.
		go func() {
			if r := <-resc; r.err == nil {
				_ = r.dev.Disconnect()
			}
		}()
		return nil, fmt.Errorf("ble: connecting to %s: %w", d.Address, ctx.Err())
	}

	char, err := lpf2Characteristic(dev)
	if err != nil {
		_ = dev.Disconnect()
		return nil, err
	}

	c := newConn(dev, d.Address, a.cfg.EventBuffer)
	c.char = char
	c.onClose = a.forget
	if err := char.EnableNotifications(c.deliver); err != nil {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("ble: enabling notifications: %w", err)
	}

	a.mu.Lock()
	a.conns[strings.ToUpper(d.Address)] = c
	a.mu.Unlock()

	a.logInfo("hub connected", "address", d.Address, "name", d.Name)
	return c, nil
}

// address resolves a textual address to one seen in a scan, scanning for
// it if needed.
func (a *Adapter) address(ctx context.Context, address string) (bluetooth.Address, error) {
	key := strings.ToUpper(address)
	a.mu.Lock()
	addr, ok := a.seen[key]
	a.mu.Unlock()
	if ok {
		return addr, nil
	}

	if _, err := a.Discover(ctx, hub.Filter{Address: address}); err != nil {
		return bluetooth.Address{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	addr, ok = a.seen[key]
	if !ok {
		return bluetooth.Address{}, fmt.Errorf("%w: address %s", ErrNoHubFound, address)
	}
	return addr, nil
}

func lpf2Characteristic(dev bluetooth.Device) (bluetooth.DeviceCharacteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(LPF2ServiceUUID)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, err
	}
	charUUID, err := bluetooth.ParseUUID(LPF2CharacteristicUUID)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, err
	}

	services, err := dev.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(services) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: service discovery: %v", ErrCharacteristicNotFound, err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil || len(chars) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: characteristic discovery: %v", ErrCharacteristicNotFound, err)
	}
	return chars[0], nil
}

// connectionChanged closes the Conn of a device the stack reports as gone.
func (a *Adapter) connectionChanged(dev bluetooth.Device, connected bool) {
	if connected {
		return
	}
	key := strings.ToUpper(dev.Address.String())
	a.mu.Lock()
	c, ok := a.conns[key]
	a.mu.Unlock()
	if ok {
		a.logDebug("hub link lost", "address", key)
		c.markClosed()
	}
}

func (a *Adapter) forget(address string) {
	a.mu.Lock()
	delete(a.conns, strings.ToUpper(address))
	a.mu.Unlock()
}
