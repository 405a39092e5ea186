package hub

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/poweredup/internal/lwp3"
)

// Device is a command handle for the device on one port.
//
// Devices are small values; copy them freely. A handle holds the session's
// cached writer, so issuing a command never takes the session lock.
// Commands return once the transport accepts the frame; they do not wait
// for the hub to act on it.
type Device struct {
	port   uint8
	ioType lwp3.IOType
	w      *writer
	s      *Session
}

func (s *Session) newDevice(rec PortRecord) Device {
	return Device{port: rec.Port, ioType: rec.IOType, w: s.w, s: s}
}

// Port returns the port id the handle addresses.
func (d Device) Port() uint8 { return d.port }

// IOType returns the kind of device on the port when the handle was made.
func (d Device) IOType() lwp3.IOType { return d.ioType }

// Family returns the command family of the device.
func (d Device) Family() lwp3.Family { return d.ioType.Family() }

func (d Device) require(cmd string, families ...lwp3.Family) error {
	if slices.Contains(families, d.Family()) {
		return nil
	}
	return fmt.Errorf("%w: %s on %s (port %d)", ErrUnsupported, cmd, d.ioType, d.port)
}

func (d Device) send(ctx context.Context, m lwp3.Message) error {
	return d.w.send(ctx, m)
}

// StartSpeed runs a tacho motor at a regulated speed (-100..100).
func (d Device) StartSpeed(ctx context.Context, speed int8, maxPower uint8) error {
	if err := d.require("start_speed", lwp3.FamilyTachoMotor); err != nil {
		return err
	}
	return d.send(ctx, lwp3.StartSpeed(d.port, speed, maxPower, lwp3.ProfileBoth))
}

// StartSpeedForTime runs a tacho motor for a duration.
func (d Device) StartSpeedForTime(ctx context.Context, dur time.Duration, speed int8, maxPower uint8, end lwp3.EndState) error {
	if err := d.require("start_speed_for_time", lwp3.FamilyTachoMotor); err != nil {
		return err
	}
	ms := min(dur.Milliseconds(), 0xFFFF) //nolint:mnd // uint16 milliseconds
	return d.send(ctx, lwp3.StartSpeedForTime(d.port, uint16(max(ms, 0)), speed, maxPower, end, lwp3.ProfileBoth))
}

// StartSpeedForDegrees turns a tacho motor by a relative angle.
func (d Device) StartSpeedForDegrees(ctx context.Context, degrees int32, speed int8, maxPower uint8, end lwp3.EndState) error {
	if err := d.require("start_speed_for_degrees", lwp3.FamilyTachoMotor); err != nil {
		return err
	}
	return d.send(ctx, lwp3.StartSpeedForDegrees(d.port, degrees, speed, maxPower, end, lwp3.ProfileBoth))
}

// GotoAbsolutePosition moves a tacho motor to an encoder position.
func (d Device) GotoAbsolutePosition(ctx context.Context, position int32, speed int8, maxPower uint8, end lwp3.EndState) error {
	if err := d.require("goto_absolute_position", lwp3.FamilyTachoMotor); err != nil {
		return err
	}
	return d.send(ctx, lwp3.GotoAbsolutePosition(d.port, position, speed, maxPower, end, lwp3.ProfileBoth))
}

// PresetEncoder redefines a tacho motor's current position.
func (d Device) PresetEncoder(ctx context.Context, position int32) error {
	if err := d.require("preset_encoder", lwp3.FamilyTachoMotor); err != nil {
		return err
	}
	return d.send(ctx, lwp3.PresetEncoder(d.port, position))
}

// SetAccTime sets the acceleration ramp used by profiled moves.
func (d Device) SetAccTime(ctx context.Context, ramp time.Duration) error {
	if err := d.require("set_acc_time", lwp3.FamilyTachoMotor); err != nil {
		return err
	}
	return d.send(ctx, lwp3.SetAccTime(d.port, rampMillis(ramp), uint8(lwp3.ProfileAcc)))
}

// SetDecTime sets the deceleration ramp used by profiled moves.
func (d Device) SetDecTime(ctx context.Context, ramp time.Duration) error {
	if err := d.require("set_dec_time", lwp3.FamilyTachoMotor); err != nil {
		return err
	}
	return d.send(ctx, lwp3.SetDecTime(d.port, rampMillis(ramp), uint8(lwp3.ProfileDec)))
}

func rampMillis(d time.Duration) uint16 {
	return uint16(max(min(d.Milliseconds(), 10000), 0)) //nolint:mnd // LWP3 ramp limit
}

// StartPower sets unregulated power on a motor or light.
func (d Device) StartPower(ctx context.Context, p lwp3.Power) error {
	if err := d.require("start_power", lwp3.FamilyMotor, lwp3.FamilyTachoMotor, lwp3.FamilyLight); err != nil {
		return err
	}
	return d.send(ctx, lwp3.StartPower(d.port, p))
}

// SetColor switches the hub LED to indexed colour mode and sets a colour.
func (d Device) SetColor(ctx context.Context, c lwp3.Color) error {
	if err := d.require("set_color", lwp3.FamilyHubLED); err != nil {
		return err
	}
	if err := d.SetMode(ctx, lwp3.ModeLEDColorNo, 1, false); err != nil {
		return err
	}
	return d.send(ctx, lwp3.SetRGBColorNo(d.port, c))
}

// SetRGB switches the hub LED to RGB mode and sets a colour.
func (d Device) SetRGB(ctx context.Context, r, g, b uint8) error {
	if err := d.require("set_rgb", lwp3.FamilyHubLED); err != nil {
		return err
	}
	if err := d.SetMode(ctx, lwp3.ModeLEDRGB, 1, false); err != nil {
		return err
	}
	return d.send(ctx, lwp3.SetRGBColors(d.port, r, g, b))
}

// SetMode selects the port's input mode and its notification settings.
func (d Device) SetMode(ctx context.Context, mode uint8, delta uint32, notify bool) error {
	return d.send(ctx, &lwp3.PortInputFormatSetupSingle{InputFormat: lwp3.InputFormat{
		Port:   d.port,
		Mode:   mode,
		Delta:  delta,
		Notify: notify,
	}})
}

// WriteDirect writes raw mode data to the port.
func (d Device) WriteDirect(ctx context.Context, mode uint8, data []byte) error {
	return d.send(ctx, lwp3.WriteDirectModeData(d.port, mode, data))
}

// Sample is one decoded value report.
//
// Format is the value format used for decoding. When the mode's format had
// not been negotiated yet the payload is decoded as 32-bit signed datasets
// (narrower when the payload length is not a multiple of four) and
// Defaulted is set.
type Sample struct {
	Port      uint8            `json:"port"`
	Mode      uint8            `json:"mode"`
	Values    lwp3.Values      `json:"values"`
	Raw       []byte           `json:"raw"`
	Format    lwp3.ValueFormat `json:"format"`
	Defaulted bool             `json:"defaulted"`
	Time      time.Time        `json:"time"`
}

// defaultFormat picks the widest integer type that evenly divides the
// payload.
func defaultFormat(raw []byte) lwp3.ValueFormat {
	switch {
	case len(raw)%4 == 0: //nolint:mnd // int32
		return lwp3.ValueFormat{Type: lwp3.DatasetInt32}
	case len(raw)%2 == 0: //nolint:mnd // int16
		return lwp3.ValueFormat{Type: lwp3.DatasetInt16}
	default:
		return lwp3.ValueFormat{Type: lwp3.DatasetInt8}
	}
}

// Subscription is a live, filtered view of one port's value reports.
// C closes when the subscription ends: Close, the subscribing context, or
// the session ending.
type Subscription struct {
	C <-chan Sample

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close ends the subscription and waits for its goroutine to exit. Other
// subscribers are unaffected.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Subscribe enables value notifications for a mode and returns a fresh
// receiver of decoded samples for this port.
//
// The topic subscription is taken before the setup frame is written so the
// first report is not missed. Only reports that arrive after the call are
// delivered.
//
// Parameters:
//   - ctx: Bounds the setup write and the lifetime of the subscription
//   - mode: Input mode to report
//   - delta: Minimum change that triggers a report
//
// Returns:
//   - *Subscription: Live sample stream; call Close when done
//   - error: Transport failure or ErrDisconnected
func (d Device) Subscribe(ctx context.Context, mode uint8, delta uint32) (*Subscription, error) {
	recv := d.s.topics.SingleValue.Subscribe()
	if err := d.SetMode(ctx, mode, delta, true); err != nil {
		recv.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan Sample, cap(recv.ch))
	sub := &Subscription{C: out, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer close(out)
		defer recv.Close()

		var (
			format lwp3.ValueFormat
			known  bool
		)
		for {
			select {
			case <-subCtx.Done():
				return
			case v, ok := <-recv.C:
				if !ok {
					return
				}
				if v.Port != d.port {
					continue
				}
				if !known {
					format, known = d.s.valueFormat(d.port, mode)
				}
				sample, err := decodeSample(v, mode, format, known)
				if err != nil {
					d.s.logDebug("undecodable sample", "port", d.port, "mode", mode, "error", err)
					continue
				}
				select {
				case out <- sample:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()
	return sub, nil
}

func decodeSample(v *lwp3.PortValueSingle, mode uint8, format lwp3.ValueFormat, known bool) (Sample, error) {
	if !known {
		format = defaultFormat(v.Data)
	}
	values, err := lwp3.DecodeValues(format, v.Data)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Port:      v.Port,
		Mode:      mode,
		Values:    values,
		Raw:       v.Data,
		Format:    format,
		Defaulted: !known,
		Time:      time.Now(),
	}, nil
}

// valueFormat returns the negotiated value format of a port mode.
func (s *Session) valueFormat(port, mode uint8) (lwp3.ValueFormat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.valueFormat(port, mode)
}

// CombinedValues returns a receiver of combined value reports for this
// port. The caller configures the combination with SetupCombined; call the
// returned function to unsubscribe.
func (d Device) CombinedValues(ctx context.Context) (<-chan *lwp3.PortValueCombined, func()) {
	recv := d.s.topics.CombinedValue.Subscribe()
	out := make(chan *lwp3.PortValueCombined, cap(recv.ch))
	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)
		defer recv.Close()
		for {
			select {
			case <-subCtx.Done():
				return
			case v, ok := <-recv.C:
				if !ok {
					return
				}
				if v.Port != d.port {
					continue
				}
				select {
				case out <- v:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return out, func() {
		cancel()
		<-done
	}
}

// SetupCombined sends a raw combined input format setup sub-command.
func (d Device) SetupCombined(ctx context.Context, subcommand uint8, payload []byte) error {
	return d.send(ctx, &lwp3.PortInputFormatSetupCombined{Port: d.port, Subcommand: subcommand, Payload: payload})
}
