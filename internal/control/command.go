package control

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nerrad567/poweredup/internal/lwp3"
)

// Command is a port or hub instruction.
type Command struct {
	// ID correlates the command with its acknowledgement. Receivers assign
	// one when it is empty.
	ID string `json:"id,omitempty"`

	// Command is the command name (e.g. "start_speed", "set_color", "action").
	Command string `json:"command"`

	// Parameters holds command-specific values, e.g. {"speed": 50}.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("mqtt", "api").
	Source string `json:"source,omitempty"`
}

// Device is the command surface of a port. hub.Device satisfies it.
type Device interface {
	Port() uint8
	IOType() lwp3.IOType
	StartSpeed(ctx context.Context, speed int8, maxPower uint8) error
	StartSpeedForTime(ctx context.Context, dur time.Duration, speed int8, maxPower uint8, end lwp3.EndState) error
	StartSpeedForDegrees(ctx context.Context, degrees int32, speed int8, maxPower uint8, end lwp3.EndState) error
	GotoAbsolutePosition(ctx context.Context, position int32, speed int8, maxPower uint8, end lwp3.EndState) error
	PresetEncoder(ctx context.Context, position int32) error
	SetAccTime(ctx context.Context, ramp time.Duration) error
	SetDecTime(ctx context.Context, ramp time.Duration) error
	StartPower(ctx context.Context, p lwp3.Power) error
	SetColor(ctx context.Context, c lwp3.Color) error
	SetRGB(ctx context.Context, r, g, b uint8) error
	SetMode(ctx context.Context, mode uint8, delta uint32, notify bool) error
	WriteDirect(ctx context.Context, mode uint8, data []byte) error
}

// Hub is the command surface of a hub. *hub.Session satisfies it.
type Hub interface {
	RequestProperty(ctx context.Context, ref lwp3.HubPropertyRef) error
	EnableUpdates(ctx context.Context, ref lwp3.HubPropertyRef) error
	DisableUpdates(ctx context.Context, ref lwp3.HubPropertyRef) error
	SetName(ctx context.Context, name string) error
	Action(ctx context.Context, a lwp3.HubActionType) error
	EnableAlert(ctx context.Context, a lwp3.AlertType) error
	DisableAlert(ctx context.Context, a lwp3.AlertType) error
	RequestAlert(ctx context.Context, a lwp3.AlertType) error
	SetupVirtualPort(ctx context.Context, portA, portB uint8) error
	DisconnectVirtualPort(ctx context.Context, port uint8) error
}

// Port command names.
const (
	CmdStartSpeed           = "start_speed"
	CmdStartSpeedForTime    = "start_speed_for_time"
	CmdStartSpeedForDegrees = "start_speed_for_degrees"
	CmdGotoAbsolutePosition = "goto_absolute_position"
	CmdPresetEncoder        = "preset_encoder"
	CmdSetAccTime           = "set_acc_time"
	CmdSetDecTime           = "set_dec_time"
	CmdStartPower           = "start_power"
	CmdBrake                = "brake"
	CmdFloat                = "float"
	CmdSetColor             = "set_color"
	CmdSetRGB               = "set_rgb"
	CmdSetMode              = "set_mode"
	CmdWriteDirect          = "write_direct"
)

// Hub command names.
const (
	CmdAction                = "action"
	CmdSetName               = "set_name"
	CmdRequestProperty       = "request_property"
	CmdEnableUpdates         = "enable_updates"
	CmdDisableUpdates        = "disable_updates"
	CmdEnableAlert           = "enable_alert"
	CmdDisableAlert          = "disable_alert"
	CmdRequestAlert          = "request_alert"
	CmdSetupVirtualPort      = "setup_virtual_port"
	CmdDisconnectVirtualPort = "disconnect_virtual_port"
)

// defaultMaxPower is used when a speed command omits max_power.
const defaultMaxPower = 100

// ExecutePort runs a port command on a device.
//
// Parameters:
//   - ctx: Bounds the transport write
//   - d: Device handle for the addressed port
//   - cmd: Decoded command
//
// Returns:
//   - error: ErrUnknownCommand, ErrInvalidParameters, or the device's error
//     (hub.ErrUnsupported, hub.ErrDisconnected, ...)
func ExecutePort(ctx context.Context, d Device, cmd Command) error {
	p := params(cmd.Parameters)

	switch cmd.Command {
	case CmdStartSpeed:
		speed, maxPower, err := p.speed()
		if err != nil {
			return err
		}
		return d.StartSpeed(ctx, speed, maxPower)

	case CmdStartSpeedForTime:
		ms, err := p.integer("duration_ms", 0, 0xFFFF) //nolint:mnd // uint16 milliseconds
		if err != nil {
			return err
		}
		speed, maxPower, end, err := p.move()
		if err != nil {
			return err
		}
		return d.StartSpeedForTime(ctx, time.Duration(ms)*time.Millisecond, speed, maxPower, end)

	case CmdStartSpeedForDegrees:
		degrees, err := p.integer("degrees", 0, 1<<31-1) //nolint:mnd // int32 range
		if err != nil {
			return err
		}
		speed, maxPower, end, err := p.move()
		if err != nil {
			return err
		}
		return d.StartSpeedForDegrees(ctx, int32(degrees), speed, maxPower, end)

	case CmdGotoAbsolutePosition:
		pos, err := p.integer("position", -1<<31, 1<<31-1) //nolint:mnd // int32 range
		if err != nil {
			return err
		}
		speed, maxPower, end, err := p.move()
		if err != nil {
			return err
		}
		return d.GotoAbsolutePosition(ctx, int32(pos), speed, maxPower, end)

	case CmdPresetEncoder:
		pos, err := p.integerOr("position", 0, -1<<31, 1<<31-1) //nolint:mnd // int32 range
		if err != nil {
			return err
		}
		return d.PresetEncoder(ctx, int32(pos))

	case CmdSetAccTime, CmdSetDecTime:
		ms, err := p.integer("ramp_ms", 0, 10000) //nolint:mnd // LWP3 ramp limit
		if err != nil {
			return err
		}
		if cmd.Command == CmdSetAccTime {
			return d.SetAccTime(ctx, time.Duration(ms)*time.Millisecond)
		}
		return d.SetDecTime(ctx, time.Duration(ms)*time.Millisecond)

	case CmdStartPower:
		power, err := p.integer("power", -100, 100) //nolint:mnd // percent
		if err != nil {
			return err
		}
		return d.StartPower(ctx, lwp3.Power(power))

	case CmdBrake:
		return d.StartPower(ctx, lwp3.PowerBrake)

	case CmdFloat:
		return d.StartPower(ctx, lwp3.PowerFloat)

	case CmdSetColor:
		name, err := p.str("color")
		if err != nil {
			return err
		}
		c, ok := lwp3.ParseColor(name)
		if !ok {
			return fmt.Errorf("%w: unknown color %q", ErrInvalidParameters, name)
		}
		return d.SetColor(ctx, c)

	case CmdSetRGB:
		var rgb [3]uint8
		for i, key := range [...]string{"r", "g", "b"} {
			v, err := p.integer(key, 0, 0xFF) //nolint:mnd // byte
			if err != nil {
				return err
			}
			rgb[i] = uint8(v)
		}
		return d.SetRGB(ctx, rgb[0], rgb[1], rgb[2])

	case CmdSetMode:
		mode, err := p.integer("mode", 0, 0xFF) //nolint:mnd // byte
		if err != nil {
			return err
		}
		delta, err := p.integerOr("delta", 1, 0, 1<<32-1) //nolint:mnd // uint32 range
		if err != nil {
			return err
		}
		notify, err := p.boolean("notify")
		if err != nil {
			return err
		}
		return d.SetMode(ctx, uint8(mode), uint32(delta), notify)

	case CmdWriteDirect:
		mode, err := p.integer("mode", 0, 0xFF) //nolint:mnd // byte
		if err != nil {
			return err
		}
		raw, err := p.str("data")
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("%w: data must be hex: %w", ErrInvalidParameters, err)
		}
		return d.WriteDirect(ctx, uint8(mode), data)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}

// ExecuteHub runs a hub command.
//
// Returns ErrUnknownCommand, ErrInvalidParameters, or the hub's error.
func ExecuteHub(ctx context.Context, h Hub, cmd Command) error {
	p := params(cmd.Parameters)

	switch cmd.Command {
	case CmdAction:
		name, err := p.str("action")
		if err != nil {
			return err
		}
		a, ok := lwp3.ParseHubAction(name)
		if !ok {
			return fmt.Errorf("%w: unknown action %q", ErrInvalidParameters, name)
		}
		return h.Action(ctx, a)

	case CmdSetName:
		name, err := p.str("name")
		if err != nil {
			return err
		}
		return h.SetName(ctx, name)

	case CmdRequestProperty, CmdEnableUpdates, CmdDisableUpdates:
		name, err := p.str("property")
		if err != nil {
			return err
		}
		ref, ok := lwp3.ParseHubProperty(name)
		if !ok {
			return fmt.Errorf("%w: unknown property %q", ErrInvalidParameters, name)
		}
		switch cmd.Command {
		case CmdEnableUpdates:
			return h.EnableUpdates(ctx, ref)
		case CmdDisableUpdates:
			return h.DisableUpdates(ctx, ref)
		default:
			return h.RequestProperty(ctx, ref)
		}

	case CmdEnableAlert, CmdDisableAlert, CmdRequestAlert:
		name, err := p.str("alert")
		if err != nil {
			return err
		}
		a, ok := lwp3.ParseAlert(name)
		if !ok {
			return fmt.Errorf("%w: unknown alert %q", ErrInvalidParameters, name)
		}
		switch cmd.Command {
		case CmdEnableAlert:
			return h.EnableAlert(ctx, a)
		case CmdDisableAlert:
			return h.DisableAlert(ctx, a)
		default:
			return h.RequestAlert(ctx, a)
		}

	case CmdSetupVirtualPort:
		a, err := p.integer("port_a", 0, 0xFF) //nolint:mnd // byte
		if err != nil {
			return err
		}
		b, err := p.integer("port_b", 0, 0xFF) //nolint:mnd // byte
		if err != nil {
			return err
		}
		if a == b {
			return fmt.Errorf("%w: port_a and port_b must differ", ErrInvalidParameters)
		}
		return h.SetupVirtualPort(ctx, uint8(a), uint8(b))

	case CmdDisconnectVirtualPort:
		port, err := p.integer("port", 0, 0xFF) //nolint:mnd // byte
		if err != nil {
			return err
		}
		return h.DisconnectVirtualPort(ctx, uint8(port))

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}
