package lwp3

import "fmt"

// Subcommand selects the action of a port output command.
type Subcommand uint8

// Output sub-commands.
const (
	SubStartPower2           Subcommand = 0x02
	SubSetAccTime            Subcommand = 0x05
	SubSetDecTime            Subcommand = 0x06
	SubStartSpeed            Subcommand = 0x07
	SubStartSpeed2           Subcommand = 0x08
	SubStartSpeedForTime     Subcommand = 0x09
	SubStartSpeedForTime2    Subcommand = 0x0A
	SubStartSpeedForDegrees  Subcommand = 0x0B
	SubStartSpeedForDegrees2 Subcommand = 0x0C
	SubGotoAbsolutePosition  Subcommand = 0x0D
	SubGotoAbsolutePosition2 Subcommand = 0x0E
	SubPresetEncoder2        Subcommand = 0x14
	SubWriteDirect           Subcommand = 0x50
	SubWriteDirectModeData   Subcommand = 0x51
)

var subcommandNames = map[Subcommand]string{
	SubStartPower2:           "start_power2",
	SubSetAccTime:            "set_acc_time",
	SubSetDecTime:            "set_dec_time",
	SubStartSpeed:            "start_speed",
	SubStartSpeed2:           "start_speed2",
	SubStartSpeedForTime:     "start_speed_for_time",
	SubStartSpeedForTime2:    "start_speed_for_time2",
	SubStartSpeedForDegrees:  "start_speed_for_degrees",
	SubStartSpeedForDegrees2: "start_speed_for_degrees2",
	SubGotoAbsolutePosition:  "goto_absolute_position",
	SubGotoAbsolutePosition2: "goto_absolute_position2",
	SubPresetEncoder2:        "preset_encoder2",
	SubWriteDirect:           "write_direct",
	SubWriteDirectModeData:   "write_direct_mode_data",
}

func (c Subcommand) String() string { return lookup(subcommandNames, c, "subcommand") }

// StartupInfo is the upper nibble of the startup/completion byte.
type StartupInfo uint8

// Startup modes.
const (
	StartupBuffer    StartupInfo = 0x0
	StartupImmediate StartupInfo = 0x1
)

var startupNames = map[StartupInfo]string{
	StartupBuffer:    "buffer",
	StartupImmediate: "immediate",
}

func (i StartupInfo) String() string { return lookup(startupNames, i, "startup") }

// CompletionInfo is the lower nibble of the startup/completion byte.
type CompletionInfo uint8

// Completion modes.
const (
	CompletionNoAction CompletionInfo = 0x0
	CompletionFeedback CompletionInfo = 0x1
)

var completionNames = map[CompletionInfo]string{
	CompletionNoAction: "no_action",
	CompletionFeedback: "feedback",
}

func (i CompletionInfo) String() string { return lookup(completionNames, i, "completion") }

// EndState is what a motor does when a timed or positional move finishes.
type EndState uint8

// Motor end states.
const (
	EndFloat EndState = 0
	EndHold  EndState = 126
	EndBrake EndState = 127
)

var endStateNames = map[EndState]string{
	EndFloat: "float",
	EndHold:  "hold",
	EndBrake: "brake",
}

func (e EndState) String() string { return lookup(endStateNames, e, "end_state") }

// ParseEndState returns the end state for its name.
func ParseEndState(name string) (EndState, bool) { return reverse(endStateNames, name) }

// Profile selects the acceleration and deceleration profiles a move uses.
type Profile uint8

// Profile bits.
const (
	ProfileNone Profile = 0x00
	ProfileAcc  Profile = 0x01
	ProfileDec  Profile = 0x02
	ProfileBoth Profile = ProfileAcc | ProfileDec
)

// Power is a signed motor power in percent. The values 0 and 127 are the
// float and brake sentinels.
type Power int8

// Power sentinels.
const (
	PowerFloat Power = 0
	PowerBrake Power = 127
)

// PowerCW returns clockwise power, clamped to 100.
func PowerCW(pct uint8) Power {
	return Power(min(pct, 100)) //nolint:mnd // percent
}

// PowerCCW returns counter-clockwise power, clamped to 100.
func PowerCCW(pct uint8) Power {
	return -Power(min(pct, 100)) //nolint:mnd // percent
}

// Direct write modes used by the helpers below.
const (
	ModeMotorPower   uint8 = 0
	ModeLEDColorNo   uint8 = 0
	ModeLEDRGB       uint8 = 1
	ModeMotorEncoder uint8 = 2
)

// PortOutputCommand drives an output port. Payload is the sub-command
// specific part; the helper constructors in this file build it.
type PortOutputCommand struct {
	Port       uint8
	Startup    StartupInfo
	Completion CompletionInfo
	Subcommand Subcommand
	Payload    []byte
}

func (*PortOutputCommand) MessageType() MessageType { return TypePortOutputCommand }

func (m *PortOutputCommand) appendPayload(b []byte) ([]byte, error) {
	if m.Startup > 0x0F || m.Completion > 0x0F {
		return nil, fmt.Errorf("%w: startup/completion nibble out of range", ErrInvalidMessage)
	}
	b = append(b, m.Port, byte(m.Startup)<<4|byte(m.Completion), byte(m.Subcommand)) //nolint:mnd // nibble pack
	return append(b, m.Payload...), nil
}

func decodePortOutputCommand(r *reader) Message {
	m := &PortOutputCommand{Port: r.u8()}
	sc := r.u8() // startup in the high nibble, completion in the low
	m.Startup = StartupInfo(sc >> 4)
	m.Completion = CompletionInfo(sc & 0x0F)
	m.Subcommand = Subcommand(r.u8())
	m.Payload = r.rest()
	return m
}

func outputCommand(port uint8, sub Subcommand, payload []byte) *PortOutputCommand {
	return &PortOutputCommand{
		Port:       port,
		Startup:    StartupImmediate,
		Completion: CompletionFeedback,
		Subcommand: sub,
		Payload:    payload,
	}
}

// StartSpeed runs a tacho motor at a regulated speed.
func StartSpeed(port uint8, speed int8, maxPower uint8, p Profile) *PortOutputCommand {
	return outputCommand(port, SubStartSpeed, []byte{byte(speed), maxPower, byte(p)})
}

// StartSpeedForTime runs a tacho motor for a duration in milliseconds.
func StartSpeedForTime(port uint8, ms uint16, speed int8, maxPower uint8, end EndState, p Profile) *PortOutputCommand {
	b := appendU16(nil, ms)
	return outputCommand(port, SubStartSpeedForTime, append(b, byte(speed), maxPower, byte(end), byte(p)))
}

// StartSpeedForDegrees turns a tacho motor by a relative angle.
func StartSpeedForDegrees(port uint8, degrees int32, speed int8, maxPower uint8, end EndState, p Profile) *PortOutputCommand {
	b := appendU32(nil, uint32(degrees))
	return outputCommand(port, SubStartSpeedForDegrees, append(b, byte(speed), maxPower, byte(end), byte(p)))
}

// GotoAbsolutePosition moves a tacho motor to an encoder position.
func GotoAbsolutePosition(port uint8, position int32, speed int8, maxPower uint8, end EndState, p Profile) *PortOutputCommand {
	b := appendU32(nil, uint32(position))
	return outputCommand(port, SubGotoAbsolutePosition, append(b, byte(speed), maxPower, byte(end), byte(p)))
}

// SetAccTime sets the acceleration profile ramp time in milliseconds.
func SetAccTime(port uint8, ms uint16, profile uint8) *PortOutputCommand {
	return outputCommand(port, SubSetAccTime, append(appendU16(nil, ms), profile))
}

// SetDecTime sets the deceleration profile ramp time in milliseconds.
func SetDecTime(port uint8, ms uint16, profile uint8) *PortOutputCommand {
	return outputCommand(port, SubSetDecTime, append(appendU16(nil, ms), profile))
}

// WriteDirectModeData writes raw mode data to a port.
func WriteDirectModeData(port, mode uint8, data []byte) *PortOutputCommand {
	payload := make([]byte, 0, len(data)+1)
	payload = append(payload, mode)
	return outputCommand(port, SubWriteDirectModeData, append(payload, data...))
}

// StartPower sets unregulated power on any motor or light.
func StartPower(port uint8, p Power) *PortOutputCommand {
	return WriteDirectModeData(port, ModeMotorPower, []byte{byte(p)})
}

// SetRGBColorNo sets the hub LED to an indexed colour.
func SetRGBColorNo(port uint8, c Color) *PortOutputCommand {
	return WriteDirectModeData(port, ModeLEDColorNo, []byte{byte(c)})
}

// SetRGBColors sets the hub LED to an RGB value.
func SetRGBColors(port uint8, r, g, b uint8) *PortOutputCommand {
	return WriteDirectModeData(port, ModeLEDRGB, []byte{r, g, b})
}

// PresetEncoder sets a tacho motor's current position to the given value.
func PresetEncoder(port uint8, position int32) *PortOutputCommand {
	return WriteDirectModeData(port, ModeMotorEncoder, appendU32(nil, uint32(position)))
}
