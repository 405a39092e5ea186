package lwp3

import (
	"fmt"
	"strings"
)

// Message is one decoded LWP3 message. The set of implementations is closed:
// every variant is a pointer to a struct defined in this package.
type Message interface {
	MessageType() MessageType
	appendPayload(dst []byte) ([]byte, error)
}

// String length limits for port mode information.
const (
	maxModeNameLen    = 11
	maxModeSymbolLen  = 5
	capabilityBitsLen = 6
)

var decoders = map[MessageType]func(r *reader) Message{
	TypeHubProperties:                decodeHubProperty,
	TypeHubActions:                   decodeHubAction,
	TypeHubAlerts:                    decodeHubAlert,
	TypeHubAttachedIO:                decodeHubAttachedIO,
	TypeGenericError:                 decodeGenericError,
	TypeHwNetworkCommands:            decodeNetworkCommand,
	TypePortInformationRequest:       decodePortInformationRequest,
	TypePortModeInformationRequest:   decodePortModeInformationRequest,
	TypePortInputFormatSetupSingle:   decodeInputFormatSetupSingle,
	TypePortInputFormatSetupCombined: decodeInputFormatSetupCombined,
	TypePortInformation:              decodePortInformation,
	TypePortModeInformation:          decodePortModeInformation,
	TypePortValueSingle:              decodePortValueSingle,
	TypePortValueCombined:            decodePortValueCombined,
	TypePortInputFormatSingle:        decodeInputFormatSingle,
	TypePortInputFormatCombined:      decodeInputFormatCombined,
	TypeVirtualPortSetup:             decodeVirtualPortSetup,
	TypePortOutputCommand:            decodePortOutputCommand,
	TypePortOutputCommandFeedback:    decodeOutputCommandFeedback,
}

// HubProperty reads, sets or reports one hub property.
// Payload is empty for requests and carries the raw value for Set and Update.
type HubProperty struct {
	Property  HubPropertyRef
	Operation HubPropertyOp
	Payload   []byte
}

func (*HubProperty) MessageType() MessageType { return TypeHubProperties }

func (m *HubProperty) appendPayload(b []byte) ([]byte, error) {
	b = append(b, byte(m.Property), byte(m.Operation))
	return append(b, m.Payload...), nil
}

func decodeHubProperty(r *reader) Message {
	return &HubProperty{
		Property:  HubPropertyRef(r.u8()),
		Operation: HubPropertyOp(r.u8()),
		Payload:   r.rest(),
	}
}

// HubAction is a hub action command or notice.
type HubAction struct {
	Action HubActionType
}

func (*HubAction) MessageType() MessageType { return TypeHubActions }

func (m *HubAction) appendPayload(b []byte) ([]byte, error) {
	return append(b, byte(m.Action)), nil
}

func decodeHubAction(r *reader) Message {
	m := &HubAction{Action: HubActionType(r.u8())}
	r.end()
	return m
}

// HubAlert enables, disables, requests or reports a hub alert.
// Status is only carried by AlertOpUpdate (0x00 ok, 0xFF alert).
type HubAlert struct {
	Alert     AlertType
	Operation AlertOp
	Status    uint8
}

// Active reports whether an update signals an alert condition.
func (m *HubAlert) Active() bool { return m.Operation == AlertOpUpdate && m.Status != 0 }

func (*HubAlert) MessageType() MessageType { return TypeHubAlerts }

func (m *HubAlert) appendPayload(b []byte) ([]byte, error) {
	b = append(b, byte(m.Alert), byte(m.Operation))
	if m.Operation == AlertOpUpdate {
		b = append(b, m.Status)
	} else if m.Status != 0 {
		return nil, fmt.Errorf("%w: alert status only valid for update", ErrInvalidMessage)
	}
	return b, nil
}

func decodeHubAlert(r *reader) Message {
	m := &HubAlert{Alert: AlertType(r.u8()), Operation: AlertOp(r.u8())}
	if m.Operation == AlertOpUpdate {
		m.Status = r.u8()
	}
	r.end()
	return m
}

// Version is an LWP3 BCD encoded firmware or hardware version.
type Version int32

func (v Version) String() string {
	u := uint32(v)
	return fmt.Sprintf("%d.%d.%02x.%04x", (u>>28)&0x07, (u>>24)&0x0F, (u>>16)&0xFF, u&0xFFFF) //nolint:mnd // BCD fields
}

// HubAttachedIO reports a device attaching to or detaching from a port.
//
// Attached carries the revisions; AttachedVirtual carries the two member
// ports; Detached carries only the port.
type HubAttachedIO struct {
	Port        uint8
	Event       IOEvent
	IOType      IOType
	HardwareRev Version
	SoftwareRev Version
	PortA       uint8
	PortB       uint8
}

func (*HubAttachedIO) MessageType() MessageType { return TypeHubAttachedIO }

func (m *HubAttachedIO) appendPayload(b []byte) ([]byte, error) {
	b = append(b, m.Port, byte(m.Event))
	switch m.Event {
	case EventDetached:
	case EventAttached:
		b = appendU16(b, uint16(m.IOType))
		b = appendU32(b, uint32(m.HardwareRev))
		b = appendU32(b, uint32(m.SoftwareRev))
	case EventAttachedVirtual:
		b = appendU16(b, uint16(m.IOType))
		b = append(b, m.PortA, m.PortB)
	default:
		return nil, fmt.Errorf("%w: io event %s", ErrInvalidMessage, m.Event)
	}
	return b, nil
}

func decodeHubAttachedIO(r *reader) Message {
	m := &HubAttachedIO{Port: r.u8(), Event: IOEvent(r.u8())}
	switch m.Event {
	case EventDetached:
	case EventAttached:
		m.IOType = IOType(r.u16())
		m.HardwareRev = Version(r.u32())
		m.SoftwareRev = Version(r.u32())
	case EventAttachedVirtual:
		m.IOType = IOType(r.u16())
		m.PortA = r.u8()
		m.PortB = r.u8()
	default:
		r.fail("unknown io event 0x%02x", uint8(m.Event))
	}
	r.end()
	return m
}

// GenericError reports the hub's reaction to a command.
type GenericError struct {
	Command MessageType
	Code    ErrorCode
}

func (*GenericError) MessageType() MessageType { return TypeGenericError }

func (m *GenericError) appendPayload(b []byte) ([]byte, error) {
	return append(b, byte(m.Command), byte(m.Code)), nil
}

func decodeGenericError(r *reader) Message {
	m := &GenericError{Command: MessageType(r.u8()), Code: ErrorCode(r.u8())}
	r.end()
	return m
}

// NetworkCommand is a hardware network command (hub to hub pairing, remote
// connection requests). The payload layout depends on the command byte.
type NetworkCommand struct {
	Command uint8
	Payload []byte
}

func (*NetworkCommand) MessageType() MessageType { return TypeHwNetworkCommands }

func (m *NetworkCommand) appendPayload(b []byte) ([]byte, error) {
	return append(append(b, m.Command), m.Payload...), nil
}

func decodeNetworkCommand(r *reader) Message {
	return &NetworkCommand{Command: r.u8(), Payload: r.rest()}
}

// PortInformationRequest asks for a port's value, mode info or combinations.
type PortInformationRequest struct {
	Port uint8
	Info InformationType
}

func (*PortInformationRequest) MessageType() MessageType { return TypePortInformationRequest }

func (m *PortInformationRequest) appendPayload(b []byte) ([]byte, error) {
	return append(b, m.Port, byte(m.Info)), nil
}

func decodePortInformationRequest(r *reader) Message {
	m := &PortInformationRequest{Port: r.u8(), Info: InformationType(r.u8())}
	r.end()
	return m
}

// PortModeInformationRequest asks for one piece of metadata about one mode.
type PortModeInformationRequest struct {
	Port uint8
	Mode uint8
	Info ModeInformationType
}

func (*PortModeInformationRequest) MessageType() MessageType {
	return TypePortModeInformationRequest
}

func (m *PortModeInformationRequest) appendPayload(b []byte) ([]byte, error) {
	return append(b, m.Port, m.Mode, byte(m.Info)), nil
}

func decodePortModeInformationRequest(r *reader) Message {
	m := &PortModeInformationRequest{Port: r.u8(), Mode: r.u8(), Info: ModeInformationType(r.u8())}
	r.end()
	return m
}

// InputFormat is the shared layout of input format setup and its reply:
// the mode to report, the delta that triggers a notification and whether
// notifications are enabled.
type InputFormat struct {
	Port   uint8
	Mode   uint8
	Delta  uint32
	Notify bool
}

func (f *InputFormat) append(b []byte) []byte {
	b = append(b, f.Port, f.Mode)
	b = appendU32(b, f.Delta)
	if f.Notify {
		return append(b, 1)
	}
	return append(b, 0)
}

func (f *InputFormat) read(r *reader) {
	f.Port = r.u8()
	f.Mode = r.u8()
	f.Delta = r.u32()
	switch n := r.u8(); n {
	case 0:
	case 1:
		f.Notify = true
	default:
		r.fail("notification flag 0x%02x", n)
	}
	r.end()
}

// PortInputFormatSetupSingle configures the mode a port reports in.
type PortInputFormatSetupSingle struct{ InputFormat }

func (*PortInputFormatSetupSingle) MessageType() MessageType {
	return TypePortInputFormatSetupSingle
}

func (m *PortInputFormatSetupSingle) appendPayload(b []byte) ([]byte, error) {
	return m.append(b), nil
}

func decodeInputFormatSetupSingle(r *reader) Message {
	m := &PortInputFormatSetupSingle{}
	m.read(r)
	return m
}

// PortInputFormatSingle acknowledges an input format setup.
type PortInputFormatSingle struct{ InputFormat }

func (*PortInputFormatSingle) MessageType() MessageType { return TypePortInputFormatSingle }

func (m *PortInputFormatSingle) appendPayload(b []byte) ([]byte, error) {
	return m.append(b), nil
}

func decodeInputFormatSingle(r *reader) Message {
	m := &PortInputFormatSingle{}
	m.read(r)
	return m
}

// PortInputFormatSetupCombined drives the combined-mode setup sequence
// (lock, set mode/dataset combination, unlock). The payload follows the
// sub-command.
type PortInputFormatSetupCombined struct {
	Port       uint8
	Subcommand uint8
	Payload    []byte
}

func (*PortInputFormatSetupCombined) MessageType() MessageType {
	return TypePortInputFormatSetupCombined
}

func (m *PortInputFormatSetupCombined) appendPayload(b []byte) ([]byte, error) {
	return append(append(b, m.Port, m.Subcommand), m.Payload...), nil
}

func decodeInputFormatSetupCombined(r *reader) Message {
	return &PortInputFormatSetupCombined{Port: r.u8(), Subcommand: r.u8(), Payload: r.rest()}
}

// PortInputFormatCombined acknowledges a combined-mode setup.
type PortInputFormatCombined struct {
	Port    uint8
	Control uint8
	Modes   uint16
}

func (*PortInputFormatCombined) MessageType() MessageType { return TypePortInputFormatCombined }

func (m *PortInputFormatCombined) appendPayload(b []byte) ([]byte, error) {
	return appendU16(append(b, m.Port, m.Control), m.Modes), nil
}

func decodeInputFormatCombined(r *reader) Message {
	m := &PortInputFormatCombined{Port: r.u8(), Control: r.u8(), Modes: r.u16()}
	r.end()
	return m
}

// PortInformation is the reply to a port information request.
//
// For InfoModeInfo the capability, count and mode bitmask fields are set.
// For InfoPossibleModeCombinations Combinations lists the valid mode sets,
// one bitmask per combination.
type PortInformation struct {
	Port         uint8
	Info         InformationType
	Capabilities Capabilities
	ModeCount    uint8
	InputModes   uint16
	OutputModes  uint16
	Combinations []uint16
}

func (*PortInformation) MessageType() MessageType { return TypePortInformation }

func (m *PortInformation) appendPayload(b []byte) ([]byte, error) {
	b = append(b, m.Port, byte(m.Info))
	switch m.Info {
	case InfoModeInfo:
		b = append(b, byte(m.Capabilities), m.ModeCount)
		b = appendU16(b, m.InputModes)
		b = appendU16(b, m.OutputModes)
	case InfoPossibleModeCombinations:
		for _, c := range m.Combinations {
			b = appendU16(b, c)
		}
	default:
		return nil, fmt.Errorf("%w: port information type %s", ErrInvalidMessage, m.Info)
	}
	return b, nil
}

func decodePortInformation(r *reader) Message {
	m := &PortInformation{Port: r.u8(), Info: InformationType(r.u8())}
	switch m.Info {
	case InfoModeInfo:
		m.Capabilities = Capabilities(r.u8())
		m.ModeCount = r.u8()
		m.InputModes = r.u16()
		m.OutputModes = r.u16()
	case InfoPossibleModeCombinations:
		if len(r.buf)%2 != 0 {
			r.fail("odd combination list length %d", len(r.buf))
		}
		for r.err == nil && len(r.buf) > 0 {
			m.Combinations = append(m.Combinations, r.u16())
		}
	default:
		r.fail("unknown port information type 0x%02x", uint8(m.Info))
	}
	r.end()
	return m
}

// Mapping is the input/output mapping flag pair of a mode.
type Mapping struct {
	Input  uint8
	Output uint8
}

// ValueFormat describes how samples of a mode are laid out.
type ValueFormat struct {
	Datasets uint8
	Type     DatasetType
	Figures  uint8
	Decimals uint8
}

// PortModeInformation is the reply to a port mode information request.
// Only the fields selected by Info are meaningful:
//
//   - Name, Symbol: ModeInfoName, ModeInfoSymbol
//   - Min, Max: ModeInfoRaw, ModeInfoPct, ModeInfoSI
//   - Mapping: ModeInfoMapping
//   - MotorBias: ModeInfoMotorBias
//   - CapabilityBits: ModeInfoCapabilityBits
//   - Format: ModeInfoValueFormat
type PortModeInformation struct {
	Port           uint8
	Mode           uint8
	Info           ModeInformationType
	Name           string
	Min            float32
	Max            float32
	Symbol         string
	Mapping        Mapping
	MotorBias      uint8
	CapabilityBits [capabilityBitsLen]byte
	Format         ValueFormat
}

func (*PortModeInformation) MessageType() MessageType { return TypePortModeInformation }

func (m *PortModeInformation) appendPayload(b []byte) ([]byte, error) {
	b = append(b, m.Port, m.Mode, byte(m.Info))
	switch m.Info {
	case ModeInfoName:
		if len(m.Name) > maxModeNameLen {
			return nil, fmt.Errorf("%w: mode name %q longer than %d", ErrInvalidMessage, m.Name, maxModeNameLen)
		}
		if strings.ContainsRune(m.Name, 0) {
			return nil, fmt.Errorf("%w: mode name %q contains NUL", ErrInvalidMessage, m.Name)
		}
		b = append(b, m.Name...)
	case ModeInfoSymbol:
		if len(m.Symbol) > maxModeSymbolLen {
			return nil, fmt.Errorf("%w: mode symbol %q longer than %d", ErrInvalidMessage, m.Symbol, maxModeSymbolLen)
		}
		if strings.ContainsRune(m.Symbol, 0) {
			return nil, fmt.Errorf("%w: mode symbol %q contains NUL", ErrInvalidMessage, m.Symbol)
		}
		b = append(b, m.Symbol...)
	case ModeInfoRaw, ModeInfoPct, ModeInfoSI:
		b = appendF32(b, m.Min)
		b = appendF32(b, m.Max)
	case ModeInfoMapping:
		b = append(b, m.Mapping.Input, m.Mapping.Output)
	case ModeInfoMotorBias:
		b = append(b, m.MotorBias)
	case ModeInfoCapabilityBits:
		b = append(b, m.CapabilityBits[:]...)
	case ModeInfoValueFormat:
		b = append(b, m.Format.Datasets, byte(m.Format.Type), m.Format.Figures, m.Format.Decimals)
	default:
		return nil, fmt.Errorf("%w: mode information type %s", ErrInvalidMessage, m.Info)
	}
	return b, nil
}

func decodePortModeInformation(r *reader) Message {
	m := &PortModeInformation{Port: r.u8(), Mode: r.u8(), Info: ModeInformationType(r.u8())}
	switch m.Info {
	case ModeInfoName:
		m.Name = readString(r, maxModeNameLen)
	case ModeInfoSymbol:
		m.Symbol = readString(r, maxModeSymbolLen)
	case ModeInfoRaw, ModeInfoPct, ModeInfoSI:
		m.Min = r.f32()
		m.Max = r.f32()
	case ModeInfoMapping:
		m.Mapping = Mapping{Input: r.u8(), Output: r.u8()}
	case ModeInfoMotorBias:
		m.MotorBias = r.u8()
	case ModeInfoCapabilityBits:
		copy(m.CapabilityBits[:], r.take(capabilityBitsLen))
	case ModeInfoValueFormat:
		m.Format = ValueFormat{Datasets: r.u8(), Type: DatasetType(r.u8()), Figures: r.u8(), Decimals: r.u8()}
		if m.Format.Type.Size() == 0 {
			r.fail("unknown dataset type 0x%02x", uint8(m.Format.Type))
		}
	default:
		r.fail("unknown mode information type 0x%02x", uint8(m.Info))
	}
	r.end()
	return m
}

// readString consumes the rest of the payload as a NUL padded string.
func readString(r *reader, limit int) string {
	raw := r.rest()
	if len(raw) > limit {
		r.fail("string of %d bytes exceeds %d", len(raw), limit)
		return ""
	}
	return strings.TrimRight(string(raw), "\x00")
}

// PortValueSingle carries one port's raw sample in its current mode.
type PortValueSingle struct {
	Port uint8
	Data []byte
}

func (*PortValueSingle) MessageType() MessageType { return TypePortValueSingle }

func (m *PortValueSingle) appendPayload(b []byte) ([]byte, error) {
	return append(append(b, m.Port), m.Data...), nil
}

func decodePortValueSingle(r *reader) Message {
	return &PortValueSingle{Port: r.u8(), Data: r.rest()}
}

// PortValueCombined carries a combined-mode sample. Pointer is the bitfield
// of the mode/dataset entries present in Data.
type PortValueCombined struct {
	Port    uint8
	Pointer uint16
	Data    []byte
}

func (*PortValueCombined) MessageType() MessageType { return TypePortValueCombined }

func (m *PortValueCombined) appendPayload(b []byte) ([]byte, error) {
	return append(appendU16(append(b, m.Port), m.Pointer), m.Data...), nil
}

func decodePortValueCombined(r *reader) Message {
	return &PortValueCombined{Port: r.u8(), Pointer: r.u16(), Data: r.rest()}
}

// VirtualPortSetup connects two ports into a virtual port, or disconnects
// an existing virtual port.
type VirtualPortSetup struct {
	Connect bool
	Port    uint8 // virtual port to disconnect
	PortA   uint8
	PortB   uint8
}

func (*VirtualPortSetup) MessageType() MessageType { return TypeVirtualPortSetup }

func (m *VirtualPortSetup) appendPayload(b []byte) ([]byte, error) {
	if m.Connect {
		return append(b, 0x01, m.PortA, m.PortB), nil
	}
	return append(b, 0x00, m.Port), nil
}

func decodeVirtualPortSetup(r *reader) Message {
	m := &VirtualPortSetup{}
	switch sub := r.u8(); sub {
	case 0x00:
		m.Port = r.u8()
	case 0x01:
		m.Connect = true
		m.PortA = r.u8()
		m.PortB = r.u8()
	default:
		r.fail("unknown virtual port sub-command 0x%02x", sub)
	}
	r.end()
	return m
}

// PortFeedback is one port's entry in an output command feedback.
type PortFeedback struct {
	Port  uint8
	Flags FeedbackFlags
}

// PortOutputCommandFeedback reports the buffer state of one or more ports.
type PortOutputCommandFeedback struct {
	Feedback []PortFeedback
}

func (*PortOutputCommandFeedback) MessageType() MessageType { return TypePortOutputCommandFeedback }

func (m *PortOutputCommandFeedback) appendPayload(b []byte) ([]byte, error) {
	if len(m.Feedback) == 0 {
		return nil, fmt.Errorf("%w: empty feedback", ErrInvalidMessage)
	}
	for _, f := range m.Feedback {
		b = append(b, f.Port, byte(f.Flags))
	}
	return b, nil
}

func decodeOutputCommandFeedback(r *reader) Message {
	m := &PortOutputCommandFeedback{}
	if len(r.buf) == 0 || len(r.buf)%2 != 0 {
		r.fail("feedback length %d", len(r.buf))
	}
	for r.err == nil && len(r.buf) > 0 {
		m.Feedback = append(m.Feedback, PortFeedback{Port: r.u8(), Flags: FeedbackFlags(r.u8())})
	}
	return m
}
