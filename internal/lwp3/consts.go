package lwp3

import "fmt"

// MessageType is the third header byte selecting the message variant.
type MessageType uint8

// Message types.
const (
	TypeHubProperties                MessageType = 0x01
	TypeHubActions                   MessageType = 0x02
	TypeHubAlerts                    MessageType = 0x03
	TypeHubAttachedIO                MessageType = 0x04
	TypeGenericError                 MessageType = 0x05
	TypeHwNetworkCommands            MessageType = 0x08
	TypePortInformationRequest       MessageType = 0x21
	TypePortModeInformationRequest   MessageType = 0x22
	TypePortInputFormatSetupSingle   MessageType = 0x41
	TypePortInputFormatSetupCombined MessageType = 0x42
	TypePortInformation              MessageType = 0x43
	TypePortModeInformation          MessageType = 0x44
	TypePortValueSingle              MessageType = 0x45
	TypePortValueCombined            MessageType = 0x46
	TypePortInputFormatSingle        MessageType = 0x47
	TypePortInputFormatCombined      MessageType = 0x48
	TypeVirtualPortSetup             MessageType = 0x61
	TypePortOutputCommand            MessageType = 0x81
	TypePortOutputCommandFeedback    MessageType = 0x82
)

var messageTypeNames = map[MessageType]string{
	TypeHubProperties:                "hub_properties",
	TypeHubActions:                   "hub_actions",
	TypeHubAlerts:                    "hub_alerts",
	TypeHubAttachedIO:                "hub_attached_io",
	TypeGenericError:                 "generic_error",
	TypeHwNetworkCommands:            "hw_network_commands",
	TypePortInformationRequest:       "port_information_request",
	TypePortModeInformationRequest:   "port_mode_information_request",
	TypePortInputFormatSetupSingle:   "port_input_format_setup_single",
	TypePortInputFormatSetupCombined: "port_input_format_setup_combined",
	TypePortInformation:              "port_information",
	TypePortModeInformation:          "port_mode_information",
	TypePortValueSingle:              "port_value_single",
	TypePortValueCombined:            "port_value_combined",
	TypePortInputFormatSingle:        "port_input_format_single",
	TypePortInputFormatCombined:      "port_input_format_combined",
	TypeVirtualPortSetup:             "virtual_port_setup",
	TypePortOutputCommand:            "port_output_command",
	TypePortOutputCommandFeedback:    "port_output_command_feedback",
}

func (t MessageType) String() string { return lookup(messageTypeNames, t, "message_type") }

// HubPropertyRef selects a hub property.
type HubPropertyRef uint8

// Hub properties.
const (
	PropAdvertisingName  HubPropertyRef = 0x01
	PropButton           HubPropertyRef = 0x02
	PropFwVersion        HubPropertyRef = 0x03
	PropHwVersion        HubPropertyRef = 0x04
	PropRSSI             HubPropertyRef = 0x05
	PropBatteryVoltage   HubPropertyRef = 0x06
	PropBatteryType      HubPropertyRef = 0x07
	PropManufacturerName HubPropertyRef = 0x08
	PropRadioFwVersion   HubPropertyRef = 0x09
	PropLWPVersion       HubPropertyRef = 0x0A
	PropSystemTypeID     HubPropertyRef = 0x0B
	PropHwNetworkID      HubPropertyRef = 0x0C
	PropPrimaryMAC       HubPropertyRef = 0x0D
	PropSecondaryMAC     HubPropertyRef = 0x0E
	PropHwNetworkFamily  HubPropertyRef = 0x0F
)

var hubPropertyNames = map[HubPropertyRef]string{
	PropAdvertisingName:  "advertising_name",
	PropButton:           "button",
	PropFwVersion:        "fw_version",
	PropHwVersion:        "hw_version",
	PropRSSI:             "rssi",
	PropBatteryVoltage:   "battery_voltage",
	PropBatteryType:      "battery_type",
	PropManufacturerName: "manufacturer_name",
	PropRadioFwVersion:   "radio_fw_version",
	PropLWPVersion:       "lwp_version",
	PropSystemTypeID:     "system_type_id",
	PropHwNetworkID:      "hw_network_id",
	PropPrimaryMAC:       "primary_mac",
	PropSecondaryMAC:     "secondary_mac",
	PropHwNetworkFamily:  "hw_network_family",
}

func (p HubPropertyRef) String() string { return lookup(hubPropertyNames, p, "property") }

// ParseHubProperty resolves a property name as produced by String.
func ParseHubProperty(name string) (HubPropertyRef, bool) { return reverse(hubPropertyNames, name) }

// HubPropertyOp is the operation carried by a hub property message.
type HubPropertyOp uint8

// Hub property operations.
const (
	PropOpSet            HubPropertyOp = 0x01
	PropOpEnableUpdates  HubPropertyOp = 0x02
	PropOpDisableUpdates HubPropertyOp = 0x03
	PropOpReset          HubPropertyOp = 0x04
	PropOpRequestUpdate  HubPropertyOp = 0x05
	PropOpUpdate         HubPropertyOp = 0x06
)

var hubPropertyOpNames = map[HubPropertyOp]string{
	PropOpSet:            "set",
	PropOpEnableUpdates:  "enable_updates",
	PropOpDisableUpdates: "disable_updates",
	PropOpReset:          "reset",
	PropOpRequestUpdate:  "request_update",
	PropOpUpdate:         "update",
}

func (o HubPropertyOp) String() string { return lookup(hubPropertyOpNames, o, "property_op") }

// HubActionType is a hub action, downstream (commands) or upstream (notices).
type HubActionType uint8

// Hub actions.
const (
	ActionSwitchOff          HubActionType = 0x01
	ActionDisconnect         HubActionType = 0x02
	ActionVCCPortOn          HubActionType = 0x03
	ActionVCCPortOff         HubActionType = 0x04
	ActionBusyIndicationOn   HubActionType = 0x05
	ActionBusyIndicationOff  HubActionType = 0x06
	ActionFastShutdown       HubActionType = 0x2F
	ActionWillSwitchOff      HubActionType = 0x30
	ActionWillDisconnect     HubActionType = 0x31
	ActionWillGoIntoBootMode HubActionType = 0x32
)

var hubActionNames = map[HubActionType]string{
	ActionSwitchOff:          "switch_off",
	ActionDisconnect:         "disconnect",
	ActionVCCPortOn:          "vcc_port_on",
	ActionVCCPortOff:         "vcc_port_off",
	ActionBusyIndicationOn:   "busy_indication_on",
	ActionBusyIndicationOff:  "busy_indication_off",
	ActionFastShutdown:       "fast_shutdown",
	ActionWillSwitchOff:      "will_switch_off",
	ActionWillDisconnect:     "will_disconnect",
	ActionWillGoIntoBootMode: "will_go_into_boot_mode",
}

func (a HubActionType) String() string { return lookup(hubActionNames, a, "action") }

// ParseHubAction resolves an action name as produced by String.
func ParseHubAction(name string) (HubActionType, bool) { return reverse(hubActionNames, name) }

// AlertType selects a hub alert.
type AlertType uint8

// Hub alerts.
const (
	AlertLowVoltage  AlertType = 0x01
	AlertHighCurrent AlertType = 0x02
	AlertLowSignal   AlertType = 0x03
	AlertOverPower   AlertType = 0x04
)

var alertNames = map[AlertType]string{
	AlertLowVoltage:  "low_voltage",
	AlertHighCurrent: "high_current",
	AlertLowSignal:   "low_signal",
	AlertOverPower:   "over_power",
}

func (a AlertType) String() string { return lookup(alertNames, a, "alert") }

// ParseAlert resolves an alert name as produced by String.
func ParseAlert(name string) (AlertType, bool) { return reverse(alertNames, name) }

// AlertOp is the operation carried by a hub alert message.
type AlertOp uint8

// Hub alert operations.
const (
	AlertOpEnable        AlertOp = 0x01
	AlertOpDisable       AlertOp = 0x02
	AlertOpRequestUpdate AlertOp = 0x03
	AlertOpUpdate        AlertOp = 0x04
)

var alertOpNames = map[AlertOp]string{
	AlertOpEnable:        "enable",
	AlertOpDisable:       "disable",
	AlertOpRequestUpdate: "request_update",
	AlertOpUpdate:        "update",
}

func (o AlertOp) String() string { return lookup(alertOpNames, o, "alert_op") }

// ErrorCode is the code carried by a generic error message.
type ErrorCode uint8

// Generic error codes.
const (
	ErrCodeACK                  ErrorCode = 0x01
	ErrCodeMACK                 ErrorCode = 0x02
	ErrCodeBufferOverflow       ErrorCode = 0x03
	ErrCodeTimeout              ErrorCode = 0x04
	ErrCodeCommandNotRecognized ErrorCode = 0x05
	ErrCodeInvalidUse           ErrorCode = 0x06
	ErrCodeOvercurrent          ErrorCode = 0x07
	ErrCodeInternalError        ErrorCode = 0x08
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeACK:                  "ack",
	ErrCodeMACK:                 "mack",
	ErrCodeBufferOverflow:       "buffer_overflow",
	ErrCodeTimeout:              "timeout",
	ErrCodeCommandNotRecognized: "command_not_recognized",
	ErrCodeInvalidUse:           "invalid_use",
	ErrCodeOvercurrent:          "overcurrent",
	ErrCodeInternalError:        "internal_error",
}

func (c ErrorCode) String() string { return lookup(errorCodeNames, c, "error_code") }

// InformationType selects the reply kind of a port information request.
type InformationType uint8

// Port information types.
const (
	InfoPortValue                InformationType = 0x00
	InfoModeInfo                 InformationType = 0x01
	InfoPossibleModeCombinations InformationType = 0x02
)

var informationTypeNames = map[InformationType]string{
	InfoPortValue:                "port_value",
	InfoModeInfo:                 "mode_info",
	InfoPossibleModeCombinations: "possible_mode_combinations",
}

func (i InformationType) String() string { return lookup(informationTypeNames, i, "info") }

// ModeInformationType selects the reply kind of a port mode information
// request.
type ModeInformationType uint8

// Port mode information types.
const (
	ModeInfoName           ModeInformationType = 0x00
	ModeInfoRaw            ModeInformationType = 0x01
	ModeInfoPct            ModeInformationType = 0x02
	ModeInfoSI             ModeInformationType = 0x03
	ModeInfoSymbol         ModeInformationType = 0x04
	ModeInfoMapping        ModeInformationType = 0x05
	ModeInfoInternalUse    ModeInformationType = 0x06
	ModeInfoMotorBias      ModeInformationType = 0x07
	ModeInfoCapabilityBits ModeInformationType = 0x08
	ModeInfoValueFormat    ModeInformationType = 0x80
)

// NegotiationOrder is the fixed order in which per-mode information is
// requested after a port reports its mode count.
var NegotiationOrder = [...]ModeInformationType{
	ModeInfoName,
	ModeInfoRaw,
	ModeInfoPct,
	ModeInfoSI,
	ModeInfoSymbol,
	ModeInfoMapping,
	ModeInfoMotorBias,
	ModeInfoValueFormat,
}

var modeInformationTypeNames = map[ModeInformationType]string{
	ModeInfoName:           "name",
	ModeInfoRaw:            "raw",
	ModeInfoPct:            "pct",
	ModeInfoSI:             "si",
	ModeInfoSymbol:         "symbol",
	ModeInfoMapping:        "mapping",
	ModeInfoInternalUse:    "internal_use",
	ModeInfoMotorBias:      "motor_bias",
	ModeInfoCapabilityBits: "capability_bits",
	ModeInfoValueFormat:    "value_format",
}

func (m ModeInformationType) String() string {
	return lookup(modeInformationTypeNames, m, "mode_info")
}

// Capabilities is the port capability bitmask reported in a mode info reply.
type Capabilities uint8

// Port capability bits.
const (
	CapOutput                Capabilities = 0x01
	CapInput                 Capabilities = 0x02
	CapLogicalCombinable     Capabilities = 0x04
	CapLogicalSynchronizable Capabilities = 0x08
)

// Has reports whether all bits in c2 are set.
func (c Capabilities) Has(c2 Capabilities) bool { return c&c2 == c2 }

// DatasetType is the sample width of a mode's value format.
type DatasetType uint8

// Dataset types.
const (
	DatasetInt8    DatasetType = 0x00
	DatasetInt16   DatasetType = 0x01
	DatasetInt32   DatasetType = 0x02
	DatasetFloat32 DatasetType = 0x03
)

var datasetTypeNames = map[DatasetType]string{
	DatasetInt8:    "int8",
	DatasetInt16:   "int16",
	DatasetInt32:   "int32",
	DatasetFloat32: "float32",
}

func (d DatasetType) String() string { return lookup(datasetTypeNames, d, "dataset") }

// Size returns the width in bytes of one sample, or 0 for an unknown type.
func (d DatasetType) Size() int {
	switch d {
	case DatasetInt8:
		return 1
	case DatasetInt16:
		return 2 //nolint:mnd // 16-bit sample
	case DatasetInt32, DatasetFloat32:
		return 4 //nolint:mnd // 32-bit sample
	default:
		return 0
	}
}

// IOEvent is the event carried by an attached IO message.
type IOEvent uint8

// Attached IO events.
const (
	EventDetached        IOEvent = 0x00
	EventAttached        IOEvent = 0x01
	EventAttachedVirtual IOEvent = 0x02
)

var ioEventNames = map[IOEvent]string{
	EventDetached:        "detached",
	EventAttached:        "attached",
	EventAttachedVirtual: "attached_virtual",
}

func (e IOEvent) String() string { return lookup(ioEventNames, e, "event") }

// FeedbackFlags is the per-port status in an output command feedback.
type FeedbackFlags uint8

// Output command feedback bits.
const (
	FeedbackBufferEmptyInProgress FeedbackFlags = 0x01
	FeedbackBufferEmptyCompleted  FeedbackFlags = 0x02
	FeedbackDiscarded             FeedbackFlags = 0x04
	FeedbackIdle                  FeedbackFlags = 0x08
	FeedbackBusyFull              FeedbackFlags = 0x10
)

// Color is one of the hub LED's indexed colours.
type Color uint8

// Hub LED colours.
const (
	ColorBlack     Color = 0
	ColorPink      Color = 1
	ColorPurple    Color = 2
	ColorBlue      Color = 3
	ColorLightBlue Color = 4
	ColorCyan      Color = 5
	ColorGreen     Color = 6
	ColorYellow    Color = 7
	ColorOrange    Color = 8
	ColorRed       Color = 9
	ColorWhite     Color = 10
	ColorNone      Color = 255
)

var colorNames = map[Color]string{
	ColorBlack:     "black",
	ColorPink:      "pink",
	ColorPurple:    "purple",
	ColorBlue:      "blue",
	ColorLightBlue: "light_blue",
	ColorCyan:      "cyan",
	ColorGreen:     "green",
	ColorYellow:    "yellow",
	ColorOrange:    "orange",
	ColorRed:       "red",
	ColorWhite:     "white",
	ColorNone:      "none",
}

func (c Color) String() string { return lookup(colorNames, c, "color") }

// ParseColor resolves a colour name as produced by String.
func ParseColor(name string) (Color, bool) { return reverse(colorNames, name) }

func lookup[K ~uint8](names map[K]string, k K, kind string) string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("%s(0x%02x)", kind, uint8(k))
}

func reverse[K ~uint8](names map[K]string, name string) (K, bool) {
	for k, s := range names {
		if s == name {
			return k, true
		}
	}
	return 0, false
}
