package lwp3

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// RequestProperty builds a request for a single property update.
func RequestProperty(ref HubPropertyRef) *HubProperty {
	return &HubProperty{Property: ref, Operation: PropOpRequestUpdate}
}

// EnablePropertyUpdates asks the hub to report a property whenever it changes.
func EnablePropertyUpdates(ref HubPropertyRef) *HubProperty {
	return &HubProperty{Property: ref, Operation: PropOpEnableUpdates}
}

// DisablePropertyUpdates stops unsolicited updates for a property.
func DisablePropertyUpdates(ref HubPropertyRef) *HubProperty {
	return &HubProperty{Property: ref, Operation: PropOpDisableUpdates}
}

// SetAdvertisingName renames the hub. Names longer than 14 bytes are rejected.
func SetAdvertisingName(name string) (*HubProperty, error) {
	if name == "" || len(name) > 14 { //nolint:mnd // LWP3 advertising name limit
		return nil, fmt.Errorf("%w: advertising name must be 1-14 bytes", ErrInvalidMessage)
	}
	return &HubProperty{Property: PropAdvertisingName, Operation: PropOpSet, Payload: []byte(name)}, nil
}

// Text returns the payload as a string (advertising name, manufacturer).
func (m *HubProperty) Text() string {
	return strings.TrimRight(string(m.Payload), "\x00")
}

// Int8 returns the first payload byte as a signed value (RSSI).
func (m *HubProperty) Int8() (int8, error) {
	if len(m.Payload) < 1 {
		return 0, fmt.Errorf("%w: %s has no value", ErrMalformed, m.Property)
	}
	return int8(m.Payload[0]), nil
}

// Uint8 returns the first payload byte (battery percent, button state).
func (m *HubProperty) Uint8() (uint8, error) {
	if len(m.Payload) < 1 {
		return 0, fmt.Errorf("%w: %s has no value", ErrMalformed, m.Property)
	}
	return m.Payload[0], nil
}

// Version returns the payload as a BCD version (firmware, hardware).
func (m *HubProperty) Version() (Version, error) {
	if len(m.Payload) < 4 { //nolint:mnd // int32 version
		return 0, fmt.Errorf("%w: %s needs 4 bytes", ErrMalformed, m.Property)
	}
	return Version(binary.LittleEndian.Uint32(m.Payload)), nil
}

// MAC returns the payload as a hardware address (primary/secondary MAC).
func (m *HubProperty) MAC() (net.HardwareAddr, error) {
	if len(m.Payload) < 6 { //nolint:mnd // 48-bit address
		return nil, fmt.Errorf("%w: %s needs 6 bytes", ErrMalformed, m.Property)
	}
	return net.HardwareAddr(append([]byte(nil), m.Payload[:6]...)), nil
}

// Alert builds a hub alert command (enable, disable or request).
func Alert(t AlertType, op AlertOp) *HubAlert {
	return &HubAlert{Alert: t, Operation: op}
}

// Action builds a hub action command.
func Action(a HubActionType) *HubAction {
	return &HubAction{Action: a}
}
