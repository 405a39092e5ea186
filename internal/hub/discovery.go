package hub

import (
	"fmt"
	"strings"
)

// LEGOManufacturerID is the Bluetooth SIG company id used in hub adverts.
const LEGOManufacturerID uint16 = 0x0397

// Kind is the hub model, taken from the system type byte of the advert.
type Kind uint8

// Hub models.
const (
	KindUnknown          Kind = 0xFF
	KindWeDo2            Kind = 0x00
	KindDuploTrain       Kind = 0x20
	KindMoveHub          Kind = 0x40
	KindHub              Kind = 0x41
	KindRemoteControl    Kind = 0x42
	KindMario            Kind = 0x43
	KindTechnicMediumHub Kind = 0x80
)

var kindNames = map[Kind]string{
	KindWeDo2:            "wedo2",
	KindDuploTrain:       "duplo_train",
	KindMoveHub:          "move_hub",
	KindHub:              "hub",
	KindRemoteControl:    "remote_control",
	KindMario:            "mario",
	KindTechnicMediumHub: "technic_medium_hub",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(k))
}

// IdentifyKind returns the hub model for LEGO manufacturer data (the bytes
// after the company id). The second byte carries the system type and device
// number.
func IdentifyKind(manufacturerData []byte) (Kind, bool) {
	if len(manufacturerData) < 2 { //nolint:mnd // button state + system type
		return KindUnknown, false
	}
	k := Kind(manufacturerData[1])
	if _, ok := kindNames[k]; !ok {
		return KindUnknown, false
	}
	return k, true
}

// Discovered describes a hub found during a scan.
type Discovered struct {
	Kind    Kind
	Address string
	Name    string
	RSSI    int16
}

// Filter selects hubs during discovery. Empty fields match anything; the
// zero Filter matches every LEGO hub.
type Filter struct {
	Name    string
	Address string
}

// Matches reports whether a discovered hub passes the filter. Addresses
// compare case-insensitively.
func (f Filter) Matches(d Discovered) bool {
	if f.Name != "" && f.Name != d.Name {
		return false
	}
	if f.Address != "" && !strings.EqualFold(f.Address, d.Address) {
		return false
	}
	return true
}

// Specific reports whether the filter names a single hub, so a scan can
// stop at the first match.
func (f Filter) Specific() bool {
	return f.Name != "" || f.Address != ""
}

// Well-known port ids.
const (
	PortA uint8 = 0x00
	PortB uint8 = 0x01
	PortC uint8 = 0x02
	PortD uint8 = 0x03

	PortTechnicLED           uint8 = 0x32
	PortTechnicCurrent       uint8 = 0x3B
	PortTechnicVoltage       uint8 = 0x3C
	PortTechnicTemperature   uint8 = 0x3D
	PortTechnicAccelerometer uint8 = 0x61
	PortTechnicGyro          uint8 = 0x62
	PortTechnicTilt          uint8 = 0x63
	PortTechnicGesture       uint8 = 0x64

	PortRemoteLED     uint8 = 0x34
	PortRemoteVoltage uint8 = 0x3B
	PortRemoteRSSI    uint8 = 0x3C

	PortMoveHubAB   uint8 = 0x10
	PortMoveHubTilt uint8 = 0x3A
)

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name produced by MarshalText. Unknown
// names decode to KindUnknown.
func (k *Kind) UnmarshalText(text []byte) error {
	*k = ParseKind(string(text))
	return nil
}

// ParseKind resolves a kind name, returning KindUnknown if none matches.
func ParseKind(name string) Kind {
	for k, s := range kindNames {
		if s == name {
			return k
		}
	}
	return KindUnknown
}
