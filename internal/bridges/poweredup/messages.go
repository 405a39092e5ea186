package poweredup

import (
	"encoding/hex"
	"time"

	"github.com/nerrad567/poweredup/internal/hub"
	"github.com/nerrad567/poweredup/internal/lwp3"
)

// StateMessage is the retained hub state.
// Topic: poweredup/{hub}/state
type StateMessage struct {
	HubID      string         `json:"hub_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Connected  bool           `json:"connected"`
	Properties hub.Properties `json:"properties"`
	Ports      []uint8        `json:"ports"`
}

// PortInfoMessage is the retained record of a ready port.
// Topic: poweredup/{hub}/port/{port}/info
type PortInfoMessage struct {
	HubID     string         `json:"hub_id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"`
	Family    string         `json:"family"`
	Record    hub.PortRecord `json:"record"`
}

// ValueMessage is one decoded value sample.
// Topic: poweredup/{hub}/port/{port}/value
type ValueMessage struct {
	HubID     string    `json:"hub_id"`
	Timestamp time.Time `json:"timestamp"`
	Port      uint8     `json:"port"`
	Mode      uint8     `json:"mode"`
	Kind      string    `json:"kind"`
	Values    []float64 `json:"values"`
	Raw       string    `json:"raw"`

	// Defaulted is set when the mode's value format was not negotiated and
	// the payload was decoded with the default layout.
	Defaulted bool `json:"defaulted,omitempty"`
}

// NoticeMessage is a hub notification.
// Topic: poweredup/{hub}/notice
type NoticeMessage struct {
	HubID     string         `json:"hub_id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      hub.NoticeKind `json:"kind"`
	Port      uint8          `json:"port"`
	Type      string         `json:"type,omitempty"`
	Message   lwp3.Message   `json:"message,omitempty"`
}

// NewValueMessage builds the value message for a sample.
func NewValueMessage(hubID string, ioType lwp3.IOType, s hub.Sample) ValueMessage {
	values := make([]float64, s.Values.Len())
	for i := range values {
		values[i] = s.Values.Float(i)
	}
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return ValueMessage{
		HubID:     hubID,
		Timestamp: ts.UTC(),
		Port:      s.Port,
		Mode:      s.Mode,
		Kind:      ioType.String(),
		Values:    values,
		Raw:       hex.EncodeToString(s.Raw),
		Defaulted: s.Defaulted,
	}
}

// NewNoticeMessage builds the notice message for a hub notification.
func NewNoticeMessage(hubID string, n hub.Notice) NoticeMessage {
	msg := NoticeMessage{
		HubID:     hubID,
		Timestamp: n.Time.UTC(),
		Kind:      n.Kind,
		Port:      n.Port,
		Message:   n.Message,
	}
	if n.Message != nil {
		msg.Type = n.Message.MessageType().String()
	}
	return msg
}

// NewPortInfoMessage builds the retained info message for a port record.
func NewPortInfoMessage(hubID string, rec hub.PortRecord) PortInfoMessage {
	return PortInfoMessage{
		HubID:     hubID,
		Timestamp: time.Now().UTC(),
		Kind:      rec.IOType.String(),
		Family:    rec.Kind().String(),
		Record:    rec,
	}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthStarting is published while the bridge initialises.
	HealthStarting HealthStatus = "starting"

	// HealthHealthy indicates the hub and the broker are connected.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the hub or the broker is unreachable.
	HealthDegraded HealthStatus = "degraded"

	// HealthStopping is published on graceful shutdown.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge health.
// Topic: poweredup/{hub}/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	HubID         string       `json:"hub_id"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	HubConnected  bool         `json:"hub_connected"`
	Subscriptions int          `json:"subscriptions"`
	Session       hub.Stats    `json:"session"`
}
