package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicRoot is the first level of every poweredup topic.
//
// Layout:
//
//	poweredup/system/status
//	poweredup/{hub}/state | notice | health | command | ack
//	poweredup/{hub}/port/{port}/value | info | command
//
// Ports are written in decimal.
const TopicRoot = "poweredup"

// Port topic leaves.
const (
	LeafValue   = "value"
	LeafInfo    = "info"
	LeafCommand = "command"
)

// Topics builds poweredup topic names.
//
//	mqtt.Topics{}.PortValue("crane", 0)
//	// Returns: "poweredup/crane/port/0/value"
type Topics struct{}

// PortValue carries decoded value samples from a port.
func (Topics) PortValue(hubID string, port uint8) string {
	return portTopic(hubID, port, LeafValue)
}

// PortInfo carries the retained port record once negotiation completes.
func (Topics) PortInfo(hubID string, port uint8) string {
	return portTopic(hubID, port, LeafInfo)
}

// PortCommand receives device commands for a port.
func (Topics) PortCommand(hubID string, port uint8) string {
	return portTopic(hubID, port, LeafCommand)
}

// HubState carries retained hub properties.
//
// Example: poweredup/crane/state
func (Topics) HubState(hubID string) string {
	return fmt.Sprintf("%s/%s/state", TopicRoot, hubID)
}

// HubNotice carries hub notices (alerts, actions, errors, attach/detach).
func (Topics) HubNotice(hubID string) string {
	return fmt.Sprintf("%s/%s/notice", TopicRoot, hubID)
}

// HubHealth carries retained bridge health.
func (Topics) HubHealth(hubID string) string {
	return fmt.Sprintf("%s/%s/health", TopicRoot, hubID)
}

// HubCommand receives hub-level commands (actions, name, alerts).
func (Topics) HubCommand(hubID string) string {
	return fmt.Sprintf("%s/%s/command", TopicRoot, hubID)
}

// HubAck carries command acknowledgements for the hub and its ports.
func (Topics) HubAck(hubID string) string {
	return fmt.Sprintf("%s/%s/ack", TopicRoot, hubID)
}

// SystemStatus carries the client's online/offline status and is the LWT topic.
func (Topics) SystemStatus() string {
	return TopicRoot + "/system/status"
}

// AllPortCommands matches command topics of every port of a hub.
//
// Pattern: poweredup/{hub}/port/+/command
func (Topics) AllPortCommands(hubID string) string {
	return fmt.Sprintf("%s/%s/port/+/%s", TopicRoot, hubID, LeafCommand)
}

// AllHubTopics matches every topic of a hub. Use with caution.
func (Topics) AllHubTopics(hubID string) string {
	return fmt.Sprintf("%s/%s/#", TopicRoot, hubID)
}

func portTopic(hubID string, port uint8, leaf string) string {
	return fmt.Sprintf("%s/%s/port/%d/%s", TopicRoot, hubID, port, leaf)
}

// PortTopic is a parsed poweredup/{hub}/port/{port}/{leaf} topic.
type PortTopic struct {
	HubID string
	Port  uint8
	Leaf  string
}

// ParsePortTopic splits a port topic into its parts.
//
// Returns:
//   - PortTopic: Hub id, port number and leaf
//   - error: ErrInvalidTopic if the topic is not a port topic
func ParsePortTopic(topic string) (PortTopic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != TopicRoot || parts[2] != "port" || parts[1] == "" || parts[4] == "" { //nolint:mnd // topic levels
		return PortTopic{}, fmt.Errorf("%w: %q is not a port topic", ErrInvalidTopic, topic)
	}
	port, err := strconv.ParseUint(parts[3], 10, 8)
	if err != nil {
		return PortTopic{}, fmt.Errorf("%w: port %q: %w", ErrInvalidTopic, parts[3], err)
	}
	return PortTopic{HubID: parts[1], Port: uint8(port), Leaf: parts[4]}, nil
}
