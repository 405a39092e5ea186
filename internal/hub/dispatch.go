package hub

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/poweredup/internal/lwp3"
)

// dispatch is the session's single reader of transport events. It runs
// until the event stream closes or the session is cancelled.
func (s *Session) dispatch() {
	defer s.shutdown()

	events := s.transport.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-events:
			if !ok {
				s.logInfo("hub event stream closed")
				return
			}
			s.handleFrame(frame)
		}
	}
}

// shutdown marks the session disconnected and releases every subscriber.
func (s *Session) shutdown() {
	s.done.Close()
	s.cancel()
	s.topics.close()
}

// handleFrame decodes and routes one frame. A failure here is logged and
// never ends the loop.
func (s *Session) handleFrame(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logError("panic handling frame", fmt.Errorf("%v", r))
		}
	}()

	s.framesReceived.Add(1)
	msg, err := lwp3.Decode(frame)
	if err != nil {
		s.malformedFrames.Add(1)
		s.logWarn("dropping malformed frame", "frame", hex.EncodeToString(frame), "error", err)
		return
	}
	s.route(msg)
}

func (s *Session) route(msg lwp3.Message) {
	switch m := msg.(type) {
	case *lwp3.HubAttachedIO:
		s.handleAttachedIO(m)
	case *lwp3.PortInformation:
		s.handlePortInformation(m)
	case *lwp3.PortModeInformation:
		s.locked("mode information", m.Port, func() error {
			return s.registry.ApplyModeInformation(m)
		})
	case *lwp3.PortInputFormatSingle:
		s.locked("input format", m.Port, func() error {
			return s.registry.SetInputFormat(m.InputFormat)
		})
	case *lwp3.PortInputFormatCombined:
		s.logDebug("combined input format", "port", m.Port, "modes", m.Modes)
	case *lwp3.PortValueSingle:
		s.topics.SingleValue.Publish(m)
	case *lwp3.PortValueCombined:
		s.topics.CombinedValue.Publish(m)
	case *lwp3.NetworkCommand:
		s.topics.NetworkCommand.Publish(m)
	case *lwp3.HubProperty:
		s.handleProperty(m)
	case *lwp3.HubAction:
		s.mu.Lock()
		s.props.LastAction = m.Action.String()
		s.props.UpdatedAt = time.Now()
		s.mu.Unlock()
		s.notify(NoticeAction, 0, m)
	case *lwp3.HubAlert:
		if m.Operation == lwp3.AlertOpUpdate {
			s.mu.Lock()
			if s.props.Alerts == nil {
				s.props.Alerts = make(map[string]bool)
			}
			s.props.Alerts[m.Alert.String()] = m.Active()
			s.props.UpdatedAt = time.Now()
			s.mu.Unlock()
		}
		s.notify(NoticeAlert, 0, m)
	case *lwp3.GenericError:
		s.logDebug("hub reported error", "command", m.Command.String(), "code", m.Code.String())
		s.notify(NoticeError, 0, m)
	case *lwp3.PortOutputCommandFeedback:
		s.feedbackFrames.Add(1)
	default:
		s.logDebug("ignoring message", "type", msg.MessageType().String())
	}
}

// locked applies a registry mutation under the session lock. A missing
// port means the device detached while its replies were in flight; the
// reply is discarded.
func (s *Session) locked(what string, port uint8, fn func() error) {
	s.mu.Lock()
	err := fn()
	s.mu.Unlock()
	if err == nil {
		return
	}
	if errors.Is(err, ErrNotFound) {
		s.logDebug("discarding reply for absent port", "reply", what, "port", port)
		return
	}
	s.logWarn("applying reply", "reply", what, "port", port, "error", err)
}

func (s *Session) handleAttachedIO(m *lwp3.HubAttachedIO) {
	switch m.Event {
	case lwp3.EventAttached:
		s.mu.Lock()
		s.registry.Attach(m.Port, m.IOType, m.HardwareRev, m.SoftwareRev)
		s.request(&lwp3.PortInformationRequest{Port: m.Port, Info: lwp3.InfoModeInfo})
		s.request(&lwp3.PortInformationRequest{Port: m.Port, Info: lwp3.InfoPossibleModeCombinations})
		s.mu.Unlock()
		s.logDebug("device attached", "port", m.Port, "io_type", m.IOType.String())
		s.notify(NoticeAttached, m.Port, m)

	case lwp3.EventAttachedVirtual:
		s.mu.Lock()
		err := s.registry.AttachVirtual(m.Port, m.IOType, m.PortA, m.PortB)
		s.mu.Unlock()
		if err != nil {
			s.logWarn("virtual attach", "port", m.Port, "error", err)
			return
		}
		s.logDebug("virtual device attached", "port", m.Port, "port_a", m.PortA, "port_b", m.PortB)
		s.notify(NoticeAttached, m.Port, m)

	case lwp3.EventDetached:
		s.mu.Lock()
		composites, err := s.registry.Detach(m.Port)
		s.mu.Unlock()
		if err != nil {
			s.logDebug("detach for unknown port", "port", m.Port)
			return
		}
		s.logDebug("device detached", "port", m.Port)
		s.notify(NoticeDetached, m.Port, m)
		for _, vp := range composites {
			s.logDebug("virtual device detached with member", "port", vp, "member", m.Port)
			s.notify(NoticeDetached, vp, &lwp3.HubAttachedIO{Port: vp, Event: lwp3.EventDetached})
		}
	}
}

// handlePortInformation stores a port information reply. A mode info reply
// fans out the per-mode requests in negotiation order, modes ascending,
// while the lock is still held.
func (s *Session) handlePortInformation(m *lwp3.PortInformation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch m.Info {
	case lwp3.InfoModeInfo:
		err = s.registry.SetModeInfo(m.Port, m.Capabilities, m.ModeCount, m.InputModes, m.OutputModes)
		if err == nil {
			for mode := range m.ModeCount {
				for _, info := range lwp3.NegotiationOrder {
					s.request(&lwp3.PortModeInformationRequest{Port: m.Port, Mode: mode, Info: info})
				}
			}
		}
	case lwp3.InfoPossibleModeCombinations:
		err = s.registry.SetCombinations(m.Port, m.Combinations)
	default:
		return
	}

	if errors.Is(err, ErrNotFound) {
		s.logDebug("discarding port information for absent port", "port", m.Port)
	}
}

// request sends a negotiation follow-up. Failures are logged; the port
// simply stays not ready.
func (s *Session) request(m lwp3.Message) {
	if err := s.w.send(s.ctx, m); err != nil {
		s.logDebug("negotiation request failed", "type", m.MessageType().String(), "error", err)
	}
}

func (s *Session) handleProperty(m *lwp3.HubProperty) {
	if m.Operation != lwp3.PropOpUpdate {
		return
	}

	s.mu.Lock()
	err := s.applyProperty(m)
	s.props.UpdatedAt = time.Now()
	s.mu.Unlock()

	if err != nil {
		s.logDebug("bad property payload", "property", m.Property.String(), "error", err)
	}
	s.notify(NoticeProperty, 0, m)
}

// applyProperty updates props from a property report. Caller holds mu.
func (s *Session) applyProperty(m *lwp3.HubProperty) error {
	switch m.Property {
	case lwp3.PropAdvertisingName:
		s.props.Name = m.Text()
	case lwp3.PropManufacturerName:
		s.props.Manufacturer = m.Text()
	case lwp3.PropButton:
		v, err := m.Uint8()
		if err != nil {
			return err
		}
		s.props.Button = v != 0
	case lwp3.PropFwVersion, lwp3.PropHwVersion:
		v, err := m.Version()
		if err != nil {
			return err
		}
		if m.Property == lwp3.PropFwVersion {
			s.props.FirmwareVersion = v.String()
		} else {
			s.props.HardwareVersion = v.String()
		}
	case lwp3.PropBatteryVoltage:
		v, err := m.Uint8()
		if err != nil {
			return err
		}
		s.props.BatteryPercent = v
	case lwp3.PropRSSI:
		v, err := m.Int8()
		if err != nil {
			return err
		}
		s.props.RSSI = v
	case lwp3.PropPrimaryMAC:
		mac, err := m.MAC()
		if err != nil {
			return err
		}
		s.props.MAC = mac.String()
	case lwp3.PropSystemTypeID:
		v, err := m.Uint8()
		if err != nil {
			return err
		}
		s.props.Kind = Kind(v)
	}
	return nil
}

// portReady runs under mu when a record completes negotiation.
func (s *Session) portReady(rec PortRecord) {
	s.logDebug("port ready", "port", rec.Port, "io_type", rec.IOType.String(), "modes", rec.ModeCount)
	s.notify(NoticePortReady, rec.Port, nil)
}

func (s *Session) notify(kind NoticeKind, port uint8, m lwp3.Message) {
	s.topics.HubNotification.Publish(Notice{Kind: kind, Port: port, Message: m, Time: time.Now()})
}
