package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/poweredup/internal/lwp3"
)

var errLinkDown = errors.New("fake: link down")

// fakeTransport records writes and lets tests inject inbound frames.
type fakeTransport struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	events   chan []byte
	once     sync.Once
	closed   bool

	// gate, when set, blocks writes to the given port until closed.
	gate     chan struct{}
	gatePort uint8
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan []byte, 256)}
}

func (f *fakeTransport) Write(ctx context.Context, frame []byte) error {
	f.mu.Lock()
	gate, gatePort := f.gate, f.gatePort
	f.mu.Unlock()

	if gate != nil && len(frame) > 3 && frame[3] == gatePort {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errLinkDown
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), frame...))
	return nil
}

func (f *fakeTransport) Events() <-chan []byte { return f.events }

func (f *fakeTransport) Close() error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.events)
	})
	return nil
}

// feed encodes m and delivers it as an inbound frame.
func (f *fakeTransport) feed(t *testing.T, m lwp3.Message) {
	t.Helper()
	frame, err := lwp3.Encode(m)
	if err != nil {
		t.Fatalf("encode %T: %v", m, err)
	}
	f.events <- frame
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.writes = nil
	f.mu.Unlock()
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// waitWrites waits until at least n frames were written and returns them
// decoded.
func (f *fakeTransport) waitWrites(t *testing.T, n int) []lwp3.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("got %d writes, want %d", f.count(), n)
		}
		time.Sleep(time.Millisecond)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]lwp3.Message, 0, len(f.writes))
	for _, w := range f.writes {
		m, err := lwp3.Decode(w)
		if err != nil {
			t.Fatalf("written frame % x does not decode: %v", w, err)
		}
		out = append(out, m)
	}
	return out
}

// eventually polls cond until it holds or the test times out.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestSession(t *testing.T) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	s, err := Connect(context.Background(), ft, Options{Name: "Technic Hub", Kind: KindTechnicMediumHub})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ft.reset()
	t.Cleanup(s.Disconnect)
	return s, ft
}

func attachMotor(port uint8) *lwp3.HubAttachedIO {
	return &lwp3.HubAttachedIO{
		Port:        port,
		Event:       lwp3.EventAttached,
		IOType:      lwp3.IOTechnicLargeLinearMotor,
		HardwareRev: 0x10000000,
		SoftwareRev: 0x10000004,
	}
}

func TestConnectRequestsIdentity(t *testing.T) {
	ft := newFakeTransport()
	s, err := Connect(context.Background(), ft, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Disconnect()

	msgs := ft.waitWrites(t, len(identityProperties)+len(liveProperties))
	for i, ref := range identityProperties {
		p, ok := msgs[i].(*lwp3.HubProperty)
		if !ok || p.Property != ref || p.Operation != lwp3.PropOpRequestUpdate {
			t.Errorf("write %d = %+v, want request %s", i, msgs[i], ref)
		}
	}
	for i, ref := range liveProperties {
		p, ok := msgs[len(identityProperties)+i].(*lwp3.HubProperty)
		if !ok || p.Property != ref || p.Operation != lwp3.PropOpEnableUpdates {
			t.Errorf("enable %d = %+v, want %s", i, p, ref)
		}
	}
}

func TestConnectNilTransport(t *testing.T) {
	if _, err := Connect(context.Background(), nil, Options{}); !errors.Is(err, ErrNilTransport) {
		t.Errorf("Connect(nil) error = %v, want ErrNilTransport", err)
	}
}

func TestConnectWriteFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.writeErr = errors.New("fake: gatt failure")
	if _, err := Connect(context.Background(), ft, Options{}); err == nil {
		t.Fatal("Connect() succeeded with a failing transport")
	}
}

func TestAttachIssuesTwoRequests(t *testing.T) {
	s, ft := newTestSession(t)

	ft.feed(t, &lwp3.HubAttachedIO{Port: 0x01, Event: lwp3.EventAttached, IOType: lwp3.IOMotor})
	msgs := ft.waitWrites(t, 2)

	if len(msgs) != 2 {
		t.Fatalf("got %d follow-ups, want 2", len(msgs))
	}
	wantInfo := []lwp3.InformationType{lwp3.InfoModeInfo, lwp3.InfoPossibleModeCombinations}
	for i, m := range msgs {
		req, ok := m.(*lwp3.PortInformationRequest)
		if !ok {
			t.Fatalf("follow-up %d is %T", i, m)
		}
		if req.Port != 1 || req.Info != wantInfo[i] {
			t.Errorf("follow-up %d = %+v, want port 1 %s", i, req, wantInfo[i])
		}
	}

	rec, err := s.Port(1)
	if err != nil {
		t.Fatalf("Port(1) error = %v", err)
	}
	if rec.IOType != lwp3.IOMotor || rec.Ready {
		t.Errorf("record = %+v", rec)
	}
}

func TestModeInfoFansOutInOrder(t *testing.T) {
	s, ft := newTestSession(t)

	ft.feed(t, attachMotor(1))
	ft.waitWrites(t, 2)
	ft.reset()

	ft.feed(t, &lwp3.PortInformation{
		Port:         1,
		Info:         lwp3.InfoModeInfo,
		Capabilities: lwp3.CapOutput | lwp3.CapInput,
		ModeCount:    3,
		InputModes:   0x06,
		OutputModes:  0x01,
	})
	msgs := ft.waitWrites(t, 24)
	if len(msgs) != 24 {
		t.Fatalf("got %d per-mode requests, want 24", len(msgs))
	}

	for i, m := range msgs {
		req, ok := m.(*lwp3.PortModeInformationRequest)
		if !ok {
			t.Fatalf("request %d is %T", i, m)
		}
		wantMode := uint8(i / len(lwp3.NegotiationOrder))
		wantInfo := lwp3.NegotiationOrder[i%len(lwp3.NegotiationOrder)]
		if req.Port != 1 || req.Mode != wantMode || req.Info != wantInfo {
			t.Errorf("request %d = %+v, want mode %d %s", i, req, wantMode, wantInfo)
		}
	}

	rec, _ := s.Port(1)
	if rec.ModeCount != 3 || rec.InputModes != 0x06 {
		t.Errorf("record = %+v", rec)
	}
}

func TestHandshakeThenReady(t *testing.T) {
	s, ft := newTestSession(t)
	notices := s.Topics().HubNotification.Subscribe()
	defer notices.Close()

	ft.feed(t, attachMotor(1))
	ft.feed(t, &lwp3.PortInformation{Port: 1, Info: lwp3.InfoModeInfo, Capabilities: lwp3.CapInput, ModeCount: 2})
	ft.waitWrites(t, 2+16)

	// Replies arrive newest mode first.
	for mode := 1; mode >= 0; mode-- {
		for _, m := range modeReplies(1, uint8(mode)) {
			ft.feed(t, m)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec, err := s.WaitReady(ctx, 1)
	if err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	if !rec.Ready || len(rec.Modes) != 2 {
		t.Errorf("record = %+v", rec)
	}

	for {
		select {
		case n := <-notices.C:
			if n.Kind == NoticePortReady && n.Port == 1 {
				return
			}
		case <-ctx.Done():
			t.Fatal("no port_ready notice")
		}
	}
}

func TestWaitReadyDetached(t *testing.T) {
	s, ft := newTestSession(t)
	ft.feed(t, attachMotor(1))
	ft.waitWrites(t, 2)

	errc := make(chan error, 1)
	go func() {
		_, err := s.WaitReady(context.Background(), 1)
		errc <- err
	}()

	ft.feed(t, &lwp3.HubAttachedIO{Port: 1, Event: lwp3.EventDetached})
	select {
	case err := <-errc:
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("WaitReady() error = %v, want ErrNotFound", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitReady did not return after detach")
	}

	if _, err := s.WaitReady(context.Background(), 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("WaitReady(unknown) error = %v", err)
	}
}

func TestDetachDiscardsLateReplies(t *testing.T) {
	s, ft := newTestSession(t)

	ft.feed(t, attachMotor(1))
	ft.feed(t, &lwp3.HubAttachedIO{Port: 1, Event: lwp3.EventDetached})
	for _, m := range modeReplies(1, 0) {
		ft.feed(t, m)
	}
	ft.feed(t, &lwp3.PortInformation{Port: 1, Info: lwp3.InfoModeInfo, ModeCount: 4})
	ft.feed(t, &lwp3.PortInformation{Port: 1, Info: lwp3.InfoPossibleModeCombinations, Combinations: []uint16{3}})

	// A frame after the late replies proves they were processed.
	ft.feed(t, attachMotor(2))
	eventually(t, "port 2 attach", func() bool {
		_, err := s.Port(2)
		return err == nil
	})

	if _, err := s.Port(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Port(1) error = %v, want ErrNotFound", err)
	}
	if len(s.Ports()) != 1 {
		t.Errorf("Ports() = %+v, want only port 2", s.Ports())
	}
	// No per-mode requests went out for the detached port.
	for _, m := range ft.waitWrites(t, 4) {
		if req, ok := m.(*lwp3.PortModeInformationRequest); ok && req.Port == 1 {
			t.Errorf("per-mode request for detached port: %+v", req)
		}
	}
}

func TestMalformedFrameDoesNotStopDispatcher(t *testing.T) {
	s, ft := newTestSession(t)

	ft.events <- []byte{}
	ft.events <- []byte{0x05, 0x00, 0x99, 0x01, 0x02}
	ft.events <- []byte{0x0F, 0x00, 0x04}
	ft.feed(t, attachMotor(1))

	eventually(t, "attach after garbage", func() bool {
		_, err := s.Port(1)
		return err == nil
	})
	if got := s.Stats().MalformedFrames; got != 3 {
		t.Errorf("MalformedFrames = %d, want 3", got)
	}
}

func TestValueReachesSubscriber(t *testing.T) {
	s, ft := newTestSession(t)
	ft.feed(t, attachMotor(1))
	ft.feed(t, &lwp3.PortInformation{Port: 1, Info: lwp3.InfoModeInfo, Capabilities: lwp3.CapInput, ModeCount: 3})
	ft.feed(t, &lwp3.PortModeInformation{Port: 1, Mode: 2, Info: lwp3.ModeInfoValueFormat, Format: lwp3.ValueFormat{
		Datasets: 1, Type: lwp3.DatasetInt32, Figures: 4,
	}})
	eventually(t, "value format", func() bool {
		rec, err := s.Port(1)
		return err == nil && rec.Modes[2] != nil && rec.Modes[2].HasFormat
	})

	dev, err := s.Device(1)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := dev.Subscribe(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	ft.feed(t, &lwp3.PortValueSingle{Port: 3, Data: []byte{0x07, 0, 0, 0}})
	ft.feed(t, &lwp3.PortValueSingle{Port: 1, Data: []byte{0x2A, 0x00, 0x00, 0x00}})

	select {
	case sample := <-sub.C:
		if sample.Port != 1 || sample.Mode != 2 {
			t.Errorf("sample = %+v", sample)
		}
		if sample.Values.Len() != 1 || sample.Values.Ints[0] != 42 {
			t.Errorf("Values = %+v, want [42]", sample.Values)
		}
		if sample.Defaulted {
			t.Error("Defaulted set although the format was negotiated")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no sample received")
	}
}

func TestSubscribeDefaultsFormat(t *testing.T) {
	s, ft := newTestSession(t)
	ft.feed(t, attachMotor(1))
	eventually(t, "attach", func() bool { _, err := s.Port(1); return err == nil })

	dev, _ := s.Device(1)
	a, err := dev.Subscribe(context.Background(), 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := dev.Subscribe(context.Background(), 2, 1)
	if err != nil {
		t.Fatal(err)
	}

	ft.feed(t, &lwp3.PortValueSingle{Port: 1, Data: []byte{0xD6, 0xFF, 0xFF, 0xFF}})

	for _, sub := range []*Subscription{a, b} {
		select {
		case sample := <-sub.C:
			if !sample.Defaulted || sample.Values.Ints[0] != -42 {
				t.Errorf("sample = %+v, want defaulted -42", sample)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber starved")
		}
	}

	b.Close()
	if _, ok := <-b.C; ok {
		t.Error("closed subscription still delivering")
	}
}

func TestPropertiesUpdatedFromReports(t *testing.T) {
	s, ft := newTestSession(t)
	notices := s.Topics().HubNotification.Subscribe()
	defer notices.Close()

	ft.feed(t, &lwp3.HubProperty{Property: lwp3.PropAdvertisingName, Operation: lwp3.PropOpUpdate, Payload: []byte("Crane")})
	ft.feed(t, &lwp3.HubProperty{Property: lwp3.PropBatteryVoltage, Operation: lwp3.PropOpUpdate, Payload: []byte{87}})
	ft.feed(t, &lwp3.HubProperty{Property: lwp3.PropRSSI, Operation: lwp3.PropOpUpdate, Payload: []byte{0xC4}})
	ft.feed(t, &lwp3.HubProperty{Property: lwp3.PropFwVersion, Operation: lwp3.PropOpUpdate, Payload: []byte{0x04, 0x00, 0x00, 0x10}})
	ft.feed(t, &lwp3.HubProperty{Property: lwp3.PropPrimaryMAC, Operation: lwp3.PropOpUpdate, Payload: []byte{0x90, 0x84, 0x2b, 0x01, 0x02, 0x03}})
	ft.feed(t, &lwp3.HubAlert{Alert: lwp3.AlertLowVoltage, Operation: lwp3.AlertOpUpdate, Status: 0xFF})

	eventually(t, "alert applied", func() bool { return s.Properties().Alerts["low_voltage"] })

	p := s.Properties()
	if p.Name != "Crane" || p.BatteryPercent != 87 || p.RSSI != -60 {
		t.Errorf("Properties = %+v", p)
	}
	if p.FirmwareVersion != "1.0.00.0004" {
		t.Errorf("FirmwareVersion = %q", p.FirmwareVersion)
	}
	if p.MAC != "90:84:2b:01:02:03" {
		t.Errorf("MAC = %q", p.MAC)
	}
	if p.Kind != KindTechnicMediumHub {
		t.Errorf("Kind = %v", p.Kind)
	}

	kinds := map[NoticeKind]int{}
	for len(kinds) < 2 {
		select {
		case n := <-notices.C:
			kinds[n.Kind]++
		case <-time.After(2 * time.Second):
			t.Fatalf("notices = %v", kinds)
		}
	}
	if kinds[NoticeProperty] == 0 || kinds[NoticeAlert] == 0 {
		t.Errorf("notices = %v", kinds)
	}
}

func TestValuesWithoutSubscribersDoNotBlock(t *testing.T) {
	s, ft := newTestSession(t)

	for i := range 200 {
		ft.feed(t, &lwp3.PortValueSingle{Port: 1, Data: []byte{byte(i)}})
		ft.feed(t, &lwp3.NetworkCommand{Command: 0x02, Payload: []byte{byte(i)}})
	}
	ft.feed(t, attachMotor(1))
	eventually(t, "dispatcher progress", func() bool { _, err := s.Port(1); return err == nil })
}

func TestFeedbackCounted(t *testing.T) {
	s, ft := newTestSession(t)
	ft.feed(t, &lwp3.PortOutputCommandFeedback{Feedback: []lwp3.PortFeedback{{Port: 1, Flags: lwp3.FeedbackBufferEmptyCompleted}}})
	eventually(t, "feedback", func() bool { return s.Stats().FeedbackFrames == 1 })
}

func TestStreamCloseDisconnects(t *testing.T) {
	s, ft := newTestSession(t)
	ft.feed(t, attachMotor(1))
	eventually(t, "attach", func() bool { _, err := s.Port(1); return err == nil })
	dev, _ := s.Device(1)
	values := s.Topics().SingleValue.Subscribe()

	_ = ft.Close()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after stream close")
	}

	if err := dev.StartSpeed(context.Background(), 50, 100); !errors.Is(err, ErrDisconnected) {
		t.Errorf("StartSpeed() error = %v, want ErrDisconnected", err)
	}
	if err := s.Action(context.Background(), lwp3.ActionSwitchOff); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Action() error = %v, want ErrDisconnected", err)
	}
	if _, ok := <-values.C; ok {
		t.Error("topic still open after disconnect")
	}
	if s.Connected() {
		t.Error("Connected() = true after disconnect")
	}
}

func TestVirtualAttach(t *testing.T) {
	s, ft := newTestSession(t)
	ft.feed(t, attachMotor(0))
	ft.feed(t, attachMotor(1))
	ft.feed(t, &lwp3.HubAttachedIO{Port: 16, Event: lwp3.EventAttachedVirtual, IOType: lwp3.IOTechnicLargeLinearMotor, PortA: 0, PortB: 1})

	eventually(t, "virtual port", func() bool { _, err := s.Port(16); return err == nil })
	rec, _ := s.Port(16)
	if !rec.Virtual || rec.Members != [2]uint8{0, 1} {
		t.Errorf("virtual record = %+v", rec)
	}

	ft.reset()
	if err := s.DisconnectVirtualPort(context.Background(), 16); err != nil {
		t.Fatalf("DisconnectVirtualPort() error = %v", err)
	}
	msgs := ft.waitWrites(t, 1)
	if v, ok := msgs[0].(*lwp3.VirtualPortSetup); !ok || v.Connect || v.Port != 16 {
		t.Errorf("write = %+v", msgs[0])
	}
	if err := s.DisconnectVirtualPort(context.Background(), 0); !errors.Is(err, ErrUnsupported) {
		t.Errorf("DisconnectVirtualPort(physical) error = %v", err)
	}
}

func TestDetachMemberDropsVirtual(t *testing.T) {
	s, ft := newTestSession(t)
	notices := s.Topics().HubNotification.Subscribe()
	defer notices.Close()

	ft.feed(t, attachMotor(0))
	ft.feed(t, attachMotor(1))
	ft.feed(t, &lwp3.HubAttachedIO{Port: 16, Event: lwp3.EventAttachedVirtual, IOType: lwp3.IOTechnicLargeLinearMotor, PortA: 0, PortB: 1})
	eventually(t, "virtual port", func() bool { _, err := s.Port(16); return err == nil })

	ft.feed(t, &lwp3.HubAttachedIO{Port: 0, Event: lwp3.EventDetached})
	eventually(t, "virtual port removed", func() bool { _, err := s.Port(16); return errors.Is(err, ErrNotFound) })
	if _, err := s.Port(1); err != nil {
		t.Errorf("other member removed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case n := <-notices.C:
			if n.Kind == NoticeDetached && n.Port == 16 {
				return
			}
		case <-ctx.Done():
			t.Fatal("no detached notice for the virtual port")
		}
	}
}

func TestWriteOnDeadLinkDisconnected(t *testing.T) {
	s, ft := newTestSession(t)
	ft.feed(t, attachMotor(1))
	eventually(t, "attach", func() bool { _, err := s.Port(1); return err == nil })
	dev, _ := s.Device(1)

	// The link is gone but the event stream has not closed yet.
	ft.mu.Lock()
	ft.writeErr = fmt.Errorf("fake: gatt: %w", ErrDisconnected)
	ft.mu.Unlock()

	if err := dev.StartSpeed(context.Background(), 50, 100); !errors.Is(err, ErrDisconnected) {
		t.Errorf("StartSpeed() error = %v, want ErrDisconnected", err)
	}
	if err := s.Action(context.Background(), lwp3.ActionSwitchOff); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Action() error = %v, want ErrDisconnected", err)
	}
	if !s.Connected() {
		t.Error("Connected() = false before the event stream closed")
	}
}

func TestSessionCommands(t *testing.T) {
	s, ft := newTestSession(t)
	ctx := context.Background()

	if err := s.SetName(ctx, "Crane"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetName(ctx, "a name that is far too long"); !errors.Is(err, lwp3.ErrInvalidMessage) {
		t.Errorf("SetName(long) error = %v", err)
	}
	if err := s.EnableAlert(ctx, lwp3.AlertLowVoltage); err != nil {
		t.Fatal(err)
	}
	if err := s.Action(ctx, lwp3.ActionBusyIndicationOn); err != nil {
		t.Fatal(err)
	}

	msgs := ft.waitWrites(t, 3)
	if p, ok := msgs[0].(*lwp3.HubProperty); !ok || p.Operation != lwp3.PropOpSet || p.Text() != "Crane" {
		t.Errorf("write 0 = %+v", msgs[0])
	}
	if a, ok := msgs[1].(*lwp3.HubAlert); !ok || a.Operation != lwp3.AlertOpEnable {
		t.Errorf("write 1 = %+v", msgs[1])
	}
	if a, ok := msgs[2].(*lwp3.HubAction); !ok || a.Action != lwp3.ActionBusyIndicationOn {
		t.Errorf("write 2 = %+v", msgs[2])
	}
}

func TestDeviceLookups(t *testing.T) {
	s, ft := newTestSession(t)
	ft.feed(t, attachMotor(3))
	ft.feed(t, attachMotor(0))
	ft.feed(t, &lwp3.HubAttachedIO{Port: PortTechnicLED, Event: lwp3.EventAttached, IOType: lwp3.IOHubLED})
	eventually(t, "three ports", func() bool { return len(s.Ports()) == 3 })

	dev, err := s.DeviceByKind(lwp3.IOTechnicLargeLinearMotor)
	if err != nil || dev.Port() != 0 {
		t.Errorf("DeviceByKind() = %d, %v; want port 0", dev.Port(), err)
	}
	if got := s.DevicesByKind(lwp3.IOTechnicLargeLinearMotor); len(got) != 2 || got[1].Port() != 3 {
		t.Errorf("DevicesByKind() = %+v", got)
	}
	if _, err := s.DeviceByKind(lwp3.IOTechnicColorSensor); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeviceByKind(absent) error = %v", err)
	}
	if _, err := s.Device(9); !errors.Is(err, ErrNotFound) {
		t.Errorf("Device(9) error = %v", err)
	}
}
