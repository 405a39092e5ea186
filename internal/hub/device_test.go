package hub

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/poweredup/internal/lwp3"
)

func sessionWith(t *testing.T, attach ...*lwp3.HubAttachedIO) (*Session, *fakeTransport) {
	t.Helper()
	s, ft := newTestSession(t)
	for _, a := range attach {
		ft.feed(t, a)
	}
	eventually(t, "attached ports", func() bool { return len(s.Ports()) == len(attach) })
	ft.reset()
	return s, ft
}

func attachKind(port uint8, t lwp3.IOType) *lwp3.HubAttachedIO {
	return &lwp3.HubAttachedIO{Port: port, Event: lwp3.EventAttached, IOType: t}
}

func TestDeviceUnsupportedWritesNothing(t *testing.T) {
	s, ft := sessionWith(t,
		attachKind(0, lwp3.IOTechnicLargeLinearMotor),
		attachKind(1, lwp3.IOMotor),
		attachKind(PortTechnicLED, lwp3.IOHubLED),
		attachKind(PortTechnicTemperature, lwp3.IOTechnicHubTemperatureSensor),
	)
	ctx := context.Background()
	tacho, _ := s.Device(0)
	basic, _ := s.Device(1)
	led, _ := s.Device(PortTechnicLED)
	sensor, _ := s.Device(PortTechnicTemperature)

	tests := []struct {
		name string
		call func() error
	}{
		{"SetRGB on motor", func() error { return tacho.SetRGB(ctx, 255, 0, 0) }},
		{"SetColor on motor", func() error { return tacho.SetColor(ctx, lwp3.ColorRed) }},
		{"StartSpeed on basic motor", func() error { return basic.StartSpeed(ctx, 50, 100) }},
		{"GotoAbsolutePosition on LED", func() error { return led.GotoAbsolutePosition(ctx, 90, 50, 100, lwp3.EndHold) }},
		{"StartPower on LED", func() error { return led.StartPower(ctx, lwp3.PowerCW(50)) }},
		{"StartPower on sensor", func() error { return sensor.StartPower(ctx, lwp3.PowerBrake) }},
		{"PresetEncoder on sensor", func() error { return sensor.PresetEncoder(ctx, 0) }},
		{"SubscribeButtons on motor", func() error { _, err := tacho.SubscribeButtons(ctx); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrUnsupported) {
				t.Errorf("error = %v, want ErrUnsupported", err)
			}
		})
	}
	if n := ft.count(); n != 0 {
		t.Errorf("%d frames written for unsupported commands", n)
	}
}

func TestDeviceCommandFrames(t *testing.T) {
	s, ft := sessionWith(t,
		attachKind(0, lwp3.IOTechnicLargeLinearMotor),
		attachKind(1, lwp3.IOMotor),
		attachKind(PortTechnicLED, lwp3.IOHubLED),
	)
	ctx := context.Background()
	tacho, _ := s.Device(0)
	basic, _ := s.Device(1)
	led, _ := s.Device(PortTechnicLED)

	tests := []struct {
		name string
		call func() error
		want [][]byte
	}{
		{
			name: "StartSpeed",
			call: func() error { return tacho.StartSpeed(ctx, 50, 100) },
			want: [][]byte{{0x09, 0x00, 0x81, 0x00, 0x11, 0x07, 0x32, 0x64, 0x03}},
		},
		{
			name: "StartPower",
			call: func() error { return basic.StartPower(ctx, lwp3.PowerCCW(30)) },
			want: [][]byte{{0x08, 0x00, 0x81, 0x01, 0x11, 0x51, 0x00, 0xE2}},
		},
		{
			name: "SetColor switches mode first",
			call: func() error { return led.SetColor(ctx, lwp3.ColorGreen) },
			want: [][]byte{
				{0x0A, 0x00, 0x41, 0x32, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00},
				{0x08, 0x00, 0x81, 0x32, 0x11, 0x51, 0x00, 0x06},
			},
		},
		{
			name: "SetRGB switches mode first",
			call: func() error { return led.SetRGB(ctx, 0x10, 0x20, 0x30) },
			want: [][]byte{
				{0x0A, 0x00, 0x41, 0x32, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00},
				{0x0A, 0x00, 0x81, 0x32, 0x11, 0x51, 0x01, 0x10, 0x20, 0x30},
			},
		},
		{
			name: "SetMode",
			call: func() error { return tacho.SetMode(ctx, 2, 5, true) },
			want: [][]byte{{0x0A, 0x00, 0x41, 0x00, 0x02, 0x05, 0x00, 0x00, 0x00, 0x01}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft.reset()
			if err := tt.call(); err != nil {
				t.Fatalf("error = %v", err)
			}
			ft.mu.Lock()
			got := ft.writes
			ft.mu.Unlock()
			if len(got) != len(tt.want) {
				t.Fatalf("wrote %d frames, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if !bytes.Equal(got[i], tt.want[i]) {
					t.Errorf("frame %d = % x, want % x", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDeviceMotorHelpers(t *testing.T) {
	s, ft := sessionWith(t, attachKind(2, lwp3.IOTechnicMediumAngularMotor))
	ctx := context.Background()
	m, _ := s.Device(2)

	calls := []func() error{
		func() error { return m.StartSpeedForTime(ctx, 1500*time.Millisecond, 40, 80, lwp3.EndBrake) },
		func() error { return m.StartSpeedForDegrees(ctx, -90, 40, 80, lwp3.EndHold) },
		func() error { return m.GotoAbsolutePosition(ctx, 180, 40, 80, lwp3.EndHold) },
		func() error { return m.PresetEncoder(ctx, 0) },
		func() error { return m.SetAccTime(ctx, 500*time.Millisecond) },
		func() error { return m.SetDecTime(ctx, time.Minute) },
		func() error { return m.WriteDirect(ctx, 0, []byte{0x7F}) },
	}
	for i, call := range calls {
		if err := call(); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	msgs := ft.waitWrites(t, len(calls))
	wantSub := []lwp3.Subcommand{
		lwp3.SubStartSpeedForTime,
		lwp3.SubStartSpeedForDegrees,
		lwp3.SubGotoAbsolutePosition,
		lwp3.SubWriteDirectModeData,
		lwp3.SubSetAccTime,
		lwp3.SubSetDecTime,
		lwp3.SubWriteDirectModeData,
	}
	for i, m := range msgs {
		cmd, ok := m.(*lwp3.PortOutputCommand)
		if !ok || cmd.Port != 2 || cmd.Subcommand != wantSub[i] {
			t.Errorf("write %d = %+v, want %s", i, m, wantSub[i])
		}
	}

	// 1500ms little endian.
	if cmd := msgs[0].(*lwp3.PortOutputCommand); cmd.Payload[0] != 0xDC || cmd.Payload[1] != 0x05 {
		t.Errorf("time payload = % x", cmd.Payload)
	}
	// Ramps clamp to 10s.
	if cmd := msgs[5].(*lwp3.PortOutputCommand); cmd.Payload[0] != 0x10 || cmd.Payload[1] != 0x27 {
		t.Errorf("dec ramp payload = % x", cmd.Payload)
	}
}

func TestConcurrentCommandsDifferentPorts(t *testing.T) {
	s, ft := sessionWith(t,
		attachKind(0, lwp3.IOTechnicLargeLinearMotor),
		attachKind(1, lwp3.IOTechnicLargeLinearMotor),
	)
	a, _ := s.Device(0)
	b, _ := s.Device(1)

	// Writes to port 0 stall in the transport until released.
	gate := make(chan struct{})
	ft.mu.Lock()
	ft.gate, ft.gatePort = gate, 0
	ft.mu.Unlock()

	ctx := context.Background()
	errA := make(chan error, 1)
	go func() { errA <- a.StartSpeed(ctx, 30, 100) }()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.StartPower(ctx, lwp3.PowerCW(20))
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("commands to port 1 blocked behind port 0")
	}
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("StartPower() error = %v", err)
		}
	}

	close(gate)
	select {
	case err := <-errA:
		if err != nil {
			t.Errorf("StartSpeed() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("port 0 command never completed")
	}
}

func TestDeviceHandlesAreCopies(t *testing.T) {
	s, ft := sessionWith(t, attachKind(0, lwp3.IOTechnicLargeLinearMotor))
	d, _ := s.Device(0)
	clone := d

	if err := clone.StartSpeed(context.Background(), 10, 50); err != nil {
		t.Fatal(err)
	}
	if err := d.StartSpeed(context.Background(), -10, 50); err != nil {
		t.Fatal(err)
	}
	if ft.count() != 2 {
		t.Errorf("writes = %d, want 2", ft.count())
	}
	if clone.Port() != 0 || clone.Family() != lwp3.FamilyTachoMotor {
		t.Errorf("clone = %d %s", clone.Port(), clone.Family())
	}
}

func TestRemoteButtons(t *testing.T) {
	s, ft := sessionWith(t, attachKind(0, lwp3.IORemoteControlButton))
	remote, _ := s.Device(0)

	sub, err := remote.SubscribeButtons(context.Background())
	if err != nil {
		t.Fatalf("SubscribeButtons() error = %v", err)
	}
	defer sub.Close()

	msgs := ft.waitWrites(t, 1)
	setup, ok := msgs[0].(*lwp3.PortInputFormatSetupSingle)
	if !ok || setup.Mode != 0 || !setup.Notify {
		t.Fatalf("setup = %+v", msgs[0])
	}

	for _, b := range []byte{0x01, 0x7F, 0xFF, 0x00} {
		ft.feed(t, &lwp3.PortValueSingle{Port: 0, Data: []byte{b}})
	}
	want := []string{"plus", "red", "minus", "released"}
	for _, w := range want {
		select {
		case sample := <-sub.C:
			state, err := DecodeButtons(sample)
			if err != nil {
				t.Fatalf("DecodeButtons() error = %v", err)
			}
			if state.String() != w {
				t.Errorf("state = %s, want %s", state, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no sample for %s", w)
		}
	}
}

func TestDecodeButtonsInvalid(t *testing.T) {
	if _, err := DecodeButtons(Sample{}); !errors.Is(err, lwp3.ErrMalformed) {
		t.Errorf("empty sample error = %v", err)
	}
	bad := Sample{Values: lwp3.Values{Type: lwp3.DatasetInt8, Ints: []int32{5}}}
	if _, err := DecodeButtons(bad); !errors.Is(err, lwp3.ErrMalformed) {
		t.Errorf("value 5 error = %v", err)
	}
}
