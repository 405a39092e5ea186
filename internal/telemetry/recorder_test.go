package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/poweredup/internal/hub"
	"github.com/nerrad567/poweredup/internal/lwp3"
)

type memWriter struct {
	mu     sync.Mutex
	points []*write.Point
}

func (m *memWriter) Write(p *write.Point) {
	m.mu.Lock()
	m.points = append(m.points, p)
	m.mu.Unlock()
}

func (m *memWriter) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}

func tagMap(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func fieldMap(p *write.Point) map[string]any {
	out := map[string]any{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestSamplePoint(t *testing.T) {
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s := hub.Sample{
		Port:   hub.PortTechnicAccelerometer,
		Mode:   0,
		Values: lwp3.Values{Type: lwp3.DatasetInt16, Ints: []int32{-12, 0, 4096}},
		Time:   at,
	}

	p := SamplePoint("crane", lwp3.IOTechnicHubAccelerometer, s)
	if p == nil {
		t.Fatal("SamplePoint() = nil")
	}
	if p.Name() != MeasurementPortValue {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	wantTags := map[string]string{"hub_id": "crane", "port": "97", "mode": "0", "io_type": "technic_hub_accelerometer"}
	gotTags := tagMap(p)
	for k, v := range wantTags {
		if gotTags[k] != v {
			t.Errorf("tag %s = %q, want %q", k, gotTags[k], v)
		}
	}

	wantFields := map[string]float64{"value0": -12, "value1": 0, "value2": 4096}
	gotFields := fieldMap(p)
	if len(gotFields) != len(wantFields) {
		t.Fatalf("fields = %v", gotFields)
	}
	for k, v := range wantFields {
		if gotFields[k] != v {
			t.Errorf("field %s = %v, want %v", k, gotFields[k], v)
		}
	}
}

func TestSamplePoint_Float(t *testing.T) {
	s := hub.Sample{Values: lwp3.Values{Type: lwp3.DatasetFloat32, Floats: []float32{1.5}}, Time: time.Now()}
	p := SamplePoint("h", lwp3.IOTechnicHubTemperatureSensor, s)
	if got := fieldMap(p)["value0"]; got != 1.5 {
		t.Errorf("value0 = %v, want 1.5", got)
	}
}

func TestRecordSample_SkipsEmpty(t *testing.T) {
	w := &memWriter{}
	r := NewRecorder(w, "crane")

	r.RecordSample(lwp3.IOMotor, hub.Sample{})
	r.RecordSample(lwp3.IOMotor, hub.Sample{Values: lwp3.Values{Ints: []int32{1}}, Time: time.Now()})

	if w.len() != 1 {
		t.Errorf("points = %d, want 1", w.len())
	}
	if samples, _ := r.Counts(); samples != 1 {
		t.Errorf("samples = %d, want 1", samples)
	}
}

func TestStatusPoint(t *testing.T) {
	props := hub.Properties{Kind: hub.KindHub, BatteryPercent: 87, RSSI: -60}
	stats := hub.Stats{FramesReceived: 10, MalformedFrames: 1, FramesSent: 8, DroppedItems: 2}

	p := StatusPoint("train", props, stats, time.Now())
	if p.Name() != MeasurementHubStatus {
		t.Errorf("Name() = %q", p.Name())
	}
	if tags := tagMap(p); tags["kind"] != "hub" || tags["hub_id"] != "train" {
		t.Errorf("tags = %v", tags)
	}
	fields := fieldMap(p)
	if fields["battery_percent"] != int64(87) || fields["rssi"] != int64(-60) {
		t.Errorf("battery/rssi fields = %v/%v", fields["battery_percent"], fields["rssi"])
	}
	if fields["frames_received"] != uint64(10) || fields["dropped_items"] != uint64(2) {
		t.Errorf("counter fields = %v", fields)
	}
}

type fakeStatus struct {
	done chan struct{}
}

func (f fakeStatus) Properties() hub.Properties { return hub.Properties{Kind: hub.KindHub, BatteryPercent: 50} }
func (f fakeStatus) Stats() hub.Stats           { return hub.Stats{FramesReceived: 1} }
func (f fakeStatus) Done() <-chan struct{}      { return f.done }

func TestRun(t *testing.T) {
	w := &memWriter{}
	r := NewRecorder(w, "crane")
	src := fakeStatus{done: make(chan struct{})}

	finished := make(chan struct{})
	go func() {
		r.Run(context.Background(), src, 5*time.Millisecond)
		close(finished)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for w.len() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.len() < 2 {
		t.Fatalf("points = %d, want at least 2", w.len())
	}

	close(src.done)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop when the session ended")
	}
	if _, statuses := r.Counts(); statuses < 2 {
		t.Errorf("statuses = %d", statuses)
	}
}
