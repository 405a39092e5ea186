package telemetry

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/poweredup/internal/hub"
	"github.com/nerrad567/poweredup/internal/infrastructure/influxdb"
	"github.com/nerrad567/poweredup/internal/lwp3"
)

// Measurement names.
const (
	MeasurementPortValue = "port_value"
	MeasurementHubStatus = "hub_status"
)

// DefaultStatusInterval is used by Run when interval is not positive.
const DefaultStatusInterval = 30 * time.Second

// PointWriter accepts prepared points.
type PointWriter interface {
	Write(p *write.Point)
}

var _ PointWriter = (*influxdb.Client)(nil)

// StatusSource is the part of a session Run polls.
type StatusSource interface {
	Properties() hub.Properties
	Stats() hub.Stats
	Done() <-chan struct{}
}

var _ StatusSource = (*hub.Session)(nil)

// Recorder writes one hub's telemetry.
type Recorder struct {
	w     PointWriter
	hubID string

	samples  atomic.Uint64
	statuses atomic.Uint64
}

// NewRecorder returns a Recorder tagging points with hubID.
func NewRecorder(w PointWriter, hubID string) *Recorder {
	return &Recorder{w: w, hubID: hubID}
}

// RecordSample writes one value sample. Samples without values are skipped.
func (r *Recorder) RecordSample(ioType lwp3.IOType, s hub.Sample) {
	p := SamplePoint(r.hubID, ioType, s)
	if p == nil {
		return
	}
	r.w.Write(p)
	r.samples.Add(1)
}

// RecordStatus writes the hub's battery, signal and session counters.
func (r *Recorder) RecordStatus(props hub.Properties, stats hub.Stats, at time.Time) {
	r.w.Write(StatusPoint(r.hubID, props, stats, at))
	r.statuses.Add(1)
}

// Run records status every interval until ctx is cancelled or the session
// ends.
func (r *Recorder) Run(ctx context.Context, src StatusSource, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-src.Done():
			return
		case now := <-ticker.C:
			r.RecordStatus(src.Properties(), src.Stats(), now)
		}
	}
}

// Counts returns how many sample and status points were written.
func (r *Recorder) Counts() (samples, statuses uint64) {
	return r.samples.Load(), r.statuses.Load()
}

// SamplePoint builds the port_value point for a sample, nil if it has no
// values.
func SamplePoint(hubID string, ioType lwp3.IOType, s hub.Sample) *write.Point {
	n := s.Values.Len()
	if n == 0 {
		return nil
	}
	fields := make(map[string]any, n)
	for i := range n {
		fields["value"+strconv.Itoa(i)] = s.Values.Float(i)
	}
	tags := map[string]string{
		"hub_id":  hubID,
		"port":    strconv.Itoa(int(s.Port)),
		"mode":    strconv.Itoa(int(s.Mode)),
		"io_type": ioType.String(),
	}
	return write.NewPoint(MeasurementPortValue, tags, fields, s.Time)
}

// StatusPoint builds the hub_status point.
func StatusPoint(hubID string, props hub.Properties, stats hub.Stats, at time.Time) *write.Point {
	return write.NewPoint(MeasurementHubStatus,
		map[string]string{
			"hub_id": hubID,
			"kind":   props.Kind.String(),
		},
		map[string]any{
			"battery_percent":  int64(props.BatteryPercent),
			"rssi":             int64(props.RSSI),
			"frames_received":  stats.FramesReceived,
			"frames_malformed": stats.MalformedFrames,
			"frames_sent":      stats.FramesSent,
			"write_errors":     stats.WriteErrors,
			"dropped_items":    stats.DroppedItems,
		},
		at,
	)
}
