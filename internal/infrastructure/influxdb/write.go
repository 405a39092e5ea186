package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Write queues a prepared point. Points written while disconnected are
// discarded.
func (c *Client) Write(p *write.Point) {
	if p == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
	c.written.Add(1)
}

// WritePoint queues a point stamped with the current time.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Indexed key-value pairs (keep cardinality low)
//   - fields: The data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime queues a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	c.Write(write.NewPoint(measurement, tags, fields, timestamp))
}
