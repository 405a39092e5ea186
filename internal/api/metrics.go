package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/poweredup/internal/bridges/poweredup"
	"github.com/nerrad567/poweredup/internal/hub"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	Hub           HubMetrics        `json:"hub"`
	MQTT          *MQTTMetrics      `json:"mqtt,omitempty"`
	Bridge        *poweredup.Stats  `json:"bridge,omitempty"`
	Telemetry     *TelemetryMetrics `json:"telemetry,omitempty"`
	Database      *DatabaseMetrics  `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// HubMetrics contains the hub session link state and counters.
type HubMetrics struct {
	Connected  bool      `json:"connected"`
	Ports      int       `json:"ports"`
	ReadyPorts int       `json:"ready_ports"`
	Session    hub.Stats `json:"session"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// TelemetryMetrics contains InfluxDB write counters.
type TelemetryMetrics struct {
	Samples  uint64 `json:"samples"`
	Statuses uint64 `json:"statuses"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, hub and component metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	ports := s.session.Ports()
	ready := 0
	for _, p := range ports {
		if p.Ready {
			ready++
		}
	}

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,      //nolint:mnd // bytes to MB
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024, //nolint:mnd // bytes to MB
			NumGC:         memStats.NumGC,
		},
		Hub: HubMetrics{
			Connected:  s.session.Connected(),
			Ports:      len(ports),
			ReadyPorts: ready,
			Session:    s.session.Stats(),
		},
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}

	if s.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}

	if s.bridge != nil {
		stats := s.bridge.Stats()
		metrics.Bridge = &stats
	}

	if s.telemetry != nil {
		samples, statuses := s.telemetry.Counts()
		metrics.Telemetry = &TelemetryMetrics{Samples: samples, Statuses: statuses}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
