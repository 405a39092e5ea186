package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/poweredup/internal/catalog"
	"github.com/nerrad567/poweredup/internal/control"
	"github.com/nerrad567/poweredup/internal/hub"
	"github.com/nerrad567/poweredup/internal/lwp3"
)

const sourceAPI = "api"

// PortView is a port record as returned by the API.
type PortView struct {
	hub.PortRecord

	Kind   string `json:"kind"`
	Family string `json:"family"`
}

func newPortView(rec hub.PortRecord) PortView {
	return PortView{
		PortRecord: rec,
		Kind:       rec.IOType.String(),
		Family:     rec.Kind().String(),
	}
}

func portViews(recs []hub.PortRecord) []PortView {
	views := make([]PortView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, newPortView(rec))
	}
	return views
}

// HubView is the response of GET /hub.
type HubView struct {
	HubID      string         `json:"hub_id"`
	Connected  bool           `json:"connected"`
	Properties hub.Properties `json:"properties"`
	Stats      hub.Stats      `json:"stats"`
	Ports      []uint8        `json:"ports"`
}

// handleGetHub returns the hub identity, link state and attached port ids.
func (s *Server) handleGetHub(w http.ResponseWriter, _ *http.Request) {
	recs := s.session.Ports()
	ports := make([]uint8, 0, len(recs))
	for _, rec := range recs {
		ports = append(ports, rec.Port)
	}
	writeJSON(w, http.StatusOK, HubView{
		HubID:      s.hubID,
		Connected:  s.session.Connected(),
		Properties: s.session.Properties(),
		Stats:      s.session.Stats(),
		Ports:      ports,
	})
}

// handleListPorts lists attached ports, optionally filtered by ?io_type=.
func (s *Server) handleListPorts(w http.ResponseWriter, r *http.Request) {
	recs := s.session.Ports()

	if name := r.URL.Query().Get("io_type"); name != "" {
		t, ok := lwp3.ParseIOType(name)
		if !ok {
			writeBadRequest(w, "unknown io_type: "+name)
			return
		}
		var filtered []hub.PortRecord
		for _, rec := range recs {
			if rec.IOType == t {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ports": portViews(recs),
		"count": len(recs),
	})
}

// handleGetPort returns one port record.
func (s *Server) handleGetPort(w http.ResponseWriter, r *http.Request) {
	port, ok := portParam(w, r)
	if !ok {
		return
	}
	rec, err := s.session.Port(port)
	if errors.Is(err, hub.ErrNotFound) {
		writeNotFound(w, "port not found")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to read port")
		return
	}
	writeJSON(w, http.StatusOK, newPortView(rec))
}

// handlePortCommand executes a device command on a port and responds with
// its acknowledgement.
func (s *Server) handlePortCommand(w http.ResponseWriter, r *http.Request) {
	port, ok := portParam(w, r)
	if !ok {
		return
	}
	cmd, err := s.decodeCommand(w, r)
	if cmd == nil {
		return
	}
	if err == nil {
		var d control.Device
		d, err = s.session.PortDevice(port)
		if err == nil {
			ctx, cancel := context.WithTimeout(r.Context(), s.commandTimeout)
			err = control.ExecutePort(ctx, d, *cmd)
			cancel()
		}
	}
	s.respondAck(w, r, &port, *cmd, err)
}

// handleHubCommand executes a hub-level command.
func (s *Server) handleHubCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := s.decodeCommand(w, r)
	if cmd == nil {
		return
	}
	if err == nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.commandTimeout)
		err = control.ExecuteHub(ctx, s.session, *cmd)
		cancel()
	}
	s.respondAck(w, r, nil, *cmd, err)
}

// decodeCommand reads the request body as a command. A nil command means a
// response was already written; a non-nil command with an error is
// acknowledged as failed.
func (s *Server) decodeCommand(w http.ResponseWriter, r *http.Request) (*control.Command, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return nil, err
		}
		writeBadRequest(w, "failed to read request body")
		return nil, err
	}
	cmd, err := control.Decode(body, sourceAPI)
	return &cmd, err
}

func (s *Server) respondAck(w http.ResponseWriter, r *http.Request, port *uint8, cmd control.Command, err error) {
	ack := control.NewAck(s.hubID, port, cmd, err)
	if err != nil {
		s.logger.Warn("command failed",
			"command", cmd.Command,
			"command_id", cmd.ID,
			"code", ack.Error.Code,
			"error", err,
			"request_id", requestID(r),
		)
	} else {
		s.logger.Debug("command accepted", "command", cmd.Command, "command_id", cmd.ID)
	}
	if s.commandLog != nil {
		if logErr := s.commandLog.RecordCommand(r.Context(), cmd, ack); logErr != nil {
			s.logger.Warn("failed to record command", "command_id", cmd.ID, "error", logErr)
		}
	}
	writeJSON(w, ackStatus(err), ack)
}

// handleCatalogPorts lists persisted port records. ?hub_id= selects the hub
// (default: the connected one); ?io_type= lists one device kind across hubs.
func (s *Server) handleCatalogPorts(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "catalog not configured")
		return
	}

	var (
		recs []hub.PortRecord
		err  error
	)
	if name := r.URL.Query().Get("io_type"); name != "" {
		t, ok := lwp3.ParseIOType(name)
		if !ok {
			writeBadRequest(w, "unknown io_type: "+name)
			return
		}
		recs, err = s.catalog.PortsOfKind(r.Context(), t)
	} else {
		hubID := r.URL.Query().Get("hub_id")
		if hubID == "" {
			hubID = s.hubID
		}
		recs, err = s.catalog.Ports(r.Context(), hubID)
	}
	if errors.Is(err, catalog.ErrInvalidHubID) {
		writeBadRequest(w, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("catalog query failed", "error", err, "request_id", requestID(r))
		writeInternalError(w, "failed to query catalog")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ports": portViews(recs),
		"count": len(recs),
	})
}

// portParam parses the {port} URL parameter, writing a 400 on failure.
func portParam(w http.ResponseWriter, r *http.Request) (uint8, bool) {
	raw := chi.URLParam(r, "port")
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		writeBadRequest(w, "port must be 0-255, got "+strconv.Quote(raw))
		return 0, false
	}
	return uint8(n), true
}
