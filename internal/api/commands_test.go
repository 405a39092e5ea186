package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/nerrad567/poweredup/internal/audit"
	"github.com/nerrad567/poweredup/internal/control"
)

// fakeCommandLog keeps recorded commands in memory.
type fakeCommandLog struct {
	mu         sync.Mutex
	entries    []audit.Entry
	lastFilter audit.Filter
	listErr    error
}

func (l *fakeCommandLog) RecordCommand(_ context.Context, cmd control.Command, ack control.Ack) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, audit.NewEntry(cmd, ack))
	return nil
}

func (l *fakeCommandLog) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastFilter = f
	if l.listErr != nil {
		return nil, l.listErr
	}
	return &audit.ListResult{Entries: l.entries, Total: len(l.entries), Limit: f.Limit, Offset: f.Offset}, nil
}

func TestCommands_Recorded(t *testing.T) {
	log := &fakeCommandLog{}
	srv, _ := testServer(t, func(d *Deps) { d.CommandLog = log })

	do(t, srv, http.MethodPost, "/api/v1/ports/0/commands", `{"id":"c1","command":"start_speed","parameters":{"speed":40}}`)
	do(t, srv, http.MethodPost, "/api/v1/ports/9/commands", `{"id":"c2","command":"start_speed","parameters":{"speed":40}}`)
	do(t, srv, http.MethodPost, "/api/v1/hub/actions", `{"id":"c3","command":"action","parameters":{"action":"switch_off"}}`)

	w := do(t, srv, http.MethodGet, "/api/v1/commands", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	res := decode[audit.ListResult](t, w)
	if res.Total != 3 || len(res.Entries) != 3 {
		t.Fatalf("total = %d entries = %d, want 3", res.Total, len(res.Entries))
	}

	tests := []struct {
		id       string
		status   control.AckStatus
		code     string
		withPort bool
	}{
		{"c1", control.AckAccepted, "", true},
		{"c2", control.AckFailed, control.ErrCodeNotFound, true},
		{"c3", control.AckAccepted, "", false},
	}
	for i, tt := range tests {
		e := res.Entries[i]
		if e.CommandID != tt.id || e.Status != tt.status || e.ErrorCode != tt.code {
			t.Errorf("entry %d = %+v, want %s %s %q", i, e, tt.id, tt.status, tt.code)
		}
		if (e.Port != nil) != tt.withPort {
			t.Errorf("entry %d port = %v, want set=%v", i, e.Port, tt.withPort)
		}
		if e.Source != sourceAPI || e.HubID != "crane" {
			t.Errorf("entry %d source/hub = %q/%q", i, e.Source, e.HubID)
		}
	}
}

func TestListCommands_Query(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode int
		want     audit.Filter
	}{
		{"no filter", "", http.StatusOK, audit.Filter{}},
		{
			"all filters", "?hub_id=crane&command=brake&status=failed&source=mqtt&limit=10&offset=20",
			http.StatusOK,
			audit.Filter{HubID: "crane", Command: "brake", Status: control.AckFailed, Source: "mqtt", Limit: 10, Offset: 20},
		},
		{"bad status", "?status=pending", http.StatusBadRequest, audit.Filter{}},
		{"bad limit", "?limit=ten", http.StatusBadRequest, audit.Filter{}},
		{"negative offset", "?offset=-1", http.StatusBadRequest, audit.Filter{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &fakeCommandLog{}
			srv, _ := testServer(t, func(d *Deps) { d.CommandLog = log })

			w := do(t, srv, http.MethodGet, "/api/v1/commands"+tt.query, "")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if log.lastFilter != tt.want {
				t.Errorf("filter = %+v, want %+v", log.lastFilter, tt.want)
			}
		})
	}
}

func TestListCommands_Unavailable(t *testing.T) {
	srv, _ := testServer(t)
	if w := do(t, srv, http.MethodGet, "/api/v1/commands", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}

	failing, _ := testServer(t, func(d *Deps) { d.CommandLog = &fakeCommandLog{listErr: errors.New("db closed")} })
	if w := do(t, failing, http.MethodGet, "/api/v1/commands", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
