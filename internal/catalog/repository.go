package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/poweredup/internal/hub"
	"github.com/nerrad567/poweredup/internal/lwp3"
)

// HubRecord is the persisted identity of a hub.
type HubRecord struct {
	ID              string    `json:"id"`
	Address         string    `json:"address"`
	Name            string    `json:"name"`
	Kind            hub.Kind  `json:"kind"`
	FirmwareVersion string    `json:"firmware_version"`
	HardwareVersion string    `json:"hardware_version"`
	LastSeen        time.Time `json:"last_seen"`
}

// Repository is the catalog persistence interface.
type Repository interface {
	// SaveHub inserts or updates a hub row.
	SaveHub(ctx context.Context, id string, p hub.Properties) error

	// Hub returns ErrHubNotFound if the hub was never saved.
	Hub(ctx context.Context, id string) (HubRecord, error)

	// SavePort inserts or replaces a port record. The hub row is created
	// if missing.
	SavePort(ctx context.Context, hubID string, rec hub.PortRecord) error

	// Port returns ErrPortNotFound if no record exists.
	Port(ctx context.Context, hubID string, port uint8) (hub.PortRecord, error)

	// Ports lists a hub's records ordered by port.
	Ports(ctx context.Context, hubID string) ([]hub.PortRecord, error)

	// PortsOfKind lists records of one device kind across all hubs.
	PortsOfKind(ctx context.Context, t lwp3.IOType) ([]hub.PortRecord, error)

	// DeletePort returns ErrPortNotFound if no record exists.
	DeletePort(ctx context.Context, hubID string, port uint8) error
}

// SQLiteRepository implements Repository over the catalog schema.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository wraps a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

// SaveHub inserts or updates a hub row.
func (r *SQLiteRepository) SaveHub(ctx context.Context, id string, p hub.Properties) error {
	if id == "" {
		return ErrInvalidHubID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO hubs (id, address, name, kind, firmware_version, hardware_version, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			address = excluded.address,
			name = excluded.name,
			kind = excluded.kind,
			firmware_version = excluded.firmware_version,
			hardware_version = excluded.hardware_version,
			last_seen = excluded.last_seen`,
		id, p.Address, p.Name, int(p.Kind), p.FirmwareVersion, p.HardwareVersion, r.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("saving hub %s: %w", id, err)
	}
	return nil
}

// Hub returns a saved hub row.
func (r *SQLiteRepository) Hub(ctx context.Context, id string) (HubRecord, error) {
	var (
		h        HubRecord
		kind     int
		lastSeen string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, address, name, kind, firmware_version, hardware_version, last_seen
		FROM hubs WHERE id = ?`, id,
	).Scan(&h.ID, &h.Address, &h.Name, &kind, &h.FirmwareVersion, &h.HardwareVersion, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return HubRecord{}, ErrHubNotFound
	}
	if err != nil {
		return HubRecord{}, fmt.Errorf("querying hub %s: %w", id, err)
	}
	h.Kind = hub.Kind(kind) //nolint:gosec // stored from a hub.Kind
	h.LastSeen, _ = time.Parse(time.RFC3339Nano, lastSeen) //nolint:errcheck // written by timestamp
	return h, nil
}

// SavePort inserts or replaces a port record.
func (r *SQLiteRepository) SavePort(ctx context.Context, hubID string, rec hub.PortRecord) error {
	if hubID == "" {
		return ErrInvalidHubID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding port %d: %w", rec.Port, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := r.timestamp()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO hubs (id, address, kind, last_seen) VALUES (?, '', ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		hubID, int(hub.KindUnknown), now,
	); err != nil {
		return fmt.Errorf("ensuring hub %s: %w", hubID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ports (hub_id, port, io_type, virtual, record, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hub_id, port) DO UPDATE SET
			io_type = excluded.io_type,
			virtual = excluded.virtual,
			record = excluded.record,
			updated_at = excluded.updated_at`,
		hubID, int(rec.Port), int(rec.IOType), rec.Virtual, string(data), now,
	); err != nil {
		return fmt.Errorf("saving port %d: %w", rec.Port, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing port %d: %w", rec.Port, err)
	}
	return nil
}

// Port returns one port record.
func (r *SQLiteRepository) Port(ctx context.Context, hubID string, port uint8) (hub.PortRecord, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		"SELECT record FROM ports WHERE hub_id = ? AND port = ?", hubID, int(port),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return hub.PortRecord{}, fmt.Errorf("%w: %s port %d", ErrPortNotFound, hubID, port)
	}
	if err != nil {
		return hub.PortRecord{}, fmt.Errorf("querying port %d: %w", port, err)
	}
	return decodeRecord(data)
}

// Ports lists a hub's records ordered by port.
func (r *SQLiteRepository) Ports(ctx context.Context, hubID string) ([]hub.PortRecord, error) {
	return r.queryRecords(ctx, "SELECT record FROM ports WHERE hub_id = ? ORDER BY port", hubID)
}

// PortsOfKind lists records of one device kind ordered by hub and port.
func (r *SQLiteRepository) PortsOfKind(ctx context.Context, t lwp3.IOType) ([]hub.PortRecord, error) {
	return r.queryRecords(ctx, "SELECT record FROM ports WHERE io_type = ? ORDER BY hub_id, port", int(t))
}

// DeletePort removes one port record.
func (r *SQLiteRepository) DeletePort(ctx context.Context, hubID string, port uint8) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM ports WHERE hub_id = ? AND port = ?", hubID, int(port))
	if err != nil {
		return fmt.Errorf("deleting port %d: %w", port, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		return fmt.Errorf("%w: %s port %d", ErrPortNotFound, hubID, port)
	}
	return nil
}

func (r *SQLiteRepository) queryRecords(ctx context.Context, query string, args ...any) ([]hub.PortRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ports: %w", err)
	}
	defer rows.Close()

	var recs []hub.PortRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning port row: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ports: %w", err)
	}
	return recs, nil
}

func decodeRecord(data string) (hub.PortRecord, error) {
	var rec hub.PortRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return hub.PortRecord{}, fmt.Errorf("decoding port record: %w", err)
	}
	return rec, nil
}
