package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/septivank/crm-topology-worker/internal/db"
	"github.com/septivank/crm-topology-worker/internal/topology"
)

const schema = `
	CREATE TABLE IF NOT EXISTS topology_runs (
		id           uuid PRIMARY KEY,
		client_count integer NOT NULL,
		device_count integer NOT NULL,
		published_at timestamptz NOT NULL
	);
	CREATE TABLE IF NOT EXISTS topology_clients (
		id            text PRIMARY KEY,
		run_id        uuid NOT NULL REFERENCES topology_runs (id),
		display_name  text NOT NULL,
		customer_name text NOT NULL,
		address       text NOT NULL,
		download_mbps integer NOT NULL,
		upload_mbps   integer NOT NULL
	);
	CREATE TABLE IF NOT EXISTS topology_devices (
		id           text PRIMARY KEY,
		run_id       uuid NOT NULL REFERENCES topology_runs (id),
		parent_id    text NOT NULL REFERENCES topology_clients (id),
		display_name text NOT NULL,
		mac          text NOT NULL,
		ipv4         text[] NOT NULL,
		ipv6         text[] NOT NULL
	);
`

var (
	clientColumns = []string{"id", "run_id", "display_name", "customer_name", "address", "download_mbps", "upload_mbps"}
	deviceColumns = []string{"id", "run_id", "parent_id", "display_name", "mac", "ipv4", "ipv6"}
)

// querier is the part of *pgxpool.Pool the repository uses
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TopologyRepository stores the published topology snapshot
type TopologyRepository struct {
	pool querier
	now  func() time.Time
}

// NewTopologyRepository creates a new topology repository
func NewTopologyRepository(pool *pgxpool.Pool) *TopologyRepository {
	return &TopologyRepository{pool: pool, now: time.Now}
}

// EnsureSchema creates the topology tables if they do not exist
func (r *TopologyRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure topology schema: %w", err)
	}
	return nil
}

// Publish replaces the stored topology with the snapshot in one transaction.
// On any error the previous topology stays in place.
func (r *TopologyRepository) Publish(ctx context.Context, snap *topology.Snapshot) error {
	runID, err := uuid.Parse(snap.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", snap.RunID, err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	run := db.TopologyRun{
		ID:          runID,
		ClientCount: len(snap.Clients),
		DeviceCount: len(snap.Devices),
		PublishedAt: r.now(),
	}
	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM topology_devices`); err != nil {
		return fmt.Errorf("failed to clear devices: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM topology_clients`); err != nil {
		return fmt.Errorf("failed to clear clients: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"topology_clients"}, clientColumns,
		pgx.CopyFromSlice(len(snap.Clients), func(i int) ([]any, error) {
			c := toClientRow(runID, snap.Clients[i])
			return []any{c.ID, c.RunID, c.DisplayName, c.CustomerName, c.Address, c.DownloadMbps, c.UploadMbps}, nil
		}),
	); err != nil {
		return fmt.Errorf("failed to insert clients: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"topology_devices"}, deviceColumns,
		pgx.CopyFromSlice(len(snap.Devices), func(i int) ([]any, error) {
			d := toDeviceRow(runID, snap.Devices[i])
			return []any{d.ID, d.RunID, d.ParentID, d.DisplayName, d.MAC, d.IPv4, d.IPv6}, nil
		}),
	); err != nil {
		return fmt.Errorf("failed to insert devices: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LatestClientCount returns the client count of the last published run
func (r *TopologyRepository) LatestClientCount(ctx context.Context) (int, bool, error) {
	query := `
		SELECT client_count
		FROM topology_runs
		ORDER BY published_at DESC
		LIMIT 1
	`

	var count int
	err := r.pool.QueryRow(ctx, query).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query latest run: %w", err)
	}
	return count, true, nil
}

func insertRun(ctx context.Context, tx pgx.Tx, run db.TopologyRun) error {
	query := `
		INSERT INTO topology_runs (id, client_count, device_count, published_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, query, run.ID, run.ClientCount, run.DeviceCount, run.PublishedAt); err != nil {
		return fmt.Errorf("failed to insert topology run: %w", err)
	}
	return nil
}

func toClientRow(runID uuid.UUID, c topology.ClientNode) db.TopologyClient {
	return db.TopologyClient{
		ID:           c.ID,
		RunID:        runID,
		DisplayName:  c.DisplayName,
		CustomerName: c.CustomerName,
		Address:      c.Address,
		DownloadMbps: c.Download,
		UploadMbps:   c.Upload,
	}
}

func toDeviceRow(runID uuid.UUID, d topology.DeviceNode) db.TopologyDevice {
	return db.TopologyDevice{
		ID:          d.ID,
		RunID:       runID,
		ParentID:    d.ParentID,
		DisplayName: d.DisplayName,
		MAC:         d.MAC,
		IPv4:        nonNil(d.IPv4),
		IPv6:        nonNil(d.IPv6),
	}
}

// nonNil keeps NOT NULL array columns satisfied
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
