package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Misakaka10086/IoT-Platform/internal/models"
)

// PostgresRepository implements Repository using a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a pool and verifies connectivity.
// maxConns <= 0 keeps the pgx default.
func NewPostgresRepository(ctx context.Context, connString string, maxConns int32) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

const upsertStatusSQL = `
	INSERT INTO devices (device_id, online, last_seen)
	VALUES ($1, $2, $3)
	ON CONFLICT (device_id) DO UPDATE
	SET online = EXCLUDED.online, last_seen = EXCLUDED.last_seen`

// UpsertStatus runs a single upsert in its own transaction on a dedicated
// pooled connection. The connection is released on every path.
func (r *PostgresRepository) UpsertStatus(ctx context.Context, rec models.DeviceStatusRecord) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return persistErr("acquire", rec.DeviceID, err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return persistErr("begin", rec.DeviceID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, upsertStatusSQL, rec.DeviceID, rec.Online, rec.LastSeen); err != nil {
		return persistErr("upsert", rec.DeviceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return persistErr("commit", rec.DeviceID, err)
	}
	return nil
}

const deviceColumns = `device_id, chip, board, git_version, online,
	COALESCE(last_seen, created_at), description, created_at`

func scanDevice(row pgx.Row) (*models.Device, error) {
	var d models.Device
	err := row.Scan(&d.DeviceID, &d.Chip, &d.Board, &d.GitVersion, &d.Online,
		&d.LastSeen, &d.Description, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = models.StatusOf(d.Online)
	return &d, nil
}

// GetDevice returns ErrNotFound when the device has never been seen.
func (r *PostgresRepository) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_id = $1`, deviceID)

	d, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get", deviceID, err)
	}
	return d, nil
}

// ListDevices orders by most recently seen. limit <= 0 returns every row.
func (r *PostgresRepository) ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY last_seen DESC NULLS LAST, device_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list", "", err)
	}
	defer rows.Close()

	devices := make([]*models.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, persistErr("list", "", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list", "", err)
	}
	return devices, nil
}

// Summary counts devices by state.
func (r *PostgresRepository) Summary(ctx context.Context) (models.StatusSummary, error) {
	var s models.StatusSummary
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE online),
		       COUNT(*) FILTER (WHERE NOT online)
		FROM devices`).Scan(&s.Total, &s.Online, &s.Offline)
	if err != nil {
		return models.StatusSummary{}, persistErr("summary", "", err)
	}
	return s, nil
}

// MarkStaleOffline leaves last_seen untouched so the row still shows when
// the device was last heard from.
func (r *PostgresRepository) MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE devices SET online = FALSE
		WHERE online AND last_seen < $1
		RETURNING device_id`, cutoff)
	if err != nil {
		return nil, persistErr("mark stale", "", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, persistErr("mark stale", "", err)
	}
	return ids, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
