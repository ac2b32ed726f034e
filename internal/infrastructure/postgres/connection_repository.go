package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"bankconn/internal/domain/connection"
)

// ConnectionRepository implements connection.Repository for PostgreSQL.
type ConnectionRepository struct {
	db *DB
}

func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

var _ connection.Repository = (*ConnectionRepository)(nil)

const connectionColumns = `item_id, user_id, provider, status, accounts, last_sync_at, created_at, updated_at`

// UpsertByItemID inserts the connection or updates it in place. The conflict
// branch only fires for the owning user, so a foreign upsert returns no row.
// A snapshot older than the stored one is ignored, same as ReplaceSnapshot.
func (r *ConnectionRepository) UpsertByItemID(ctx context.Context, params connection.UpsertParams) (*connection.Connection, error) {
	var accounts sql.NullString
	if params.Accounts != nil {
		b, err := json.Marshal(params.Accounts)
		if err != nil {
			return nil, fmt.Errorf("failed to encode accounts: %w", err)
		}
		accounts = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO bank_connections (item_id, user_id, provider, status, accounts, last_sync_at)
		VALUES ($1, $2, $3, $4, COALESCE($5::jsonb, '[]'::jsonb), $6)
		ON CONFLICT (item_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			status = EXCLUDED.status,
			accounts = CASE
				WHEN $5::jsonb IS NOT NULL
					AND (bank_connections.last_sync_at IS NULL OR bank_connections.last_sync_at <= EXCLUDED.last_sync_at)
				THEN $5::jsonb
				ELSE bank_connections.accounts
			END,
			last_sync_at = GREATEST(bank_connections.last_sync_at, EXCLUDED.last_sync_at),
			updated_at = NOW()
		WHERE bank_connections.user_id = EXCLUDED.user_id
		RETURNING ` + connectionColumns

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query,
		params.ItemID, params.UserID, string(params.Provider), string(params.Status), accounts, params.LastSyncAt,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, connection.ErrItemOwnedByAnotherUser
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert bank connection: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepository) ListByUserID(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM bank_connections WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank connections: %w", err)
	}
	defer rows.Close()

	return collectConnections(rows)
}

func (r *ConnectionRepository) GetByItemID(ctx context.Context, itemID string) (*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM bank_connections WHERE item_id = $1`

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, connection.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank connection: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepository) DeleteByItemAndUser(ctx context.Context, itemID string, userID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM bank_connections WHERE item_id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete bank connection: %w", err)
	}
	return requireAffected(result, connection.ErrConnectionNotFound)
}

func (r *ConnectionRepository) UpdateStatus(ctx context.Context, itemID string, status connection.ItemStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bank_connections SET status = $2, updated_at = NOW() WHERE item_id = $1`,
		itemID, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update bank connection status: %w", err)
	}
	return requireAffected(result, connection.ErrConnectionNotFound)
}

// ReplaceSnapshot writes the snapshot unless a newer fetch already landed.
// A skipped write is not an error.
func (r *ConnectionRepository) ReplaceSnapshot(ctx context.Context, params connection.SnapshotParams) error {
	accounts := params.Accounts
	if accounts == nil {
		accounts = []connection.AccountSnapshot{}
	}
	body, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to encode accounts: %w", err)
	}

	query := `
		UPDATE bank_connections
		SET status = $2, accounts = $3::jsonb, last_sync_at = $4, updated_at = NOW()
		WHERE item_id = $1 AND (last_sync_at IS NULL OR last_sync_at <= $4)
	`
	result, err := r.db.ExecContext(ctx, query, params.ItemID, string(params.Status), string(body), params.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to replace accounts snapshot: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByItemID(ctx, params.ItemID); err != nil {
			return err
		}
	}
	return nil
}

func (r *ConnectionRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*connection.Connection, error) {
	if limit <= 0 {
		limit = 100
	}
	blocked := []string{
		string(connection.StatusWaitingUserInput),
		string(connection.StatusLoginError),
		string(connection.StatusLoginRequired),
	}

	query := `
		SELECT ` + connectionColumns + `
		FROM bank_connections
		WHERE (last_sync_at IS NULL OR last_sync_at < $1)
		  AND status <> ALL($2)
		ORDER BY last_sync_at NULLS FIRST, item_id
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, olderThan, pq.Array(blocked), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale bank connections: %w", err)
	}
	defer rows.Close()

	return collectConnections(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (*connection.Connection, error) {
	var conn connection.Connection
	var provider, status string
	var accounts []byte
	var lastSyncAt sql.NullTime

	err := row.Scan(
		&conn.ItemID, &conn.UserID, &provider, &status, &accounts,
		&lastSyncAt, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conn.Provider = connection.Provider(provider)
	conn.Status = connection.ItemStatus(status)
	if lastSyncAt.Valid {
		t := lastSyncAt.Time
		conn.LastSyncAt = &t
	}
	conn.Accounts = []connection.AccountSnapshot{}
	if len(accounts) > 0 {
		if err := json.Unmarshal(accounts, &conn.Accounts); err != nil {
			return nil, fmt.Errorf("failed to decode accounts for item %s: %w", conn.ItemID, err)
		}
	}
	return &conn, nil
}

func collectConnections(rows *sql.Rows) ([]*connection.Connection, error) {
	var conns []*connection.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank connection: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bank connections: %w", err)
	}
	return conns, nil
}

func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
