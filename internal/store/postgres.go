package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobscout/pipeline-service/internal/model"
)

// PostgresStore implements Store on top of pgxpool.
//
// The queue_items table carries one column beyond the wire shape:
// scheduled_at, which backs retry backoff delays and is never exposed
// to callers.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a Store backed by the given pool.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const itemColumns = `
	id, type, status, url, company_name, company_id,
	tracking_id, ancestry_chain, spawn_depth, max_spawn_depth, parent_item_id,
	retry_count, max_retries, result_message, error_details, payload,
	created_at, updated_at, processed_at, completed_at`

func scanItem(row pgx.Row) (*model.QueueItem, error) {
	var it model.QueueItem
	var typ, status string
	err := row.Scan(
		&it.ID, &typ, &status, &it.URL, &it.CompanyName, &it.CompanyID,
		&it.TrackingID, &it.AncestryChain, &it.SpawnDepth, &it.MaxSpawnDepth, &it.ParentItemID,
		&it.RetryCount, &it.MaxRetries, &it.ResultMessage, &it.ErrorDetails, &it.Payload,
		&it.CreatedAt, &it.UpdatedAt, &it.ProcessedAt, &it.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	it.Type = model.ItemType(typ)
	it.Status = model.Status(status)
	return &it, nil
}

// Get returns a single item by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.QueueItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+itemColumns+` FROM queue_items WHERE id = $1`, id)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return it, nil
}

// GetMany returns the items for the given ids, omitting missing ones.
func (s *PostgresStore) GetMany(ctx context.Context, ids []string) ([]*model.QueueItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT`+itemColumns+` FROM queue_items WHERE id = ANY($1::text[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("query queue items: %w", err)
	}
	defer rows.Close()

	var items []*model.QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Insert stores a new item.
func (s *PostgresStore) Insert(ctx context.Context, it *model.QueueItem) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO queue_items
		   (id, type, status, url, company_name, company_id,
		    tracking_id, ancestry_chain, spawn_depth, max_spawn_depth, parent_item_id,
		    retry_count, max_retries, result_message, error_details, payload,
		    scheduled_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		         $12, $13, $14, $15, $16, NOW(), $17, $18)`,
		it.ID, string(it.Type), string(it.Status), it.URL, it.CompanyName, it.CompanyID,
		it.TrackingID, it.AncestryChain, it.SpawnDepth, it.MaxSpawnDepth, it.ParentItemID,
		it.RetryCount, it.MaxRetries, it.ResultMessage, it.ErrorDetails, it.Payload,
		it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

// claimSQL atomically selects and claims one due pending item.
//
// FOR UPDATE SKIP LOCKED prevents contention between concurrent
// dispatchers: a loser of the race moves on immediately instead of
// blocking on the winner's row lock.
const claimSQL = `
WITH candidate AS (
    SELECT id FROM queue_items
    WHERE status = 'pending'
      AND scheduled_at <= NOW()
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
UPDATE queue_items SET
    status       = 'processing',
    processed_at = NOW(),
    updated_at   = NOW()
FROM candidate
WHERE queue_items.id = candidate.id
RETURNING` + itemColumns

// ClaimPending claims one due pending item, or returns nil, nil when idle.
func (s *PostgresStore) ClaimPending(ctx context.Context) (*model.QueueItem, error) {
	it, err := scanItem(s.pool.QueryRow(ctx, claimSQL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim pending item: %w", err)
	}
	return it, nil
}

// UpdateStatus performs a status-conditioned transition. The WHERE clause
// on the current status is what makes terminal transitions safe against
// concurrent dispatchers: only one writer observes RowsAffected == 1.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, expected, next model.Status, fields TerminalFields) (bool, error) {
	completed := "NULL"
	if next.IsTerminal() {
		completed = "NOW()"
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items SET
		    status         = $1,
		    result_message = $2,
		    error_details  = $3,
		    completed_at   = `+completed+`,
		    updated_at     = NOW()
		 WHERE id = $4 AND status = $5`,
		string(next), fields.ResultMessage, fields.ErrorDetails, id, string(expected),
	)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Requeue returns a processing item to pending for a future retry attempt.
// scheduled_at pushes the item past the backoff window so ClaimPending
// will not pick it up early.
func (s *PostgresStore) Requeue(ctx context.Context, id string, retryCount int, delay time.Duration, errMsg string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items SET
		    status        = 'pending',
		    retry_count   = $1,
		    error_details = $2,
		    scheduled_at  = NOW() + ($3 * interval '1 millisecond'),
		    processed_at  = NULL,
		    updated_at    = NOW()
		 WHERE id = $4 AND status = 'processing'`,
		retryCount, errMsg, delay.Milliseconds(), id,
	)
	if err != nil {
		return false, fmt.Errorf("requeue item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RequeueStale recovers items orphaned by a crashed dispatcher: anything
// processing for longer than olderThan goes back to pending.
func (s *PostgresStore) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items SET
		    status       = 'pending',
		    scheduled_at = NOW(),
		    processed_at = NULL,
		    updated_at   = NOW()
		 WHERE status = 'processing'
		   AND processed_at < NOW() - ($1 * interval '1 millisecond')`,
		olderThan.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// QueryLineage returns items in a lineage matching (url, type) with any of
// the given statuses. Used for duplicate-in-flight and already-succeeded
// checks.
func (s *PostgresStore) QueryLineage(ctx context.Context, trackingID, url string, t model.ItemType, statuses []model.Status) ([]*model.QueueItem, error) {
	ss := make([]string, 0, len(statuses))
	for _, st := range statuses {
		ss = append(ss, string(st))
	}
	rows, err := s.pool.Query(ctx,
		`SELECT`+itemColumns+`
		 FROM queue_items
		 WHERE tracking_id = $1 AND url = $2 AND type = $3 AND status = ANY($4::text[])`,
		trackingID, url, string(t), ss,
	)
	if err != nil {
		return nil, fmt.Errorf("query lineage: %w", err)
	}
	defer rows.Close()

	var items []*model.QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lineage item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// PendingCount returns the number of claimable items.
func (s *PostgresStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM queue_items WHERE status = 'pending' AND scheduled_at <= NOW()`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}

// ConfigDocument fetches a versioned configuration document by key.
func (s *PostgresStore) ConfigDocument(ctx context.Context, key string) (json.RawMessage, time.Time, error) {
	var doc json.RawMessage
	var updated time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT doc, last_updated FROM config_documents WHERE key = $1`, key,
	).Scan(&doc, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("config document %q: %w", key, err)
	}
	return doc, updated, nil
}

// InsertMatch records an admitted job candidate.
func (s *PostgresStore) InsertMatch(ctx context.Context, m *model.JobMatch) error {
	raw, err := json.Marshal(m.Candidate)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO job_matches (id, item_id, tracking_id, candidate, total_points, created_at)
		 SELECT $1, $2, $3, $4::jsonb, $5, $6
		 WHERE NOT EXISTS (
		   SELECT 1 FROM job_matches WHERE item_id = $2
		 )`,
		m.ID, m.ItemID, m.TrackingID, string(raw), m.TotalPoints, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job match: %w", err)
	}
	return nil
}
