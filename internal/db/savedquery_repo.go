package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"willitrain/internal/types"
)

// DefaultListLimit bounds List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// SavedQuerySchema creates the saved_queries table. Applied by EnsureSchema
// for local and single-node deployments.
const SavedQuerySchema = `CREATE TABLE IF NOT EXISTS saved_queries (
	id           UUID PRIMARY KEY,
	location     TEXT NOT NULL,
	query_date   TEXT NOT NULL,
	query_time   TEXT NOT NULL DEFAULT '',
	lat          DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	conditions   TEXT[] NOT NULL DEFAULT '{}',
	temperature  DOUBLE PRECISION,
	weather_icon TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS saved_queries_created_at_idx ON saved_queries (created_at DESC);`

const savedQueryColumns = `id, location, query_date, query_time, lat, lon,
	conditions, temperature, weather_icon, created_at`

// SavedQueryRepository provides data access for the saved_queries table.
type SavedQueryRepository struct {
	db DBTX
}

// NewSavedQueryRepository creates a repository backed by the given database
// connection (pool or transaction).
func NewSavedQueryRepository(db DBTX) *SavedQueryRepository {
	return &SavedQueryRepository{db: db}
}

// EnsureSchema applies SavedQuerySchema.
func (r *SavedQueryRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, SavedQuerySchema); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply saved query schema", err)
	}
	return nil
}

// List returns up to limit saved queries, newest first.
func (r *SavedQueryRepository) List(ctx context.Context, limit int) ([]*types.SavedQuery, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM saved_queries ORDER BY created_at DESC, id DESC LIMIT $1`, savedQueryColumns),
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query saved queries", err)
	}
	defer rows.Close()

	results := make([]*types.SavedQuery, 0)
	for rows.Next() {
		q, scanErr := scanSavedQuery(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan saved query row", scanErr)
		}
		results = append(results, q)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating saved query rows", err)
	}
	return results, nil
}

// Create inserts q. ID and CreatedAt are assigned by the caller; a zero
// CreatedAt falls back to NOW() and the stored value is written back to q.
func (r *SavedQueryRepository) Create(ctx context.Context, q *types.SavedQuery) error {
	conditions := q.Conditions
	if conditions == nil {
		conditions = []string{}
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO saved_queries (id, location, query_date, query_time, lat, lon,
		 conditions, temperature, weather_icon, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))
		 RETURNING created_at`,
		q.ID,
		q.Location,
		q.Date,
		q.Time,
		q.Lat,
		q.Lon,
		conditions,
		q.Temperature,
		q.WeatherIcon,
		nilIfZeroTime(q.CreatedAt),
	)
	if err := row.Scan(&q.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create saved query", err)
	}
	q.Conditions = conditions
	return nil
}

// GetByID returns one saved query or ErrCodeNotFoundSavedQuery.
func (r *SavedQueryRepository) GetByID(ctx context.Context, id string) (*types.SavedQuery, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM saved_queries WHERE id = $1`, savedQueryColumns),
		id,
	)

	q, err := scanSavedQuery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSavedQuery, "saved query not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve saved query", err)
	}
	return q, nil
}

// Delete removes one saved query. Returns ErrCodeNotFoundSavedQuery when no
// row matched.
func (r *SavedQueryRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM saved_queries WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete saved query", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSavedQuery, "saved query not found", nil)
	}
	return nil
}

func scanSavedQuery(row pgx.Row) (*types.SavedQuery, error) {
	var q types.SavedQuery
	err := row.Scan(
		&q.ID,
		&q.Location,
		&q.Date,
		&q.Time,
		&q.Lat,
		&q.Lon,
		&q.Conditions,
		&q.Temperature,
		&q.WeatherIcon,
		&q.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if q.Conditions == nil {
		q.Conditions = []string{}
	}
	return &q, nil
}

func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
