package records

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the part of *pgxpool.Pool the repository uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository handles all record database operations.
type PostgresRepository struct {
	db Querier
}

// NewPostgresRepository creates a new PostgresRepository on top of a pool.
func NewPostgresRepository(db Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save inserts rec, replacing an earlier record for the same path.
func (r *PostgresRepository) Save(ctx context.Context, rec Record) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO uploaded_objects (namespace, path, url, name, size, content_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (namespace, path) DO UPDATE
		 SET url = EXCLUDED.url, name = EXCLUDED.name, size = EXCLUDED.size,
		     content_type = EXCLUDED.content_type, created_at = EXCLUDED.created_at`,
		rec.Namespace, rec.Path, rec.URL, rec.Name, rec.Size, rec.ContentType, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// List returns the records of a namespace, oldest first.
func (r *PostgresRepository) List(ctx context.Context, namespace string) ([]Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT namespace, path, url, name, size, content_type, created_at
		 FROM uploaded_objects
		 WHERE namespace = $1
		 ORDER BY created_at, path`,
		namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.Namespace, &rec.Path, &rec.URL, &rec.Name, &rec.Size, &rec.ContentType, &rec.CreatedAt)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return recs, nil
}

// Delete removes the record for path.
func (r *PostgresRepository) Delete(ctx context.Context, namespace, path string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM uploaded_objects WHERE namespace = $1 AND path = $2`,
		namespace, path,
	)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}
