package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores documents as JSONB rows. Atomic blocks run under
// repeatable-read isolation so a concurrently modified row surfaces as a
// serialization failure, which maps onto ErrConflict.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the documents table when it does not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    version    BIGINT NOT NULL DEFAULT 1,
    data       JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection);`
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return mapPgError("migrate", err)
	}
	return nil
}

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT version, data, updated_at FROM documents WHERE collection=$1 AND id=$2`,
		collection, id)
	return scanDocument(row, collection, id)
}

// Put implements Store.
func (p *Postgres) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("docstore: marshal %s/%s: %w", collection, id, err)
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
ON CONFLICT (collection, id)
DO UPDATE SET data = EXCLUDED.data, version = documents.version + 1, updated_at = NOW()`,
		collection, id, payload)
	return mapPgError(collection+"/"+id, err)
}

// UpdateFields implements Store using a shallow JSONB merge.
func (p *Postgres) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("docstore: marshal %s/%s: %w", collection, id, err)
	}
	tag, err := p.pool.Exec(ctx, `
UPDATE documents SET data = data || $3::jsonb, version = version + 1, updated_at = NOW()
WHERE collection=$1 AND id=$2`,
		collection, id, payload)
	if err != nil {
		return mapPgError(collection+"/"+id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// Query implements Store. Filters compare text values unless the filter
// value is numeric, in which case the field is cast to numeric.
func (p *Postgres) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	sql := strings.Builder{}
	sql.WriteString(`SELECT id, version, data, updated_at FROM documents WHERE collection=$1`)
	args := []any{collection}
	for _, f := range q.Filters {
		op, ok := sqlOp(f.Op)
		if !ok {
			return nil, fmt.Errorf("docstore: unsupported filter op %q", f.Op)
		}
		args = append(args, f.Value)
		if _, isTime := f.Value.(time.Time); isTime {
			fmt.Fprintf(&sql, ` AND (data->>'%s')::timestamptz %s $%d`, sanitizeField(f.Field), op, len(args))
		} else if _, numeric := toFloat(f.Value); numeric {
			fmt.Fprintf(&sql, ` AND (data->>'%s')::numeric %s $%d`, sanitizeField(f.Field), op, len(args))
		} else {
			fmt.Fprintf(&sql, ` AND data->>'%s' %s $%d`, sanitizeField(f.Field), op, len(args))
		}
	}
	if q.OrderBy != "" {
		if q.TimeOrder {
			fmt.Fprintf(&sql, ` ORDER BY (data->>'%s')::timestamptz`, sanitizeField(q.OrderBy))
		} else {
			fmt.Fprintf(&sql, ` ORDER BY data->>'%s'`, sanitizeField(q.OrderBy))
		}
		if q.Descending {
			sql.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sql, ` LIMIT $%d`, len(args))
	}

	rows, err := p.pool.Query(ctx, sql.String(), args...)
	if err != nil {
		return nil, mapPgError(collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc     Document
			payload []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Version, &payload, &doc.UpdatedAt); err != nil {
			return nil, mapPgError(collection, err)
		}
		if err := json.Unmarshal(payload, &doc.Data); err != nil {
			return nil, fmt.Errorf("docstore: unmarshal %s/%s: %w", collection, doc.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// RunAtomic implements Store on top of a repeatable-read transaction.
func (p *Postgres) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgtx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return mapPgError("begin", err)
	}
	defer func() {
		_ = pgtx.Rollback(ctx)
	}()

	if err := fn(ctx, &postgresTx{tx: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return mapPgError("commit", err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Read(ctx context.Context, collection, id string) (Document, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT version, data, updated_at FROM documents WHERE collection=$1 AND id=$2`,
		collection, id)
	return scanDocument(row, collection, id)
}

func (t *postgresTx) Write(ctx context.Context, collection, id string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("docstore: marshal %s/%s: %w", collection, id, err)
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
ON CONFLICT (collection, id)
DO UPDATE SET data = EXCLUDED.data, version = documents.version + 1, updated_at = NOW()`,
		collection, id, payload)
	return mapPgError(collection+"/"+id, err)
}

func (t *postgresTx) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("docstore: marshal %s/%s: %w", collection, id, err)
	}
	tag, err := t.tx.Exec(ctx, `
UPDATE documents SET data = data || $3::jsonb, version = version + 1, updated_at = NOW()
WHERE collection=$1 AND id=$2`,
		collection, id, payload)
	if err != nil {
		return mapPgError(collection+"/"+id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanDocument(row pgRow, collection, id string) (Document, error) {
	var (
		doc     Document
		payload []byte
	)
	doc.ID = id
	if err := row.Scan(&doc.Version, &payload, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return Document{}, mapPgError(collection+"/"+id, err)
	}
	if err := json.Unmarshal(payload, &doc.Data); err != nil {
		return Document{}, fmt.Errorf("docstore: unmarshal %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func sqlOp(op string) (string, bool) {
	switch op {
	case OpEqual:
		return "=", true
	case OpGreater:
		return ">", true
	case OpGreaterOrEqual:
		return ">=", true
	case OpLess:
		return "<", true
	case OpLessOrEqual:
		return "<=", true
	default:
		return "", false
	}
}

// sanitizeField guards the JSONB path interpolation; field names come from
// code, never from request input.
func sanitizeField(field string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return -1
		}
	}, field)
}

func mapPgError(scope string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%s: %w", scope, ErrConflict)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %s: %w", scope, err, ErrUnavailable)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%s: %s: %w", scope, err, ErrUnavailable)
	}
	return fmt.Errorf("docstore: %s: %w", scope, err)
}

var _ Store = (*Postgres)(nil)
var _ Store = (*Memory)(nil)
