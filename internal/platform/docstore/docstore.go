// Package docstore abstracts the document database the engine persists into.
// It exposes the primitives the engine relies on: point reads, full and
// partial writes, filtered queries, and an all-or-nothing atomic block with
// optimistic conflict detection.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Filter operators accepted by Query.
const (
	OpEqual          = "=="
	OpGreater        = ">"
	OpGreaterOrEqual = ">="
	OpLess           = "<"
	OpLessOrEqual    = "<="
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("docstore: document not found")

// ErrConflict indicates an atomic block observed a document that was
// concurrently modified before commit. Callers may retry the whole block.
var ErrConflict = errors.New("docstore: write conflict")

// ErrUnavailable indicates a transport-level failure talking to the store.
var ErrUnavailable = errors.New("docstore: store unavailable")

// Document is a stored record plus the version used for conflict detection.
type Document struct {
	ID        string
	Version   int64
	Data      map[string]any
	UpdatedAt time.Time
}

// Decode unmarshals the document payload into dest.
func (d Document) Decode(dest any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("docstore: encode document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("docstore: decode document %s: %w", d.ID, err)
	}
	return nil
}

// Filter restricts a query to documents whose field compares against Value.
// A time.Time value makes the comparison timestamp-aware on both backends.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query describes a filtered, ordered listing over one collection.
// TimeOrder marks OrderBy as an RFC3339 timestamp field so ordering is
// chronological rather than lexicographic.
type Query struct {
	Filters    []Filter
	OrderBy    string
	TimeOrder  bool
	Descending bool
	Limit      int
}

// Tx is the handle passed to an atomic block. Reads participate in conflict
// detection; writes become visible only when the block commits.
type Tx interface {
	Read(ctx context.Context, collection, id string) (Document, error)
	Write(ctx context.Context, collection, id string, fields map[string]any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
}

// Store is the document store surface consumed by the engine.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Put(ctx context.Context, collection, id string, fields map[string]any) error
	UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// RunAtomic executes fn with a transactional handle. All writes commit
	// together or not at all; a stale read surfaces as ErrConflict.
	RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// RetryConflict runs fn until it stops failing with ErrConflict or attempts
// are exhausted. The last conflict error is returned so callers can surface
// their own bounded-retry failure.
func RetryConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !errors.Is(err, ErrConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return err
}

// Encode converts an entity struct into the field map the store persists.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode fields: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("docstore: encode fields: %w", err)
	}
	return fields, nil
}
