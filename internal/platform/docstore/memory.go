package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store with real optimistic conflict detection:
// an atomic block records the version of every document it reads and the
// commit fails with ErrConflict when any of them changed underneath it.
// It backs service tests and local development.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memoryDoc
}

type memoryDoc struct {
	version   int64
	data      map[string]any
	updatedAt time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]*memoryDoc)}
}

func (m *Memory) collection(name string) map[string]*memoryDoc {
	coll, ok := m.collections[name]
	if !ok {
		coll = make(map[string]*memoryDoc)
		m.collections[name] = coll
	}
	return coll
}

func deepCopy(fields map[string]any) map[string]any {
	raw, err := json.Marshal(fields)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return out
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return Document{ID: id, Version: doc.version, Data: deepCopy(doc.data), UpdatedAt: doc.updatedAt}, nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(collection, id, fields)
	return nil
}

// UpdateFields implements Store.
func (m *Memory) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(collection, id, fields)
}

func (m *Memory) write(collection, id string, fields map[string]any) {
	coll := m.collection(collection)
	doc, ok := coll[id]
	if !ok {
		doc = &memoryDoc{}
		coll[id] = doc
	}
	doc.version++
	doc.data = deepCopy(fields)
	doc.updatedAt = time.Now().UTC()
}

func (m *Memory) update(collection, id string, fields map[string]any) error {
	doc, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	merged := deepCopy(doc.data)
	for k, v := range deepCopy(fields) {
		merged[k] = v
	}
	doc.version++
	doc.data = merged
	doc.updatedAt = time.Now().UTC()
	return nil
}

// Query implements Store.
func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []Document
	for id, doc := range m.collections[collection] {
		match := true
		for _, f := range q.Filters {
			if !matchFilter(doc.data[f.Field], f) {
				match = false
				break
			}
		}
		if match {
			docs = append(docs, Document{ID: id, Version: doc.version, Data: deepCopy(doc.data), UpdatedAt: doc.updatedAt})
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			var less bool
			if q.TimeOrder {
				less = compareTimes(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy]) < 0
			} else {
				less = compareValues(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy]) < 0
			}
			if q.Descending {
				return !less
			}
			return less
		})
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

func matchFilter(value any, f Filter) bool {
	cmp := compareValues(value, f.Value)
	switch f.Op {
	case OpEqual:
		return cmp == 0
	case OpGreater:
		return cmp > 0
	case OpGreaterOrEqual:
		return cmp >= 0
	case OpLess:
		return cmp < 0
	case OpLessOrEqual:
		return cmp <= 0
	default:
		return false
	}
}

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, val)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}

func compareTimes(a, b any) int {
	at, aok := toTime(a)
	bt, bok := toTime(b)
	if aok && bok {
		return at.Compare(bt)
	}
	return compareValues(a, b)
}

// compareValues orders JSON scalars; numbers are coerced to float64 since
// deep copies round-trip through encoding/json.
func compareValues(a, b any) int {
	if _, ok := a.(time.Time); ok {
		return compareTimes(a, b)
	}
	if _, ok := b.(time.Time); ok {
		return compareTimes(a, b)
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

type memoryTx struct {
	store *Memory
	// reads maps collection/id to the version observed, or 0 for a miss.
	reads   map[string]int64
	writes  []pendingWrite
	updates []pendingWrite
}

type pendingWrite struct {
	collection string
	id         string
	fields     map[string]any
}

func txKey(collection, id string) string {
	return collection + "/" + id
}

// RunAtomic implements Store. The block's reads are validated against the
// live versions at commit time under the store lock.
func (m *Memory) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memoryTx{store: m, reads: make(map[string]int64)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, version := range tx.reads {
		parts := strings.SplitN(key, "/", 2)
		var live int64
		if doc, ok := m.collections[parts[0]][parts[1]]; ok {
			live = doc.version
		}
		if live != version {
			return fmt.Errorf("%s: %w", key, ErrConflict)
		}
	}
	// Validate update targets before touching anything so a missing
	// document cannot leave the commit half applied.
	for _, u := range tx.updates {
		if _, ok := m.collections[u.collection][u.id]; ok {
			continue
		}
		created := false
		for _, w := range tx.writes {
			if w.collection == u.collection && w.id == u.id {
				created = true
				break
			}
		}
		if !created {
			return fmt.Errorf("%s/%s: %w", u.collection, u.id, ErrNotFound)
		}
	}
	for _, w := range tx.writes {
		m.write(w.collection, w.id, w.fields)
	}
	for _, u := range tx.updates {
		if err := m.update(u.collection, u.id, u.fields); err != nil {
			return err
		}
	}
	return nil
}

func (t *memoryTx) Read(ctx context.Context, collection, id string) (Document, error) {
	doc, err := t.store.Get(ctx, collection, id)
	if err != nil {
		t.reads[txKey(collection, id)] = 0
		return Document{}, err
	}
	t.reads[txKey(collection, id)] = doc.Version
	return doc, nil
}

func (t *memoryTx) Write(ctx context.Context, collection, id string, fields map[string]any) error {
	t.writes = append(t.writes, pendingWrite{collection: collection, id: id, fields: deepCopy(fields)})
	return nil
}

func (t *memoryTx) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	t.updates = append(t.updates, pendingWrite{collection: collection, id: id, fields: deepCopy(fields)})
	return nil
}
