package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store: mutex-serialized maps with the same
// live-query semantics as the redis implementation. It backs every test and
// works as an embedded single-node store.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memCollection
}

type memCollection struct {
	docs  map[string]Snapshot
	order []string
	subs  map[*Subscription]Filter
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

func (m *MemoryStore) collection(name string) *memCollection {
	col, ok := m.collections[name]
	if !ok {
		col = &memCollection{
			docs: make(map[string]Snapshot),
			subs: make(map[*Subscription]Filter),
		}
		m.collections[name] = col
	}
	return col
}

func (c *memCollection) notify(t ChangeType, doc Snapshot) {
	for sub, filter := range c.subs {
		sub.deliver(t, doc, filter.Matches(doc))
	}
}

// Create inserts the document under a fresh UUID.
func (m *MemoryStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := encodeDoc(doc)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	snap := Snapshot{ID: id, Data: raw}

	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.collection(collection)
	col.docs[id] = snap
	col.order = append(col.order, id)
	col.notify(ChangeAdded, snap)
	return id, nil
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string, out any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	snap, ok := m.collection(collection).docs[id]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if out != nil {
		if err := snap.Decode(out); err != nil {
			return true, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
		}
	}
	return true, nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.collection(collection)
	snap, ok := col.docs[id]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	merged, err := mergeFields(snap.Data, fields)
	if err != nil {
		return err
	}
	snap.Data = merged
	col.docs[id] = snap
	col.notify(ChangeModified, snap)
	return nil
}

func (m *MemoryStore) DeleteIfExists(ctx context.Context, collection, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.collection(collection)
	snap, ok := col.docs[id]
	if !ok {
		return false, nil
	}
	delete(col.docs, id)
	for i, v := range col.order {
		if v == id {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}
	col.notify(ChangeRemoved, snap)
	return true, nil
}

func (m *MemoryStore) Find(ctx context.Context, collection string, filter Filter, limit int) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.collection(collection)
	var out []Snapshot
	for _, id := range col.order {
		snap := col.docs[id]
		if !filter.Matches(snap) {
			continue
		}
		out = append(out, snap)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Subscribe delivers the current matching documents as ChangeAdded, then
// streams subsequent mutations. Snapshot and attach happen under one lock so
// no change is lost in between.
func (m *MemoryStore) Subscribe(ctx context.Context, collection string, filter Filter) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.collection(collection)

	var sub *Subscription
	sub = newSubscription(func() {
		m.mu.Lock()
		delete(col.subs, sub)
		m.mu.Unlock()
	})
	for _, id := range col.order {
		snap := col.docs[id]
		if filter.Matches(snap) {
			sub.deliver(ChangeAdded, snap, true)
		}
	}
	col.subs[sub] = filter
	go sub.run()
	return sub, nil
}

var _ Store = (*MemoryStore)(nil)
