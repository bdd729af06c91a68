package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Guizzs26/go-imei-sync/internal/models"
)

// MemoryStore keeps the reconciliation table in process memory. It backs
// dry runs and tests, and can be told to fail specific operations.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[string]models.PersistedRecord
	locked bool
	writes int

	PingErr   error
	EnsureErr error
	ListErr   error
	// FailOn makes every write touching the identifier fail with the mapped error
	FailOn map[string]error
	// OnWrite runs after each successful write, outside the lock
	OnWrite func(identifier string)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[string]models.PersistedRecord),
		FailOn: make(map[string]error),
	}
}

// Seed inserts rows as they are, bypassing write accounting
func (m *MemoryStore) Seed(recs ...models.PersistedRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.rows[r.Identifier] = r
	}
}

func (m *MemoryStore) Get(identifier string) (models.PersistedRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[identifier]
	return r, ok
}

// Rows returns a snapshot sorted by identifier
func (m *MemoryStore) Rows() []models.PersistedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PersistedRecord, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// Writes counts successful insert, update and deactivate calls
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.PingErr
}

func (m *MemoryStore) EnsureTable(ctx context.Context) error {
	return m.EnsureErr
}

func (m *MemoryStore) ListCurrent(ctx context.Context, ids []string) (map[string]models.CurrentState, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]models.CurrentState)
	if ids == nil {
		for id, r := range m.rows {
			out[id] = models.CurrentState{Date: r.Date, Active: r.Active}
		}
		return out, nil
	}
	for _, id := range ids {
		if r, ok := m.rows[id]; ok {
			out[id] = models.CurrentState{Date: r.Date, Active: r.Active}
		}
	}
	return out, nil
}

func (m *MemoryStore) Insert(ctx context.Context, rec models.PersistedRecord) error {
	err := m.write(rec.Identifier, func() error {
		if _, exists := m.rows[rec.Identifier]; exists {
			return fmt.Errorf("duplicate key value violates unique constraint: identifier %s", rec.Identifier)
		}
		m.rows[rec.Identifier] = rec
		return nil
	})
	return err
}

func (m *MemoryStore) Update(ctx context.Context, rec models.PersistedRecord) error {
	return m.write(rec.Identifier, func() error {
		cur, ok := m.rows[rec.Identifier]
		if !ok {
			return fmt.Errorf("identifier %s not found", rec.Identifier)
		}
		cur.Date = rec.Date
		cur.Active = rec.Active
		cur.UpdatedAt = rec.UpdatedAt
		cur.Detail = rec.Detail
		m.rows[rec.Identifier] = cur
		return nil
	})
}

func (m *MemoryStore) Deactivate(ctx context.Context, identifier string, at time.Time) error {
	return m.write(identifier, func() error {
		cur, ok := m.rows[identifier]
		if !ok {
			return fmt.Errorf("identifier %s not found", identifier)
		}
		cur.Active = false
		cur.UpdatedAt = at
		m.rows[identifier] = cur
		return nil
	})
}

// TryLock holds a single process-wide flag
func (m *MemoryStore) TryLock(ctx context.Context) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return nil, false, nil
	}
	m.locked = true
	return func() {
		m.mu.Lock()
		m.locked = false
		m.mu.Unlock()
	}, true, nil
}

func (m *MemoryStore) write(identifier string, apply func() error) error {
	m.mu.Lock()
	if err, ok := m.FailOn[identifier]; ok {
		m.mu.Unlock()
		return err
	}
	if err := apply(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.writes++
	hook := m.OnWrite
	m.mu.Unlock()

	if hook != nil {
		hook(identifier)
	}
	return nil
}
