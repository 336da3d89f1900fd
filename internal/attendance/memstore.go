package attendance

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore は store.driver=memory 用。version の扱いは MySQLStore と同じ。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]Record
}

type recordKey struct {
	employeeID string
	date       string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[recordKey]Record{}}
}

func (m *MemoryStore) LoadRecord(_ context.Context, employeeID, date string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[recordKey{employeeID, date}]
	if !ok {
		return Record{}, false, nil
	}
	return r.clone(), true, nil
}

func (m *MemoryStore) SaveRecord(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{rec.EmployeeID, rec.Date}
	cur, exists := m.records[key]
	switch {
	case rec.Version == 0 && exists:
		return Record{}, ErrStoreConflict
	case rec.Version != 0 && (!exists || cur.Version != rec.Version):
		return Record{}, ErrStoreConflict
	}

	saved := rec.clone()
	saved.Version = rec.Version + 1
	m.records[key] = saved
	return saved.clone(), nil
}

func (m *MemoryStore) ListRecords(_ context.Context, employeeID, from, to string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for k, r := range m.records {
		if k.employeeID != employeeID || k.date < from || k.date > to {
			continue
		}
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
