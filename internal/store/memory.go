package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"nickandperla.net/dstep/internal/table"
)

// Memory is an in-memory store.
type Memory struct {
	mu       sync.RWMutex
	data     map[string]*table.Table
	metadata map[string]Info
}

// NewMemory creates a new in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string]*table.Table),
		metadata: make(map[string]Info),
	}
}

// Lookup returns a published dataset.
func (m *Memory) Lookup(name string) (*table.Table, error) {
	key, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.data[key]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Publish stores a dataset by name.
func (m *Memory) Publish(name string, t *table.Table) error {
	return m.PublishRun("", name, t)
}

// PublishRun stores a dataset and records the publishing run.
func (m *Memory) PublishRun(runID, name string, t *table.Table) error {
	key, err := Normalize(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = t
	m.metadata[key] = Info{
		Name:      key,
		Columns:   t.Columns(),
		Rows:      t.Len(),
		RunID:     runID,
		Published: time.Now().UTC(),
	}
	return nil
}

// Datasets lists the published datasets by name.
func (m *Memory) Datasets() ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.metadata))
	for _, info := range m.metadata {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close is a no-op for memory store.
func (m *Memory) Close() error {
	return nil
}
