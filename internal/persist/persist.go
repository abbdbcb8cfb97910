// Package persist defines the durable-storage collaborator boundary. The
// coordinator serves live state from memory; persistence is write-behind and
// never a precondition for serving traffic.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrRecordNotFound indicates the requested record is absent from storage.
var ErrRecordNotFound = errors.New("record not found")

// Store is the capability the coordinator requires from its storage
// collaborator. Schema and migrations belong to the implementer.
type Store interface {
	Save(ctx context.Context, kind, id string, payload any) error
	Load(ctx context.Context, kind, id string, into any) error
	Query(ctx context.Context, kind string, match func(id string) bool) ([]string, error)
}

// Memory is an in-process Store used as the default and in tests.
type Memory struct {
	mu      sync.RWMutex
	records map[string]map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]map[string][]byte)}
}

// Save serializes and retains the payload under (kind, id).
func (m *Memory) Save(_ context.Context, kind, id string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", kind, id, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.records[kind]
	if !ok {
		byID = make(map[string][]byte)
		m.records[kind] = byID
	}
	byID[id] = data
	return nil
}

// Load decodes the record under (kind, id) into the target.
func (m *Memory) Load(_ context.Context, kind, id string, into any) error {
	m.mu.RLock()
	data, ok := m.records[kind][id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s/%s: %w", kind, id, ErrRecordNotFound)
	}
	return json.Unmarshal(data, into)
}

// Query returns the ids of every record of the kind accepted by match.
func (m *Memory) Query(_ context.Context, kind string, match func(id string) bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0)
	for id := range m.records[kind] {
		if match == nil || match(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
