package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vango-go/callbridge/pkg/bridge/fault"
)

// Memory is an in-process Store for tests and local development. It mirrors
// the durable table's semantics: full replace on Put, partial attribute
// merge on Update, not_found faults on missing keys.
type Memory struct {
	mu    sync.Mutex
	items map[Key]map[string]any
}

func NewMemory() *Memory {
	return &Memory{items: make(map[Key]map[string]any)}
}

func (m *Memory) Get(ctx context.Context, key Key, out any) error {
	m.mu.Lock()
	item, ok := m.items[key]
	m.mu.Unlock()
	if !ok {
		return fault.New(fault.KindNotFound, "store.get", fmt.Sprintf("no item at pk=%s sk=%s", key.PK, key.SK))
	}
	return decodeItem(item, out)
}

func (m *Memory) Put(ctx context.Context, key Key, item any) error {
	attrs, err := encodeItem(key, item)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[key] = attrs
	m.mu.Unlock()
	return nil
}

func (m *Memory) PutIfVacant(ctx context.Context, key Key, item any, now int64) error {
	attrs, err := encodeItem(key, item)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.items[key]; ok && epochOf(existing["expireAt"]) > now {
		return fault.New(fault.KindLeaseConflict, "store.putifvacant", fmt.Sprintf("live item at pk=%s sk=%s", key.PK, key.SK))
	}
	m.items[key] = attrs
	return nil
}

// epochOf reads an expireAt attribute that may be a decoded JSON number or
// a raw int64 written through Update.
func epochOf(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func (m *Memory) Update(ctx context.Context, key Key, fields map[string]any, out any) error {
	m.mu.Lock()
	item, ok := m.items[key]
	if !ok {
		m.mu.Unlock()
		return fault.New(fault.KindNotFound, "store.update", fmt.Sprintf("no item at pk=%s sk=%s", key.PK, key.SK))
	}
	for name, value := range fields {
		item[name] = value
	}
	snapshot := make(map[string]any, len(item))
	for name, value := range item {
		snapshot[name] = value
	}
	m.mu.Unlock()

	if out == nil {
		return nil
	}
	return decodeItem(snapshot, out)
}

// Len reports the number of stored items.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func encodeItem(key Key, item any) (map[string]any, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalid, "store.put", err)
	}
	attrs := make(map[string]any)
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fault.Wrap(fault.KindInvalid, "store.put", err)
	}
	attrs["pk"] = key.PK
	attrs["sk"] = key.SK
	return attrs, nil
}

func decodeItem(item map[string]any, out any) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fault.Wrap(fault.KindInvalid, "store.get", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fault.Wrap(fault.KindInvalid, "store.get", err)
	}
	return nil
}
