package cache

import "sync"

type memoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

var _ Backend = (*memoryBackend)(nil)

func NewMemoryBackend() Backend {
	return &memoryBackend{entries: make(map[string]Entry)}
}

func (b *memoryBackend) Get(id string) (Entry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[id]
	if !ok {
		return Entry{}, false, nil
	}
	data := make([]byte, len(e.Data))
	copy(data, e.Data)
	return Entry{Data: data, Expiry: e.Expiry}, true, nil
}

func (b *memoryBackend) Put(id string, e Entry) error {
	data := make([]byte, len(e.Data))
	copy(data, e.Data)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[id] = Entry{Data: data, Expiry: e.Expiry}
	return nil
}

func (b *memoryBackend) Delete(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, id)
	return nil
}

func (b *memoryBackend) Close() error { return nil }
