package alert

import (
	"sync"
	"time"
)

// FireFunc is invoked when an in-memory timer elapses.
type FireFunc func(id int32, p Payload)

// MemoryBackend keys time.AfterFunc timers by notification id. It only
// fires while the process is alive; registrations are lost on restart.
// This is the documented fallback for deployments without a durable store,
// not a bug.
type MemoryBackend struct {
	mu     sync.Mutex
	timers map[int32]*time.Timer
	fire   FireFunc
}

func NewMemoryBackend(fire FireFunc) *MemoryBackend {
	return &MemoryBackend{
		timers: make(map[int32]*time.Timer),
		fire:   fire,
	}
}

func (b *MemoryBackend) Schedule(id int32, firesAt time.Time, p Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.timers[id]; ok {
		t.Stop()
	}
	b.timers[id] = time.AfterFunc(time.Until(firesAt), func() {
		b.mu.Lock()
		delete(b.timers, id)
		b.mu.Unlock()
		b.fire(id, p)
	})
	return nil
}

func (b *MemoryBackend) Cancel(id int32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.timers[id]; ok {
		t.Stop()
		delete(b.timers, id)
	}
	return nil
}

// Pending reports whether an alert is still registered. Used by tests and
// the capability probe.
func (b *MemoryBackend) Pending(id int32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.timers[id]
	return ok
}
