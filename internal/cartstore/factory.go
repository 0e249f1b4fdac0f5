package cartstore

import (
	"sync"

	"github.com/angelmondragon/webstore-backend/internal/cart"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
)

// Factory resolves the storage slot of a device.
type Factory interface {
	Slot(deviceID string) cart.Slot
	Backend() string
}

// MemoryFactory keeps one in-process slot per device for the process lifetime.
type MemoryFactory struct {
	mu    sync.Mutex
	slots map[string]*cart.MemorySlot
}

func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{slots: make(map[string]*cart.MemorySlot)}
}

func (f *MemoryFactory) Slot(deviceID string) cart.Slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.slots[deviceID]
	if !ok {
		slot = cart.NewMemorySlot(nil)
		f.slots[deviceID] = slot
	}
	return slot
}

func (f *MemoryFactory) Backend() string {
	return BackendMemory
}
