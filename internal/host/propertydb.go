package host

import (
	"context"
	"sort"
	"sync"
)

// PropertyDB is the configuration store device properties are published to.
type PropertyDB interface {
	PutDeviceProperty(ctx context.Context, device string, props map[string][]string) error
	GetDeviceProperty(ctx context.Context, device string) (map[string][]string, error)
	DeleteDevice(ctx context.Context, device string) error
}

// MemoryPropertyDB keeps properties in process memory.
type MemoryPropertyDB struct {
	mu      sync.RWMutex
	devices map[string]map[string][]string
}

func NewMemoryPropertyDB() *MemoryPropertyDB {
	return &MemoryPropertyDB{devices: make(map[string]map[string][]string)}
}

func (db *MemoryPropertyDB) PutDeviceProperty(ctx context.Context, device string, props map[string][]string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored, ok := db.devices[device]
	if !ok {
		stored = make(map[string][]string)
		db.devices[device] = stored
	}
	for name, values := range props {
		stored[name] = append([]string(nil), values...)
	}
	return nil
}

func (db *MemoryPropertyDB) GetDeviceProperty(ctx context.Context, device string) (map[string][]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make(map[string][]string, len(db.devices[device]))
	for name, values := range db.devices[device] {
		out[name] = append([]string(nil), values...)
	}
	return out, nil
}

func (db *MemoryPropertyDB) DeleteDevice(ctx context.Context, device string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.devices, device)
	return nil
}

// Devices lists devices with stored properties.
func (db *MemoryPropertyDB) Devices() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.devices))
	for name := range db.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
