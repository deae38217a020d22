package queuelib

import (
	"sync"
)

// VMap is a thread-safe generic map with read-write mutex protection.
type VMap[kT comparable, vT any] struct {
	kv map[kT]vT
	mu sync.RWMutex
}

// NewVMap creates an empty VMap.
func NewVMap[kT comparable, vT any]() *VMap[kT, vT] {
	return &VMap[kT, vT]{
		kv: make(map[kT]vT),
	}
}

// Set stores val under key, replacing any previous value.
func (vm *VMap[kT, vT]) Set(key kT, val vT) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.kv[key] = val
}

// Get returns the value for key and whether it was present.
func (vm *VMap[kT, vT]) Get(key kT) (val vT, ok bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	val, ok = vm.kv[key]
	return
}

// Delete removes key. Missing keys are a no-op.
func (vm *VMap[kT, vT]) Delete(key kT) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	delete(vm.kv, key)
}

// Len returns the number of entries.
func (vm *VMap[kT, vT]) Len() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return len(vm.kv)
}
