package bot

import (
	"fmt"
	"sync"
)

// Registry tracks running instances keyed by user and bot ID. One instance
// per key; starting an existing key is rejected by the instance itself.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]*Instance)}
}

func registryKey(userID, botID string) string {
	return fmt.Sprintf("%s:%s", userID, botID)
}

// Put registers an instance. Any existing instance under the key is an
// error, running or not; callers replace via Remove first.
func (r *Registry) Put(userID, botID string, inst *Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey(userID, botID)
	if _, ok := r.instances[key]; ok {
		return fmt.Errorf("bot %s already registered for user %s", botID, userID)
	}
	r.instances[key] = inst
	return nil
}

// GetOrCreate returns the instance for the key, building and inserting one
// under the lock when absent. Concurrent callers for the same key all see the
// same instance, so at most one can win its Start. The build function runs
// with the registry locked and must not block.
func (r *Registry) GetOrCreate(userID, botID string, build func() (*Instance, error)) (*Instance, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey(userID, botID)
	if existing, ok := r.instances[key]; ok {
		return existing, false, nil
	}
	inst, err := build()
	if err != nil {
		return nil, false, err
	}
	r.instances[key] = inst
	return inst, true, nil
}

// Get returns the instance for the key, or nil.
func (r *Registry) Get(userID, botID string) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[registryKey(userID, botID)]
}

// Remove stops and deregisters the instance if present.
func (r *Registry) Remove(userID, botID string) {
	r.mu.Lock()
	inst, ok := r.instances[registryKey(userID, botID)]
	if ok {
		delete(r.instances, registryKey(userID, botID))
	}
	r.mu.Unlock()

	if ok {
		inst.Stop()
	}
}

// List returns all registered instances.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	return out
}

// Shutdown stops every instance. Used on process exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	instances := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		instances = append(instances, inst)
	}
	r.instances = make(map[string]*Instance)
	r.mu.Unlock()

	for _, inst := range instances {
		inst.Stop()
	}
}
