package instance

import (
	"sync"
)

// Registry is the single source of truth for "is TTS active in this
// guild". One coarse lock guards the whole map; write frequency is low
// relative to guild counts at this bot's scale.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]*Instance)}
}

// Insert registers a session. Returns false if the guild already has one.
func (r *Registry) Insert(inst *Instance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[inst.GuildID]; exists {
		return false
	}
	r.instances[inst.GuildID] = inst
	return true
}

// Remove deletes a guild's session, returning it if present.
func (r *Registry) Remove(guildID string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[guildID]
	if ok {
		delete(r.instances, guildID)
	}
	return inst, ok
}

// Get returns a guild's session.
func (r *Registry) Get(guildID string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[guildID]
	return inst, ok
}

// Contains reports whether a guild has an active session. Absence is the
// authoritative "not in session" signal.
func (r *Registry) Contains(guildID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instances[guildID]
	return ok
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// Snapshot returns the current sessions. Used by the connection monitor
// so one sweep sees a stable view.
func (r *Registry) Snapshot() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	return out
}

// WithInstance runs fn with the guild's session under the write lock,
// serializing message handling per guild. fn is not called if the guild
// has no session; the return reports whether it ran.
func (r *Registry) WithInstance(guildID string, fn func(*Instance)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[guildID]
	if !ok {
		return false
	}
	fn(inst)
	return true
}
