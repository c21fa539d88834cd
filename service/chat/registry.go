package chat

import (
	"sort"
	"sync"
)

// wildcard key for subscribers of every type
const anyType = "*"

type handlerEntry struct {
	id uint64
	fn func(Frame)
}

// Registry maps an event type to its handlers in registration order.
// Readers get a snapshot, so handlers may (un)subscribe while being called.
type Registry struct {
	mu     sync.RWMutex
	seq    uint64
	byType map[string][]handlerEntry // type -> handlers
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[string][]handlerEntry)}
}

func (r *Registry) add(t string, fn func(Frame)) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.byType[t] = append(r.byType[t], handlerEntry{id: r.seq, fn: fn})
	return r.seq
}

// remove drops one handler; an emptied type entry is pruned.
func (r *Registry) remove(t string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byType[t]
	for i, e := range list {
		if e.id != id {
			continue
		}
		next := make([]handlerEntry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(r.byType, t)
		} else {
			r.byType[t] = next
		}
		return true
	}
	return false
}

func (r *Registry) snapshot(t string) []handlerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[t]
}

// Len reports the handler count for t.
func (r *Registry) Len(t string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[t])
}

// Types lists the types that currently have handlers.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
