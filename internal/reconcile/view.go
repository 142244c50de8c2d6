// README: Tentative/confirmed view; local edits are shown until the next authoritative read replaces them.
package reconcile

import "sync"

// View keeps the last authoritative snapshot of a keyed collection plus the
// caller's unconfirmed local edits. Replace discards every edit.
type View[K comparable, V any] struct {
	mu        sync.Mutex
	confirmed map[K]V
	tentative map[K]edit[V]
	reads     uint64
}

type edit[V any] struct {
	value   V
	deleted bool
}

func NewView[K comparable, V any]() *View[K, V] {
	return &View[K, V]{confirmed: make(map[K]V), tentative: make(map[K]edit[V])}
}

// Apply records an optimistic update of key.
func (v *View[K, V]) Apply(key K, value V) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tentative[key] = edit[V]{value: value}
}

// Remove records an optimistic deletion of key.
func (v *View[K, V]) Remove(key K) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var zero V
	v.tentative[key] = edit[V]{value: zero, deleted: true}
}

// Rollback drops the local edit of key, typically after the server refused it.
func (v *View[K, V]) Rollback(key K) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.tentative, key)
}

// Replace installs an authoritative snapshot wholesale.
func (v *View[K, V]) Replace(snapshot map[K]V) {
	next := make(map[K]V, len(snapshot))
	for k, val := range snapshot {
		next[k] = val
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confirmed = next
	v.tentative = make(map[K]edit[V])
	v.reads++
}

func (v *View[K, V]) Get(key K) (V, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if e, ok := v.tentative[key]; ok {
		return e.value, !e.deleted
	}
	val, ok := v.confirmed[key]
	return val, ok
}

// Confirmed reports the authoritative value of key, ignoring local edits.
func (v *View[K, V]) Confirmed(key K) (V, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	val, ok := v.confirmed[key]
	return val, ok
}

// Snapshot merges the local edits over the confirmed state.
func (v *View[K, V]) Snapshot() map[K]V {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[K]V, len(v.confirmed)+len(v.tentative))
	for k, val := range v.confirmed {
		out[k] = val
	}
	for k, e := range v.tentative {
		if e.deleted {
			delete(out, k)
			continue
		}
		out[k] = e.value
	}
	return out
}

// Pending is the number of unconfirmed local edits.
func (v *View[K, V]) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.tentative)
}

// Reads counts authoritative snapshots installed so far.
func (v *View[K, V]) Reads() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reads
}
