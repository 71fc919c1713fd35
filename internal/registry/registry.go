// Package registry implements the allocation registry collaborator named
// in spec §6: a place sessions register themselves at start and deregister
// at stop, so the embedder can enforce a per-(user,realm) allocation quota.
// Quota *policy* is out of scope for the core (spec §1 Non-goals); this
// package supplies the minimal concrete bookkeeping a demo binary or test
// needs behind the interface the core actually calls.
package registry

import (
	"fmt"
	"net/netip"
	"sync"
)

// Session is the opaque handle the registry stores per allocation; it
// never inspects it beyond holding it for later lookup.
type Session any

// Registry is the interface the core calls through; see spec §6:
// allocation_registry.add / allocation_registry.del.
type Registry interface {
	Add(addr netip.AddrPort, user, realm string, maxAllocs int, session Session) error
	Del(addr netip.AddrPort, user, realm string)
}

type key struct {
	user  string
	realm string
}

// InMemory is a Registry that tracks allocations per (user, realm) in a
// map guarded by a mutex, enforcing maxAllocs on Add.
type InMemory struct {
	mu    sync.Mutex
	count map[key]int
	byKey map[netip.AddrPort]key
}

// New returns an empty in-memory registry.
func New() *InMemory {
	return &InMemory{
		count: make(map[key]int),
		byKey: make(map[netip.AddrPort]key),
	}
}

// Add registers addr under (user, realm), failing if doing so would exceed
// maxAllocs concurrent allocations for that identity. maxAllocs <= 0 means
// unlimited.
func (r *InMemory) Add(addr netip.AddrPort, user, realm string, maxAllocs int, _ Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{user: user, realm: realm}
	if maxAllocs > 0 && r.count[k] >= maxAllocs {
		return fmt.Errorf("registry: allocation quota reached for %s@%s (max %d)", user, realm, maxAllocs)
	}
	r.count[k]++
	r.byKey[addr] = k
	return nil
}

// Del deregisters addr. It is a no-op if addr was never registered.
func (r *InMemory) Del(addr netip.AddrPort, user, realm string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.byKey[addr]
	if !ok {
		return
	}
	delete(r.byKey, addr)
	if k != (key{user: user, realm: realm}) {
		return
	}
	r.count[k]--
	if r.count[k] <= 0 {
		delete(r.count, k)
	}
}

// Count returns the current number of allocations tracked for (user, realm),
// for tests and diagnostics.
func (r *InMemory) Count(user, realm string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count[key{user: user, realm: realm}]
}
