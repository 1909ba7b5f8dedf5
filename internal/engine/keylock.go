// internal/engine/keylock.go
package engine

import "sync"

// KeyMutex provides a mutex per string key. Used to serialize work on one
// (agent, type) pair while leaving other pairs fully parallel. Entries are
// kept for the life of the process; the key space is bounded by the agent
// population.
type KeyMutex struct {
    mu    sync.Mutex
    locks map[string]*sync.Mutex
}

func NewKeyMutex() *KeyMutex {
    return &KeyMutex{locks: make(map[string]*sync.Mutex)}
}

func (km *KeyMutex) get(key string) *sync.Mutex {
    km.mu.Lock()
    defer km.mu.Unlock()

    l, ok := km.locks[key]
    if !ok {
        l = &sync.Mutex{}
        km.locks[key] = l
    }
    return l
}

func (km *KeyMutex) Lock(key string) {
    km.get(key).Lock()
}

func (km *KeyMutex) Unlock(key string) {
    km.get(key).Unlock()
}
