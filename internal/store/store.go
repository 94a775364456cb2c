// Package store persists room snapshots by name.
package store

import (
	"context"
	"sync"

	"github.com/SGman98/mafiabot/internal/mafia"
)

// RoomStore loads and saves whole room snapshots. Save is atomic with
// respect to a concurrent Load of the same name. Misses wrap
// mafia.ErrNotFound; version collisions wrap mafia.ErrConcurrencyConflict.
type RoomStore interface {
	Load(ctx context.Context, name string) (*mafia.Room, error)
	Save(ctx context.Context, room *mafia.Room) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]*mafia.Room, error)
}

// keyedMutex serializes work per key without one key blocking another.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
