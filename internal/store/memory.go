package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SGman98/mafiabot/internal/mafia"
)

// Memory is a RoomStore backed by a map. It hands out deep copies so
// callers never share state with the store.
type Memory struct {
	mu     sync.RWMutex
	rooms  map[string]*mafia.Room
	writes keyedMutex
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*mafia.Room)}
}

func (m *Memory) Load(ctx context.Context, name string) (*mafia.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[name]
	if !ok {
		return nil, fmt.Errorf("%w: room %s", mafia.ErrNotFound, name)
	}
	return r.Clone(), nil
}

// Save stores a copy of room. The room's Version must match the stored
// one; on success both are bumped.
func (m *Memory) Save(ctx context.Context, room *mafia.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := m.writes.Lock(room.Name)
	defer unlock()

	m.mu.RLock()
	cur, ok := m.rooms[room.Name]
	m.mu.RUnlock()
	if ok && cur.Version != room.Version {
		return fmt.Errorf("%w: room %s is at version %d, not %d", mafia.ErrConcurrencyConflict, room.Name, cur.Version, room.Version)
	}
	if !ok && room.Version != 0 {
		return fmt.Errorf("%w: room %s no longer exists", mafia.ErrConcurrencyConflict, room.Name)
	}

	room.Version++
	room.UpdatedAt = time.Now().UTC()
	snapshot := room.Clone()

	m.mu.Lock()
	m.rooms[room.Name] = snapshot
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := m.writes.Lock(name)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[name]; !ok {
		return fmt.Errorf("%w: room %s", mafia.ErrNotFound, name)
	}
	delete(m.rooms, name)
	return nil
}

func (m *Memory) List(ctx context.Context) ([]*mafia.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*mafia.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
