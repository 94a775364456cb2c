package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SGman98/mafiabot/internal/mafia"
)

// DocStore keeps each room as a JSONB document in the rooms table. The
// status and version columns mirror the document for listing and
// optimistic concurrency.
type DocStore struct {
	db     *sql.DB
	writes keyedMutex
}

// NewDocStore expects the rooms table to exist (see migrations.Run).
func NewDocStore(db *sql.DB) *DocStore {
	return &DocStore{db: db}
}

func (s *DocStore) Load(ctx context.Context, name string) (*mafia.Room, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM rooms WHERE name = ?`, name,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: room %s", mafia.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading room %s: %w", name, err)
	}
	var r mafia.Room
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decoding room %s: %w", name, err)
	}
	return &r, nil
}

// Save writes the room in a single statement guarded by the version
// column, so a reader sees either the old or the new document. Version 0
// means the room must not exist yet.
func (s *DocStore) Save(ctx context.Context, room *mafia.Room) error {
	unlock := s.writes.Lock(room.Name)
	defer unlock()

	next := room.Clone()
	next.Version = room.Version + 1
	next.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding room %s: %w", room.Name, err)
	}

	var result sql.Result
	if room.Version == 0 {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO rooms (name, status, version, data, updated_at) VALUES (?, ?, ?, jsonb(?), ?)
			 ON CONFLICT(name) DO NOTHING`,
			next.Name, string(next.Status), next.Version, string(data), next.UpdatedAt.Format(time.RFC3339Nano),
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE rooms SET status = ?, version = ?, data = jsonb(?), updated_at = ?
			 WHERE name = ? AND version = ?`,
			string(next.Status), next.Version, string(data), next.UpdatedAt.Format(time.RFC3339Nano), next.Name, room.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("saving room %s: %w", room.Name, err)
	}
	changed, err := rowsChanged(result)
	if err != nil {
		return fmt.Errorf("saving room %s: %w", room.Name, err)
	}
	if !changed {
		return fmt.Errorf("%w: room %s changed since version %d", mafia.ErrConcurrencyConflict, room.Name, room.Version)
	}

	room.Version = next.Version
	room.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *DocStore) Delete(ctx context.Context, name string) error {
	unlock := s.writes.Lock(name)
	defer unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting room %s: %w", name, err)
	}
	changed, err := rowsChanged(result)
	if err != nil {
		return fmt.Errorf("deleting room %s: %w", name, err)
	}
	if !changed {
		return fmt.Errorf("%w: room %s", mafia.ErrNotFound, name)
	}
	return nil
}

func (s *DocStore) List(ctx context.Context) ([]*mafia.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT json(data) FROM rooms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*mafia.Room
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r mafia.Room
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decoding room: %w", err)
		}
		rooms = append(rooms, &r)
	}
	return rooms, rows.Err()
}

func rowsChanged(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

// Ping checks the underlying database.
func (s *DocStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
