// Package memory is the director-scoped key/value recall store. Writes are
// append-only; reads return the most recent value for a key. Nothing is ever
// deleted, so a director can recall any prior result.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("memory entry not found")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Write appends a value under (agent, key). Earlier values are retained.
func (s *Store) Write(ctx context.Context, agent, key, value string) error {
	if agent == "" {
		return fmt.Errorf("agent is empty")
	}
	if key == "" {
		return fmt.Errorf("key is empty")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO memory(agent, key, value, created_at)
VALUES(?, ?, ?, ?);
`, agent, key, value, now)
	if err != nil {
		return fmt.Errorf("write memory: %w", err)
	}
	return nil
}

// Read returns the latest value written under (agent, key), or ErrNotFound.
func (s *Store) Read(ctx context.Context, agent, key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT value FROM memory
WHERE agent = ? AND key = ?
ORDER BY created_at DESC, id DESC
LIMIT 1;
`, agent, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read memory: %w", err)
	}
	return value.String, nil
}
