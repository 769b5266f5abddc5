package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// CreateThread starts a persisted Analyzer interactive transcript, a no-op
// when the thread already exists (an interactive resume). Interactive mode
// must outlive a single process, so transcripts live in Postgres rather
// than an in-memory map.
func (s *Store) CreateThread(ctx context.Context, threadID uuid.UUID, mode string) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO query_threads (thread_id, mode) VALUES ($1, $2)
		ON CONFLICT (thread_id) DO NOTHING`, threadID, mode)
	return err
}

// AppendMessage appends one transcript entry (a tool call, a tool result,
// or the agent's reasoning) to a thread.
func (s *Store) AppendMessage(ctx context.Context, threadID uuid.UUID, role string, content any) error {
	body, err := json.Marshal(content)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO query_messages (thread_id, role, content) VALUES ($1, $2, $3)`, threadID, role, body)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `UPDATE query_threads SET updated_at = now() WHERE thread_id = $1`, threadID)
	return err
}

// ThreadMessage is one persisted transcript entry.
type ThreadMessage struct {
	Role    string
	Content []byte
}

// LoadThread returns a thread's transcript in order, used to resume an
// interactive Analyzer session.
func (s *Store) LoadThread(ctx context.Context, threadID uuid.UUID) ([]ThreadMessage, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT role, content FROM query_messages WHERE thread_id = $1 ORDER BY id`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ThreadMessage
	for rows.Next() {
		var m ThreadMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
