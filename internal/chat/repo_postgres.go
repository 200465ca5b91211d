package chat

import (
	"context"
	"database/sql"
)

// PostgresRepo persists messages in the chat_messages table:
//
//   CREATE TABLE chat_messages (
//     id         TEXT PRIMARY KEY,
//     thread_id  TEXT NOT NULL,
//     sender_id  TEXT NOT NULL,
//     type       TEXT NOT NULL,
//     text       TEXT NOT NULL,
//     call_id    TEXT NOT NULL DEFAULT '',
//     is_video   BOOLEAN NOT NULL DEFAULT FALSE,
//     created_at TIMESTAMPTZ NOT NULL
//   );
//   CREATE INDEX chat_messages_thread_idx ON chat_messages (thread_id, created_at);

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, m Message) error {
	const q = `
INSERT INTO chat_messages (
  id, thread_id, sender_id, type, text, call_id, is_video, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := r.db.ExecContext(ctx, q,
		m.ID,
		m.ThreadID,
		m.SenderID,
		m.Type,
		m.Text,
		m.CallID,
		m.IsVideo,
		m.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListByThread(ctx context.Context, threadID string, limit int) ([]Message, error) {
	const q = `
SELECT id, thread_id, sender_id, type, text, call_id, is_video, created_at
FROM chat_messages
WHERE thread_id = $1
ORDER BY created_at ASC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID,
			&m.ThreadID,
			&m.SenderID,
			&m.Type,
			&m.Text,
			&m.CallID,
			&m.IsVideo,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
