package history

import (
	"context"
	"database/sql"
)

// PostgresRepo persists archived calls in the call_history table:
//
//   CREATE TABLE call_history (
//     call_id          TEXT PRIMARY KEY,
//     thread_id        TEXT NOT NULL,
//     caller_id        TEXT NOT NULL,
//     recipient_id     TEXT NOT NULL,
//     is_video         BOOLEAN NOT NULL,
//     status           TEXT NOT NULL,
//     start_time       TIMESTAMPTZ NOT NULL,
//     end_time         TIMESTAMPTZ NOT NULL,
//     duration_seconds INTEGER NOT NULL
//   );
//   CREATE INDEX call_history_thread_idx ON call_history (thread_id, start_time DESC);

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	// Terminal writes can race between the two sides of a call; the first
	// archive wins and the duplicate is ignored.
	const q = `
INSERT INTO call_history (
  call_id, thread_id, caller_id, recipient_id, is_video, status,
  start_time, end_time, duration_seconds
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (call_id) DO NOTHING
`
	_, err := r.db.ExecContext(ctx, q,
		e.CallID,
		e.ThreadID,
		e.CallerID,
		e.RecipientID,
		e.IsVideo,
		e.Status,
		e.StartTime,
		e.EndTime,
		e.DurationSeconds,
	)
	return err
}

func (r *PostgresRepo) ListByThread(ctx context.Context, threadID string, limit int) ([]Entry, error) {
	const q = `
SELECT call_id, thread_id, caller_id, recipient_id, is_video, status,
       start_time, end_time, duration_seconds
FROM call_history
WHERE thread_id = $1
ORDER BY start_time DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.CallID,
			&e.ThreadID,
			&e.CallerID,
			&e.RecipientID,
			&e.IsVideo,
			&e.Status,
			&e.StartTime,
			&e.EndTime,
			&e.DurationSeconds,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
