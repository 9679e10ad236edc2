package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/packetmill/packetmill/internal/domain/queue"
)

// Enqueue adds a project to the execution queue. The project_id primary key
// makes it idempotent: a duplicate insert is a no-op and the result reports
// the position of the entry that was already there.
func (s *Store) Enqueue(ctx context.Context, req queue.EnqueueRequest) (*queue.EnqueueResult, error) {
	packetsJSON, err := json.Marshal(orEmpty(req.Packets))
	if err != nil {
		return nil, fmt.Errorf("marshal packets: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO queue_entries (project_id, project_name, packets, repo)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id) DO NOTHING`,
		req.ProjectID, req.ProjectName, packetsJSON, req.Repo)
	if err != nil {
		return nil, fmt.Errorf("enqueue project %s: %w", req.ProjectID, err)
	}

	var position int
	err = s.pool.QueryRow(ctx, `
		SELECT count(*) FROM queue_entries
		WHERE priority <= (SELECT priority FROM queue_entries WHERE project_id = $1)`,
		req.ProjectID).Scan(&position)
	if err != nil {
		return nil, fmt.Errorf("queue position for project %s: %w", req.ProjectID, err)
	}

	return &queue.EnqueueResult{Added: tag.RowsAffected() == 1, Position: position}, nil
}

// DequeueNext pops the oldest entry, or returns nil when the queue is empty.
// SKIP LOCKED keeps concurrent poppers from handing out the same entry.
func (s *Store) DequeueNext(ctx context.Context) (*queue.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		DELETE FROM queue_entries
		WHERE project_id = (
			SELECT project_id FROM queue_entries ORDER BY priority LIMIT 1 FOR UPDATE SKIP LOCKED
		)
		RETURNING project_id, project_name, packets, repo, priority, added_at`)

	e, err := scanQueueEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	return &e, nil
}

func (s *Store) ListQueue(ctx context.Context) ([]queue.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT project_id, project_name, packets, repo, priority, added_at
		FROM queue_entries ORDER BY priority`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var entries []queue.Entry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) RemoveFromQueue(ctx context.Context, projectID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM queue_entries WHERE project_id = $1`, projectID)
	return execExpectOne(tag, err, "remove project %s from queue", projectID)
}

func scanQueueEntry(row scannable) (queue.Entry, error) {
	var e queue.Entry
	var packetsJSON []byte
	err := row.Scan(&e.ProjectID, &e.ProjectName, &packetsJSON, &e.Repo, &e.Priority, &e.AddedAt)
	if err != nil {
		return e, err
	}
	if packetsJSON != nil {
		if err := json.Unmarshal(packetsJSON, &e.Packets); err != nil {
			return e, fmt.Errorf("unmarshal packets: %w", err)
		}
	}
	return e, nil
}
