package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/run"
)

// StartRun inserts a running run for the packet, allocating the next
// iteration in the same statement. The partial unique index on running rows
// makes the single-active-run rule hold under concurrent callers: the loser
// of a race gets a unique violation, reported as domain.ErrAlreadyRunning.
func (s *Store) StartRun(ctx context.Context, packetID, projectID string) (*run.Run, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO packet_runs (packet_id, project_id, iteration)
		SELECT $1, $2, count(*) + 1 FROM packet_runs WHERE packet_id = $1
		RETURNING id, packet_id, project_id, iteration, status, output, exit_code, rating, comment, started_at, completed_at`,
		packetID, projectID)

	r, err := scanRun(row)
	if err != nil {
		if uniqueViolation(err, "") {
			return nil, fmt.Errorf("start run for packet %s: %w", packetID, domain.ErrAlreadyRunning)
		}
		if foreignKeyViolation(err) {
			return nil, fmt.Errorf("start run for packet %s: %w", packetID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("start run for packet %s: %w", packetID, err)
	}
	return &r, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*run.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, packet_id, project_id, iteration, status, output, exit_code, rating, comment, started_at, completed_at
		FROM packet_runs WHERE id = $1`, id)

	r, err := scanRun(row)
	if err != nil {
		return nil, notFoundWrap(err, "get run %s", id)
	}
	return &r, nil
}

func (s *Store) GetActiveRun(ctx context.Context, packetID string) (*run.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, packet_id, project_id, iteration, status, output, exit_code, rating, comment, started_at, completed_at
		FROM packet_runs WHERE packet_id = $1 AND status = 'running'`, packetID)

	r, err := scanRun(row)
	if err != nil {
		return nil, notFoundWrap(err, "get active run for packet %s", packetID)
	}
	return &r, nil
}

// FinishRun moves a running run to a terminal status. The WHERE clause only
// matches running rows, so a second finish for the same run falls through to
// the stored-run read and reports changed=false instead of overwriting.
func (s *Store) FinishRun(ctx context.Context, id string, status run.Status, outcome run.Outcome) (*run.Run, bool, error) {
	if !status.IsTerminal() {
		return nil, false, fmt.Errorf("finish run %s with status %q: %w", id, status, domain.ErrValidation)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE packet_runs
		SET status = $2, output = $3, exit_code = $4, completed_at = now()
		WHERE id = $1 AND status = 'running'
		RETURNING id, packet_id, project_id, iteration, status, output, exit_code, rating, comment, started_at, completed_at`,
		id, status, outcome.Output, outcome.ExitCode)

	r, err := scanRun(row)
	if err == nil {
		return &r, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("finish run %s: %w", id, err)
	}

	stored, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (s *Store) AttachRunFeedback(ctx context.Context, id string, fb run.FeedbackRequest) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE packet_runs SET rating = $2, comment = $3
		WHERE id = $1 AND status <> 'running'`, id, fb.Rating, fb.Comment)
	if err != nil {
		return fmt.Errorf("attach feedback to run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetRun(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("attach feedback to run %s: still running: %w", id, domain.ErrConflict)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, packetID string) ([]run.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, packet_id, project_id, iteration, status, output, exit_code, rating, comment, started_at, completed_at
		FROM packet_runs WHERE packet_id = $1 ORDER BY iteration`, packetID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []run.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) LatestRun(ctx context.Context, packetID string) (*run.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, packet_id, project_id, iteration, status, output, exit_code, rating, comment, started_at, completed_at
		FROM packet_runs WHERE packet_id = $1 ORDER BY iteration DESC LIMIT 1`, packetID)

	r, err := scanRun(row)
	if err != nil {
		return nil, notFoundWrap(err, "latest run for packet %s", packetID)
	}
	return &r, nil
}

func scanRun(row scannable) (run.Run, error) {
	var r run.Run
	err := row.Scan(
		&r.ID, &r.PacketID, &r.ProjectID, &r.Iteration, &r.Status,
		&r.Output, &r.ExitCode, &r.Rating, &r.Comment,
		&r.StartedAt, &r.CompletedAt,
	)
	return r, err
}
