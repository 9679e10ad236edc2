package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/packet"
)

// Store is the pgx-backed implementation of database.Store. Methods are
// spread across the store_*.go files by entity.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an established connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Packets ---

func (s *Store) ListPackets(ctx context.Context, projectID string) ([]packet.Packet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, title, description, type, priority, status, tasks, acceptance_criteria, dependencies, blocked_by, blocks, created_at, updated_at
		FROM packets WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list packets: %w", err)
	}
	defer rows.Close()

	var packets []packet.Packet
	for rows.Next() {
		p, err := scanPacket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan packet: %w", err)
		}
		packets = append(packets, p)
	}
	return packets, rows.Err()
}

func (s *Store) GetPacket(ctx context.Context, id string) (*packet.Packet, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, title, description, type, priority, status, tasks, acceptance_criteria, dependencies, blocked_by, blocks, created_at, updated_at
		FROM packets WHERE id = $1`, id)

	p, err := scanPacket(row)
	if err != nil {
		return nil, notFoundWrap(err, "get packet %s", id)
	}
	return &p, nil
}

func (s *Store) CreatePacket(ctx context.Context, projectID string, req packet.CreateRequest) (*packet.Packet, error) {
	tasksJSON, err := json.Marshal(orEmpty(req.Tasks))
	if err != nil {
		return nil, fmt.Errorf("marshal tasks: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO packets (project_id, title, description, type, priority, tasks, acceptance_criteria, dependencies, blocked_by, blocks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, project_id, title, description, type, priority, status, tasks, acceptance_criteria, dependencies, blocked_by, blocks, created_at, updated_at`,
		projectID, req.Title, req.Description, req.Type, req.Priority, tasksJSON,
		textArray(req.AcceptanceCriteria), textArray(req.Dependencies),
		textArray(req.BlockedBy), textArray(req.Blocks))

	p, err := scanPacket(row)
	if err != nil {
		return nil, fmt.Errorf("create packet: %w", err)
	}
	return &p, nil
}

// UpdatePacket applies the request's descriptive edits. The SET list never
// includes status, so a concurrently finishing run cannot be overwritten.
func (s *Store) UpdatePacket(ctx context.Context, id string, req packet.UpdateRequest) (*packet.Packet, error) {
	p, err := s.GetPacket(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Apply(p)

	tasksJSON, err := json.Marshal(orEmpty(p.Tasks))
	if err != nil {
		return nil, fmt.Errorf("marshal tasks: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE packets
		SET title = $2, description = $3, priority = $4, tasks = $5, acceptance_criteria = $6, updated_at = now()
		WHERE id = $1
		RETURNING id, project_id, title, description, type, priority, status, tasks, acceptance_criteria, dependencies, blocked_by, blocks, created_at, updated_at`,
		id, p.Title, p.Description, p.Priority, tasksJSON, textArray(p.AcceptanceCriteria))

	updated, err := scanPacket(row)
	if err != nil {
		return nil, notFoundWrap(err, "update packet %s", id)
	}
	return &updated, nil
}

func (s *Store) SetPacketStatus(ctx context.Context, id string, status packet.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE packets SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return execExpectOne(tag, err, "set packet %s status", id)
}

// DeletePacket removes a packet and, via ON DELETE CASCADE, its run history.
// A packet with a running run is never deleted.
func (s *Store) DeletePacket(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM packets WHERE id = $1
		AND NOT EXISTS (SELECT 1 FROM packet_runs WHERE packet_id = $1 AND status = 'running')`, id)
	if err != nil {
		return fmt.Errorf("delete packet %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetActiveRun(ctx, id); err == nil {
			return fmt.Errorf("delete packet %s: %w", id, domain.ErrPacketBusy)
		}
		return fmt.Errorf("delete packet %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanPacket(row scannable) (packet.Packet, error) {
	var p packet.Packet
	var tasksJSON []byte
	err := row.Scan(
		&p.ID, &p.ProjectID, &p.Title, &p.Description, &p.Type, &p.Priority, &p.Status,
		&tasksJSON, &p.AcceptanceCriteria, &p.Dependencies, &p.BlockedBy, &p.Blocks,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	if tasksJSON != nil {
		if err := json.Unmarshal(tasksJSON, &p.Tasks); err != nil {
			return p, fmt.Errorf("unmarshal tasks: %w", err)
		}
	}
	return p, nil
}
