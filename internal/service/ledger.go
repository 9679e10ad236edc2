package service

import (
	"context"
	"fmt"

	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/run"
	"github.com/packetmill/packetmill/internal/port/database"
)

// LedgerService exposes the append-only run history of a packet: listing,
// lookups, and after-the-fact feedback on terminal runs.
type LedgerService struct {
	store database.Store
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(store database.Store) *LedgerService {
	return &LedgerService{store: store}
}

// History returns a packet's runs ordered by iteration ascending. The packet
// must exist; a packet without runs yields an empty history.
func (s *LedgerService) History(ctx context.Context, packetID string) ([]run.Run, error) {
	if _, err := s.store.GetPacket(ctx, packetID); err != nil {
		return nil, err
	}
	return s.store.ListRuns(ctx, packetID)
}

// Get returns a single run by ID.
func (s *LedgerService) Get(ctx context.Context, id string) (*run.Run, error) {
	return s.store.GetRun(ctx, id)
}

// Latest returns the packet's most recent run, or domain.ErrNotFound when the
// packet has never been executed.
func (s *LedgerService) Latest(ctx context.Context, packetID string) (*run.Run, error) {
	return s.store.LatestRun(ctx, packetID)
}

// AttachFeedback records a human rating on a terminal run. A running run
// reports domain.ErrConflict: feedback never races with an in-flight result.
func (s *LedgerService) AttachFeedback(ctx context.Context, runID string, fb run.FeedbackRequest) (*run.Run, error) {
	if err := fb.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	if err := s.store.AttachRunFeedback(ctx, runID, fb); err != nil {
		return nil, err
	}
	return s.store.GetRun(ctx, runID)
}
