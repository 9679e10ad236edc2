// Package service implements business logic on top of ports.
package service

import (
	"context"
	"fmt"

	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/packet"
	"github.com/packetmill/packetmill/internal/port/database"
)

// PacketService handles packet CRUD. Status is deliberately out of its reach:
// execution outcomes are the only path that moves a packet's status.
type PacketService struct {
	store database.Store
}

// NewPacketService creates a new PacketService.
func NewPacketService(store database.Store) *PacketService {
	return &PacketService{store: store}
}

// List returns all packets of a project in creation order.
func (s *PacketService) List(ctx context.Context, projectID string) ([]packet.Packet, error) {
	return s.store.ListPackets(ctx, projectID)
}

// Get returns a packet by ID.
func (s *PacketService) Get(ctx context.Context, id string) (*packet.Packet, error) {
	return s.store.GetPacket(ctx, id)
}

// Create registers an authored packet after validating the request.
func (s *PacketService) Create(ctx context.Context, projectID string, req packet.CreateRequest) (*packet.Packet, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	return s.store.CreatePacket(ctx, projectID, req)
}

// Update applies descriptive edits to a packet. The status field stays
// untouched even while a run is finishing concurrently.
func (s *PacketService) Update(ctx context.Context, id string, req packet.UpdateRequest) (*packet.Packet, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	return s.store.UpdatePacket(ctx, id, req)
}

// Delete removes a packet and its run history. A packet with an active run
// reports domain.ErrPacketBusy; the caller stops the run first.
func (s *PacketService) Delete(ctx context.Context, id string) error {
	return s.store.DeletePacket(ctx, id)
}
