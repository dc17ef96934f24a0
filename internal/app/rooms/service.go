// Package rooms is the entry point for everything that touches an open room:
// creation, the live roster and settlement.
package rooms

import (
	"context"
	"errors"

	"chip-ledger/internal/live"
	"chip-ledger/internal/registry"
	"chip-ledger/internal/settlement"
)

// Subscribers reports how many realtime clients watch a room.
type Subscribers interface {
	Subscribers(roomID string) int
}

type Service struct {
	registry *registry.Registry
	arena    *live.Arena
	engine   *settlement.Engine
	subs     Subscribers
}

func NewService(reg *registry.Registry, arena *live.Arena, engine *settlement.Engine, subs Subscribers) *Service {
	return &Service{registry: reg, arena: arena, engine: engine, subs: subs}
}

// RoomView is a room's registered config plus its live snapshot.
type RoomView struct {
	*registry.Room
	State live.Snapshot `json:"state"`
}

type JoinRequest struct {
	Nickname string  `json:"nickname"`
	UserID   *string `json:"userId"`
}

type DebugInfo struct {
	Room        *registry.Room `json:"room"`
	Live        *live.Snapshot `json:"live"`
	Subscribers int            `json:"subscribers"`
	LiveRooms   int            `json:"liveRooms"`
}

// closed maps the arena's settling state onto the registry's not-found family.
func closed(err error) error {
	if errors.Is(err, live.ErrRoomClosed) {
		return registry.ErrRoomClosed
	}
	return err
}

// open checks the registry and applies its denomination to a lazily created
// live entry.
func (s *Service) open(ctx context.Context, roomID string) (*registry.Room, error) {
	room, err := s.registry.GetOpen(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.arena.Configure(room.ID, room.ChipsPerHand); err != nil {
		return nil, closed(err)
	}
	return room, nil
}

func (s *Service) CreateRoom(ctx context.Context, cfg registry.RoomConfig) (*RoomView, error) {
	room, err := s.registry.Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &RoomView{Room: room, State: s.arena.Open(room.ID, room.ChipsPerHand)}, nil
}

func (s *Service) GetRoom(ctx context.Context, roomID string) (*RoomView, error) {
	room, err := s.open(ctx, roomID)
	if err != nil {
		return nil, err
	}
	state, err := s.arena.Get(room.ID, room.ChipsPerHand)
	if err != nil {
		return nil, closed(err)
	}
	return &RoomView{Room: room, State: state}, nil
}

func (s *Service) State(ctx context.Context, roomID string) (live.Snapshot, error) {
	room, err := s.open(ctx, roomID)
	if err != nil {
		return live.Snapshot{}, err
	}
	state, err := s.arena.Get(room.ID, room.ChipsPerHand)
	return state, closed(err)
}

func (s *Service) Join(ctx context.Context, roomID string, req JoinRequest) (live.Player, error) {
	nickname, err := live.CleanNickname(req.Nickname)
	if err != nil {
		return live.Player{}, err
	}
	room, err := s.open(ctx, roomID)
	if err != nil {
		return live.Player{}, err
	}
	p, err := s.arena.AddPlayer(room.ID, nickname, req.UserID)
	return p, closed(err)
}

func (s *Service) UpdatePlayer(ctx context.Context, roomID string, playerID int64, patch live.PlayerPatch) (live.Player, error) {
	room, err := s.open(ctx, roomID)
	if err != nil {
		return live.Player{}, err
	}
	p, err := s.arena.UpdatePlayer(room.ID, playerID, patch)
	return p, closed(err)
}

func (s *Service) RemovePlayer(ctx context.Context, roomID string, playerID int64) error {
	room, err := s.open(ctx, roomID)
	if err != nil {
		return err
	}
	return closed(s.arena.RemovePlayer(room.ID, playerID))
}

func (s *Service) Reset(ctx context.Context, roomID string) error {
	room, err := s.open(ctx, roomID)
	if err != nil {
		return err
	}
	return closed(s.arena.ResetCounters(room.ID))
}

func (s *Service) SetDenomination(ctx context.Context, roomID string, chipsPerHand int64) error {
	if chipsPerHand <= 0 {
		return ErrInvalidRequest
	}
	room, err := s.open(ctx, roomID)
	if err != nil {
		return err
	}
	return closed(s.arena.SetChipDenomination(room.ID, chipsPerHand))
}

func (s *Service) Settle(ctx context.Context, roomID string) (*settlement.Outcome, error) {
	return s.engine.Settle(ctx, roomID)
}

// History returns the config of a room that has been settled.
func (s *Service) History(ctx context.Context, roomID string) (*registry.Room, error) {
	return s.registry.GetSettled(ctx, roomID)
}

// Debug describes a room in any state without creating live state for it.
func (s *Service) Debug(ctx context.Context, roomID string) (*DebugInfo, error) {
	out := &DebugInfo{LiveRooms: s.arena.Rooms()}
	room, err := s.registry.GetOpen(ctx, roomID)
	switch {
	case err == nil:
		out.Room = room
	case errors.Is(err, registry.ErrRoomClosed):
		if out.Room, err = s.registry.GetSettled(ctx, roomID); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	if snap, ok := s.arena.Peek(roomID); ok {
		out.Live = &snap
	}
	if s.subs != nil {
		out.Subscribers = s.subs.Subscribers(roomID)
	}
	return out, nil
}
