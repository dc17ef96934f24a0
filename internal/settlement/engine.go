package settlement

import (
	"context"
	"errors"
	"expvar"
	"fmt"

	"chip-ledger/internal/live"
	"chip-ledger/internal/registry"
	"chip-ledger/internal/store"

	"github.com/rs/zerolog/log"
)

var (
	metricSettledTotal    = expvar.NewInt("settlement_rooms_settled_total")
	metricConflictsTotal  = expvar.NewInt("settlement_conflicts_total")
	metricPersistFailures = expvar.NewInt("settlement_persist_failures_total")
)

type Registry interface {
	GetOpen(ctx context.Context, roomID string) (*registry.Room, error)
	Settle(ctx context.Context, roomID string) (bool, error)
}

type Arena interface {
	Freeze(roomID string) ([]live.Player, error)
	Thaw(roomID string)
	Discard(roomID string, final func())
}

type ResultWriter interface {
	InsertResult(ctx context.Context, rec store.ResultRecord) (int64, error)
	DeleteResults(ctx context.Context, ids []int64) error
}

type Broadcaster interface {
	PublishSettled(roomID string, payload any)
}

type Engine struct {
	registry Registry
	arena    Arena
	results  ResultWriter
	bc       Broadcaster
}

func NewEngine(reg Registry, arena Arena, results ResultWriter, bc Broadcaster) *Engine {
	return &Engine{registry: reg, arena: arena, results: results, bc: bc}
}

// Settle closes a room for good: price the roster, write history, flip the
// registry, announce results, drop live state. At most one call per room
// gets past Freeze; every other caller sees the room as not found.
func (e *Engine) Settle(ctx context.Context, roomID string) (*Outcome, error) {
	room, err := e.registry.GetOpen(ctx, roomID)
	if err != nil {
		return nil, err
	}
	roster, err := e.arena.Freeze(roomID)
	if errors.Is(err, live.ErrRoomClosed) {
		metricConflictsTotal.Add(1)
		return nil, registry.ErrRoomClosed
	}
	if err != nil {
		return nil, err
	}

	// Past Freeze the request may go away; the writes, the flip and any
	// rollback must still finish together.
	ctx = context.WithoutCancel(ctx)

	rows := ComputeRows(roster, *room)
	written := e.persist(ctx, roomID, rows)

	flipped, err := e.registry.Settle(ctx, roomID)
	if err != nil || !flipped {
		e.rollback(ctx, roomID, written)
		if err != nil {
			e.arena.Thaw(roomID)
			return nil, fmt.Errorf("settle %s: %w", roomID, err)
		}
		// Someone else flipped the flag; the room is history now.
		metricConflictsTotal.Add(1)
		e.arena.Discard(roomID, nil)
		return nil, registry.ErrRoomClosed
	}

	out := &Outcome{
		RoomID: roomID,
		Results: Results{
			Players: rows,
			RoomInfo: RoomInfo{
				ChipsPerHand: room.ChipsPerHand,
				CostPerHand:  room.CostPerHand,
				Currency:     room.Currency,
			},
		},
	}
	e.arena.Discard(roomID, func() { e.bc.PublishSettled(roomID, out) })
	metricSettledTotal.Add(1)
	log.Info().Str("room_id", roomID).Int("players", len(rows)).Int("records", len(written)).Msg("room settled")
	return out, nil
}

// persist writes one record per player with both a user id and chips.
// Failures are logged and skipped.
func (e *Engine) persist(ctx context.Context, roomID string, rows []Row) []int64 {
	var ids []int64
	for _, r := range rows {
		if r.UserID == nil || r.Chips == nil {
			continue
		}
		id, err := e.results.InsertResult(ctx, store.ResultRecord{
			RoomID:       roomID,
			UserID:       *r.UserID,
			UserNickname: r.Nickname,
			Hands:        r.Hands,
			FinalChips:   r.Chips,
			JoinedAt:     r.JoinedAt,
		})
		if err != nil {
			metricPersistFailures.Add(1)
			log.Error().Err(err).Str("room_id", roomID).Int64("player_id", r.ID).Msg("persist settlement record failed")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) rollback(ctx context.Context, roomID string, ids []int64) {
	if len(ids) == 0 {
		return
	}
	if err := e.results.DeleteResults(ctx, ids); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Int("records", len(ids)).Msg("rollback settlement records failed")
	}
}
