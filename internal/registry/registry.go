package registry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"chip-ledger/internal/store"
	"chip-ledger/internal/tally"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	minRoomID = 100000
	maxRoomID = 999999

	DefaultBigBlind = 20
)

type RoomConfig struct {
	ChipsPerHand int64           `json:"chipsPerHand"`
	BigBlind     int64           `json:"bigBlind"`
	CostPerHand  decimal.Decimal `json:"costPerHand"`
	Currency     string          `json:"currency"`
}

type Room struct {
	ID           string          `json:"roomId"`
	ChipsPerHand int64           `json:"chipsPerHand"`
	BigBlind     int64           `json:"bigBlind"`
	CostPerHand  decimal.Decimal `json:"costPerHand"`
	Currency     string          `json:"currency"`
	CreatedAt    time.Time       `json:"createdAt"`
	SettledAt    *time.Time      `json:"settledAt"`
}

func (r Room) Settled() bool { return r.SettledAt != nil }

func fromRecord(rec store.RoomRecord) *Room {
	return &Room{
		ID:           rec.RoomID,
		ChipsPerHand: rec.ChipsPerHand,
		BigBlind:     rec.BigBlind,
		CostPerHand:  rec.CostPerHand,
		Currency:     rec.Currency,
		CreatedAt:    rec.CreatedAt,
		SettledAt:    rec.SettledAt,
	}
}

// Normalize fills defaults and validates a config.
func (c RoomConfig) Normalize() (RoomConfig, error) {
	if c.BigBlind == 0 {
		c.BigBlind = DefaultBigBlind
	}
	c.Currency = tally.NormalizeCurrency(c.Currency)
	if c.Currency == "" {
		c.Currency = tally.CAD
	}
	if c.ChipsPerHand <= 0 || c.BigBlind <= 0 || !c.CostPerHand.IsPositive() || len(c.Currency) != 3 {
		return c, ErrInvalidConfig
	}
	return c, nil
}

// Registry owns room lifecycle in ledger storage: creation, lookup and the
// single open->settled transition.
type Registry struct {
	store    store.Store
	attempts int
	intn     func(n int) int
	now      func() time.Time
}

func New(st store.Store, attempts int) *Registry {
	if attempts <= 0 {
		attempts = 50
	}
	return &Registry{
		store:    st,
		attempts: attempts,
		intn:     rand.Intn,
		now:      time.Now,
	}
}

// NewRoomID samples a 6-digit id not present in storage.
func (r *Registry) NewRoomID(ctx context.Context) (string, error) {
	for i := 0; i < r.attempts; i++ {
		id := strconv.Itoa(minRoomID + r.intn(maxRoomID-minRoomID+1))
		used, err := r.store.RoomExists(ctx, id)
		if err != nil {
			// Treat lookup failures as a collision and keep sampling.
			log.Warn().Err(err).Str("room_id", id).Msg("room id lookup failed")
			continue
		}
		if !used {
			return id, nil
		}
	}
	return "", ErrExhaustedIDSpace
}

func (r *Registry) Create(ctx context.Context, cfg RoomConfig) (*Room, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	id, err := r.NewRoomID(ctx)
	if err != nil {
		return nil, err
	}
	rec := store.RoomRecord{
		RoomID:       id,
		ChipsPerHand: cfg.ChipsPerHand,
		BigBlind:     cfg.BigBlind,
		CostPerHand:  cfg.CostPerHand,
		Currency:     cfg.Currency,
		CreatedAt:    r.now().UTC(),
	}
	if err := r.store.InsertRoom(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert room %s: %w", id, err)
	}
	log.Info().Str("room_id", id).Int64("chips_per_hand", cfg.ChipsPerHand).Str("currency", cfg.Currency).Msg("room created")
	return fromRecord(rec), nil
}

func (r *Registry) lookup(ctx context.Context, roomID string) (*Room, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, store.ErrNotFound
	}
	rec, err := r.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec), nil
}

func (r *Registry) GetOpen(ctx context.Context, roomID string) (*Room, error) {
	room, err := r.lookup(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	if room.Settled() {
		return nil, ErrRoomClosed
	}
	return room, nil
}

func (r *Registry) ValidateOpen(ctx context.Context, roomID string) error {
	_, err := r.GetOpen(ctx, roomID)
	return err
}

// Settle flips settled_at once. It reports false when the room was already settled.
func (r *Registry) Settle(ctx context.Context, roomID string) (bool, error) {
	flipped, err := r.store.MarkRoomSettled(ctx, roomID, r.now().UTC())
	if err != nil {
		return false, fmt.Errorf("settle room %s: %w", roomID, err)
	}
	return flipped, nil
}

func (r *Registry) GetSettled(ctx context.Context, roomID string) (*Room, error) {
	room, err := r.lookup(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSettledRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	if !room.Settled() {
		return nil, ErrSettledRoomNotFound
	}
	return room, nil
}
