package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chip-ledger/internal/config"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

// RoomRecord is a row of game_sessions.
type RoomRecord struct {
	RoomID       string
	ChipsPerHand int64
	BigBlind     int64
	CostPerHand  decimal.Decimal
	Currency     string
	CreatedAt    time.Time
	SettledAt    *time.Time
}

// ResultRecord is a row of player_results. Balance and profit are never
// stored; readers derive them from Hands, FinalChips and the room config.
type ResultRecord struct {
	ID           int64
	RoomID       string
	UserID       string
	UserNickname string
	Hands        int64
	FinalChips   *int64
	JoinedAt     time.Time
}

// ResultRow is a result joined with the room it was settled in.
type ResultRow struct {
	Result ResultRecord
	Room   RoomRecord
}

// HeadToHeadRow pairs two users' results from one settled room.
type HeadToHeadRow struct {
	Room     RoomRecord
	User     ResultRecord
	Opponent ResultRecord
}

// Store is the ledger storage used by the registry, settlement and history readers.
type Store interface {
	Ping(ctx context.Context) error
	Close()

	RoomExists(ctx context.Context, roomID string) (bool, error)
	InsertRoom(ctx context.Context, room RoomRecord) error
	GetRoom(ctx context.Context, roomID string) (RoomRecord, error)
	// MarkRoomSettled sets settled_at only when it is still null and reports
	// whether this call changed the row.
	MarkRoomSettled(ctx context.Context, roomID string, at time.Time) (bool, error)

	InsertResult(ctx context.Context, rec ResultRecord) (int64, error)
	DeleteResults(ctx context.Context, ids []int64) error
	ListRoomResults(ctx context.Context, roomID string) ([]ResultRow, error)
	// ListUserResults returns results in settled rooms, newest first. limit <= 0 means no limit.
	ListUserResults(ctx context.Context, userID string, limit, offset int) ([]ResultRow, error)
	// ListHeadToHead returns settled rooms both users played in, newest first.
	ListHeadToHead(ctx context.Context, userID, opponentID string) ([]HeadToHeadRow, error)
	GetResult(ctx context.Context, id int64) (ResultRow, error)
	CountRoomResults(ctx context.Context, roomID string) (int, error)
	UpdateUserNickname(ctx context.Context, userID, nickname string) (int64, error)

	// InsertSettledRecord writes an already-settled room and its single result atomically.
	InsertSettledRecord(ctx context.Context, room RoomRecord, rec ResultRecord) (int64, error)
	// DeleteResultAndRoom removes a result and the room it belongs to atomically.
	DeleteResultAndRoom(ctx context.Context, resultID int64, roomID string) error
}

// Open builds the store selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.ServerConfig) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return NewPostgres(ctx, cfg.PostgresDSN)
	case config.DriverSQLite:
		return NewSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.StoreDriver)
	}
}

const pingTimeout = 2 * time.Second
