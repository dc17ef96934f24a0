package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the production ledger backed by pgxpool.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Postgres{Pool: pool}, nil
}

func (s *Postgres) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func (s *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.Pool.Ping(ctx)
}

func (s *Postgres) RoomExists(ctx context.Context, roomID string) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM game_sessions WHERE room_id = $1)`, roomID).Scan(&exists)
	return exists, err
}

func (s *Postgres) InsertRoom(ctx context.Context, room RoomRecord) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO game_sessions (room_id, chips_per_hand, big_blind, cost_per_hand, currency, created_at, settled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		room.RoomID, room.ChipsPerHand, room.BigBlind, numericParam(room.CostPerHand),
		room.Currency, timestamptzParam(room.CreatedAt), timeParam(room.SettledAt))
	return err
}

func (s *Postgres) GetRoom(ctx context.Context, roomID string) (RoomRecord, error) {
	var (
		room      RoomRecord
		cost      pgtype.Numeric
		settledAt pgtype.Timestamptz
	)
	err := s.Pool.QueryRow(ctx, `
SELECT room_id, chips_per_hand, big_blind, cost_per_hand, currency, created_at, settled_at
FROM game_sessions WHERE room_id = $1`, roomID).Scan(
		&room.RoomID, &room.ChipsPerHand, &room.BigBlind, &cost, &room.Currency, &room.CreatedAt, &settledAt)
	if err != nil {
		return RoomRecord{}, mapNotFound(err)
	}
	room.CostPerHand = numericVal(cost)
	room.SettledAt = timePtrVal(settledAt)
	return room, nil
}

func (s *Postgres) MarkRoomSettled(ctx context.Context, roomID string, at time.Time) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE game_sessions SET settled_at = $2 WHERE room_id = $1 AND settled_at IS NULL`,
		roomID, timestamptzParam(at))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) InsertResult(ctx context.Context, rec ResultRecord) (int64, error) {
	return insertResultPG(ctx, s.Pool, rec)
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertResultPG(ctx context.Context, q pgQuerier, rec ResultRecord) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
INSERT INTO player_results (room_id, user_id, user_nickname, hands, final_chips, joined_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		rec.RoomID, rec.UserID, rec.UserNickname, rec.Hands, int8PtrParam(rec.FinalChips),
		timestamptzParam(rec.JoinedAt)).Scan(&id)
	return id, err
}

func (s *Postgres) DeleteResults(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.Pool.Exec(ctx, `DELETE FROM player_results WHERE id = ANY($1)`, ids)
	return err
}

const pgResultColumns = `
r.id, r.room_id, r.user_id, r.user_nickname, r.hands, r.final_chips, r.joined_at,
s.chips_per_hand, s.big_blind, s.cost_per_hand, s.currency, s.created_at, s.settled_at`

func (s *Postgres) ListRoomResults(ctx context.Context, roomID string) ([]ResultRow, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT`+pgResultColumns+`
FROM player_results r JOIN game_sessions s ON s.room_id = r.room_id
WHERE r.room_id = $1
ORDER BY r.id`, roomID)
	if err != nil {
		return nil, err
	}
	return collectResultRowsPG(rows)
}

func (s *Postgres) ListUserResults(ctx context.Context, userID string, limit, offset int) ([]ResultRow, error) {
	var limitArg pgtype.Int8
	if limit > 0 {
		limitArg = pgtype.Int8{Int64: int64(limit), Valid: true}
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.Pool.Query(ctx, `
SELECT`+pgResultColumns+`
FROM player_results r JOIN game_sessions s ON s.room_id = r.room_id
WHERE r.user_id = $1 AND s.settled_at IS NOT NULL
ORDER BY s.settled_at DESC, r.id DESC
LIMIT $2 OFFSET $3`, userID, limitArg, offset)
	if err != nil {
		return nil, err
	}
	return collectResultRowsPG(rows)
}

func (s *Postgres) GetResult(ctx context.Context, id int64) (ResultRow, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT`+pgResultColumns+`
FROM player_results r JOIN game_sessions s ON s.room_id = r.room_id
WHERE r.id = $1`, id)
	if err != nil {
		return ResultRow{}, err
	}
	out, err := collectResultRowsPG(rows)
	if err != nil {
		return ResultRow{}, err
	}
	if len(out) == 0 {
		return ResultRow{}, ErrNotFound
	}
	return out[0], nil
}

func (s *Postgres) CountRoomResults(ctx context.Context, roomID string) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM player_results WHERE room_id = $1`, roomID).Scan(&n)
	return n, err
}

func (s *Postgres) UpdateUserNickname(ctx context.Context, userID, nickname string) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE player_results SET user_nickname = $2 WHERE user_id = $1`, userID, nickname)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) InsertSettledRecord(ctx context.Context, room RoomRecord, rec ResultRecord) (int64, error) {
	var id int64
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO game_sessions (room_id, chips_per_hand, big_blind, cost_per_hand, currency, created_at, settled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			room.RoomID, room.ChipsPerHand, room.BigBlind, numericParam(room.CostPerHand),
			room.Currency, timestamptzParam(room.CreatedAt), timeParam(room.SettledAt)); err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
		rec.RoomID = room.RoomID
		var err error
		id, err = insertResultPG(ctx, tx, rec)
		if err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
		return nil
	})
	return id, err
}

func (s *Postgres) DeleteResultAndRoom(ctx context.Context, resultID int64, roomID string) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM player_results WHERE id = $1 AND room_id = $2`, resultID, roomID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `DELETE FROM game_sessions WHERE room_id = $1`, roomID)
		return err
	})
}

func collectResultRowsPG(rows pgx.Rows) ([]ResultRow, error) {
	defer rows.Close()
	out := []ResultRow{}
	for rows.Next() {
		var (
			row       ResultRow
			chips     pgtype.Int8
			cost      pgtype.Numeric
			settledAt pgtype.Timestamptz
		)
		if err := rows.Scan(
			&row.Result.ID, &row.Result.RoomID, &row.Result.UserID, &row.Result.UserNickname,
			&row.Result.Hands, &chips, &row.Result.JoinedAt,
			&row.Room.ChipsPerHand, &row.Room.BigBlind, &cost, &row.Room.Currency,
			&row.Room.CreatedAt, &settledAt,
		); err != nil {
			return nil, err
		}
		row.Result.FinalChips = int64PtrVal(chips)
		row.Room.RoomID = row.Result.RoomID
		row.Room.CostPerHand = numericVal(cost)
		row.Room.SettledAt = timePtrVal(settledAt)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Postgres) ListHeadToHead(ctx context.Context, userID, opponentID string) ([]HeadToHeadRow, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT s.room_id, s.chips_per_hand, s.big_blind, s.cost_per_hand, s.currency, s.created_at, s.settled_at,
       a.id, a.user_nickname, a.hands, a.final_chips, a.joined_at,
       b.id, b.user_nickname, b.hands, b.final_chips, b.joined_at
FROM player_results a
JOIN player_results b ON b.room_id = a.room_id
JOIN game_sessions s ON s.room_id = a.room_id
WHERE a.user_id = $1 AND b.user_id = $2 AND s.settled_at IS NOT NULL
ORDER BY s.created_at DESC, a.id DESC`, userID, opponentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []HeadToHeadRow{}
	for rows.Next() {
		var (
			row                 HeadToHeadRow
			cost                pgtype.Numeric
			settledAt           pgtype.Timestamptz
			userChips, oppChips pgtype.Int8
		)
		if err := rows.Scan(
			&row.Room.RoomID, &row.Room.ChipsPerHand, &row.Room.BigBlind, &cost, &row.Room.Currency,
			&row.Room.CreatedAt, &settledAt,
			&row.User.ID, &row.User.UserNickname, &row.User.Hands, &userChips, &row.User.JoinedAt,
			&row.Opponent.ID, &row.Opponent.UserNickname, &row.Opponent.Hands, &oppChips, &row.Opponent.JoinedAt,
		); err != nil {
			return nil, err
		}
		row.Room.CostPerHand = numericVal(cost)
		row.Room.SettledAt = timePtrVal(settledAt)
		row.User.RoomID, row.User.UserID, row.User.FinalChips = row.Room.RoomID, userID, int64PtrVal(userChips)
		row.Opponent.RoomID, row.Opponent.UserID, row.Opponent.FinalChips = row.Room.RoomID, opponentID, int64PtrVal(oppChips)
		out = append(out, row)
	}
	return out, rows.Err()
}
