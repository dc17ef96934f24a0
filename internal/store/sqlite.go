package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS game_sessions (
    room_id        TEXT PRIMARY KEY,
    chips_per_hand INTEGER NOT NULL CHECK (chips_per_hand > 0),
    big_blind      INTEGER NOT NULL DEFAULT 20,
    cost_per_hand  TEXT NOT NULL,
    currency       TEXT NOT NULL DEFAULT 'CAD',
    created_at_ms  INTEGER NOT NULL,
    settled_at_ms  INTEGER
);

CREATE TABLE IF NOT EXISTS player_results (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    room_id       TEXT NOT NULL REFERENCES game_sessions(room_id) ON DELETE CASCADE,
    user_id       TEXT NOT NULL,
    user_nickname TEXT NOT NULL,
    hands         INTEGER NOT NULL,
    final_chips   INTEGER,
    joined_at_ms  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_player_results_user ON player_results (user_id);
CREATE INDEX IF NOT EXISTS idx_player_results_room ON player_results (room_id);
`

// SQLite is the single-file ledger used for local runs and tests.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens path (":memory:" allowed) and ensures the schema exists.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		if parent := filepath.Dir(path); parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *SQLite) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLite) RoomExists(ctx context.Context, roomID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM game_sessions WHERE room_id = ?`, roomID).Scan(&n)
	return n > 0, err
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRoomSQLite(ctx context.Context, ex sqlExecer, room RoomRecord) error {
	_, err := ex.ExecContext(ctx, `
INSERT INTO game_sessions (room_id, chips_per_hand, big_blind, cost_per_hand, currency, created_at_ms, settled_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		room.RoomID, room.ChipsPerHand, room.BigBlind, room.CostPerHand.String(), room.Currency,
		room.CreatedAt.UnixMilli(), msParam(room.SettledAt))
	return err
}

func insertResultSQLite(ctx context.Context, ex sqlExecer, rec ResultRecord) (int64, error) {
	res, err := ex.ExecContext(ctx, `
INSERT INTO player_results (room_id, user_id, user_nickname, hands, final_chips, joined_at_ms)
VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RoomID, rec.UserID, rec.UserNickname, rec.Hands, nullInt64(rec.FinalChips), rec.JoinedAt.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLite) InsertRoom(ctx context.Context, room RoomRecord) error {
	return insertRoomSQLite(ctx, s.db, room)
}

func (s *SQLite) GetRoom(ctx context.Context, roomID string) (RoomRecord, error) {
	var (
		room      RoomRecord
		cost      decimal.Decimal
		createdMs int64
		settledMs sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT room_id, chips_per_hand, big_blind, cost_per_hand, currency, created_at_ms, settled_at_ms
FROM game_sessions WHERE room_id = ?`, roomID).Scan(
		&room.RoomID, &room.ChipsPerHand, &room.BigBlind, &cost, &room.Currency, &createdMs, &settledMs)
	if errors.Is(err, sql.ErrNoRows) {
		return RoomRecord{}, ErrNotFound
	}
	if err != nil {
		return RoomRecord{}, err
	}
	room.CostPerHand = cost
	room.CreatedAt = time.UnixMilli(createdMs).UTC()
	room.SettledAt = msVal(settledMs)
	return room, nil
}

func (s *SQLite) MarkRoomSettled(ctx context.Context, roomID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE game_sessions SET settled_at_ms = ? WHERE room_id = ? AND settled_at_ms IS NULL`,
		at.UnixMilli(), roomID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLite) InsertResult(ctx context.Context, rec ResultRecord) (int64, error) {
	return insertResultSQLite(ctx, s.db, rec)
}

func (s *SQLite) DeleteResults(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := s.db.ExecContext(ctx, `DELETE FROM player_results WHERE id IN (`+placeholders+`)`, args...)
	return err
}

const sqliteResultColumns = `
r.id, r.room_id, r.user_id, r.user_nickname, r.hands, r.final_chips, r.joined_at_ms,
s.chips_per_hand, s.big_blind, s.cost_per_hand, s.currency, s.created_at_ms, s.settled_at_ms`

func (s *SQLite) ListRoomResults(ctx context.Context, roomID string) ([]ResultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT`+sqliteResultColumns+`
FROM player_results r JOIN game_sessions s ON s.room_id = r.room_id
WHERE r.room_id = ?
ORDER BY r.id`, roomID)
	if err != nil {
		return nil, err
	}
	return collectResultRowsSQLite(rows)
}

func (s *SQLite) ListUserResults(ctx context.Context, userID string, limit, offset int) ([]ResultRow, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT`+sqliteResultColumns+`
FROM player_results r JOIN game_sessions s ON s.room_id = r.room_id
WHERE r.user_id = ? AND s.settled_at_ms IS NOT NULL
ORDER BY s.settled_at_ms DESC, r.id DESC
LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectResultRowsSQLite(rows)
}

func (s *SQLite) GetResult(ctx context.Context, id int64) (ResultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT`+sqliteResultColumns+`
FROM player_results r JOIN game_sessions s ON s.room_id = r.room_id
WHERE r.id = ?`, id)
	if err != nil {
		return ResultRow{}, err
	}
	out, err := collectResultRowsSQLite(rows)
	if err != nil {
		return ResultRow{}, err
	}
	if len(out) == 0 {
		return ResultRow{}, ErrNotFound
	}
	return out[0], nil
}

func (s *SQLite) CountRoomResults(ctx context.Context, roomID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM player_results WHERE room_id = ?`, roomID).Scan(&n)
	return n, err
}

func (s *SQLite) UpdateUserNickname(ctx context.Context, userID, nickname string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE player_results SET user_nickname = ? WHERE user_id = ?`, nickname, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLite) InsertSettledRecord(ctx context.Context, room RoomRecord, rec ResultRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := insertRoomSQLite(ctx, tx, room); err != nil {
		return 0, fmt.Errorf("insert room: %w", err)
	}
	rec.RoomID = room.RoomID
	id, err := insertResultSQLite(ctx, tx, rec)
	if err != nil {
		return 0, fmt.Errorf("insert result: %w", err)
	}
	return id, tx.Commit()
}

func (s *SQLite) DeleteResultAndRoom(ctx context.Context, resultID int64, roomID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `DELETE FROM player_results WHERE id = ? AND room_id = ?`, resultID, roomID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM game_sessions WHERE room_id = ?`, roomID); err != nil {
		return err
	}
	return tx.Commit()
}

func collectResultRowsSQLite(rows *sql.Rows) ([]ResultRow, error) {
	defer rows.Close()
	out := []ResultRow{}
	for rows.Next() {
		var (
			row       ResultRow
			chips     sql.NullInt64
			joinedMs  int64
			createdMs int64
			settledMs sql.NullInt64
		)
		if err := rows.Scan(
			&row.Result.ID, &row.Result.RoomID, &row.Result.UserID, &row.Result.UserNickname,
			&row.Result.Hands, &chips, &joinedMs,
			&row.Room.ChipsPerHand, &row.Room.BigBlind, &row.Room.CostPerHand, &row.Room.Currency,
			&createdMs, &settledMs,
		); err != nil {
			return nil, err
		}
		row.Result.FinalChips = nullInt64Val(chips)
		row.Result.JoinedAt = time.UnixMilli(joinedMs).UTC()
		row.Room.RoomID = row.Result.RoomID
		row.Room.CreatedAt = time.UnixMilli(createdMs).UTC()
		row.Room.SettledAt = msVal(settledMs)
		out = append(out, row)
	}
	return out, rows.Err()
}

func msParam(v *time.Time) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v.UnixMilli(), Valid: true}
}

func msVal(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (s *SQLite) ListHeadToHead(ctx context.Context, userID, opponentID string) ([]HeadToHeadRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT s.room_id, s.chips_per_hand, s.big_blind, s.cost_per_hand, s.currency, s.created_at_ms, s.settled_at_ms,
       a.id, a.user_nickname, a.hands, a.final_chips, a.joined_at_ms,
       b.id, b.user_nickname, b.hands, b.final_chips, b.joined_at_ms
FROM player_results a
JOIN player_results b ON b.room_id = a.room_id
JOIN game_sessions s ON s.room_id = a.room_id
WHERE a.user_id = ? AND b.user_id = ? AND s.settled_at_ms IS NOT NULL
ORDER BY s.created_at_ms DESC, a.id DESC`, userID, opponentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []HeadToHeadRow{}
	for rows.Next() {
		var (
			row                   HeadToHeadRow
			createdMs             int64
			settledMs             sql.NullInt64
			userChips, oppChips   sql.NullInt64
			userJoined, oppJoined int64
		)
		if err := rows.Scan(
			&row.Room.RoomID, &row.Room.ChipsPerHand, &row.Room.BigBlind, &row.Room.CostPerHand, &row.Room.Currency,
			&createdMs, &settledMs,
			&row.User.ID, &row.User.UserNickname, &row.User.Hands, &userChips, &userJoined,
			&row.Opponent.ID, &row.Opponent.UserNickname, &row.Opponent.Hands, &oppChips, &oppJoined,
		); err != nil {
			return nil, err
		}
		row.Room.CreatedAt = time.UnixMilli(createdMs).UTC()
		row.Room.SettledAt = msVal(settledMs)
		row.User.RoomID, row.User.UserID = row.Room.RoomID, userID
		row.User.FinalChips = nullInt64Val(userChips)
		row.User.JoinedAt = time.UnixMilli(userJoined).UTC()
		row.Opponent.RoomID, row.Opponent.UserID = row.Room.RoomID, opponentID
		row.Opponent.FinalChips = nullInt64Val(oppChips)
		row.Opponent.JoinedAt = time.UnixMilli(oppJoined).UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullInt64Val(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}
