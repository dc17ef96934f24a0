// Package ledger reads settled history back out of storage. Stored rows only
// carry hands and final chips; every money figure is derived here from the
// room's registered configuration.
package ledger

import (
	"context"
	"time"

	"chip-ledger/internal/store"
	"chip-ledger/internal/tally"

	"github.com/shopspring/decimal"
)

// Entry is one persisted result with its derived figures.
type Entry struct {
	ID            int64            `json:"id"`
	RoomID        string           `json:"roomId"`
	UserID        string           `json:"userId"`
	UserNickname  string           `json:"userNickname"`
	Hands         int64            `json:"hands"`
	FinalChips    *int64           `json:"finalChips"`
	ChipProfit    *int64           `json:"chipProfit"`
	HandsProfit   *decimal.Decimal `json:"handsProfit"`
	Profit        *decimal.Decimal `json:"profit"`
	DurationHours float64          `json:"durationHours"`
	JoinedAt      time.Time        `json:"joinedAt"`
	ChipsPerHand  int64            `json:"chipsPerHand"`
	BigBlind      int64            `json:"bigBlind"`
	CostPerHand   decimal.Decimal  `json:"costPerHand"`
	Currency      string           `json:"currency"`
	CreatedAt     time.Time        `json:"createdAt"`
	SettledAt     *time.Time       `json:"settledAt"`
}

// Game reduces an entry for tally.Summarize, converting profit into currency.
// ok is false for entries without a profit.
func (e Entry) Game(currency string) (tally.Game, bool) {
	if e.Profit == nil || e.ChipProfit == nil {
		return tally.Game{}, false
	}
	return tally.Game{
		Profit:   tally.Convert(*e.Profit, e.Currency, currency),
		Balance:  *e.ChipProfit,
		BigBlind: e.BigBlind,
		Hours:    e.DurationHours,
	}, true
}

// Derive prices a stored row against its room.
func Derive(row store.ResultRow) Entry {
	res, room := row.Result, row.Room
	bal := tally.Balance(tally.Holding{Hands: res.Hands, Chips: res.FinalChips}, room.ChipsPerHand)
	e := Entry{
		ID:           res.ID,
		RoomID:       res.RoomID,
		UserID:       res.UserID,
		UserNickname: res.UserNickname,
		Hands:        res.Hands,
		FinalChips:   res.FinalChips,
		ChipProfit:   bal,
		HandsProfit:  tally.HandsProfit(bal, room.ChipsPerHand),
		Profit:       tally.Profit(bal, room.ChipsPerHand, room.CostPerHand),
		JoinedAt:     res.JoinedAt,
		ChipsPerHand: room.ChipsPerHand,
		BigBlind:     room.BigBlind,
		CostPerHand:  room.CostPerHand,
		Currency:     room.Currency,
		CreatedAt:    room.CreatedAt,
		SettledAt:    room.SettledAt,
	}
	if room.SettledAt != nil {
		e.DurationHours = tally.DurationHours(res.JoinedAt, *room.SettledAt)
	}
	return e
}

func deriveAll(rows []store.ResultRow) []Entry {
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Derive(r))
	}
	return out
}

type Ledger struct {
	Store store.Store
}

func New(s store.Store) *Ledger {
	return &Ledger{Store: s}
}

// RoomEntries returns a room's results, highest profit first.
func (l *Ledger) RoomEntries(ctx context.Context, roomID string) ([]Entry, error) {
	rows, err := l.Store.ListRoomResults(ctx, roomID)
	if err != nil {
		return nil, err
	}
	out := deriveAll(rows)
	tally.ByProfit(out, func(e Entry) *decimal.Decimal { return e.Profit })
	return out, nil
}

// UserEntries returns a user's settled results, newest first.
func (l *Ledger) UserEntries(ctx context.Context, userID string, limit, offset int) ([]Entry, error) {
	rows, err := l.Store.ListUserResults(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return deriveAll(rows), nil
}

func (l *Ledger) Entry(ctx context.Context, id int64) (Entry, error) {
	row, err := l.Store.GetResult(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	return Derive(row), nil
}

// Matchup is one room two users both played in.
type Matchup struct {
	RoomID    string     `json:"roomId"`
	SettledAt *time.Time `json:"settledAt"`
	Currency  string     `json:"currency"`
	User      Entry      `json:"user"`
	Opponent  Entry      `json:"opponent"`
}

func (l *Ledger) Matchups(ctx context.Context, userID, opponentID string) ([]Matchup, error) {
	rows, err := l.Store.ListHeadToHead(ctx, userID, opponentID)
	if err != nil {
		return nil, err
	}
	out := make([]Matchup, 0, len(rows))
	for _, r := range rows {
		out = append(out, Matchup{
			RoomID:    r.Room.RoomID,
			SettledAt: r.Room.SettledAt,
			Currency:  r.Room.Currency,
			User:      Derive(store.ResultRow{Result: r.User, Room: r.Room}),
			Opponent:  Derive(store.ResultRow{Result: r.Opponent, Room: r.Room}),
		})
	}
	return out, nil
}
