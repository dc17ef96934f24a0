package settlement

import (
	"time"

	"chip-ledger/internal/live"
	"chip-ledger/internal/registry"
	"chip-ledger/internal/tally"

	"github.com/shopspring/decimal"
)

// Row is one player's final line. Balance and Profit stay nil for players
// who never entered chips.
type Row struct {
	ID       int64            `json:"id"`
	UserID   *string          `json:"userId"`
	Nickname string           `json:"nickname"`
	Hands    int64            `json:"hands"`
	Chips    *int64           `json:"chips"`
	Balance  *int64           `json:"balance"`
	Profit   *decimal.Decimal `json:"profit"`
	JoinedAt time.Time        `json:"joinedAt"`
}

type RoomInfo struct {
	ChipsPerHand int64           `json:"chipsPerHand"`
	CostPerHand  decimal.Decimal `json:"costPerHand"`
	Currency     string          `json:"currency"`
}

type Results struct {
	Players  []Row    `json:"players"`
	RoomInfo RoomInfo `json:"roomInfo"`
}

// Outcome is both the settle response and the roomSettled payload.
type Outcome struct {
	RoomID  string  `json:"roomId"`
	Results Results `json:"results"`
}

// ComputeRows prices every player against the room's registered config and
// returns them in presentation order.
func ComputeRows(players []live.Player, room registry.Room) []Row {
	rows := make([]Row, 0, len(players))
	for _, p := range players {
		bal := tally.Balance(p.Holding(), room.ChipsPerHand)
		rows = append(rows, Row{
			ID:       p.ID,
			UserID:   p.UserID,
			Nickname: p.Nickname,
			Hands:    p.Hands,
			Chips:    p.Chips,
			Balance:  bal,
			Profit:   tally.Profit(bal, room.ChipsPerHand, room.CostPerHand),
			JoinedAt: p.JoinedAt,
		})
	}
	tally.Rank(rows, func(r Row) *decimal.Decimal { return r.Profit })
	return rows
}
