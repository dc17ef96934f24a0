package records

import (
	"chip-ledger/internal/ledger"
	"chip-ledger/internal/tally"
)

type RoomResultsResponse struct {
	RoomID string         `json:"roomId"`
	Items  []ledger.Entry `json:"items"`
}

type UserRecordsResponse struct {
	Items  []ledger.Entry `json:"items"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type StatsResponse struct {
	UserID   string `json:"userId"`
	Currency string `json:"currency"`
	tally.Summary
}

type MonthRow struct {
	Month       string  `json:"month"`
	GamesPlayed int     `json:"gamesPlayed"`
	TotalProfit float64 `json:"totalProfit"`
	AvgProfit   float64 `json:"avgProfit"`
	WinGames    int     `json:"winGames"`
}

type MonthlyResponse struct {
	UserID   string     `json:"userId"`
	Currency string     `json:"currency"`
	Items    []MonthRow `json:"items"`
}

type HeadToHeadStats struct {
	TotalGames          int     `json:"totalGames"`
	UserWins            int     `json:"userWins"`
	OpponentWins        int     `json:"opponentWins"`
	Ties                int     `json:"ties"`
	UserTotalProfit     float64 `json:"userTotalProfit"`
	OpponentTotalProfit float64 `json:"opponentTotalProfit"`
	UserWinRate         float64 `json:"userWinRate"`
}

type HeadToHeadResponse struct {
	UserID     string           `json:"userId"`
	OpponentID string           `json:"opponentId"`
	Currency   string           `json:"currency"`
	Stats      HeadToHeadStats  `json:"stats"`
	Games      []ledger.Matchup `json:"games"`
}

// ManualRecord is a game the user played outside a live room.
type ManualRecord struct {
	Date          string  `json:"date"`
	DurationHours float64 `json:"durationHours"`
	ChipsPerHand  int64   `json:"chipsPerHand"`
	BigBlind      int64   `json:"bigBlind"`
	CostPerHand   string  `json:"costPerHand"`
	Currency      string  `json:"currency"`
	Hands         int64   `json:"hands"`
	FinalChips    int64   `json:"finalChips"`
	UserNickname  string  `json:"userNickname"`
}

type ManualRecordResponse struct {
	RecordID int64  `json:"recordId"`
	RoomID   string `json:"roomId"`
}

type DeletableResponse struct {
	RecordID  int64  `json:"recordId"`
	CanDelete bool   `json:"canDelete"`
	Reason    string `json:"reason,omitempty"`
}
