package tally

import (
	"github.com/shopspring/decimal"
)

// Game is one settled result reduced to what aggregates need.
type Game struct {
	Profit   decimal.Decimal
	Balance  int64
	BigBlind int64
	Hours    float64
}

// Summary aggregates a user's settled games.
type Summary struct {
	GamesPlayed int     `json:"gamesPlayed"`
	TotalProfit float64 `json:"totalProfit"`
	AvgProfit   float64 `json:"avgProfit"`
	WinRate     float64 `json:"winRate"`
	BestGame    float64 `json:"bestGame"`
	WorstGame   float64 `json:"worstGame"`
	WinGames    int     `json:"winGames"`
	DrawGames   int     `json:"drawGames"`
	TotalHours  float64 `json:"totalHours"`
	BBPerHour   float64 `json:"bbPerHour"`
}

// Summarize expects every Profit already in the caller's display currency.
func Summarize(games []Game) Summary {
	var out Summary
	if len(games) == 0 {
		return out
	}
	total := decimal.Zero
	best, worst := games[0].Profit, games[0].Profit
	bigBlinds := decimal.Zero
	hours := decimal.Zero
	for _, g := range games {
		total = total.Add(g.Profit)
		switch {
		case g.Profit.IsPositive():
			out.WinGames++
		case g.Profit.IsZero():
			out.DrawGames++
		}
		if g.Profit.GreaterThan(best) {
			best = g.Profit
		}
		if g.Profit.LessThan(worst) {
			worst = g.Profit
		}
		if g.BigBlind > 0 {
			bigBlinds = bigBlinds.Add(decimal.NewFromInt(g.Balance).Div(decimal.NewFromInt(g.BigBlind)))
		}
		hours = hours.Add(decimal.NewFromFloat(g.Hours))
	}
	n := decimal.NewFromInt(int64(len(games)))
	out.GamesPlayed = len(games)
	out.TotalProfit = total.Round(2).InexactFloat64()
	out.AvgProfit = total.Div(n).Round(2).InexactFloat64()
	out.WinRate = decimal.NewFromInt(int64(out.WinGames)).Mul(decimal.NewFromInt(100)).Div(n).Round(2).InexactFloat64()
	out.BestGame = best.Round(2).InexactFloat64()
	out.WorstGame = worst.Round(2).InexactFloat64()
	out.TotalHours = hours.Round(1).InexactFloat64()
	if hours.IsPositive() {
		out.BBPerHour = bigBlinds.Div(hours).Round(1).InexactFloat64()
	}
	return out
}
