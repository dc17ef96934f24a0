package tally

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func i64(v int64) *int64 { return &v }

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestComputeStats(t *testing.T) {
	holdings := []Holding{
		{Hands: 3, Chips: i64(3200)},
		{Hands: 2, Chips: nil},
		{Hands: 1, Chips: i64(0)},
	}
	got := ComputeStats(holdings, 1000)
	want := Stats{Expected: 6000, Actual: 3200, Result: -2800}
	if got != want {
		t.Fatalf("ComputeStats = %+v, want %+v", got, want)
	}
	if again := ComputeStats(holdings, 1000); again != got {
		t.Fatalf("second ComputeStats = %+v, want %+v", again, got)
	}
}

func TestBalanceAndProfitScenario(t *testing.T) {
	h := Holding{Hands: 3, Chips: i64(3200)}
	bal := Balance(h, 1000)
	if bal == nil || *bal != 200 {
		t.Fatalf("Balance = %v, want 200", bal)
	}
	hp := HandsProfit(bal, 1000)
	if hp == nil || !hp.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("HandsProfit = %v, want 0.2", hp)
	}
	p := Profit(bal, 1000, decimal.NewFromInt(5))
	if p == nil || p.StringFixed(2) != "1.00" {
		t.Fatalf("Profit = %v, want 1.00", p)
	}
}

func TestProfitNullPreserved(t *testing.T) {
	h := Holding{Hands: 4, Chips: nil}
	if bal := Balance(h, 1000); bal != nil {
		t.Fatalf("Balance = %d, want nil", *bal)
	}
	if p := Profit(nil, 1000, decimal.NewFromInt(5)); p != nil {
		t.Fatalf("Profit = %s, want nil", p)
	}
}

func TestProfitRounding(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		cph     int64
		cost    string
		want    string
	}{
		{"exact", 500, 1000, "2", "1.00"},
		{"third", 1000, 3000, "1", "0.33"},
		{"half away from zero", 1250, 1000, "0.1", "0.13"},
		{"negative half", -1250, 1000, "0.1", "-0.13"},
		{"loss", -2500, 1000, "5", "-12.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Profit(i64(tt.balance), tt.cph, decimal.RequireFromString(tt.cost))
			if got.StringFixed(2) != tt.want {
				t.Fatalf("Profit = %s, want %s", got.StringFixed(2), tt.want)
			}
		})
	}
}

type row struct {
	name   string
	profit *decimal.Decimal
}

func TestRankOrder(t *testing.T) {
	rows := []row{
		{"E", dec("0")},
		{"C", dec("-10")},
		{"F", nil},
		{"A", dec("50")},
		{"D", dec("-30")},
		{"B", dec("20")},
	}
	Rank(rows, func(r row) *decimal.Decimal { return r.profit })
	got := ""
	for _, r := range rows {
		got += r.name
	}
	if got != "ABCDEF" {
		t.Fatalf("order = %s, want ABCDEF", got)
	}
}

func TestRankStableOnTies(t *testing.T) {
	rows := []row{
		{"first", dec("10")},
		{"null1", nil},
		{"second", dec("10")},
		{"null2", nil},
	}
	Rank(rows, func(r row) *decimal.Decimal { return r.profit })
	want := []string{"first", "second", "null1", "null2"}
	for i, name := range want {
		if rows[i].name != name {
			t.Fatalf("rows[%d] = %s, want %s", i, rows[i].name, name)
		}
	}
}

func TestByProfit(t *testing.T) {
	tests := []struct {
		name string
		rows []row
		want string
	}{
		{"descending", []row{{"C", dec("-10")}, {"A", dec("50")}, {"B", dec("0")}}, "ABC"},
		{"missing profit last", []row{{"N", nil}, {"A", dec("-5")}, {"M", nil}}, "ANM"},
		{"ties keep order", []row{{"X", dec("3")}, {"Y", dec("3.00")}, {"Z", dec("4")}}, "ZXY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ByProfit(tt.rows, func(r row) *decimal.Decimal { return r.profit })
			got := ""
			for _, r := range tt.rows {
				got += r.name
			}
			if got != tt.want {
				t.Fatalf("order = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDurationHours(t *testing.T) {
	joined := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
	if got := DurationHours(joined, joined.Add(90*time.Minute)); got != 1.5 {
		t.Fatalf("DurationHours = %v, want 1.5", got)
	}
	if got := DurationHours(joined, joined.Add(-time.Hour)); got != 0 {
		t.Fatalf("DurationHours reversed = %v, want 0", got)
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		amount, from, to, want string
	}{
		{"10", "CAD", "CNY", "52"},
		{"52", "RMB", "CAD", "10"},
		{"7.5", "CAD", "cad", "7.5"},
		{"3", "USD", "CAD", "3"},
	}
	for _, tt := range tests {
		got := Convert(decimal.RequireFromString(tt.amount), tt.from, tt.to)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Fatalf("Convert(%s %s->%s) = %s, want %s", tt.amount, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	games := []Game{
		{Profit: decimal.RequireFromString("10"), Balance: 2000, BigBlind: 20, Hours: 2},
		{Profit: decimal.RequireFromString("-4"), Balance: -800, BigBlind: 20, Hours: 1},
		{Profit: decimal.Zero, Balance: 0, BigBlind: 20, Hours: 1},
	}
	got := Summarize(games)
	if got.GamesPlayed != 3 || got.WinGames != 1 || got.DrawGames != 1 {
		t.Fatalf("counts = %+v", got)
	}
	if got.TotalProfit != 6 || got.AvgProfit != 2 {
		t.Fatalf("profit totals = %+v", got)
	}
	if got.BestGame != 10 || got.WorstGame != -4 {
		t.Fatalf("best/worst = %+v", got)
	}
	if got.WinRate != 33.33 {
		t.Fatalf("WinRate = %v, want 33.33", got.WinRate)
	}
	// (100 - 40 + 0) big blinds over 4 hours.
	if got.TotalHours != 4 || got.BBPerHour != 15 {
		t.Fatalf("hours = %v bb/h = %v", got.TotalHours, got.BBPerHour)
	}
	if empty := Summarize(nil); empty != (Summary{}) {
		t.Fatalf("Summarize(nil) = %+v", empty)
	}
}
