package ledger

import (
	"context"
	"testing"
	"time"

	"chip-ledger/internal/store"
	"chip-ledger/internal/testutil"

	"github.com/shopspring/decimal"
)

func int64Ptr(v int64) *int64 { return &v }

func TestDerive(t *testing.T) {
	settled := time.Date(2025, 3, 1, 21, 30, 0, 0, time.UTC)
	row := store.ResultRow{
		Result: store.ResultRecord{
			ID:         7,
			RoomID:     "123456",
			UserID:     "u1",
			Hands:      2,
			FinalChips: int64Ptr(3500),
			JoinedAt:   time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC),
		},
		Room: store.RoomRecord{
			RoomID:       "123456",
			ChipsPerHand: 1000,
			BigBlind:     20,
			CostPerHand:  decimal.RequireFromString("10"),
			Currency:     "CAD",
			SettledAt:    &settled,
		},
	}
	e := Derive(row)
	if e.ChipProfit == nil || *e.ChipProfit != 1500 {
		t.Fatalf("ChipProfit = %v, want 1500", e.ChipProfit)
	}
	if e.Profit == nil || !e.Profit.Equal(decimal.RequireFromString("15")) {
		t.Fatalf("Profit = %v, want 15", e.Profit)
	}
	if e.HandsProfit == nil || !e.HandsProfit.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("HandsProfit = %v, want 1.5", e.HandsProfit)
	}
	if e.DurationHours != 3.5 {
		t.Fatalf("DurationHours = %v, want 3.5", e.DurationHours)
	}

	g, ok := e.Game("CNY")
	if !ok {
		t.Fatal("Game ok = false")
	}
	if !g.Profit.Equal(decimal.RequireFromString("78")) {
		t.Fatalf("converted profit = %s, want 78", g.Profit)
	}
}

func TestDeriveWithoutChips(t *testing.T) {
	e := Derive(store.ResultRow{
		Result: store.ResultRecord{Hands: 1},
		Room:   store.RoomRecord{ChipsPerHand: 1000, CostPerHand: decimal.NewFromInt(5)},
	})
	if e.ChipProfit != nil || e.Profit != nil || e.DurationHours != 0 {
		t.Fatalf("entry without chips = %+v", e)
	}
	if _, ok := e.Game("CAD"); ok {
		t.Fatal("Game ok = true for entry without profit")
	}
}

func TestRoomEntriesByProfit(t *testing.T) {
	st := testutil.OpenSQLiteStore(t)
	ctx := context.Background()
	room := store.RoomRecord{
		RoomID:       "654321",
		ChipsPerHand: 1000,
		BigBlind:     20,
		CostPerHand:  decimal.NewFromInt(10),
		Currency:     "CAD",
		CreatedAt:    time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC),
	}
	if err := st.InsertRoom(ctx, room); err != nil {
		t.Fatalf("InsertRoom: %v", err)
	}
	for _, r := range []store.ResultRecord{
		{RoomID: "654321", UserID: "even", UserNickname: "E", Hands: 1, FinalChips: int64Ptr(1000)},
		{RoomID: "654321", UserID: "loser", UserNickname: "L", Hands: 1, FinalChips: int64Ptr(500)},
		{RoomID: "654321", UserID: "winner", UserNickname: "W", Hands: 1, FinalChips: int64Ptr(2500)},
	} {
		r.JoinedAt = room.CreatedAt
		if _, err := st.InsertResult(ctx, r); err != nil {
			t.Fatalf("InsertResult: %v", err)
		}
	}

	entries, err := New(st).RoomEntries(ctx, "654321")
	if err != nil {
		t.Fatalf("RoomEntries: %v", err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.UserID)
	}
	want := []string{"winner", "even", "loser"}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
