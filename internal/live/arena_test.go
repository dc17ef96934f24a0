package live

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recordingPublisher) PublishState(_ string, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recordingPublisher) last(t *testing.T) Snapshot {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		t.Fatal("no snapshot published")
	}
	return r.snaps[len(r.snaps)-1]
}

func fixedClock() func() time.Time {
	t0 := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func strPtr(s string) *string { return &s }

func TestAddPlayerFirstIsAdmin(t *testing.T) {
	pub := &recordingPublisher{}
	a := NewArena(1000, pub, WithClock(fixedClock()))

	p1, err := a.AddPlayer("123456", "Ann", strPtr("u1"))
	if err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	p2, err := a.AddPlayer("123456", "Bo", nil)
	if err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	if !p1.IsAdmin || p2.IsAdmin {
		t.Fatalf("admin flags = %v, %v, want true, false", p1.IsAdmin, p2.IsAdmin)
	}
	if p2.ID <= p1.ID {
		t.Fatalf("ids not increasing under a frozen clock: %d, %d", p1.ID, p2.ID)
	}
	if p1.Chips != nil || p1.Hands != 0 {
		t.Fatalf("new player = %+v, want hands 0 and nil chips", p1)
	}
	if p2.UserID != nil {
		t.Fatalf("UserID = %v, want nil", *p2.UserID)
	}
	snap := pub.last(t)
	if len(snap.Players) != 2 || snap.ChipsPerHand != 1000 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestUpdatePlayerIgnoresProtectedFields(t *testing.T) {
	a := NewArena(1000, nil)
	p, _ := a.AddPlayer("123456", "Ann", strPtr("u1"))

	var patch PlayerPatch
	body := `{"id":99,"userId":"evil","isAdmin":false,"nickname":"Annie","hands":3,"chips":3200}`
	if err := json.Unmarshal([]byte(body), &patch); err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	got, err := a.UpdatePlayer("123456", p.ID, patch)
	if err != nil {
		t.Fatalf("UpdatePlayer: %v", err)
	}
	if got.ID != p.ID || !got.IsAdmin || got.UserID == nil || *got.UserID != "u1" {
		t.Fatalf("protected fields changed: %+v", got)
	}
	if got.Nickname != "Annie" || got.Hands != 3 || got.Chips == nil || *got.Chips != 3200 {
		t.Fatalf("patch not applied: %+v", got)
	}
}

func TestUpdatePlayerChipsNullVersusAbsent(t *testing.T) {
	a := NewArena(1000, nil)
	p, _ := a.AddPlayer("123456", "Ann", nil)
	if _, err := a.UpdatePlayer("123456", p.ID, PlayerPatch{Chips: SetChips(500)}); err != nil {
		t.Fatalf("UpdatePlayer: %v", err)
	}

	var absent PlayerPatch
	_ = json.Unmarshal([]byte(`{"hands":2}`), &absent)
	got, _ := a.UpdatePlayer("123456", p.ID, absent)
	if got.Chips == nil || *got.Chips != 500 {
		t.Fatalf("absent chips changed value: %+v", got)
	}

	var explicit PlayerPatch
	_ = json.Unmarshal([]byte(`{"chips":null}`), &explicit)
	got, _ = a.UpdatePlayer("123456", p.ID, explicit)
	if got.Chips != nil {
		t.Fatalf("explicit null chips = %d, want nil", *got.Chips)
	}
}

func TestUpdatePlayerErrors(t *testing.T) {
	a := NewArena(1000, nil)
	p, _ := a.AddPlayer("123456", "Ann", nil)
	neg := int64(-1)
	blank := "  "

	tests := []struct {
		name  string
		id    int64
		patch PlayerPatch
		want  error
	}{
		{"missing player", p.ID + 100, PlayerPatch{}, ErrPlayerNotFound},
		{"negative hands", p.ID, PlayerPatch{Hands: &neg}, ErrInvalidPatch},
		{"negative chips", p.ID, PlayerPatch{Chips: SetChips(-5)}, ErrInvalidPatch},
		{"blank nickname", p.ID, PlayerPatch{Nickname: &blank}, ErrInvalidPatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.UpdatePlayer("123456", tt.id, tt.patch); !errors.Is(err, tt.want) {
				t.Fatalf("UpdatePlayer error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRemovePlayerTransfersAdminAndIsIdempotent(t *testing.T) {
	a := NewArena(1000, nil)
	p1, _ := a.AddPlayer("123456", "Ann", nil)
	p2, _ := a.AddPlayer("123456", "Bo", nil)
	_, _ = a.AddPlayer("123456", "Cy", nil)

	if err := a.RemovePlayer("123456", p1.ID); err != nil {
		t.Fatalf("RemovePlayer: %v", err)
	}
	if err := a.RemovePlayer("123456", p1.ID); err != nil {
		t.Fatalf("second RemovePlayer: %v", err)
	}
	snap, err := a.Get("123456", 1000)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(snap.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(snap.Players))
	}
	admins := 0
	for _, p := range snap.Players {
		if p.IsAdmin {
			admins++
			if p.ID != p2.ID {
				t.Fatalf("admin = %d, want %d", p.ID, p2.ID)
			}
		}
	}
	if admins != 1 {
		t.Fatalf("admins = %d, want 1", admins)
	}
}

func TestResetCountersSetsZeroNotNull(t *testing.T) {
	pub := &recordingPublisher{}
	a := NewArena(1000, pub)
	p, _ := a.AddPlayer("123456", "Ann", nil)
	_, _ = a.AddPlayer("123456", "Bo", nil)
	hands := int64(4)
	_, _ = a.UpdatePlayer("123456", p.ID, PlayerPatch{Hands: &hands, Chips: SetChips(4100)})

	if err := a.ResetCounters("123456"); err != nil {
		t.Fatalf("ResetCounters: %v", err)
	}
	snap := pub.last(t)
	for _, pl := range snap.Players {
		if pl.Hands != 0 || pl.Chips == nil || *pl.Chips != 0 {
			t.Fatalf("player after reset = %+v", pl)
		}
	}
	if snap.Stats.Expected != 0 || snap.Stats.Actual != 0 || snap.Stats.Result != 0 {
		t.Fatalf("stats after reset = %+v", snap.Stats)
	}
}

func TestSetChipDenominationRecomputesStats(t *testing.T) {
	pub := &recordingPublisher{}
	a := NewArena(1000, pub)
	p, _ := a.AddPlayer("123456", "Ann", nil)
	hands := int64(2)
	_, _ = a.UpdatePlayer("123456", p.ID, PlayerPatch{Hands: &hands})

	if err := a.SetChipDenomination("123456", 500); err != nil {
		t.Fatalf("SetChipDenomination: %v", err)
	}
	snap := pub.last(t)
	if snap.ChipsPerHand != 500 || snap.Stats.Expected != 1000 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if err := a.SetChipDenomination("123456", 0); !errors.Is(err, ErrInvalidPatch) {
		t.Fatalf("zero denomination error = %v", err)
	}
}

func TestFreezeBlocksMutationsAndSecondFreeze(t *testing.T) {
	a := NewArena(1000, nil)
	p, _ := a.AddPlayer("123456", "Ann", nil)

	roster, err := a.Freeze("123456")
	if err != nil || len(roster) != 1 {
		t.Fatalf("Freeze = %v, %v", roster, err)
	}
	if _, err := a.Freeze("123456"); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("second Freeze error = %v, want ErrRoomClosed", err)
	}
	if _, err := a.AddPlayer("123456", "Bo", nil); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("AddPlayer on frozen room = %v", err)
	}
	if _, err := a.UpdatePlayer("123456", p.ID, PlayerPatch{}); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("UpdatePlayer on frozen room = %v", err)
	}
	if err := a.Catchup("123456", func(Snapshot) {}); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("Catchup on frozen room = %v", err)
	}

	a.Thaw("123456")
	if _, err := a.AddPlayer("123456", "Bo", nil); err != nil {
		t.Fatalf("AddPlayer after thaw: %v", err)
	}
}

func TestDiscardRunsFinalHookAndDropsEntry(t *testing.T) {
	a := NewArena(1000, nil)
	_, _ = a.AddPlayer("123456", "Ann", nil)
	called := false
	a.Discard("123456", func() { called = true })
	if !called {
		t.Fatal("Discard did not run hook")
	}
	if _, ok := a.Peek("123456"); ok {
		t.Fatal("room still present after Discard")
	}
	if a.Rooms() != 0 {
		t.Fatalf("Rooms = %d, want 0", a.Rooms())
	}
}

func TestDiscardedRoomStaysClosed(t *testing.T) {
	a := NewArena(1000, nil)
	p, _ := a.AddPlayer("123456", "Ann", nil)
	a.Discard("123456", nil)

	tests := []struct {
		name string
		call func() error
	}{
		{"Get", func() error { _, err := a.Get("123456", 1000); return err }},
		{"Configure", func() error { return a.Configure("123456", 2000) }},
		{"AddPlayer", func() error { _, err := a.AddPlayer("123456", "Bo", nil); return err }},
		{"UpdatePlayer", func() error { _, err := a.UpdatePlayer("123456", p.ID, PlayerPatch{}); return err }},
		{"RemovePlayer", func() error { return a.RemovePlayer("123456", p.ID) }},
		{"ResetCounters", func() error { return a.ResetCounters("123456") }},
		{"SetChipDenomination", func() error { return a.SetChipDenomination("123456", 500) }},
		{"Freeze", func() error { _, err := a.Freeze("123456"); return err }},
		{"Catchup", func() error { return a.Catchup("123456", func(Snapshot) {}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrRoomClosed) {
				t.Fatalf("%s after Discard = %v, want ErrRoomClosed", tt.name, err)
			}
		})
	}
	if a.Rooms() != 0 {
		t.Fatalf("Rooms = %d, want 0", a.Rooms())
	}

	snap := a.Open("123456", 2000)
	if snap.ChipsPerHand != 2000 || len(snap.Players) != 0 {
		t.Fatalf("reopened snapshot = %+v", snap)
	}
	if _, err := a.AddPlayer("123456", "Bo", nil); err != nil {
		t.Fatalf("AddPlayer after Open: %v", err)
	}
}

func TestConfigureSelfHeals(t *testing.T) {
	pub := &recordingPublisher{}
	a := NewArena(1000, pub)
	if _, err := a.Get("123456", 1000); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if err := a.Configure("123456", 2000); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if got := pub.last(t).ChipsPerHand; got != 2000 {
		t.Fatalf("ChipsPerHand = %d, want 2000", got)
	}
	before := len(pub.snaps)
	if err := a.Configure("123456", 3000); err != nil {
		t.Fatalf("second Configure: %v", err)
	}
	if len(pub.snaps) != before {
		t.Fatal("second Configure published again")
	}
	if snap, _ := a.Get("123456", 1000); snap.ChipsPerHand != 2000 {
		t.Fatalf("ChipsPerHand after second Configure = %d, want 2000", snap.ChipsPerHand)
	}
}

func TestConfigureKeepsAdminDenomination(t *testing.T) {
	a := NewArena(1000, nil)
	if err := a.SetChipDenomination("123456", 500); err != nil {
		t.Fatalf("SetChipDenomination: %v", err)
	}
	if err := a.Configure("123456", 2000); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if snap, _ := a.Get("123456", 1000); snap.ChipsPerHand != 500 {
		t.Fatalf("ChipsPerHand = %d, want admin value 500", snap.ChipsPerHand)
	}
}

func TestConcurrentMutationsPublishInOrder(t *testing.T) {
	pub := &recordingPublisher{}
	a := NewArena(1000, pub)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = a.AddPlayer("123456", "p", nil)
		}()
	}
	wg.Wait()

	for i, snap := range pub.snaps {
		if len(snap.Players) != i+1 {
			t.Fatalf("snapshot %d has %d players, want %d", i, len(snap.Players), i+1)
		}
	}
	seen := map[int64]bool{}
	for _, p := range pub.snaps[len(pub.snaps)-1].Players {
		if seen[p.ID] {
			t.Fatalf("duplicate player id %d", p.ID)
		}
		seen[p.ID] = true
	}
}
