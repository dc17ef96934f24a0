package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chip-ledger/internal/live"
	"chip-ledger/internal/registry"
	"chip-ledger/internal/store"
	"chip-ledger/internal/testutil"

	"github.com/shopspring/decimal"
)

type captureBroadcaster struct {
	mu       sync.Mutex
	payloads []any
}

func (b *captureBroadcaster) PublishSettled(_ string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
}

func (b *captureBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads)
}

type fixture struct {
	store *store.SQLite
	reg   *registry.Registry
	arena *live.Arena
	bc    *captureBroadcaster
	eng   *Engine
	room  *registry.Room
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := testutil.OpenSQLiteStore(t)
	reg := registry.New(st, 50)
	room, err := reg.Create(context.Background(), registry.RoomConfig{
		ChipsPerHand: 1000, BigBlind: 20, CostPerHand: decimal.NewFromInt(5), Currency: "CAD",
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	arena := live.NewArena(1000, nil)
	bc := &captureBroadcaster{}
	return &fixture{store: st, reg: reg, arena: arena, bc: bc, eng: NewEngine(reg, arena, st, bc), room: room}
}

func (f *fixture) join(t *testing.T, nickname string, userID *string, hands int64, chips *int64) live.Player {
	t.Helper()
	p, err := f.arena.AddPlayer(f.room.ID, nickname, userID)
	if err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	patch := live.PlayerPatch{Hands: &hands}
	if chips != nil {
		patch.Chips = live.SetChips(*chips)
	}
	p, err = f.arena.UpdatePlayer(f.room.ID, p.ID, patch)
	if err != nil {
		t.Fatalf("UpdatePlayer: %v", err)
	}
	return p
}

func i64(v int64) *int64 { return &v }
func str(s string) *string { return &s }

func TestSettleScenario(t *testing.T) {
	f := newFixture(t)
	f.join(t, "Ann", str("u1"), 3, i64(3200))
	f.join(t, "Bo", str("u2"), 2, i64(1500))
	f.join(t, "Cy", str("u3"), 1, nil)
	f.join(t, "Di", nil, 1, i64(1000))

	out, err := f.eng.Settle(context.Background(), f.room.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	rows := out.Results.Players
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[0].Nickname != "Ann" || *rows[0].Balance != 200 || rows[0].Profit.StringFixed(2) != "1.00" {
		t.Fatalf("winner row = %+v", rows[0])
	}
	if rows[1].Nickname != "Bo" || rows[1].Profit.StringFixed(2) != "-2.50" {
		t.Fatalf("loser row = %+v", rows[1])
	}
	if rows[2].Nickname != "Di" || !rows[2].Profit.IsZero() {
		t.Fatalf("zero row = %+v", rows[2])
	}
	if rows[3].Nickname != "Cy" || rows[3].Balance != nil || rows[3].Profit != nil {
		t.Fatalf("null row = %+v", rows[3])
	}
	if out.Results.RoomInfo.Currency != "CAD" || out.Results.RoomInfo.ChipsPerHand != 1000 {
		t.Fatalf("room info = %+v", out.Results.RoomInfo)
	}

	// Cy has no chips, Di has no user id.
	n, err := f.store.CountRoomResults(context.Background(), f.room.ID)
	if err != nil || n != 2 {
		t.Fatalf("persisted = %d, %v, want 2", n, err)
	}
	if f.bc.count() != 1 {
		t.Fatalf("broadcasts = %d, want 1", f.bc.count())
	}
	if _, ok := f.arena.Peek(f.room.ID); ok {
		t.Fatal("live state not discarded")
	}
	if _, err := f.reg.GetSettled(context.Background(), f.room.ID); err != nil {
		t.Fatalf("GetSettled: %v", err)
	}
}

func TestSettleTwiceFails(t *testing.T) {
	f := newFixture(t)
	f.join(t, "Ann", str("u1"), 1, i64(1000))
	if _, err := f.eng.Settle(context.Background(), f.room.ID); err != nil {
		t.Fatalf("first Settle: %v", err)
	}
	if _, err := f.eng.Settle(context.Background(), f.room.ID); !errors.Is(err, registry.ErrRoomNotFound) {
		t.Fatalf("second Settle error = %v, want ErrRoomNotFound", err)
	}
	n, _ := f.store.CountRoomResults(context.Background(), f.room.ID)
	if n != 1 || f.bc.count() != 1 {
		t.Fatalf("records = %d broadcasts = %d, want 1 and 1", n, f.bc.count())
	}
}

func TestConcurrentSettleSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	f.join(t, "Ann", str("u1"), 3, i64(3200))
	f.join(t, "Bo", str("u2"), 2, i64(1500))

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		notFound  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.eng.Settle(context.Background(), f.room.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, registry.ErrRoomNotFound):
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || notFound != callers-1 {
		t.Fatalf("successes = %d notFound = %d", successes, notFound)
	}
	n, _ := f.store.CountRoomResults(context.Background(), f.room.ID)
	if n != 2 {
		t.Fatalf("records = %d, want 2", n)
	}
	if f.bc.count() != 1 {
		t.Fatalf("broadcasts = %d, want 1", f.bc.count())
	}
}

func TestSettledRoomRejectsMutations(t *testing.T) {
	f := newFixture(t)
	p := f.join(t, "Ann", str("u1"), 1, i64(1000))
	if _, err := f.eng.Settle(context.Background(), f.room.ID); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if err := f.reg.ValidateOpen(context.Background(), f.room.ID); !errors.Is(err, registry.ErrRoomNotFound) {
		t.Fatalf("ValidateOpen after settle = %v", err)
	}
	// The live entry is gone; a stray update finds no player.
	if _, err := f.arena.UpdatePlayer(f.room.ID, p.ID, live.PlayerPatch{}); !errors.Is(err, live.ErrPlayerNotFound) {
		t.Fatalf("UpdatePlayer after settle = %v", err)
	}
}

func TestSettleEmptyRoom(t *testing.T) {
	f := newFixture(t)
	out, err := f.eng.Settle(context.Background(), f.room.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if len(out.Results.Players) != 0 {
		t.Fatalf("players = %d, want 0", len(out.Results.Players))
	}
}

type flakyWriter struct {
	ResultWriter
	failUser string
}

func (w flakyWriter) InsertResult(ctx context.Context, rec store.ResultRecord) (int64, error) {
	if rec.UserID == w.failUser {
		return 0, errors.New("disk full")
	}
	return w.ResultWriter.InsertResult(ctx, rec)
}

func TestSettleToleratesPerPlayerPersistFailure(t *testing.T) {
	f := newFixture(t)
	f.eng = NewEngine(f.reg, f.arena, flakyWriter{ResultWriter: f.store, failUser: "u1"}, f.bc)
	f.join(t, "Ann", str("u1"), 1, i64(1000))
	f.join(t, "Bo", str("u2"), 1, i64(1000))

	if _, err := f.eng.Settle(context.Background(), f.room.ID); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	n, _ := f.store.CountRoomResults(context.Background(), f.room.ID)
	if n != 1 {
		t.Fatalf("records = %d, want 1", n)
	}
	if _, err := f.reg.GetSettled(context.Background(), f.room.ID); err != nil {
		t.Fatalf("room not settled: %v", err)
	}
}

type failingRegistry struct {
	Registry
}

func (failingRegistry) Settle(context.Context, string) (bool, error) {
	return false, errors.New("connection reset")
}

func TestSettleAbortsWhenFlipFails(t *testing.T) {
	f := newFixture(t)
	f.eng = NewEngine(failingRegistry{Registry: f.reg}, f.arena, f.store, f.bc)
	f.join(t, "Ann", str("u1"), 1, i64(1200))

	if _, err := f.eng.Settle(context.Background(), f.room.ID); err == nil {
		t.Fatal("Settle succeeded, want error")
	}
	n, _ := f.store.CountRoomResults(context.Background(), f.room.ID)
	if n != 0 {
		t.Fatalf("records after rollback = %d, want 0", n)
	}
	if f.bc.count() != 0 {
		t.Fatalf("broadcasts = %d, want 0", f.bc.count())
	}
	if err := f.reg.ValidateOpen(context.Background(), f.room.ID); err != nil {
		t.Fatalf("room should remain open: %v", err)
	}
	if _, err := f.arena.AddPlayer(f.room.ID, "Bo", nil); err != nil {
		t.Fatalf("room should accept mutations after failed settle: %v", err)
	}
}

// cancelingWriter cancels the request context once the first record is written.
type cancelingWriter struct {
	ResultWriter
	cancel context.CancelFunc
}

func (w cancelingWriter) InsertResult(ctx context.Context, rec store.ResultRecord) (int64, error) {
	id, err := w.ResultWriter.InsertResult(ctx, rec)
	w.cancel()
	return id, err
}

func TestSettleCompletesAfterRequestCanceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.eng = NewEngine(f.reg, f.arena, cancelingWriter{ResultWriter: f.store, cancel: cancel}, f.bc)
	f.join(t, "Ann", str("u1"), 1, i64(1500))
	f.join(t, "Bo", str("u2"), 1, i64(500))

	if _, err := f.eng.Settle(ctx, f.room.ID); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("request context was not canceled during settle")
	}
	if _, err := f.reg.GetSettled(context.Background(), f.room.ID); err != nil {
		t.Fatalf("room not settled: %v", err)
	}
	if _, err := f.eng.Settle(context.Background(), f.room.ID); !errors.Is(err, registry.ErrRoomNotFound) {
		t.Fatalf("second Settle error = %v, want not found", err)
	}
	n, err := f.store.CountRoomResults(context.Background(), f.room.ID)
	if err != nil || n != 2 {
		t.Fatalf("records = %d, %v, want 2", n, err)
	}
	if f.bc.count() != 1 {
		t.Fatalf("broadcasts = %d, want 1", f.bc.count())
	}
}

func TestComputeRowsDeterministic(t *testing.T) {
	room := registry.Room{ChipsPerHand: 1000, CostPerHand: decimal.RequireFromString("2.5")}
	players := []live.Player{
		{ID: 1, Nickname: "a", Hands: 2, Chips: i64(2600)},
		{ID: 2, Nickname: "b", Hands: 1, Chips: nil},
		{ID: 3, Nickname: "c", Hands: 1, Chips: i64(700)},
	}
	first := ComputeRows(players, room)
	second := ComputeRows(players, room)
	for i := range first {
		a, b := first[i], second[i]
		if a.ID != b.ID {
			t.Fatalf("order differs at %d: %d vs %d", i, a.ID, b.ID)
		}
		if (a.Profit == nil) != (b.Profit == nil) || (a.Profit != nil && !a.Profit.Equal(*b.Profit)) {
			t.Fatalf("profit differs at %d", i)
		}
	}
	if first[0].Profit.StringFixed(2) != "1.50" || first[1].Profit.StringFixed(2) != "-0.75" || first[2].Profit != nil {
		t.Fatalf("rows = %+v", first)
	}
}
