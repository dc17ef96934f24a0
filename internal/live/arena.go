package live

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"chip-ledger/internal/tally"
)

type roomState struct {
	chipsPerHand int64
	players      []Player
	settling     bool
	// configured is set once the denomination came from the registry or an admin.
	configured bool
}

// Arena is the in-memory game state of every open room. Each method runs
// to completion under one lock, publish included, so snapshots of a room
// reach the publisher in mutation order.
type Arena struct {
	mu         sync.Mutex
	rooms      map[string]*roomState
	settled    map[string]struct{}
	defaultCPH int64
	pub        Publisher
	now        func() time.Time
	lastID     int64
}

type Option func(*Arena)

func WithClock(now func() time.Time) Option {
	return func(a *Arena) { a.now = now }
}

func NewArena(defaultChipsPerHand int64, pub Publisher, opts ...Option) *Arena {
	if pub == nil {
		pub = nopPublisher{}
	}
	a := &Arena{
		rooms:      make(map[string]*roomState),
		settled:    make(map[string]struct{}),
		defaultCPH: defaultChipsPerHand,
		pub:        pub,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetPublisher swaps the publisher; used when the hub is built after the arena.
func (a *Arena) SetPublisher(pub Publisher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if pub == nil {
		pub = nopPublisher{}
	}
	a.pub = pub
}

// entry returns the room's state, creating it on first use. Rooms discarded
// after settlement are never recreated.
func (a *Arena) entry(roomID string, defaultCPH int64) (*roomState, error) {
	if _, done := a.settled[roomID]; done {
		return nil, ErrRoomClosed
	}
	st, ok := a.rooms[roomID]
	if !ok {
		if defaultCPH <= 0 {
			defaultCPH = a.defaultCPH
		}
		st = &roomState{chipsPerHand: defaultCPH}
		a.rooms[roomID] = st
	}
	return st, nil
}

func (a *Arena) openEntry(roomID string) (*roomState, error) {
	st, err := a.entry(roomID, 0)
	if err != nil {
		return nil, err
	}
	if st.settling {
		return nil, ErrRoomClosed
	}
	return st, nil
}

func (a *Arena) snapshot(roomID string, st *roomState) Snapshot {
	players := make([]Player, len(st.players))
	copy(players, st.players)
	holdings := make([]tally.Holding, len(players))
	for i, p := range players {
		holdings[i] = p.Holding()
	}
	return Snapshot{
		RoomID:       roomID,
		ChipsPerHand: st.chipsPerHand,
		Players:      players,
		Stats:        tally.ComputeStats(holdings, st.chipsPerHand),
	}
}

func (a *Arena) publish(roomID string, st *roomState) {
	a.pub.PublishState(roomID, a.snapshot(roomID, st))
}

func (a *Arena) nextPlayerID() int64 {
	id := a.now().UnixMilli()
	if id <= a.lastID {
		id = a.lastID + 1
	}
	a.lastID = id
	return id
}

// Get returns the room snapshot, creating the entry with defaultChipsPerHand if needed.
func (a *Arena) Get(roomID string, defaultChipsPerHand int64) (Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, err := a.entry(roomID, defaultChipsPerHand)
	if err != nil {
		return Snapshot{}, err
	}
	return a.snapshot(roomID, st), nil
}

// Open starts a fresh, configured entry for a newly created room. Any
// settled marker left by an earlier room with the same id is cleared.
func (a *Arena) Open(roomID string, chipsPerHand int64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.settled, roomID)
	if chipsPerHand <= 0 {
		chipsPerHand = a.defaultCPH
	}
	st := &roomState{chipsPerHand: chipsPerHand, configured: true}
	a.rooms[roomID] = st
	return a.snapshot(roomID, st)
}

// Peek returns the snapshot without creating an entry.
func (a *Arena) Peek(roomID string) (Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	return a.snapshot(roomID, st), true
}

// Configure replaces the default denomination of a lazily created entry with
// the registry's value. Entries already configured, by the registry or by an
// admin, are left alone. Publishes only when the value changes. Discarded
// rooms return ErrRoomClosed.
func (a *Arena) Configure(roomID string, chipsPerHand int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, err := a.entry(roomID, chipsPerHand)
	if err != nil {
		return err
	}
	if chipsPerHand <= 0 || st.settling || st.configured {
		return nil
	}
	st.configured = true
	if st.chipsPerHand == chipsPerHand {
		return nil
	}
	st.chipsPerHand = chipsPerHand
	a.publish(roomID, st)
	return nil
}

func (a *Arena) AddPlayer(roomID, nickname string, userID *string) (Player, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, err := a.openEntry(roomID)
	if err != nil {
		return Player{}, err
	}
	p := Player{
		ID:       a.nextPlayerID(),
		Nickname: nickname,
		IsAdmin:  len(st.players) == 0,
		JoinedAt: a.now().UTC(),
	}
	if userID != nil && strings.TrimSpace(*userID) != "" {
		uid := *userID
		p.UserID = &uid
	}
	st.players = append(st.players, p)
	a.publish(roomID, st)
	return p, nil
}

func (a *Arena) UpdatePlayer(roomID string, playerID int64, patch PlayerPatch) (Player, error) {
	patch, err := normalizePatch(patch)
	if err != nil {
		return Player{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	st, err := a.openEntry(roomID)
	if err != nil {
		return Player{}, err
	}
	idx := indexOf(st.players, playerID)
	if idx < 0 {
		return Player{}, ErrPlayerNotFound
	}
	p := st.players[idx]
	if patch.Nickname != nil {
		p.Nickname = *patch.Nickname
	}
	if patch.Hands != nil {
		p.Hands = *patch.Hands
	}
	if patch.Chips.Set {
		if patch.Chips.Value == nil {
			p.Chips = nil
		} else {
			v := *patch.Chips.Value
			p.Chips = &v
		}
	}
	st.players[idx] = p
	a.publish(roomID, st)
	return p, nil
}

func normalizePatch(patch PlayerPatch) (PlayerPatch, error) {
	if patch.Nickname != nil {
		name, err := CleanNickname(*patch.Nickname)
		if err != nil {
			return patch, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
		}
		patch.Nickname = &name
	}
	if patch.Hands != nil && *patch.Hands < 0 {
		return patch, ErrInvalidPatch
	}
	if patch.Chips.Value != nil && *patch.Chips.Value < 0 {
		return patch, ErrInvalidPatch
	}
	return patch, nil
}

// RemovePlayer is idempotent. When the admin leaves, the earliest remaining
// player becomes admin.
func (a *Arena) RemovePlayer(roomID string, playerID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, err := a.openEntry(roomID)
	if err != nil {
		return err
	}
	if idx := indexOf(st.players, playerID); idx >= 0 {
		wasAdmin := st.players[idx].IsAdmin
		st.players = append(st.players[:idx:idx], st.players[idx+1:]...)
		if wasAdmin && len(st.players) > 0 {
			st.players[0].IsAdmin = true
		}
	}
	a.publish(roomID, st)
	return nil
}

// ResetCounters zeroes hands and chips for everyone; chips become 0, not null.
func (a *Arena) ResetCounters(roomID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, err := a.openEntry(roomID)
	if err != nil {
		return err
	}
	for i := range st.players {
		zero := int64(0)
		st.players[i].Hands = 0
		st.players[i].Chips = &zero
	}
	a.publish(roomID, st)
	return nil
}

func (a *Arena) SetChipDenomination(roomID string, chipsPerHand int64) error {
	if chipsPerHand <= 0 {
		return ErrInvalidPatch
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	st, err := a.openEntry(roomID)
	if err != nil {
		return err
	}
	st.chipsPerHand = chipsPerHand
	st.configured = true
	a.publish(roomID, st)
	return nil
}

// Freeze marks the room as settling and returns a copy of its roster.
// Only the first caller succeeds; later mutations get ErrRoomClosed.
func (a *Arena) Freeze(roomID string) ([]Player, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, err := a.openEntry(roomID)
	if err != nil {
		return nil, err
	}
	st.settling = true
	players := make([]Player, len(st.players))
	copy(players, st.players)
	return players, nil
}

// Thaw reopens a frozen room after a failed settlement.
func (a *Arena) Thaw(roomID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.rooms[roomID]; ok {
		st.settling = false
	}
}

// Discard drops the room and marks it settled. The final event is published
// through fn while the lock is held, so no state update can slip in after it.
// Later lookups of the id get ErrRoomClosed instead of a fresh entry.
func (a *Arena) Discard(roomID string, fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if fn != nil {
		fn()
	}
	delete(a.rooms, roomID)
	a.settled[roomID] = struct{}{}
}

// Catchup runs fn with the current snapshot under the arena lock, letting a
// new subscriber register without racing concurrent publishes.
func (a *Arena) Catchup(roomID string, fn func(Snapshot)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, err := a.openEntry(roomID)
	if err != nil {
		return err
	}
	fn(a.snapshot(roomID, st))
	return nil
}

// Rooms reports how many rooms hold live state.
func (a *Arena) Rooms() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rooms)
}

func indexOf(players []Player, id int64) int {
	for i, p := range players {
		if p.ID == id {
			return i
		}
	}
	return -1
}
