package live

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"chip-ledger/internal/tally"
)

var (
	ErrPlayerNotFound = errors.New("player_not_found")
	ErrRoomClosed     = errors.New("room_closed")
	ErrInvalidPatch   = errors.New("invalid_patch")
)

type Player struct {
	ID       int64     `json:"id"`
	Nickname string    `json:"nickname"`
	Hands    int64     `json:"hands"`
	Chips    *int64    `json:"chips"`
	IsAdmin  bool      `json:"isAdmin"`
	UserID   *string   `json:"userId,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

func (p Player) Holding() tally.Holding {
	return tally.Holding{Hands: p.Hands, Chips: p.Chips}
}

// Snapshot is the roster plus derived stats as subscribers see it.
type Snapshot struct {
	RoomID       string      `json:"roomId"`
	ChipsPerHand int64       `json:"chipsPerHand"`
	Players      []Player    `json:"players"`
	Stats        tally.Stats `json:"stats"`
}

// OptionalChips tells "field absent" apart from an explicit null.
type OptionalChips struct {
	Set   bool
	Value *int64
}

func SetChips(v int64) OptionalChips { return OptionalChips{Set: true, Value: &v} }

func ClearChips() OptionalChips { return OptionalChips{Set: true} }

func (o *OptionalChips) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// PlayerPatch lists the only fields a client may change on a player.
// Identity and admin fields are deliberately absent.
type PlayerPatch struct {
	Nickname *string       `json:"nickname"`
	Hands    *int64        `json:"hands"`
	Chips    OptionalChips `json:"chips"`
}

// Publisher receives every snapshot produced by a mutation. It is called
// with the arena lock held and must not block.
type Publisher interface {
	PublishState(roomID string, snap Snapshot)
}

type nopPublisher struct{}

func (nopPublisher) PublishState(string, Snapshot) {}
