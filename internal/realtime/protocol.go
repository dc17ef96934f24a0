package realtime

import "encoding/json"

// Server -> client event kinds.
const (
	EventStateUpdate = "stateUpdate"
	EventRoomSettled = "roomSettled"
	EventError       = "error"
	EventPing        = "ping"
)

// Client -> server message types.
const (
	MsgJoinRoomChannel  = "joinRoomChannel"
	MsgLeaveRoomChannel = "leaveRoomChannel"
)

// Envelope is the JSON shape of every server frame.
type Envelope struct {
	Event  string `json:"event"`
	RoomID string `json:"roomId,omitempty"`
	Data   any    `json:"data"`
}

type ClientMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type ErrorData struct {
	Error string `json:"error"`
}

// Frame is an encoded envelope ready for any transport.
type Frame struct {
	Seq     uint64
	Event   string
	Payload []byte
}

func encodeFrame(seq uint64, env Envelope) (Frame, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Seq: seq, Event: env.Event, Payload: b}, nil
}
