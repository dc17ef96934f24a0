package registry

import "errors"

var (
	ErrRoomNotFound        = errors.New("room_not_found")
	ErrSettledRoomNotFound = errors.New("settled_room_not_found")
	ErrExhaustedIDSpace    = errors.New("room_id_exhausted")
	ErrInvalidConfig       = errors.New("invalid_room_config")
)

// ErrRoomClosed is reported for settled rooms and matches ErrRoomNotFound
// under errors.Is, so callers cannot tell the two apart.
var ErrRoomClosed = closedError{}

type closedError struct{}

func (closedError) Error() string { return "room_closed" }

func (closedError) Is(target error) bool { return target == ErrRoomNotFound }
