package records

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRecordNotFound     = errors.New("record_not_found")
	ErrRecordNotDeletable = errors.New("record_not_deletable")
)
