package live

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const MaxNicknameLen = 20

var (
	ErrNicknameRequired = errors.New("nickname_required")
	ErrNicknameTooLong  = errors.New("nickname_too_long")
)

// CleanNickname trims s and enforces 1..MaxNicknameLen characters.
func CleanNickname(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrNicknameRequired
	}
	if utf8.RuneCountInString(s) > MaxNicknameLen {
		return "", ErrNicknameTooLong
	}
	return s, nil
}
