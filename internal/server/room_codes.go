package server

import (
	"errors"
	"math/rand/v2"
	"strings"
)

var ErrInvalidRoomCode = errors.New("INVALID_ROOM_CODE: Room code must be 4 letters A-Z")

const roomCodeLength = 4

func GenerateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = 'A' + byte(rand.IntN(26))
	}
	return string(code)
}

func ValidateRoomCode(code string) error {
	if len(code) != roomCodeLength {
		return ErrInvalidRoomCode
	}
	for _, ch := range strings.ToUpper(code) {
		if ch < 'A' || ch > 'Z' {
			return ErrInvalidRoomCode
		}
	}
	return nil
}

func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
