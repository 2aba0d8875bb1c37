package utils

import (
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidAddress is returned when a string is not a 20-byte hex address.
var ErrInvalidAddress = errors.New("invalid address")

// NormalizeWallet validates a 0x-prefixed 20-byte address and returns it lowercased.
// Leaderboard rows are keyed by this form.
func NormalizeWallet(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if len(addr) != 42 || !(strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X")) {
		return "", ErrInvalidAddress
	}
	lower := "0x" + strings.ToLower(addr[2:])
	if _, err := hex.DecodeString(lower[2:]); err != nil {
		return "", ErrInvalidAddress
	}
	return lower, nil
}
