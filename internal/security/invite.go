package security

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// inviteAlphabet matches the upper-case base36 codes handed out to congregations.
const inviteAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ErrInviteCodeLength is returned for a requested length outside 6..32.
var ErrInviteCodeLength = errors.New("invite code length must be between 6 and 32")

// GenerateInviteCode returns a random invite code of n characters drawn uniformly from inviteAlphabet.
// Uniqueness is not guaranteed here; the store enforces it and callers regenerate on collision.
func GenerateInviteCode(n int) (string, error) {
	if n < 6 || n > 32 {
		return "", ErrInviteCodeLength
	}
	max := big.NewInt(int64(len(inviteAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = inviteAlphabet[idx.Int64()]
	}
	return string(out), nil
}
