package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"paydesk/cmd/security/token"
)

// VerificationCodeLength is the number of digits in an email verification code.
const VerificationCodeLength = 6

var otpSpace = big.NewInt(1_000_000)

// NewVerificationCode returns a uniformly random 6-digit numeric code
// (zero-padded). The plain code is sent to the user; only a hash is stored.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// HashVerificationCode returns the server-stored hash for a verification code.
// The user id is mixed in so equal codes for different users hash differently.
func HashVerificationCode(userID, code string) string {
	return token.HashSHA256Hex(userID + ":" + code)
}
