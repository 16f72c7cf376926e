package utils

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// OtpLength is the number of digits of a generated delivery OTP.
const OtpLength = 6

// GenerateOTP returns a random numeric code of OtpLength digits.
func GenerateOTP() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", OtpLength, n.Int64()), nil
}

// HashOTP returns the bcrypt hash stored in place of the plain OTP.
func HashOTP(otp string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(otp), cost)
	return string(b), err
}

// VerifyOTP reports whether otp matches hash exactly. A malformed hash is
// an error; a plain mismatch is not.
func VerifyOTP(hash, otp string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(otp))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}
