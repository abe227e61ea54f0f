package internal

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/oklog/ulid/v2"
)

const (
	sessionIDSize  = 20
	resetTokenSize = 32
	otpLow         = 100000
	otpSpan        = 900000
)

// ErrInvalidSessionID is returned by [ParseSessionID] for malformed input.
var ErrInvalidSessionID = errors.New("invalid session id")

// SessionID is the random handle stored in the session cookie.
type SessionID [sessionIDSize]byte

// NewSessionID draws a session id from crypto/rand.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	if _, err := rand.Read(sid[:]); err != nil {
		return sid, fmt.Errorf("session id entropy: %w", err)
	}
	return sid, nil
}

func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID decodes the cookie form of a session id.
func ParseSessionID(raw string) (SessionID, error) {
	var sid SessionID

	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(b) != sessionIDSize {
		return sid, ErrInvalidSessionID
	}
	copy(sid[:], b)
	return sid, nil
}

// NewUserID returns a ULID carrying 80 random bits from crypto/rand.
// Non-monotonic entropy keeps ids minted in the same millisecond unlinkable.
func NewUserID() (string, error) {
	id, err := ulid.New(ulid.Now(), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("user id entropy: %w", err)
	}
	return id.String(), nil
}

// NewOTP returns a six-digit code drawn uniformly from [100000, 999999].
func NewOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", fmt.Errorf("otp entropy: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpLow), nil
}

// NewResetToken returns 32 random bytes as 64 lowercase hex characters.
func NewResetToken() (string, error) {
	var b [resetTokenSize]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("reset token entropy: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// ResetTokenLength is the encoded length of a reset token.
const ResetTokenLength = resetTokenSize * 2
