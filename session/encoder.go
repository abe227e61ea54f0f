package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const sessionFormatVersion = 1

// ErrCorruptSession is returned when a stored session blob cannot be decoded.
var ErrCorruptSession = errors.New("session blob corrupt")

// Encode serializes a session as
// version(1) | len(userID)(1) | userID | createdAt(8, unix ms) | expiresAt(8, unix ms).
// The session id is the Redis key and is not repeated in the blob.
func Encode(s *Session) ([]byte, error) {
	if len(s.UserID) == 0 || len(s.UserID) > 255 {
		return nil, errors.New("session user id must be 1..255 bytes")
	}

	var buf bytes.Buffer
	buf.Grow(2 + len(s.UserID) + 16)

	buf.WriteByte(sessionFormatVersion)
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(s.CreatedAt.UnixMilli()))
	buf.Write(ts[:])
	binary.BigEndian.PutUint64(ts[:], uint64(s.ExpiresAt.UnixMilli()))
	buf.Write(ts[:])

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode]. The returned session has no ID.
func Decode(data []byte) (*Session, error) {
	if len(data) < 2 || data[0] != sessionFormatVersion {
		return nil, ErrCorruptSession
	}

	userLen := int(data[1])
	if userLen == 0 || len(data) != 2+userLen+16 {
		return nil, ErrCorruptSession
	}

	rest := data[2+userLen:]
	return &Session{
		UserID:    string(data[2 : 2+userLen]),
		CreatedAt: time.UnixMilli(int64(binary.BigEndian.Uint64(rest[:8]))),
		ExpiresAt: time.UnixMilli(int64(binary.BigEndian.Uint64(rest[8:]))),
	}, nil
}
