package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// MinPasswordBytes is the shortest plaintext accepted by [Argon2.Hash].
	MinPasswordBytes = 8

	algorithmID = "argon2id"
	dummySecret = "authcore-dummy-password"
)

var (
	// ErrPasswordTooShort is returned by Hash for plaintexts below MinPasswordBytes.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrInvalidHash is returned when a stored hash is not a well-formed argon2id PHC string.
	ErrInvalidHash = errors.New("invalid argon2id hash")
)

// Config is the argon2id cost profile.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the production cost profile: 19 MiB, two passes,
// one lane, 16-byte salt and 32-byte key.
func DefaultConfig() Config {
	return Config{
		Memory:      19456,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes and verifies passwords with argon2id.
//
// A hash of a fixed dummy secret is computed once at construction so that
// [Argon2.VerifyDummy] costs the same as a real verification.
type Argon2 struct {
	config Config
	dummy  string
}

// NewArgon2 validates cfg and precomputes the dummy hash.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	a := &Argon2{config: cfg}
	dummy, err := a.Hash(dummySecret)
	if err != nil {
		return nil, fmt.Errorf("password: dummy hash: %w", err)
	}
	a.dummy = dummy
	return a, nil
}

// Hash derives a fresh salted argon2id hash. Plaintext bytes are used
// exactly as given, with no Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < MinPasswordBytes {
		return "", ErrPasswordTooShort
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("password: salt entropy: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return encodePHC(phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        salt,
		key:         key,
	}), nil
}

// Verify reports whether password matches encodedHash. The comparison is
// constant-time. Malformed hashes return [ErrInvalidHash].
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// VerifyDummy runs a full verification against the precomputed dummy hash
// and discards the result. Call it when the account does not exist so the
// response time does not reveal that fact.
func (a *Argon2) VerifyDummy(password string) {
	_, _ = a.Verify(password, a.dummy)
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the current profile.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	return a.config.Memory > p.memory ||
		a.config.Time > p.time ||
		a.config.Parallelism > p.parallelism ||
		a.config.KeyLength != uint32(len(p.key)), nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func encodePHC(p phc) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.StdEncoding.EncodeToString(p.salt),
		base64.StdEncoding.EncodeToString(p.key),
	)
}

func decodePHC(encoded string) (phc, error) {
	var p phc

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != algorithmID {
		return p, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, fmt.Errorf("%w: version", ErrInvalidHash)
	}

	var parallelism uint32
	if n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &parallelism); err != nil || n != 3 {
		return p, fmt.Errorf("%w: parameters", ErrInvalidHash)
	}
	if fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, parallelism) != fields[3] {
		return p, fmt.Errorf("%w: parameters", ErrInvalidHash)
	}
	if p.memory < minMemoryKB || p.time < minTimeCost || parallelism < uint32(minParallelism) || parallelism > 255 {
		return p, fmt.Errorf("%w: parameters out of range", ErrInvalidHash)
	}
	p.parallelism = uint8(parallelism)

	var err error
	if p.salt, err = base64.StdEncoding.DecodeString(fields[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return p, fmt.Errorf("%w: salt", ErrInvalidHash)
	}
	if p.key, err = base64.StdEncoding.DecodeString(fields[5]); err != nil || len(p.key) == 0 {
		return p, fmt.Errorf("%w: key", ErrInvalidHash)
	}

	return p, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case cfg.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	}
	return nil
}
