// Package credential verifies stored password hashes.
//
// Two formats are accepted. Legacy accounts store an unsalted hex SHA-256
// digest; current accounts store a bcrypt hash. The stored value's format
// picks the Verifier, and NeedsRehash tells callers when to upgrade a
// legacy hash after a successful login.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch is returned when a password does not match the stored hash.
var ErrMismatch = errors.New("credential: password does not match")

// Verifier checks a password against a stored hash of one format.
type Verifier interface {
	// Name identifies the hash format.
	Name() string

	// Hash produces a stored value for password.
	Hash(password string) (string, error)

	// Verify returns nil when password matches stored, ErrMismatch when it
	// does not, and any other error when stored is malformed.
	Verify(password, stored string) error
}

// LegacySHA256 is the unsalted hex SHA-256 format.
type LegacySHA256 struct{}

func (LegacySHA256) Name() string { return "sha256" }

func (LegacySHA256) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (l LegacySHA256) Verify(password, stored string) error {
	want, err := hex.DecodeString(stored)
	if err != nil || len(want) != sha256.Size {
		return errors.New("credential: malformed sha256 hash")
	}
	got := sha256.Sum256([]byte(password))
	if subtle.ConstantTimeCompare(got[:], want) != 1 {
		return ErrMismatch
	}
	return nil
}

// Bcrypt is the salted bcrypt format.
type Bcrypt struct {
	// Cost defaults to bcrypt.DefaultCost when zero.
	Cost int
}

func (Bcrypt) Name() string { return "bcrypt" }

func (b Bcrypt) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost())
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (Bcrypt) Verify(password, stored string) error {
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

func (b Bcrypt) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

// Current is the format new hashes are written in.
var Current Verifier = Bcrypt{}

// For picks the Verifier matching stored's format.
func For(stored string) Verifier {
	if isBcrypt(stored) {
		return Bcrypt{}
	}
	return LegacySHA256{}
}

// Verify checks password against stored using the matching format.
func Verify(password, stored string) error {
	return For(stored).Verify(password, stored)
}

// NeedsRehash reports whether stored should be replaced with a fresh
// Current hash: legacy digests always, bcrypt hashes below the current cost.
func NeedsRehash(stored string) bool {
	if !isBcrypt(stored) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(stored))
	if err != nil {
		return true
	}
	want := bcrypt.DefaultCost
	if b, ok := Current.(Bcrypt); ok {
		want = b.cost()
	}
	return cost < want
}

func isBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2")
}
