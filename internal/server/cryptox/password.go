// Package cryptox implements the stored-password scheme: a salted SHA-256
// digest encoded as "hash.salt". Both halves are fixed-alphabet hex, so
// the "." delimiter is unambiguous.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/worldkeeper/internal/common"
)

const saltSize = 16

var ErrMalformedRecord = errors.New("malformed password record")

// hashWithSalt digests the plaintext concatenated with the hex salt.
func hashWithSalt(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// EncodePassword hashes password with a fresh random salt and returns the
// storable "hash.salt" record.
func EncodePassword(password string) (string, error) {
	salt, err := common.MakeRandHexString(saltSize)
	if err != nil {
		return "", fmt.Errorf("salt generation: %w", err)
	}
	return hashWithSalt(password, salt) + "." + salt, nil
}

// VerifyPassword re-derives the digest for candidate using the salt stored
// in record and compares it in constant time. A record that does not parse
// yields ErrMalformedRecord, never a silent mismatch.
func VerifyPassword(record, candidate string) (bool, error) {
	hash, salt, ok := strings.Cut(record, ".")
	if !ok {
		return false, ErrMalformedRecord
	}
	if _, err := hex.DecodeString(salt); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	derived := hashWithSalt(candidate, salt)
	return subtle.ConstantTimeCompare([]byte(hash), []byte(derived)) == 1, nil
}
