package user

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/classdrive/core"
)

var (
	HashCost = bcrypt.DefaultCost // lowered in tests

	// unsalted sha256 hex digests written by earlier deployments
	legacyHashRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// HashPassword returns the bcrypt hash of pwd.
func HashPassword(pwd string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), HashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword returns core.ErrAuthFailure unless pwd matches hash.
func CheckPassword(hash, pwd string) error {
	if isLegacyHash(hash) {
		sum := sha256.Sum256([]byte(pwd))
		if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(hash)) == 1 {
			return nil
		}
		return core.ErrAuthFailure
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pwd)); err != nil {
		return core.ErrAuthFailure
	}
	return nil
}

func isLegacyHash(hash string) bool {
	return legacyHashRegex.MatchString(hash)
}
