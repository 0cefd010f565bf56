package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	tokenKeySalt = "classdrive/password-reset"
	NowFunc      = time.Now // mockable

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// tokenGenerator makes password reset tokens of the form "<issued-at base36>-<signature>".
// The signature covers the account's current password hash, so a token dies with the password it was issued for.
type tokenGenerator struct {
	secret  []byte
	timeout time.Duration
}

func (g tokenGenerator) makeToken(username, pwdHash string) string {
	return g.tokenAt(username, pwdHash, NowFunc().Unix())
}

func (g tokenGenerator) verifyToken(username, pwdHash, token string) error {
	issued, sig, ok := strings.Cut(token, "-")
	if !ok || issued == "" || sig == "" {
		return errInvalidToken
	}
	ts, err := strconv.ParseInt(issued, 36, 64)
	if err != nil {
		return errInvalidToken
	}

	want := g.tokenAt(username, pwdHash, ts)
	if !hmac.Equal([]byte(want), []byte(token)) {
		return errInvalidToken
	}

	if NowFunc().Sub(time.Unix(ts, 0)) > g.timeout {
		return errTokenExpired
	}
	return nil
}

func (g tokenGenerator) tokenAt(username, pwdHash string, ts int64) string {
	issued := strconv.FormatInt(ts, 36)
	key := sha256.Sum256([]byte(tokenKeySalt + string(g.secret)))
	mac := hmac.New(sha256.New, key[:])
	// NUL separators keep ("ab", "c") and ("a", "bc") apart
	mac.Write([]byte(username + "\x00" + pwdHash + "\x00" + issued))
	return issued + "-" + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
