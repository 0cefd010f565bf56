package user

import (
	"testing"
	"time"
)

func TestMakeVerifyToken(t *testing.T) {
	gen := tokenGenerator{secret: []byte("secret"), timeout: 2 * time.Hour}
	otherGen := tokenGenerator{secret: []byte("other"), timeout: 2 * time.Hour}

	hash, err := HashPassword("pwd")
	if err != nil {
		t.Fatalf("HashPassword() failed: %v", err)
	}
	newHash, err := HashPassword("new pwd")
	if err != nil {
		t.Fatalf("HashPassword() failed: %v", err)
	}

	validToken := gen.makeToken("amy", hash)

	NowFunc = func() time.Time { return time.Now().Add(-gen.timeout - time.Minute) }
	expiredToken := gen.makeToken("amy", hash)
	NowFunc = time.Now // reset

	tests := []struct {
		name     string
		gen      tokenGenerator
		username string
		pwdHash  string
		token    string
		wantErr  error
	}{
		{name: "no token", gen: gen, username: "amy", pwdHash: hash, wantErr: errInvalidToken},
		{name: "no separator", gen: gen, username: "amy", pwdHash: hash, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "empty signature", gen: gen, username: "amy", pwdHash: hash, token: "qz3k1-", wantErr: errInvalidToken},
		{name: "invalid timestamp", gen: gen, username: "amy", pwdHash: hash, token: "not_b36-sig", wantErr: errInvalidToken},
		{name: "forged signature", gen: gen, username: "amy", pwdHash: hash, token: "qz3k1-sigsig", wantErr: errInvalidToken},
		{name: "other user", gen: gen, username: "rory", pwdHash: hash, token: validToken, wantErr: errInvalidToken},
		{name: "password changed", gen: gen, username: "amy", pwdHash: newHash, token: validToken, wantErr: errInvalidToken},
		{name: "other secret", gen: otherGen, username: "amy", pwdHash: hash, token: validToken, wantErr: errInvalidToken},
		{name: "expired token", gen: gen, username: "amy", pwdHash: hash, token: expiredToken, wantErr: errTokenExpired},
		{name: "valid token", gen: gen, username: "amy", pwdHash: hash, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.gen.verifyToken(tt.username, tt.pwdHash, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
