package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTRoundTrip(t *testing.T) {
	token, exp, err := GenerateJWT("secret", "ingest", "writer", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	if time.Until(exp) <= 59*time.Minute {
		t.Errorf("unexpected expiry %v", exp)
	}

	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.Subject != "ingest" || claims.Role != "writer" {
		t.Errorf("got subject=%q role=%q", claims.Subject, claims.Role)
	}
}

func TestParseJWTRejects(t *testing.T) {
	valid, _, _ := GenerateJWT("secret", "ui", "reader", time.Hour)
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "reader",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ui",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredSigned, _ := expired.SignedString([]byte("secret"))

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	foreignSigned, _ := foreign.SignedString([]byte("secret"))

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noSubjectSigned, _ := noSubject.SignedString([]byte("secret"))

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", valid},
		{"garbage", "secret", "not.a.token"},
		{"foreign issuer", "secret", foreignSigned},
		{"no subject", "secret", noSubjectSigned},
		{"expired", "secret", expiredSigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJWT(tt.secret, tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCheckSecret(t *testing.T) {
	hash, err := HashSecret("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckSecret(hash, "s3cret") {
		t.Error("matching secret rejected")
	}
	if CheckSecret(hash, "wrong") {
		t.Error("wrong secret accepted")
	}
	if CheckSecret("", "s3cret") {
		t.Error("empty hash accepted")
	}
}
