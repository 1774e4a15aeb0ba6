package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParseToken(t *testing.T) {
	tm := NewTokenManager("test-secret", 24)

	token, err := tm.GenerateToken(123)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("Generated token is empty")
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.UserID != 123 {
		t.Errorf("Expected UserID 123, got %d", claims.UserID)
	}
	if claims.ExpiresAt == nil {
		t.Error("ExpiresAt should be set")
	}

	userID, err := tm.VerifyToken(token)
	if err != nil || userID != 123 {
		t.Errorf("VerifyToken = (%d, %v), want (123, nil)", userID, err)
	}
}

func TestParseTokenErrors(t *testing.T) {
	tm := NewTokenManager("test-secret", 1)

	expired := NewTokenManager("test-secret", 1)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, _ := expired.GenerateToken(1)

	future := NewTokenManager("test-secret", 1)
	future.now = func() time.Time { return time.Now().Add(30 * time.Minute) }
	futureToken, _ := future.GenerateToken(1)

	otherSecret, _ := NewTokenManager("other-secret", 1).GenerateToken(1)
	zeroUser, _ := tm.GenerateToken(0)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: 5})
	noExpToken, _ := noExp.SignedString([]byte("test-secret"))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID: 5,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noneToken, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expiredToken, ErrExpiredToken},
		{"not yet valid", futureToken, ErrTokenNotYetValid},
		{"wrong secret", otherSecret, ErrInvalidToken},
		{"zero user id", zeroUser, ErrInvalidToken},
		{"missing exp", noExpToken, ErrInvalidToken},
		{"alg none", noneToken, ErrInvalidToken},
		{"garbage", "not-a-token", ErrInvalidToken},
		{"empty", "", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.ParseToken(tt.token)
			if err != tt.want {
				t.Errorf("ParseToken() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		url    string
		want   string
	}{
		{"bearer header", "Bearer abc", "/ws", "abc"},
		{"lowercase scheme", "bearer abc", "/ws", "abc"},
		{"query fallback", "", "/ws?token=xyz", "xyz"},
		{"header wins", "Bearer abc", "/ws?token=xyz", "abc"},
		{"basic scheme ignored", "Basic abc", "/ws", ""},
		{"missing", "", "/ws", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := ExtractToken(r); got != tt.want {
				t.Errorf("ExtractToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
