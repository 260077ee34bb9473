package security

import (
	"errors"
	"testing"
	"time"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("expected wrong password to fail")
	}
	if _, errEmpty := HashPassword("   "); !errors.Is(errEmpty, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", errEmpty)
	}
}

func TestGenerateRandomString(t *testing.T) {
	a, err := GenerateRandomString(32)
	if err != nil {
		t.Fatalf("random: %v", err)
	}
	b, _ := GenerateRandomString(32)
	if len(a) != 32 || a == b {
		t.Fatalf("expected distinct 32 char strings, got %q %q", a, b)
	}
	if _, errLen := GenerateRandomString(0); errLen == nil {
		t.Fatalf("expected invalid length error")
	}
}

func TestAdminTokenStages(t *testing.T) {
	const secret = "test-secret"
	pending, err := IssueAdminToken(secret, 7, "root", StageMFAPending, time.Hour)
	if err != nil {
		t.Fatalf("issue pending: %v", err)
	}
	if _, errFull := ParseAdminToken(secret, pending); !errors.Is(errFull, ErrWrongStage) {
		t.Fatalf("expected pending token to be rejected as full, got %v", errFull)
	}
	claims, err := ParseMFAPendingToken(secret, pending)
	if err != nil {
		t.Fatalf("parse pending: %v", err)
	}
	if claims.AdminID != 7 || claims.Username != "root" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl > MFAPendingExpiry {
		t.Fatalf("expected pending token capped at %s, got %s", MFAPendingExpiry, ttl)
	}

	full, err := IssueAdminToken(secret, 7, "root", StageFull, time.Hour)
	if err != nil {
		t.Fatalf("issue full: %v", err)
	}
	if _, errParse := ParseAdminToken(secret, full); errParse != nil {
		t.Fatalf("parse full: %v", errParse)
	}
	if _, errParse := ParseAdminToken("other-secret", full); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected signature failure, got %v", errParse)
	}
}

func TestUserTokenAudience(t *testing.T) {
	const secret = "test-secret"
	userToken, err := IssueUserToken(secret, 42, "alice", time.Hour)
	if err != nil {
		t.Fatalf("issue user: %v", err)
	}
	claims, err := ParseUserToken(secret, userToken)
	if err != nil || claims.UserID != 42 {
		t.Fatalf("expected user claims, got %+v %v", claims, err)
	}
	if _, errAdmin := ParseAdminToken(secret, userToken); errAdmin == nil {
		t.Fatalf("expected user token to be rejected by admin parser")
	}

	adminToken, _ := IssueAdminToken(secret, 1, "root", StageFull, time.Hour)
	if _, errUser := ParseUserToken(secret, adminToken); errUser == nil {
		t.Fatalf("expected admin token to be rejected by user parser")
	}
}

func TestExpiredToken(t *testing.T) {
	token, err := IssueUserToken("s", 1, "alice", -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, errParse := ParseUserToken("s", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected expired token rejected, got %v", errParse)
	}
	if _, errSecret := IssueUserToken("", 1, "alice", time.Hour); !errors.Is(errSecret, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", errSecret)
	}
}
