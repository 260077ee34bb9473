package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token stages for admin sessions.
const (
	// StageFull grants access to the admin API.
	StageFull = "full"
	// StageMFAPending only allows completing the second factor.
	StageMFAPending = "mfa_pending"
)

// MFAPendingExpiry bounds how long a password-verified admin may take to submit a code.
const MFAPendingExpiry = 5 * time.Minute

const (
	audienceAdmin = "admin"
	audienceUser  = "user"
)

var (
	// ErrMissingSecret indicates no signing secret is configured.
	ErrMissingSecret = errors.New("security: missing jwt secret")
	// ErrInvalidToken indicates a token that failed parsing or validation.
	ErrInvalidToken = errors.New("security: invalid token")
	// ErrWrongStage indicates a valid token presented for the wrong login stage.
	ErrWrongStage = errors.New("security: wrong token stage")
)

// AdminClaims are the JWT claims of an admin session.
type AdminClaims struct {
	AdminID  uint64 `json:"admin_id"`
	Username string `json:"username"`
	Stage    string `json:"stage"`
	jwt.RegisteredClaims
}

// UserClaims are the JWT claims of an end-user session.
type UserClaims struct {
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func registered(audience string, subject uint64, now time.Time, expiry time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   fmt.Sprintf("%d", subject),
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
	}
}

func sign(secret string, claims jwt.Claims) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrMissingSecret
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("security: sign token: %w", errSign)
	}
	return signed, nil
}

func parse(secret, raw, audience string, claims jwt.Claims) error {
	if strings.TrimSpace(secret) == "" {
		return ErrMissingSecret
	}
	token, errParse := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithAudience(audience), jwt.WithExpirationRequired())
	if errParse != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, errParse)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// IssueAdminToken signs an admin token for the given stage.
func IssueAdminToken(secret string, adminID uint64, username, stage string, expiry time.Duration) (string, error) {
	if stage != StageFull && stage != StageMFAPending {
		return "", fmt.Errorf("security: unknown stage %q", stage)
	}
	if stage == StageMFAPending {
		expiry = MFAPendingExpiry
	}
	claims := AdminClaims{
		AdminID:          adminID,
		Username:         username,
		Stage:            stage,
		RegisteredClaims: registered(audienceAdmin, adminID, time.Now().UTC(), expiry),
	}
	return sign(secret, claims)
}

// ParseAdminToken validates a fully authenticated admin token.
func ParseAdminToken(secret, raw string) (*AdminClaims, error) {
	return parseAdminStage(secret, raw, StageFull)
}

// ParseMFAPendingToken validates a token issued after the password step.
func ParseMFAPendingToken(secret, raw string) (*AdminClaims, error) {
	return parseAdminStage(secret, raw, StageMFAPending)
}

func parseAdminStage(secret, raw, stage string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if errParse := parse(secret, raw, audienceAdmin, claims); errParse != nil {
		return nil, errParse
	}
	if claims.Stage != stage {
		return nil, ErrWrongStage
	}
	if claims.AdminID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueUserToken signs an end-user token.
func IssueUserToken(secret string, userID uint64, username string, expiry time.Duration) (string, error) {
	claims := UserClaims{
		UserID:           userID,
		Username:         username,
		RegisteredClaims: registered(audienceUser, userID, time.Now().UTC(), expiry),
	}
	return sign(secret, claims)
}

// ParseUserToken validates an end-user token.
func ParseUserToken(secret, raw string) (*UserClaims, error) {
	claims := &UserClaims{}
	if errParse := parse(secret, raw, audienceUser, claims); errParse != nil {
		return nil, errParse
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
