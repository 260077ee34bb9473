// Package mfa verifies admin second-factor codes: time-based one-time passwords and
// single-use backup codes.
package mfa

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

const (
	// Period is the length of one time step in seconds.
	Period = 30
	// Digits is the length of every code.
	Digits = 6
	// DefaultWindow is the number of adjacent steps accepted on either side.
	DefaultWindow = 1
	// BackupCodeCount is the number of backup codes issued at once.
	BackupCodeCount = 8
)

var (
	// ErrInvalidCodeFormat rejects submissions that are not exactly six ASCII digits.
	ErrInvalidCodeFormat = errors.New("mfa: code must be 6 digits")
	// ErrInvalidSecret reports a stored secret that is not valid base32.
	ErrInvalidSecret = errors.New("mfa: invalid secret")
	// ErrNotEnabled reports a credential that has not been activated.
	ErrNotEnabled = errors.New("mfa: two-factor authentication is not enabled")
)

// TimeStep returns the 30 second epoch index for t.
func TimeStep(t time.Time) uint64 {
	unix := t.Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix) / Period
}

// GenerateCode computes the HOTP-SHA1 code of the secret for the given step.
func GenerateCode(secret string, step uint64) (string, error) {
	code, errGenerate := hotp.GenerateCodeCustom(secret, step, hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if errGenerate != nil {
		if errors.Is(errGenerate, otp.ErrValidateSecretInvalidBase32) {
			return "", ErrInvalidSecret
		}
		return "", fmt.Errorf("mfa: generate code: %w", errGenerate)
	}
	return code, nil
}

// VerifyTimeBasedCode reports whether code matches any step within window of now.
// Every candidate step is compared so timing does not reveal the matching offset.
func VerifyTimeBasedCode(secret, code string, window int, now time.Time) (bool, error) {
	if window < 0 {
		window = 0
	}
	code = strings.TrimSpace(code)
	current := TimeStep(now)
	matched := false
	for offset := -window; offset <= window; offset++ {
		var step uint64
		if offset < 0 {
			back := uint64(-offset)
			if back > current {
				continue
			}
			step = current - back
		} else {
			step = current + uint64(offset)
		}
		expected, errGenerate := GenerateCode(secret, step)
		if errGenerate != nil {
			return false, errGenerate
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			matched = true
		}
	}
	return matched, nil
}

// VerifyBackupCode reports whether code is one of the stored backup codes.
// It does not consume the code.
func VerifyBackupCode(codes []string, code string) bool {
	return indexOfBackupCode(codes, code) >= 0
}

// RemoveBackupCode returns codes without the first entry equal to code.
func RemoveBackupCode(codes []string, code string) ([]string, bool) {
	idx := indexOfBackupCode(codes, code)
	if idx < 0 {
		return append([]string(nil), codes...), false
	}
	out := make([]string, 0, len(codes)-1)
	out = append(out, codes[:idx]...)
	out = append(out, codes[idx+1:]...)
	return out, true
}

func indexOfBackupCode(codes []string, code string) int {
	code = strings.TrimSpace(code)
	if code == "" {
		return -1
	}
	for i, stored := range codes {
		if strings.TrimSpace(stored) == code {
			return i
		}
	}
	return -1
}

// ValidCodeFormat reports whether code is exactly six ASCII digits.
func ValidCodeFormat(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// LoginResult is the outcome of a second-factor login attempt.
type LoginResult struct {
	Verified             bool
	UsedBackupCode       bool
	RemainingBackupCodes []string
}

// VerifyLoginCode checks a submitted login code against the backup codes first and
// then against the time-based code. A matched backup code is removed from
// RemainingBackupCodes; the caller must persist that set atomically.
func VerifyLoginCode(secret string, backupCodes []string, code string, now time.Time) (LoginResult, error) {
	code = strings.TrimSpace(code)
	if !ValidCodeFormat(code) {
		return LoginResult{}, ErrInvalidCodeFormat
	}
	if remaining, removed := RemoveBackupCode(backupCodes, code); removed {
		return LoginResult{Verified: true, UsedBackupCode: true, RemainingBackupCodes: remaining}, nil
	}
	unchanged := append([]string(nil), backupCodes...)
	ok, errVerify := VerifyTimeBasedCode(secret, code, DefaultWindow, now)
	if errVerify != nil {
		return LoginResult{RemainingBackupCodes: unchanged}, errVerify
	}
	return LoginResult{Verified: ok, RemainingBackupCodes: unchanged}, nil
}

// Credential is an admin's stored second factor.
type Credential struct {
	Secret      string
	Enabled     bool
	BackupCodes []string
}

// Verify runs VerifyLoginCode against an enabled credential.
func (c Credential) Verify(code string, now time.Time) (LoginResult, error) {
	if !c.Enabled || strings.TrimSpace(c.Secret) == "" {
		return LoginResult{}, ErrNotEnabled
	}
	return VerifyLoginCode(c.Secret, c.BackupCodes, code, now)
}
