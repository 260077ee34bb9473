package mfa

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// rfc4226Secret is "12345678901234567890" in base32.
const rfc4226Secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGenerateCode_RFC4226Vectors(t *testing.T) {
	want := []string{"755224", "287082", "359152", "969429", "338314", "254676", "287922", "162583", "399871", "520489"}
	for counter, expected := range want {
		got, err := GenerateCode(rfc4226Secret, uint64(counter))
		if err != nil {
			t.Fatalf("counter %d: %v", counter, err)
		}
		if got != expected {
			t.Fatalf("counter %d: expected %s, got %s", counter, expected, got)
		}
	}
}

func TestGenerateCode_InvalidSecret(t *testing.T) {
	_, err := GenerateCode("not base32!!", 1)
	if !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("expected ErrInvalidSecret, got %v", err)
	}
}

func TestTimeStep(t *testing.T) {
	if got := TimeStep(time.Unix(59, 0)); got != 1 {
		t.Fatalf("expected step 1, got %d", got)
	}
	if got := TimeStep(time.Unix(60, 0)); got != 2 {
		t.Fatalf("expected step 2, got %d", got)
	}
}

func TestVerifyTimeBasedCode_WindowTolerance(t *testing.T) {
	now := time.Unix(1_700_000_010, 0).UTC()
	code, err := GenerateCode(rfc4226Secret, TimeStep(now))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, drift := range []time.Duration{-30 * time.Second, -10 * time.Second, 0, 15 * time.Second, 30 * time.Second} {
		ok, errVerify := VerifyTimeBasedCode(rfc4226Secret, code, DefaultWindow, now.Add(drift))
		if errVerify != nil {
			t.Fatalf("drift %s: %v", drift, errVerify)
		}
		if !ok {
			t.Fatalf("drift %s: expected code to verify", drift)
		}
	}
	for _, drift := range []time.Duration{-90 * time.Second, 90 * time.Second} {
		ok, _ := VerifyTimeBasedCode(rfc4226Secret, code, DefaultWindow, now.Add(drift))
		if ok {
			t.Fatalf("drift %s: expected code to be rejected", drift)
		}
	}
}

func TestVerifyTimeBasedCode_ZeroWindow(t *testing.T) {
	now := time.Unix(1_700_000_010, 0).UTC()
	code, _ := GenerateCode(rfc4226Secret, TimeStep(now)+1)
	ok, err := VerifyTimeBasedCode(rfc4226Secret, code, 0, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected next-step code to fail with zero window")
	}
}

func TestVerifyTimeBasedCode_EpochStart(t *testing.T) {
	code, _ := GenerateCode(rfc4226Secret, 0)
	ok, err := VerifyTimeBasedCode(rfc4226Secret, code, DefaultWindow, time.Unix(5, 0))
	if err != nil || !ok {
		t.Fatalf("expected step 0 to verify without underflow, ok=%v err=%v", ok, err)
	}
}

func TestVerifyBackupCode(t *testing.T) {
	codes := []string{" 111111", "222222 "}
	if !VerifyBackupCode(codes, "111111") {
		t.Fatalf("expected trimmed stored code to match")
	}
	if !VerifyBackupCode(codes, " 222222\n") {
		t.Fatalf("expected trimmed submitted code to match")
	}
	if VerifyBackupCode(codes, "333333") {
		t.Fatalf("expected unknown code to fail")
	}
	if len(codes) != 2 {
		t.Fatalf("expected verification to have no side effect")
	}
}

func TestVerifyLoginCode_MalformedCodes(t *testing.T) {
	codes := []string{"12345", "1234567", "12a456"}
	for _, code := range codes {
		result, err := VerifyLoginCode(rfc4226Secret, codes, code, time.Now())
		if !errors.Is(err, ErrInvalidCodeFormat) {
			t.Fatalf("%q: expected ErrInvalidCodeFormat, got %v", code, err)
		}
		if result.Verified || result.UsedBackupCode {
			t.Fatalf("%q: expected no verification, got %+v", code, result)
		}
	}
}

func TestVerifyLoginCode_BackupCodeSingleUse(t *testing.T) {
	now := time.Unix(1_700_000_010, 0).UTC()
	codes := []string{"111111", "222222", "333333"}

	first, err := VerifyLoginCode(rfc4226Secret, codes, "222222", now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !first.Verified || !first.UsedBackupCode {
		t.Fatalf("expected backup code to verify, got %+v", first)
	}
	if len(first.RemainingBackupCodes) != 2 || VerifyBackupCode(first.RemainingBackupCodes, "222222") {
		t.Fatalf("expected consumed code removed, got %v", first.RemainingBackupCodes)
	}
	if len(codes) != 3 {
		t.Fatalf("expected input set untouched")
	}

	second, err := VerifyLoginCode(rfc4226Secret, first.RemainingBackupCodes, "222222", now)
	if err != nil {
		t.Fatalf("verify again: %v", err)
	}
	if second.Verified {
		t.Fatalf("expected reused backup code to fail")
	}
	if len(second.RemainingBackupCodes) != 2 {
		t.Fatalf("expected set unchanged on failure, got %v", second.RemainingBackupCodes)
	}
}

func TestVerifyLoginCode_TimeBased(t *testing.T) {
	now := time.Unix(1_700_000_010, 0).UTC()
	code, _ := GenerateCode(rfc4226Secret, TimeStep(now))
	result, err := VerifyLoginCode(rfc4226Secret, nil, code, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Verified || result.UsedBackupCode {
		t.Fatalf("expected time-based verification, got %+v", result)
	}
}

func TestVerifyLoginCode_MalformedSecretFailsFast(t *testing.T) {
	_, err := VerifyLoginCode("%%%", nil, "123456", time.Now())
	if !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("expected ErrInvalidSecret, got %v", err)
	}
}

func TestCredentialVerify_Disabled(t *testing.T) {
	cred := Credential{Secret: rfc4226Secret, Enabled: false, BackupCodes: []string{"111111"}}
	if _, err := cred.Verify("111111", time.Now()); !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled, got %v", err)
	}
	cred.Enabled = true
	result, err := cred.Verify("111111", time.Now())
	if err != nil || !result.Verified {
		t.Fatalf("expected enabled credential to verify, result=%+v err=%v", result, err)
	}
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(codes) != BackupCodeCount {
		t.Fatalf("expected %d codes, got %d", BackupCodeCount, len(codes))
	}
	seen := map[string]bool{}
	for _, code := range codes {
		if !ValidCodeFormat(code) {
			t.Fatalf("expected six digits, got %q", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}

func TestNewEnrollment(t *testing.T) {
	enrollment, err := NewEnrollment("SpeechHelp", "admin")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if !strings.HasPrefix(enrollment.URL, "otpauth://totp/") {
		t.Fatalf("unexpected url %q", enrollment.URL)
	}
	if !strings.HasPrefix(enrollment.QRDataURL, "data:image/png;base64,") {
		t.Fatalf("unexpected qr data url prefix")
	}
	now := time.Now()
	code, errCode := GenerateCode(enrollment.Secret, TimeStep(now))
	if errCode != nil {
		t.Fatalf("generate: %v", errCode)
	}
	ok, errVerify := VerifyTimeBasedCode(enrollment.Secret, code, DefaultWindow, now)
	if errVerify != nil || !ok {
		t.Fatalf("expected enrolled secret to verify, ok=%v err=%v", ok, errVerify)
	}
	if _, errEmpty := NewEnrollment("", "admin"); errEmpty == nil {
		t.Fatalf("expected missing issuer error")
	}
}
