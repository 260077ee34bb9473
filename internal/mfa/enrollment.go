package mfa

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"image/png"
	"math/big"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const qrSize = 200

// Enrollment carries a freshly generated secret and its provisioning URIs.
type Enrollment struct {
	Secret    string `json:"secret"`
	URL       string `json:"otpauth_url"`
	QRDataURL string `json:"qr_code"`
}

// NewEnrollment generates a new SHA1 six-digit secret for the account.
func NewEnrollment(issuer, account string) (Enrollment, error) {
	issuer = strings.TrimSpace(issuer)
	account = strings.TrimSpace(account)
	if issuer == "" || account == "" {
		return Enrollment{}, fmt.Errorf("mfa: issuer and account are required")
	}
	key, errGenerate := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if errGenerate != nil {
		return Enrollment{}, fmt.Errorf("mfa: generate secret: %w", errGenerate)
	}
	img, errImage := key.Image(qrSize, qrSize)
	if errImage != nil {
		return Enrollment{}, fmt.Errorf("mfa: render qr code: %w", errImage)
	}
	var buf bytes.Buffer
	if errEncode := png.Encode(&buf, img); errEncode != nil {
		return Enrollment{}, fmt.Errorf("mfa: encode qr code: %w", errEncode)
	}
	return Enrollment{
		Secret:    key.Secret(),
		URL:       key.URL(),
		QRDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// GenerateBackupCodes returns n distinct random six-digit codes.
func GenerateBackupCodes(n int) ([]string, error) {
	if n <= 0 {
		n = BackupCodeCount
	}
	limit := big.NewInt(1_000_000)
	seen := make(map[string]struct{}, n)
	codes := make([]string, 0, n)
	for len(codes) < n {
		v, errRand := rand.Int(rand.Reader, limit)
		if errRand != nil {
			return nil, fmt.Errorf("mfa: generate backup code: %w", errRand)
		}
		code := fmt.Sprintf("%06d", v.Int64())
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}
