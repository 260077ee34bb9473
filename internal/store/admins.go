package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/speechhelp/portal/internal/models"
	"gorm.io/gorm"
)

// AdminStore persists admin accounts and their second-factor state. Every MFA write
// bumps mfa_version so concurrent writers can detect each other.
type AdminStore struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewAdminStore constructs an AdminStore.
func NewAdminStore(db *gorm.DB, nowFn func() time.Time) *AdminStore {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &AdminStore{db: db, nowFn: nowFn}
}

// Get loads an admin by ID.
func (s *AdminStore) Get(ctx context.Context, id uint64) (*models.Admin, error) {
	var admin models.Admin
	if errFind := s.db.WithContext(ctx).First(&admin, id).Error; errFind != nil {
		return nil, fmt.Errorf("store: load admin: %w", notFound(errFind))
	}
	return &admin, nil
}

// ByUsername loads an admin by login name.
func (s *AdminStore) ByUsername(ctx context.Context, username string) (*models.Admin, error) {
	var admin models.Admin
	if errFind := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&admin).Error; errFind != nil {
		return nil, fmt.Errorf("store: load admin: %w", notFound(errFind))
	}
	return &admin, nil
}

// SetPendingSecret stores a TOTP secret awaiting confirmation.
func (s *AdminStore) SetPendingSecret(ctx context.Context, id uint64, secret string) error {
	return s.updateMFA(ctx, id, nil, map[string]any{"pending_totp_secret": secret})
}

// EnableTOTP promotes the pending secret and issues a fresh set of backup codes.
// It fails with ErrConflict when the MFA state changed since expectedVersion was read.
func (s *AdminStore) EnableTOTP(ctx context.Context, id uint64, expectedVersion int64, secret string, backupCodes []string) error {
	return s.updateMFA(ctx, id, &expectedVersion, map[string]any{
		"totp_secret":         secret,
		"totp_enabled":        true,
		"pending_totp_secret": "",
		"backup_codes":        models.EncodeBackupCodes(backupCodes),
	})
}

// DisableTOTP clears the second factor.
func (s *AdminStore) DisableTOTP(ctx context.Context, id uint64) error {
	return s.updateMFA(ctx, id, nil, map[string]any{
		"totp_secret":         "",
		"totp_enabled":        false,
		"pending_totp_secret": "",
		"backup_codes":        models.EncodeBackupCodes(nil),
	})
}

// RegenerateBackupCodes replaces every backup code.
func (s *AdminStore) RegenerateBackupCodes(ctx context.Context, id uint64, backupCodes []string) error {
	return s.updateMFA(ctx, id, nil, map[string]any{
		"backup_codes": models.EncodeBackupCodes(backupCodes),
	})
}

// ReplaceBackupCodes stores the remaining codes after one was consumed. The write only
// succeeds if mfa_version still equals expectedVersion, so a backup code presented by
// two concurrent logins is accepted at most once.
func (s *AdminStore) ReplaceBackupCodes(ctx context.Context, id uint64, expectedVersion int64, remaining []string) error {
	return s.updateMFA(ctx, id, &expectedVersion, map[string]any{
		"backup_codes": models.EncodeBackupCodes(remaining),
	})
}

// TouchLogin records a successful login.
func (s *AdminStore) TouchLogin(ctx context.Context, id uint64) error {
	now := s.nowFn()
	if errUpdate := s.db.WithContext(ctx).Model(&models.Admin{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_login_at": now, "updated_at": now}).Error; errUpdate != nil {
		return fmt.Errorf("store: touch admin login: %w", errUpdate)
	}
	return nil
}

func (s *AdminStore) updateMFA(ctx context.Context, id uint64, expectedVersion *int64, updates map[string]any) error {
	updates["mfa_version"] = gorm.Expr("mfa_version + 1")
	updates["updated_at"] = s.nowFn()
	q := s.db.WithContext(ctx).Model(&models.Admin{}).Where("id = ?", id)
	if expectedVersion != nil {
		q = q.Where("mfa_version = ?", *expectedVersion)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("store: update admin mfa: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if expectedVersion != nil {
			return fmt.Errorf("store: update admin mfa: %w", ErrConflict)
		}
		return fmt.Errorf("store: update admin mfa: %w", ErrNotFound)
	}
	return nil
}
