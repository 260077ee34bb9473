package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Admin represents a back-office operator account.
type Admin struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Active       bool           `gorm:"not null;default:true"`            // Whether the admin can sign in.
	IsSuperAdmin bool           `gorm:"not null;default:false"`           // Bypasses permission checks.
	Permissions  datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Granted permission keys.

	TOTPSecret        string         `gorm:"type:text"`                        // Active TOTP secret.
	TOTPEnabled       bool           `gorm:"not null;default:false"`           // Whether TOTP is required at login.
	PendingTOTPSecret string         `gorm:"type:text"`                        // Secret awaiting confirmation.
	BackupCodes       datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Unused backup codes.
	MFAVersion        int64          `gorm:"not null;default:0"`               // Bumped on every MFA state change.

	LastLoginAt *time.Time // Last successful login time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// BackupCodeList decodes the stored backup codes.
func (a *Admin) BackupCodeList() []string {
	if a == nil || len(a.BackupCodes) == 0 {
		return nil
	}
	var codes []string
	if errUnmarshal := json.Unmarshal(a.BackupCodes, &codes); errUnmarshal != nil {
		return nil
	}
	return codes
}

// EncodeBackupCodes encodes codes for the backup_codes column.
func EncodeBackupCodes(codes []string) datatypes.JSON {
	if codes == nil {
		codes = []string{}
	}
	raw, errMarshal := json.Marshal(codes)
	if errMarshal != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}
