package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/speechhelp/portal/internal/models"
	"github.com/speechhelp/portal/internal/security"
	internalsettings "github.com/speechhelp/portal/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const minAdminPasswordLength = 6

// AdminSetup is the first administrator and site name chosen during setup.
type AdminSetup struct {
	SiteName string `json:"site_name"`
	Username string `json:"admin_username" binding:"required"`
	Password string `json:"admin_password" binding:"required"`
}

func (s *AdminSetup) normalize() error {
	s.Username = strings.TrimSpace(s.Username)
	s.SiteName = strings.TrimSpace(s.SiteName)
	if s.SiteName == "" {
		s.SiteName = internalsettings.DefaultSiteName
	}
	if s.Username == "" {
		return errors.New("Admin username is required")
	}
	if len(s.Password) < minAdminPasswordLength {
		return fmt.Errorf("Password must be at least %d characters", minAdminPasswordLength)
	}
	return nil
}

// HasAdminInitialized reports whether at least one admin account exists.
// A database that was never migrated counts as uninitialized.
func HasAdminInitialized(ctx context.Context, conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, errors.New("app: nil db")
	}
	conn = conn.WithContext(ctx)
	if !conn.Migrator().HasTable(&models.Admin{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("app: count admins: %w", errCount)
	}
	return count > 0, nil
}

// SeedFirstAdmin creates a super admin and stores the site name in one transaction.
func SeedFirstAdmin(ctx context.Context, conn *gorm.DB, setup AdminSetup) error {
	if conn == nil {
		return errors.New("app: nil db")
	}
	hashed, errHash := security.HashPassword(setup.Password)
	if errHash != nil {
		return fmt.Errorf("app: hash password: %w", errHash)
	}
	siteName, errMarshal := json.Marshal(setup.SiteName)
	if errMarshal != nil {
		return fmt.Errorf("app: encode site name: %w", errMarshal)
	}

	now := time.Now().UTC()
	admin := models.Admin{
		Username:     setup.Username,
		Password:     hashed,
		Active:       true,
		IsSuperAdmin: true,
		Permissions:  datatypes.JSON("[]"),
		BackupCodes:  models.EncodeBackupCodes(nil),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	errTx := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&admin).Error; errCreate != nil {
			return fmt.Errorf("app: create admin: %w", errCreate)
		}
		_, errSave := internalsettings.Save(ctx, tx, internalsettings.SiteNameKey, siteName)
		return errSave
	})
	if errTx != nil {
		return errTx
	}
	internalsettings.StoreDBConfig(internalsettings.SiteNameKey, siteName)
	return nil
}
