package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/speechhelp/portal/internal/models"
	internalsettings "github.com/speechhelp/portal/internal/settings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// defaultSettings are inserted when missing and restored when stored as null.
var defaultSettings = []struct {
	key   string
	value any
}{
	{internalsettings.LoginRateLimitKey, internalsettings.DefaultLoginRateLimit},
	{internalsettings.LoginRateWindowSecondsKey, internalsettings.DefaultLoginRateWindowSeconds},
	{internalsettings.TOTPRateLimitKey, internalsettings.DefaultTOTPRateLimit},
}

// extraIndexes are composite indexes the struct tags cannot express.
var extraIndexes = []struct {
	name, table, columns string
}{
	{"idx_speeches_user_id_created_at", "speeches", "user_id, created_at DESC"},
	{"idx_subscriptions_tier_status", "subscriptions", "tier, status"},
}

// Migrate creates or updates the schema and seeds defaults. It is safe to run repeatedly.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch name := DialectName(conn); name {
	case DialectSQLite, DialectPostgres:
	default:
		return fmt.Errorf("db: unsupported dialect: %q", name)
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.User{},
		&models.Subscription{},
		&models.Speech{},
		&models.StripeEvent{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	for _, idx := range extraIndexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if errDDL := conn.Exec(stmt).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", idx.name, errDDL)
		}
	}

	// Databases created before super admins existed promote their oldest admin.
	if errPromote := conn.Exec(`
		UPDATE admins SET is_super_admin = true
		WHERE id = (SELECT id FROM admins ORDER BY created_at ASC, id ASC LIMIT 1)
		AND NOT EXISTS (SELECT 1 FROM admins WHERE is_super_admin = true)
	`).Error; errPromote != nil {
		return fmt.Errorf("db: promote first admin: %w", errPromote)
	}

	return seedSettings(conn)
}

func seedSettings(conn *gorm.DB) error {
	now := time.Now().UTC()
	for _, def := range defaultSettings {
		raw, errMarshal := json.Marshal(def.value)
		if errMarshal != nil {
			return fmt.Errorf("db: encode %s: %w", def.key, errMarshal)
		}
		row := models.Setting{Key: def.key, Value: raw, UpdatedAt: now}
		if errCreate := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; errCreate != nil {
			return fmt.Errorf("db: seed %s: %w", def.key, errCreate)
		}
		if errRepair := conn.Model(&models.Setting{}).
			Where("key = ? AND (value IS NULL OR CAST(value AS TEXT) IN ('', 'null'))", def.key).
			Updates(map[string]any{"value": json.RawMessage(raw), "updated_at": now}).Error; errRepair != nil {
			return fmt.Errorf("db: repair %s: %w", def.key, errRepair)
		}
	}
	return nil
}
