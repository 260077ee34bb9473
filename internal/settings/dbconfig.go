package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/speechhelp/portal/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	dbConfigMu sync.RWMutex
	dbConfig   = map[string]json.RawMessage{}
)

// DBConfigValue returns the cached raw value of a DB setting.
func DBConfigValue(key string) (json.RawMessage, bool) {
	dbConfigMu.RLock()
	defer dbConfigMu.RUnlock()
	raw, ok := dbConfig[key]
	return raw, ok
}

// StoreDBConfig replaces one cached value after a successful write.
func StoreDBConfig(key string, value json.RawMessage) {
	dbConfigMu.Lock()
	dbConfig[key] = append(json.RawMessage(nil), value...)
	dbConfigMu.Unlock()
}

// ReloadDBConfig refreshes the cache from the settings table.
func ReloadDBConfig(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("settings: nil connection")
	}
	var rows []models.Setting
	if errFind := conn.WithContext(ctx).Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: load: %w", errFind)
	}
	next := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		next[row.Key] = row.Value
	}
	dbConfigMu.Lock()
	dbConfig = next
	dbConfigMu.Unlock()
	return nil
}

// Save upserts one setting row. Callers refresh the cache with StoreDBConfig
// once the surrounding transaction commits.
func Save(ctx context.Context, conn *gorm.DB, key string, value json.RawMessage) (*models.Setting, error) {
	if conn == nil {
		return nil, fmt.Errorf("settings: nil connection")
	}
	setting := models.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	if errUpsert := conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error; errUpsert != nil {
		return nil, fmt.Errorf("settings: save %s: %w", key, errUpsert)
	}
	return &setting, nil
}

// SiteName returns the configured site name or the default.
func SiteName() string {
	raw, ok := DBConfigValue(SiteNameKey)
	if !ok {
		return DefaultSiteName
	}
	var name string
	if errUnmarshal := json.Unmarshal(raw, &name); errUnmarshal != nil || name == "" {
		return DefaultSiteName
	}
	return name
}
