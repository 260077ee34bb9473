package settings

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/speechhelp/portal/internal/models"
	"gorm.io/gorm"
)

func TestReloadDBConfig(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:"+filepath.Join(t.TempDir(), "settings.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errCreate := conn.Create(&models.Setting{Key: SiteNameKey, Value: json.RawMessage(`"Podium"`)}).Error; errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}

	if errReload := ReloadDBConfig(context.Background(), conn); errReload != nil {
		t.Fatalf("reload: %v", errReload)
	}
	if got := SiteName(); got != "Podium" {
		t.Fatalf("expected site name Podium, got %q", got)
	}

	StoreDBConfig(SiteNameKey, json.RawMessage(`""`))
	if got := SiteName(); got != DefaultSiteName {
		t.Fatalf("expected default site name, got %q", got)
	}
	if _, ok := DBConfigValue("MISSING"); ok {
		t.Fatalf("expected missing key")
	}
}

func TestIsEditable(t *testing.T) {
	if !IsEditable(LoginRateLimitKey) || IsEditable("JWT_SECRET") {
		t.Fatalf("unexpected editable keys")
	}
}

func TestSaveUpserts(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:"+filepath.Join(t.TempDir(), "save.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	ctx := context.Background()
	if _, errSave := Save(ctx, conn, LoginRateLimitKey, json.RawMessage(`5`)); errSave != nil {
		t.Fatalf("first save: %v", errSave)
	}
	if _, errSave := Save(ctx, conn, LoginRateLimitKey, json.RawMessage(`9`)); errSave != nil {
		t.Fatalf("second save: %v", errSave)
	}
	var rows []models.Setting
	if errFind := conn.Find(&rows).Error; errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if len(rows) != 1 || string(rows[0].Value) != "9" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestValueParsers(t *testing.T) {
	for raw, want := range map[string]int{`5`: 5, `"12"`: 12, `0`: 0, `3.0`: 3} {
		if got, ok := ParseNonNegativeInt(json.RawMessage(raw)); !ok || got != want {
			t.Fatalf("ParseNonNegativeInt(%s) = %d %v", raw, got, ok)
		}
	}
	for _, raw := range []string{`-1`, `2.5`, `"x"`, `null`, ``, `true`} {
		if _, ok := ParseNonNegativeInt(json.RawMessage(raw)); ok {
			t.Fatalf("ParseNonNegativeInt(%s) accepted", raw)
		}
	}
	for raw, want := range map[string]bool{`true`: true, `"on"`: true, `0`: false, `"no"`: false} {
		if got, ok := ParseBool(json.RawMessage(raw)); !ok || got != want {
			t.Fatalf("ParseBool(%s) = %v %v", raw, got, ok)
		}
	}
	if _, ok := ParseBool(json.RawMessage(`null`)); ok {
		t.Fatalf("ParseBool(null) accepted")
	}
	if s, ok := ParseString(json.RawMessage(`"  redis:6379 "`)); !ok || s != "redis:6379" {
		t.Fatalf("ParseString = %q %v", s, ok)
	}
}

func TestTypedAccessors(t *testing.T) {
	StoreDBConfig(RateLimitRedisDBKey, json.RawMessage(`"3"`))
	StoreDBConfig(RateLimitRedisEnabledKey, json.RawMessage(`"yes"`))
	StoreDBConfig(RateLimitRedisAddrKey, json.RawMessage(`"  "`))
	t.Cleanup(func() {
		StoreDBConfig(RateLimitRedisDBKey, json.RawMessage(`null`))
		StoreDBConfig(RateLimitRedisEnabledKey, json.RawMessage(`null`))
		StoreDBConfig(RateLimitRedisAddrKey, json.RawMessage(`null`))
	})
	if n, ok := Int(RateLimitRedisDBKey); !ok || n != 3 {
		t.Fatalf("Int = %d %v", n, ok)
	}
	if b, ok := Bool(RateLimitRedisEnabledKey); !ok || !b {
		t.Fatalf("Bool = %v %v", b, ok)
	}
	if _, ok := String(RateLimitRedisAddrKey); ok {
		t.Fatalf("blank string should read as unset")
	}
}
