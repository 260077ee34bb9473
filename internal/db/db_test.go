package db

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/speechhelp/portal/internal/models"
	internalsettings "github.com/speechhelp/portal/internal/settings"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	// Migrations are re-runnable.
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate again: %v", errMigrate)
	}

	var setting models.Setting
	if errFind := conn.Where("key = ?", internalsettings.LoginRateLimitKey).First(&setting).Error; errFind != nil {
		t.Fatalf("expected seeded setting: %v", errFind)
	}
	var limit int
	if errUnmarshal := json.Unmarshal(setting.Value, &limit); errUnmarshal != nil || limit != internalsettings.DefaultLoginRateLimit {
		t.Fatalf("unexpected seeded limit %s", string(setting.Value))
	}
}

func TestMigrateSeedsSuperAdmin(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	admin := models.Admin{Username: "root", Password: "x", Active: true}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	var reloaded models.Admin
	if errFind := conn.First(&reloaded, admin.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if !reloaded.IsSuperAdmin {
		t.Fatalf("expected first admin promoted to super admin")
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestMigrateRepairsNullSetting(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errUpdate := conn.Model(&models.Setting{}).Where("key = ?", internalsettings.TOTPRateLimitKey).
		Update("value", json.RawMessage("null")).Error; errUpdate != nil {
		t.Fatalf("null out setting: %v", errUpdate)
	}
	if errUpdate := conn.Model(&models.Setting{}).Where("key = ?", internalsettings.LoginRateLimitKey).
		Update("value", json.RawMessage("42")).Error; errUpdate != nil {
		t.Fatalf("customize setting: %v", errUpdate)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate again: %v", errMigrate)
	}

	var totp, login models.Setting
	conn.Where("key = ?", internalsettings.TOTPRateLimitKey).First(&totp)
	conn.Where("key = ?", internalsettings.LoginRateLimitKey).First(&login)
	if string(login.Value) != "42" {
		t.Fatalf("customized setting overwritten: %s", login.Value)
	}
	var limit int
	if errUnmarshal := json.Unmarshal(totp.Value, &limit); errUnmarshal != nil || limit != internalsettings.DefaultTOTPRateLimit {
		t.Fatalf("null setting not repaired: %s", totp.Value)
	}
}

func TestContainsFold(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	for _, u := range []models.User{
		{Username: "Alice", Email: "alice@example.com", Password: "x"},
		{Username: "bob_smith", Email: "bob@example.com", Password: "x"},
		{Username: "bobXsmith", Email: "bx@example.com", Password: "x"},
	} {
		if errCreate := conn.Create(&u).Error; errCreate != nil {
			t.Fatalf("create user: %v", errCreate)
		}
	}

	count := func(needle string, columns ...string) int64 {
		expr, args := ContainsFold(conn, needle, columns...)
		var n int64
		if errCount := conn.Model(&models.User{}).Where(expr, args...).Count(&n).Error; errCount != nil {
			t.Fatalf("count %q: %v", needle, errCount)
		}
		return n
	}
	if n := count("ALICE", "username"); n != 1 {
		t.Fatalf("case-insensitive match = %d", n)
	}
	if n := count("b_s", "username"); n != 1 {
		t.Fatalf("underscore should match literally, got %d", n)
	}
	if n := count("example", "username", "email"); n != 3 {
		t.Fatalf("multi-column match = %d", n)
	}
}
