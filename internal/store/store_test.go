package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	internaldb "github.com/speechhelp/portal/internal/db"
	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/models"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := internaldb.Open("file:" + filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := internaldb.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func createUser(t *testing.T, conn *gorm.DB, username string) *models.User {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com", Password: "x"}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return &user
}

func fixedClock() time.Time { return testNow }

func TestCreateTrialAndRead(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn, "alice")
	subs := NewSubscriptionStore(conn, nil, fixedClock)
	ctx := context.Background()

	row, err := subs.CreateTrial(ctx, user.ID)
	if err != nil {
		t.Fatalf("create trial: %v", err)
	}
	if row.Tier != string(entitlement.TierTrial) || row.Status != nil {
		t.Fatalf("unexpected trial row: %+v", row)
	}
	if row.EndDate == nil || !row.EndDate.Equal(testNow.Add(72*time.Hour)) {
		t.Fatalf("expected trial end in 3 days, got %v", row.EndDate)
	}

	if _, errDup := subs.CreateTrial(ctx, user.ID); !errors.Is(errDup, ErrConflict) {
		t.Fatalf("expected ErrConflict on second trial, got %v", errDup)
	}

	sub, err := subs.Subscription(ctx, "1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if sub.Tier != entitlement.TierTrial || !entitlement.IsActive(sub) {
		t.Fatalf("unexpected entitlement view: %+v", sub)
	}
	if _, errMissing := subs.Subscription(ctx, "999"); !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errMissing)
	}
	if _, errBad := subs.Subscription(ctx, "abc"); !errors.Is(errBad, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for bad id, got %v", errBad)
	}
}

func TestSpeechCreateEnforcesLimit(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn, "bob")
	subs := NewSubscriptionStore(conn, nil, fixedClock)
	speeches := NewSpeechStore(conn, nil, fixedClock)
	ctx := context.Background()
	if _, err := subs.CreateTrial(ctx, user.ID); err != nil {
		t.Fatalf("create trial: %v", err)
	}

	speech, decision, err := speeches.Create(ctx, user.ID, SpeechInput{Title: "Toast", Occasion: "wedding"})
	if err != nil {
		t.Fatalf("create speech: %v", err)
	}
	if !decision.Allowed || speech == nil || speech.PublicID == "" {
		t.Fatalf("expected first trial speech allowed, got %+v %+v", decision, speech)
	}

	speech, decision, err = speeches.Create(ctx, user.ID, SpeechInput{Title: "Second"})
	if err != nil {
		t.Fatalf("create second speech: %v", err)
	}
	if decision.Allowed || speech != nil || decision.Code != entitlement.DenialLimitReached {
		t.Fatalf("expected limit denial, got %+v", decision)
	}

	row, _ := subs.Get(ctx, user.ID)
	if row.SpeechesUsed != 1 {
		t.Fatalf("expected usage 1, got %d", row.SpeechesUsed)
	}
	list, total, err := speeches.List(ctx, user.ID, 10, 0)
	if err != nil || total != 1 || len(list) != 1 {
		t.Fatalf("unexpected list: %d %d %v", total, len(list), err)
	}
	got, err := speeches.Get(ctx, user.ID, list[0].PublicID)
	if err != nil || got.Title != "Toast" {
		t.Fatalf("unexpected get: %+v %v", got, err)
	}
	if _, errOther := speeches.Get(ctx, user.ID+1, list[0].PublicID); !errors.Is(errOther, ErrNotFound) {
		t.Fatalf("expected other user's lookup to miss, got %v", errOther)
	}
}

func TestSpeechCreateDeniedWhenExpired(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn, "carol")
	subs := NewSubscriptionStore(conn, nil, fixedClock)
	ctx := context.Background()
	if _, err := subs.CreateTrial(ctx, user.ID); err != nil {
		t.Fatalf("create trial: %v", err)
	}

	later := func() time.Time { return testNow.Add(96 * time.Hour) }
	_, decision, err := NewSpeechStore(conn, nil, later).Create(ctx, user.ID, SpeechInput{Title: "Late"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if decision.Allowed || decision.Code != entitlement.DenialExpired {
		t.Fatalf("expected expiry denial, got %+v", decision)
	}
}

func TestOverrideAndStripeUpdate(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn, "dave")
	subs := NewSubscriptionStore(conn, nil, fixedClock)
	ctx := context.Background()
	if _, err := subs.CreateTrial(ctx, user.ID); err != nil {
		t.Fatalf("create trial: %v", err)
	}

	pro := entitlement.TierPro
	active := "active"
	row, err := subs.Override(ctx, user.ID, SubscriptionOverride{Tier: &pro, Status: &active, ClearEnd: true})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if row.Tier != "pro" || row.Status == nil || *row.Status != "active" || row.EndDate != nil {
		t.Fatalf("unexpected override result: %+v", row)
	}
	gold := entitlement.Tier("gold")
	if _, errTier := subs.Override(ctx, user.ID, SubscriptionOverride{Tier: &gold}); !errors.Is(errTier, entitlement.ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", errTier)
	}

	if errLink := subs.LinkCustomer(ctx, user.ID, "cus_123"); errLink != nil {
		t.Fatalf("link customer: %v", errLink)
	}
	end := testNow.Add(30 * 24 * time.Hour)
	owner, err := subs.ApplyStripe(ctx, StripeSubscriptionUpdate{
		CustomerID:     "cus_123",
		SubscriptionID: "sub_1",
		PriceID:        "price_premium",
		Tier:           entitlement.TierPremium,
		Status:         "past_due",
		PeriodStart:    testNow,
		PeriodEnd:      &end,
	})
	if err != nil {
		t.Fatalf("apply stripe: %v", err)
	}
	if owner != user.ID {
		t.Fatalf("expected owner %d, got %d", user.ID, owner)
	}
	sub, _ := subs.Subscription(ctx, "1")
	if sub.Tier != entitlement.TierPremium || entitlement.IsActive(sub) {
		t.Fatalf("expected inactive premium, got %+v", sub)
	}

	if _, errMissing := subs.ApplyStripe(ctx, StripeSubscriptionUpdate{SubscriptionID: "sub_unknown"}); !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errMissing)
	}
}

func TestReplaceBackupCodesLosesRace(t *testing.T) {
	conn := openTestDB(t)
	admins := NewAdminStore(conn, fixedClock)
	ctx := context.Background()
	admin := models.Admin{Username: "root", Password: "x", Active: true}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}
	if errEnable := admins.EnableTOTP(ctx, admin.ID, 0, "SECRET", []string{"111111", "222222"}); errEnable != nil {
		t.Fatalf("enable: %v", errEnable)
	}

	loaded, err := admins.Get(ctx, admin.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	version := loaded.MFAVersion

	if errFirst := admins.ReplaceBackupCodes(ctx, admin.ID, version, []string{"222222"}); errFirst != nil {
		t.Fatalf("first consume: %v", errFirst)
	}
	if errSecond := admins.ReplaceBackupCodes(ctx, admin.ID, version, []string{"222222"}); !errors.Is(errSecond, ErrConflict) {
		t.Fatalf("expected concurrent consume to conflict, got %v", errSecond)
	}

	reloaded, _ := admins.Get(ctx, admin.ID)
	codes := reloaded.BackupCodeList()
	if len(codes) != 1 || codes[0] != "222222" {
		t.Fatalf("unexpected remaining codes %v", codes)
	}
	if !reloaded.TOTPEnabled || reloaded.TOTPSecret != "SECRET" {
		t.Fatalf("unexpected mfa state: %+v", reloaded)
	}
}

func TestStripeEventProcessedOnce(t *testing.T) {
	conn := openTestDB(t)
	events := NewStripeEventStore(conn, fixedClock)
	ctx := context.Background()
	calls := 0
	apply := func(*gorm.DB) error {
		calls++
		return nil
	}

	applied, err := events.Process(ctx, "evt_1", "customer.subscription.updated", apply)
	if err != nil || !applied {
		t.Fatalf("expected first delivery applied, got %v %v", applied, err)
	}
	applied, err = events.Process(ctx, "evt_1", "customer.subscription.updated", apply)
	if err != nil || applied {
		t.Fatalf("expected redelivery skipped, got %v %v", applied, err)
	}
	if calls != 1 {
		t.Fatalf("expected apply once, got %d", calls)
	}

	failing := func(*gorm.DB) error { return errors.New("boom") }
	if _, errFail := events.Process(ctx, "evt_2", "x", failing); errFail == nil {
		t.Fatalf("expected apply error")
	}
	applied, err = events.Process(ctx, "evt_2", "x", apply)
	if err != nil || !applied {
		t.Fatalf("expected failed event to be retried, got %v %v", applied, err)
	}
}
