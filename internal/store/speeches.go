package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	internaldb "github.com/speechhelp/portal/internal/db"
	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/models"
	"gorm.io/gorm"
)

// SpeechInput holds the user-supplied fields of a new speech.
type SpeechInput struct {
	Title    string
	Occasion string
	Content  string
}

// SpeechStore persists speeches and enforces the speech quota on creation.
type SpeechStore struct {
	db    *gorm.DB
	table *entitlement.Table
	nowFn func() time.Time
}

// NewSpeechStore constructs a SpeechStore.
func NewSpeechStore(db *gorm.DB, table *entitlement.Table, nowFn func() time.Time) *SpeechStore {
	if table == nil {
		table = entitlement.DefaultTable()
	}
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &SpeechStore{db: db, table: table, nowFn: nowFn}
}

// Create checks the entitlement and inserts the speech in one transaction. The
// subscription row is locked so concurrent creations cannot both pass the limit.
// A denied decision is returned with a nil speech and a nil error.
func (s *SpeechStore) Create(ctx context.Context, userID uint64, input SpeechInput) (*models.Speech, entitlement.Decision, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, entitlement.Decision{}, fmt.Errorf("store: speech title is required")
	}

	var created *models.Speech
	var decision entitlement.Decision
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Subscription
		if errFind := internaldb.ForUpdate(tx).Where("user_id = ?", userID).First(&row).Error; errFind != nil {
			return fmt.Errorf("store: lock subscription: %w", notFound(errFind))
		}

		decision = s.table.CanCreateSpeech(ToEntitlement(&row), s.nowFn())
		if !decision.Allowed {
			return nil
		}

		speech := models.Speech{
			PublicID: uuid.NewString(),
			UserID:   userID,
			Title:    title,
			Occasion: strings.TrimSpace(input.Occasion),
			Content:  input.Content,
		}
		if errCreate := tx.Create(&speech).Error; errCreate != nil {
			return fmt.Errorf("store: create speech: %w", errCreate)
		}
		if errUsage := tx.Model(&models.Subscription{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"speeches_used": gorm.Expr("speeches_used + ?", 1),
				"updated_at":    s.nowFn(),
			}).Error; errUsage != nil {
			return fmt.Errorf("store: increment speeches_used: %w", errUsage)
		}
		created = &speech
		return nil
	})
	if errTx != nil {
		return nil, entitlement.Decision{}, errTx
	}
	return created, decision, nil
}

// List returns a page of the user's speeches, newest first, and the total count.
func (s *SpeechStore) List(ctx context.Context, userID uint64, limit, offset int) ([]models.Speech, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	q := s.db.WithContext(ctx).Model(&models.Speech{}).Where("user_id = ?", userID)
	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("store: count speeches: %w", errCount)
	}
	var rows []models.Speech
	if errFind := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("store: list speeches: %w", errFind)
	}
	return rows, total, nil
}

// Get loads one of the user's speeches by public ID.
func (s *SpeechStore) Get(ctx context.Context, userID uint64, publicID string) (*models.Speech, error) {
	if _, errParse := uuid.Parse(strings.TrimSpace(publicID)); errParse != nil {
		return nil, fmt.Errorf("store: speech id: %w", ErrNotFound)
	}
	var row models.Speech
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND public_id = ?", userID, strings.TrimSpace(publicID)).
		First(&row).Error; errFind != nil {
		return nil, fmt.Errorf("store: load speech: %w", notFound(errFind))
	}
	return &row, nil
}
