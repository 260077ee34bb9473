package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/speechhelp/portal/internal/models"
	internalsettings "github.com/speechhelp/portal/internal/settings"
	"gorm.io/gorm"
)

// SettingHandler manages runtime settings stored in the database.
type SettingHandler struct {
	db *gorm.DB // Database handle for settings.
}

// NewSettingHandler constructs a settings handler.
func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{db: db}
}

var positiveIntSettingKeys = map[string]struct{}{
	internalsettings.LoginRateWindowSecondsKey: {},
}

var nonNegativeIntSettingKeys = map[string]struct{}{
	internalsettings.LoginRateLimitKey:   {},
	internalsettings.TOTPRateLimitKey:    {},
	internalsettings.RateLimitRedisDBKey: {},
}

var boolSettingKeys = map[string]struct{}{
	internalsettings.RateLimitRedisEnabledKey: {},
}

var secretSettingKeys = map[string]struct{}{
	internalsettings.RateLimitRedisPasswordKey: {},
}

var (
	errPositiveIntegerValue    = errors.New("value must be a positive integer")
	errNonNegativeIntegerValue = errors.New("value must be a non-negative integer")
	errBoolValue               = errors.New("value must be a boolean")
	errStringValue             = errors.New("value must be a string")
	errSiteNameValue           = errors.New("site name must not be empty")
)

// List returns every editable setting with its current value. Secrets are masked.
func (h *SettingHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("key IN ?", internalsettings.EditableKeys).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}
	byKey := make(map[string]models.Setting, len(rows))
	for _, row := range rows {
		byKey[row.Key] = row
	}
	out := make([]gin.H, 0, len(internalsettings.EditableKeys))
	for _, key := range internalsettings.EditableKeys {
		row, ok := byKey[key]
		if !ok {
			out = append(out, gin.H{"key": key, "value": nil})
			continue
		}
		out = append(out, h.formatSetting(&row))
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// updateSettingRequest captures the payload for updating a setting.
type updateSettingRequest struct {
	Value json.RawMessage `json:"value"` // New JSON value.
}

// Update validates and upserts an editable setting, then refreshes the in-memory copy.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if !internalsettings.IsEditable(key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown setting"})
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errValidate := validateSettingValue(key, body.Value); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	setting, errSave := internalsettings.Save(c.Request.Context(), h.db, key, body.Value)
	if errSave != nil {
		log.WithError(errSave).Error("settings: update")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	internalsettings.StoreDBConfig(key, body.Value)
	c.JSON(http.StatusOK, h.formatSetting(setting))
}

func validateSettingValue(key string, value json.RawMessage) error {
	if _, ok := positiveIntSettingKeys[key]; ok {
		if n, okParse := internalsettings.ParseNonNegativeInt(value); !okParse || n == 0 {
			return errPositiveIntegerValue
		}
		return nil
	}
	if _, ok := nonNegativeIntSettingKeys[key]; ok {
		if _, okParse := internalsettings.ParseNonNegativeInt(value); !okParse {
			return errNonNegativeIntegerValue
		}
		return nil
	}
	if _, ok := boolSettingKeys[key]; ok {
		var parsed bool
		if errUnmarshal := json.Unmarshal(value, &parsed); errUnmarshal != nil {
			return errBoolValue
		}
		return nil
	}
	parsed, okParse := internalsettings.ParseString(value)
	if !okParse {
		return errStringValue
	}
	if key == internalsettings.SiteNameKey && parsed == "" {
		return errSiteNameValue
	}
	return nil
}

// formatSetting formats a setting row into response JSON.
func (h *SettingHandler) formatSetting(s *models.Setting) gin.H {
	if _, secret := secretSettingKeys[s.Key]; secret && len(bytes.TrimSpace(s.Value)) > 0 {
		return gin.H{"key": s.Key, "value": "********", "updated_at": s.UpdatedAt}
	}
	return gin.H{
		"key":        s.Key,
		"value":      s.Value,
		"updated_at": s.UpdatedAt,
	}
}
