package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/metrics"
	"github.com/speechhelp/portal/internal/models"
	"github.com/speechhelp/portal/internal/store"
)

// SpeechHandler serves the current user's speeches.
type SpeechHandler struct {
	speeches     *store.SpeechStore
	entitlements *entitlement.Service
}

// NewSpeechHandler constructs a SpeechHandler.
func NewSpeechHandler(speeches *store.SpeechStore, entitlements *entitlement.Service) *SpeechHandler {
	return &SpeechHandler{speeches: speeches, entitlements: entitlements}
}

// List returns a page of the user's speeches.
func (h *SpeechHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	rows, total, errList := h.speeches.List(c.Request.Context(), userID, pageSize, (page-1)*pageSize)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list speeches failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatSpeech(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"speeches": out, "total": total, "page": page, "page_size": pageSize})
}

// createSpeechRequest defines the new speech payload.
type createSpeechRequest struct {
	Title    string `json:"title"`
	Occasion string `json:"occasion"`
	Content  string `json:"content"`
}

// Create stores a speech when the entitlement allows it. A denial answers 403 with the
// decision so clients can show the upgrade prompt.
func (h *SpeechHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body createSpeechRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing title"})
		return
	}

	ctx := c.Request.Context()
	speech, decision, errCreate := h.speeches.Create(ctx, userID, store.SpeechInput{
		Title:    body.Title,
		Occasion: body.Occasion,
		Content:  body.Content,
	})
	if errCreate != nil {
		metrics.SpeechCreationsTotal.WithLabelValues("error").Inc()
		if errors.Is(errCreate, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		log.WithError(errCreate).WithField("user_id", userID).Error("speech: create")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create speech failed"})
		return
	}
	if !decision.Allowed {
		metrics.SpeechCreationsTotal.WithLabelValues(decision.Code).Inc()
		c.JSON(http.StatusForbidden, gin.H{
			"allowed": false,
			"reason":  decision.Reason,
			"code":    decision.Code,
		})
		return
	}
	h.entitlements.Invalidate(ctx, strconv.FormatUint(userID, 10))
	metrics.SpeechCreationsTotal.WithLabelValues("created").Inc()
	c.JSON(http.StatusCreated, formatSpeech(speech))
}

// Get returns one of the user's speeches by public ID.
func (h *SpeechHandler) Get(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	speech, errGet := h.speeches.Get(c.Request.Context(), userID, c.Param("id"))
	if errGet != nil {
		if errors.Is(errGet, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatSpeech(speech))
}

func formatSpeech(speech *models.Speech) gin.H {
	return gin.H{
		"id":         speech.PublicID,
		"title":      speech.Title,
		"occasion":   speech.Occasion,
		"content":    speech.Content,
		"created_at": speech.CreatedAt,
		"updated_at": speech.UpdatedAt,
	}
}
