package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/metrics"
	"github.com/speechhelp/portal/internal/store"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// StatusCanceled is stored when Stripe deletes a subscription.
const StatusCanceled = "canceled"

// WebhookHandler verifies Stripe webhook deliveries and applies them exactly once.
type WebhookHandler struct {
	secret       string
	prices       PriceMap
	events       *store.StripeEventStore
	subs         *store.SubscriptionStore
	entitlements *entitlement.Service
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(secret string, prices PriceMap, events *store.StripeEventStore, subs *store.SubscriptionStore, entitlements *entitlement.Service) *WebhookHandler {
	return &WebhookHandler{
		secret:       strings.TrimSpace(secret),
		prices:       prices,
		events:       events,
		subs:         subs,
		entitlements: entitlements,
	}
}

// checkoutSessionPayload is the part of a checkout.session object the portal reads.
type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// subscriptionPayload is the part of a subscription object the portal reads. Newer API
// versions report the billing period per item.
type subscriptionPayload struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	EndedAt            int64  `json:"ended_at"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

func (p *subscriptionPayload) priceID() string {
	for _, item := range p.Items.Data {
		if id := strings.TrimSpace(item.Price.ID); id != "" {
			return id
		}
	}
	return ""
}

func (p *subscriptionPayload) period() (start, end int64) {
	start, end = p.CurrentPeriodStart, p.CurrentPeriodEnd
	for _, item := range p.Items.Data {
		if item.CurrentPeriodEnd != 0 {
			return item.CurrentPeriodStart, item.CurrentPeriodEnd
		}
	}
	return start, end
}

// Handle is the gin endpoint for Stripe deliveries.
func (h *WebhookHandler) Handle(c *gin.Context) {
	eventType := "unknown"
	result := "processed"
	defer func() {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
	}()

	if h.secret == "" {
		result = "unconfigured"
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook secret not configured"})
		return
	}

	payload, errRead := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit))
	if errRead != nil {
		result = "bad_request"
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	sigHeader := c.GetHeader("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		result = "bad_signature"
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing Stripe signature"})
		return
	}
	event, errConstruct := webhook.ConstructEventWithOptions(payload, sigHeader, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if errConstruct != nil {
		result = "bad_signature"
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid Stripe signature"})
		return
	}
	eventType = string(event.Type)

	applied, errProcess := h.process(c.Request.Context(), &event)
	if errProcess != nil {
		result = "failed"
		log.WithError(errProcess).WithFields(log.Fields{
			"event_id": event.ID,
			"type":     eventType,
		}).Error("stripe webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	if !applied {
		result = "duplicate"
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// process records the event and applies it in one transaction. The entitlement cache of
// the affected user is invalidated after commit.
func (h *WebhookHandler) process(ctx context.Context, event *stripe.Event) (bool, error) {
	var owner uint64
	applied, errProcess := h.events.Process(ctx, event.ID, string(event.Type), func(tx *gorm.DB) error {
		subs := h.subs.WithTx(tx)
		var errApply error
		owner, errApply = h.apply(ctx, subs, event)
		return errApply
	})
	if errProcess != nil {
		return false, errProcess
	}
	if applied && owner != 0 {
		h.entitlements.Invalidate(ctx, strconv.FormatUint(owner, 10))
	}
	return applied, nil
}

func (h *WebhookHandler) apply(ctx context.Context, subs *store.SubscriptionStore, event *stripe.Event) (uint64, error) {
	switch event.Type {
	case "checkout.session.completed":
		var session checkoutSessionPayload
		if errDecode := json.Unmarshal(event.Data.Raw, &session); errDecode != nil {
			return 0, fmt.Errorf("decode checkout.session: %w", errDecode)
		}
		return h.applyCheckout(ctx, subs, session)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub subscriptionPayload
		if errDecode := json.Unmarshal(event.Data.Raw, &sub); errDecode != nil {
			return 0, fmt.Errorf("decode subscription: %w", errDecode)
		}
		return h.applySubscription(ctx, subs, sub, false)

	case "customer.subscription.deleted":
		var sub subscriptionPayload
		if errDecode := json.Unmarshal(event.Data.Raw, &sub); errDecode != nil {
			return 0, fmt.Errorf("decode subscription: %w", errDecode)
		}
		return h.applySubscription(ctx, subs, sub, true)

	default:
		log.WithFields(log.Fields{
			"event_id": event.ID,
			"type":     string(event.Type),
		}).Info("stripe webhook ignored (unhandled type)")
		return 0, nil
	}
}

func (h *WebhookHandler) applyCheckout(ctx context.Context, subs *store.SubscriptionStore, session checkoutSessionPayload) (uint64, error) {
	userID, ok := linkedUserID(session.ClientReferenceID, session.Metadata)
	if !ok {
		log.WithField("session_id", session.ID).Warn("stripe checkout.session.completed without user linkage")
		return 0, nil
	}
	if errLink := subs.LinkCustomer(ctx, userID, session.Customer); errLink != nil {
		return 0, errLink
	}
	return userID, nil
}

func (h *WebhookHandler) applySubscription(ctx context.Context, subs *store.SubscriptionStore, sub subscriptionPayload, deleted bool) (uint64, error) {
	update := store.StripeSubscriptionUpdate{
		CustomerID:           strings.TrimSpace(sub.Customer),
		SubscriptionID:       strings.TrimSpace(sub.ID),
		PriceID:              sub.priceID(),
		Status:               strings.TrimSpace(sub.Status),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		ResetUsageOnNewCycle: !deleted,
	}
	if userID, ok := linkedUserID("", sub.Metadata); ok {
		update.UserID = userID
	}
	if tier, ok := h.prices.TierFor(update.PriceID); ok {
		update.Tier = tier
	} else if update.PriceID != "" {
		log.WithFields(log.Fields{
			"subscription_id": update.SubscriptionID,
			"price_id":        update.PriceID,
		}).Warn("stripe subscription with unmapped price; tier left unchanged")
	}
	start, end := sub.period()
	if start > 0 {
		update.PeriodStart = time.Unix(start, 0).UTC()
	}
	if end > 0 {
		periodEnd := time.Unix(end, 0).UTC()
		update.PeriodEnd = &periodEnd
	}
	if deleted {
		update.Status = StatusCanceled
		update.CancelAtPeriodEnd = false
		if sub.EndedAt > 0 {
			endedAt := time.Unix(sub.EndedAt, 0).UTC()
			update.PeriodEnd = &endedAt
		}
	}

	owner, errApply := subs.ApplyStripe(ctx, update)
	if errApply != nil {
		if errors.Is(errApply, store.ErrNotFound) {
			return 0, fmt.Errorf("no subscription for stripe subscription %s: %w", update.SubscriptionID, errApply)
		}
		return 0, errApply
	}
	return owner, nil
}

func linkedUserID(clientReference string, metadata map[string]string) (uint64, bool) {
	raw := strings.TrimSpace(metadata[MetadataUserID])
	if raw == "" {
		raw = strings.TrimSpace(clientReference)
	}
	if raw == "" {
		return 0, false
	}
	id, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}
