package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/speechhelp/portal/internal/config"
	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/models"
	"github.com/speechhelp/portal/internal/store"
	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
)

// Metadata keys written on checkout sessions and subscriptions.
const (
	MetadataUserID = "user_id"
	MetadataTier   = "tier"
)

// ErrCheckoutDisabled is returned when no Stripe secret key is configured.
var ErrCheckoutDisabled = errors.New("billing: checkout is not configured")

// CheckoutSession is what the client needs to continue to Stripe.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutService creates Stripe checkout sessions for tier upgrades.
type CheckoutService struct {
	cfg           config.StripeConfig
	prices        PriceMap
	subs          *store.SubscriptionStore
	createSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewCheckoutService constructs a CheckoutService backed by the Stripe API.
func NewCheckoutService(cfg config.StripeConfig, prices PriceMap, subs *store.SubscriptionStore) *CheckoutService {
	return &CheckoutService{
		cfg:           cfg,
		prices:        prices,
		subs:          subs,
		createSession: stripesession.New,
	}
}

// Create starts a subscription checkout for the user. An existing Stripe customer is
// reused so renewals land on the same subscription row.
func (s *CheckoutService) Create(ctx context.Context, user *models.User, tier entitlement.Tier) (CheckoutSession, error) {
	if s == nil || !s.cfg.Enabled() {
		return CheckoutSession{}, ErrCheckoutDisabled
	}
	if user == nil {
		return CheckoutSession{}, fmt.Errorf("billing: checkout: missing user")
	}
	priceID, errPrice := s.prices.PriceFor(tier)
	if errPrice != nil {
		return CheckoutSession{}, errPrice
	}

	userID := strconv.FormatUint(user.ID, 10)
	metadata := map[string]string{
		MetadataUserID: userID,
		MetadataTier:   string(tier),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(strings.TrimSpace(s.cfg.SuccessURL)),
		CancelURL:         stripe.String(strings.TrimSpace(s.cfg.CancelURL)),
		ClientReferenceID: stripe.String(userID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	params.Context = ctx

	customerID := ""
	if s.subs != nil {
		row, errGet := s.subs.Get(ctx, user.ID)
		if errGet != nil && !errors.Is(errGet, store.ErrNotFound) {
			return CheckoutSession{}, fmt.Errorf("billing: checkout: %w", errGet)
		}
		if row != nil && row.StripeCustomerID != nil {
			customerID = strings.TrimSpace(*row.StripeCustomerID)
		}
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	} else if email := strings.TrimSpace(user.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	stripe.Key = strings.TrimSpace(s.cfg.SecretKey)
	session, errCreate := s.createSession(params)
	if errCreate != nil {
		return CheckoutSession{}, fmt.Errorf("billing: create checkout session: %w", errCreate)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		return CheckoutSession{}, fmt.Errorf("billing: create checkout session: empty session url")
	}
	return CheckoutSession{ID: session.ID, URL: session.URL}, nil
}
