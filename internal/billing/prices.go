// Package billing connects subscriptions to Stripe: checkout sessions for upgrades and
// webhook events that keep subscription rows in sync with Stripe.
package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/speechhelp/portal/internal/entitlement"
)

// ErrTierNotPurchasable is returned for tiers without a configured Stripe price.
var ErrTierNotPurchasable = errors.New("billing: tier is not purchasable")

// PriceMap links paid tiers to Stripe price IDs in both directions.
type PriceMap struct {
	byTier  map[entitlement.Tier]string
	byPrice map[string]entitlement.Tier
}

// NewPriceMap validates a tier name to price ID mapping. The trial tier cannot be sold.
func NewPriceMap(prices map[string]string) (PriceMap, error) {
	m := PriceMap{
		byTier:  make(map[entitlement.Tier]string, len(prices)),
		byPrice: make(map[string]entitlement.Tier, len(prices)),
	}
	for rawTier, rawPrice := range prices {
		tier, errTier := entitlement.ParseTier(rawTier)
		if errTier != nil {
			return PriceMap{}, fmt.Errorf("billing: price map: %w", errTier)
		}
		if tier == entitlement.TierTrial {
			return PriceMap{}, fmt.Errorf("billing: price map: %s cannot have a price", tier)
		}
		price := strings.TrimSpace(rawPrice)
		if price == "" {
			continue
		}
		if other, dup := m.byPrice[price]; dup && other != tier {
			return PriceMap{}, fmt.Errorf("billing: price map: %s used by %s and %s", price, other, tier)
		}
		m.byTier[tier] = price
		m.byPrice[price] = tier
	}
	return m, nil
}

// PriceFor returns the Stripe price of a tier.
func (m PriceMap) PriceFor(tier entitlement.Tier) (string, error) {
	price, ok := m.byTier[tier]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTierNotPurchasable, tier)
	}
	return price, nil
}

// TierFor maps a Stripe price back to its tier.
func (m PriceMap) TierFor(priceID string) (entitlement.Tier, bool) {
	tier, ok := m.byPrice[strings.TrimSpace(priceID)]
	return tier, ok
}
