// Package entitlements is the purchase facade for listing slots: it prices a
// slot purchase, delegates payment creation to the orchestrator, and serves
// balance reads with a short-lived cache in front of the counters.
package entitlements

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/adebayo-oss/slotpay/app/models"
	"github.com/adebayo-oss/slotpay/internal/pkg/cache"
	"github.com/adebayo-oss/slotpay/internal/pkg/env"
	"github.com/adebayo-oss/slotpay/internal/pkg/payments"
	"github.com/gofiber/fiber/v2/log"
)

const (
	defaultSlotPriceKobo  = int64(50000) // NGN 500.00 per listing slot
	balanceCacheKeyPrefix = "entitlements:balance:"
	balanceCacheTTL       = 30 * time.Second
)

// Balance is the client-facing view of the per-user counters.
type Balance struct {
	UserID         uint  `json:"user_id"`
	AvailableUnits int64 `json:"available_units"`
	UsedUnits      int64 `json:"used_units"`
}

// Service computes prices and delegates to the payment orchestrator.
type Service struct {
	payments *payments.Service
}

// NewService creates the purchase facade and registers the cache invalidation
// hook on the orchestrator.
func NewService(paymentService *payments.Service) *Service {
	s := &Service{payments: paymentService}
	paymentService.SetOnCredited(func(userID uint, kind string) {
		InvalidateBalanceCache(userID)
	})
	return s
}

// SlotPriceKobo returns the configured price of one listing slot in minor units.
func SlotPriceKobo() int64 {
	raw := env.GetEnv("SLOT_PRICE_KOBO", "")
	if raw == "" {
		return defaultSlotPriceKobo
	}
	price, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || price <= 0 {
		log.Warnf("[Entitlements] invalid SLOT_PRICE_KOBO %q, using default", raw)
		return defaultSlotPriceKobo
	}
	return price
}

// PriceFor returns the total amount in minor units for the requested units.
func PriceFor(units int) int64 {
	if units <= 0 {
		return 0
	}
	return int64(units) * SlotPriceKobo()
}

// PurchaseSlots prices the requested units and creates the payment intent.
// Slots are only credited once the payment settles through reconciliation.
func (s *Service) PurchaseSlots(ctx context.Context, userID uint, units int) (*payments.CreatePaymentResult, error) {
	if units <= 0 {
		return nil, payments.ErrInvalidRequest
	}

	return s.payments.CreatePayment(ctx, payments.CreatePaymentInput{
		UserID:          userID,
		AmountKobo:      PriceFor(units),
		Currency:        env.GetEnv("PAYMENT_CURRENCY", "NGN"),
		UnitsRequested:  units,
		EntitlementKind: models.EntitlementKindListingSlot,
		PurchaseType:    models.PurchaseTypeListingSlots,
	})
}

// GetPaymentStatus is the client polling read for a purchase awaiting its
// webhook, keyed by the internal payment id.
func (s *Service) GetPaymentStatus(ctx context.Context, paymentID uint) (*models.Payment, error) {
	return s.payments.GetPayment(ctx, paymentID)
}

// GetBalance returns the user's slot counters, served from a short-TTL cache.
// The database stays the source of truth; the cache is invalidated after every
// credit and expires on its own otherwise.
func (s *Service) GetBalance(ctx context.Context, userID uint) (*Balance, error) {
	key := balanceCacheKey(userID)
	if cached, err := cache.Get(key); err == nil && cached != "" {
		var b Balance
		if err := json.Unmarshal([]byte(cached), &b); err == nil {
			return &b, nil
		}
	}

	account, err := s.payments.Balance(ctx, userID, models.EntitlementKindListingSlot)
	if err != nil {
		return nil, err
	}

	b := &Balance{
		UserID:         userID,
		AvailableUnits: account.AvailableUnits,
		UsedUnits:      account.UsedUnits,
	}
	if encoded, err := json.Marshal(b); err == nil {
		if err := cache.Set(key, string(encoded), balanceCacheTTL); err != nil {
			log.Warnf("[Entitlements] balance cache write failed user=%d: %v", userID, err)
		}
	}
	return b, nil
}

// ConsumeSlots is the internal hook for the catalog service when a listing is
// published. It moves units from available to used.
func (s *Service) ConsumeSlots(ctx context.Context, userID uint, units int64) error {
	if err := s.payments.ConsumeUnits(ctx, userID, models.EntitlementKindListingSlot, units); err != nil {
		return err
	}
	InvalidateBalanceCache(userID)
	return nil
}

// InvalidateBalanceCache drops the cached balance for a user.
func InvalidateBalanceCache(userID uint) {
	if err := cache.Delete(balanceCacheKey(userID)); err != nil {
		log.Warnf("[Entitlements] balance cache invalidation failed user=%d: %v", userID, err)
	}
}

func balanceCacheKey(userID uint) string {
	return fmt.Sprintf("%s%d", balanceCacheKeyPrefix, userID)
}
