package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/adebayo-oss/slotpay/app/models"
	"github.com/adebayo-oss/slotpay/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const referencePrefix = "SP-"

// Service is the payment orchestrator: it creates payment intents and drives
// the pending->terminal state machine. It is the only component allowed to
// credit entitlement units, and it does so exclusively through the
// reconciliation path - creation never credits anything.
type Service struct {
	repo          Repository
	provider      Provider
	webhookSecret string
	callbackURL   string

	// onCredited is invoked after a settlement credited units, outside the
	// transaction. Used for cache invalidation, never for correctness.
	onCredited func(userID uint, kind string)
}

// NewService creates a payment orchestrator from injected collaborators.
func NewService(repo Repository, provider Provider) *Service {
	return &Service{
		repo:          repo,
		provider:      provider,
		webhookSecret: strings.TrimSpace(env.GetEnv("PAYSTACK_WEBHOOK_SECRET", env.GetEnv("PAYSTACK_SECRET_KEY", ""))),
		callbackURL:   strings.TrimSpace(env.GetEnv("PAYMENT_CALLBACK_URL", "")),
	}
}

// NewServiceFromDB creates a payment orchestrator from a GORM DB handle with
// the Paystack client configured from the environment.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), NewPaystackClientFromEnv())
}

// SetOnCredited registers a post-settlement hook.
func (s *Service) SetOnCredited(fn func(userID uint, kind string)) {
	s.onCredited = fn
}

// CreatePayment validates the purchase, initializes the hosted transaction
// with the provider, and records the pending ledger row. If the ledger insert
// fails after the provider call succeeded, a provider-side transaction exists
// without a local record; that is logged at error level for manual
// reconciliation and surfaced as ErrInternal so the client retries with a
// fresh reference.
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (*CreatePaymentResult, error) {
	if in.AmountKobo <= 0 || in.UnitsRequested <= 0 {
		return nil, ErrInvalidRequest
	}
	if in.EntitlementKind == "" {
		in.EntitlementKind = models.EntitlementKindListingSlot
	}
	if in.Currency == "" {
		in.Currency = env.GetEnv("PAYMENT_CURRENCY", "NGN")
	}

	user, err := s.repo.GetUserByID(in.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, ErrUserNotFound
	}

	reference := referencePrefix + uuid.NewString()

	init, err := s.provider.InitializeTransaction(ctx, InitializeRequest{
		Email:       user.Email,
		AmountKobo:  in.AmountKobo,
		Currency:    in.Currency,
		Reference:   reference,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		return nil, err
	}

	// Make sure the counter row exists before any settlement can race the
	// first credit.
	if err := s.repo.EnsureAccount(in.UserID, in.EntitlementKind); err != nil {
		log.Errorf("[Payments] ensure account failed user=%d kind=%s: %v", in.UserID, in.EntitlementKind, err)
	}

	payment := &models.Payment{
		ProviderReference: reference,
		UserID:            in.UserID,
		AmountKobo:        in.AmountKobo,
		Currency:          in.Currency,
		Status:            models.PaymentStatusPending,
		UnitsRequested:    in.UnitsRequested,
		EntitlementKind:   in.EntitlementKind,
		Provider:          models.PaymentProviderPaystack,
		PurchaseType:      in.PurchaseType,
	}
	if err := s.repo.InsertPending(payment); err != nil {
		log.Errorf("[Payments] ledger insert failed after provider initialize reference=%s user=%d: %v - provider transaction has no local record", reference, in.UserID, err)
		return nil, ErrInternal
	}

	log.Infof("[Payments] created payment reference=%s user=%d amount=%d units=%d", reference, in.UserID, in.AmountKobo, in.UnitsRequested)

	return &CreatePaymentResult{
		AuthorizationURL:  init.AuthorizationURL,
		ProviderReference: reference,
		Payment:           payment,
	}, nil
}

// Reconcile converts a provider-reported status into an at-most-once local
// transition plus credit. Safe to call any number of times with the same
// arguments: duplicates and late deliveries observe the terminal row and
// no-op. Every attempt is logged with reference, prior state, and outcome.
func (s *Service) Reconcile(ctx context.Context, providerReference, reportedStatus string) error {
	_ = ctx
	ref := strings.TrimSpace(providerReference)
	if ref == "" {
		log.Warnf("[Payments] reconcile without reference ignored")
		return ErrUnknownReference
	}

	target, final := normalizeReportedStatus(reportedStatus)
	if !final {
		log.Infof("[Payments] reconcile reference=%s reported=%q: not a final status, ignored", ref, reportedStatus)
		return nil
	}

	applied, payment, err := s.repo.FinalizeAndCredit(ref, target)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Payments] reconcile reference=%s: unknown reference (forged or stale notification?)", ref)
			return ErrUnknownReference
		}
		log.Errorf("[Payments] reconcile reference=%s target=%s failed: %v", ref, target, err)
		return err
	}

	if !applied {
		log.Infof("[Payments] reconcile reference=%s target=%s: already %s, no-op", ref, target, payment.Status)
		return nil
	}

	log.Infof("[Payments] reconcile reference=%s prior=pending now=%s user=%d units=%d", ref, payment.Status, payment.UserID, payment.UnitsRequested)

	if target == models.PaymentStatusSuccess && s.onCredited != nil {
		s.onCredited(payment.UserID, payment.EntitlementKind)
	}
	return nil
}

// VerifyAndReconcile is the polling fallback: it asks the provider for the
// authoritative transaction state and feeds it through Reconcile.
func (s *Service) VerifyAndReconcile(ctx context.Context, providerReference string) error {
	vr, err := s.provider.VerifyTransaction(ctx, providerReference)
	if err != nil {
		return err
	}
	return s.Reconcile(ctx, providerReference, vr.Status)
}

// VerifyNotificationSignature gates the webhook ingress on the raw body bytes.
func (s *Service) VerifyNotificationSignature(rawPayload []byte, signatureHeader string) bool {
	return VerifyWebhookSignature(rawPayload, signatureHeader, s.webhookSecret)
}

// GetPayment returns a ledger row by internal id.
func (s *Service) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	_ = ctx
	return s.repo.GetPaymentByID(id)
}

// GetPaymentByReference returns a ledger row by provider reference.
func (s *Service) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	_ = ctx
	return s.repo.GetPaymentByReference(reference)
}

// ListUserPayments returns a page of the user's ledger, newest first.
func (s *Service) ListUserPayments(ctx context.Context, userID uint, offset, limit int) ([]models.Payment, error) {
	_ = ctx
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListPaymentsByUser(userID, offset, limit)
}

// ListStalePendingReferences exposes sweep candidates to the verification queue.
func (s *Service) ListStalePendingReferences(ctx context.Context, olderThanMinutes, limit int) ([]string, error) {
	_ = ctx
	if olderThanMinutes <= 0 {
		olderThanMinutes = 10
	}
	if limit <= 0 {
		limit = 100
	}
	cutoff := time.Now().Add(-time.Duration(olderThanMinutes) * time.Minute)
	return s.repo.ListStalePendingReferences(cutoff, limit)
}

// Balance returns the per-user entitlement counters.
func (s *Service) Balance(ctx context.Context, userID uint, kind string) (*models.EntitlementAccount, error) {
	_ = ctx
	account, err := s.repo.GetAccount(userID, kind)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No purchases yet: report empty counters instead of a 404.
			return &models.EntitlementAccount{UserID: userID, Kind: kind}, nil
		}
		return nil, err
	}
	return account, nil
}

// ConsumeUnits is the catalog collaborator's decrement path.
func (s *Service) ConsumeUnits(ctx context.Context, userID uint, kind string, units int64) error {
	_ = ctx
	if units <= 0 {
		return ErrInvalidRequest
	}
	return s.repo.ConsumeUnits(userID, kind, units)
}
