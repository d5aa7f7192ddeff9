package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/adebayo-oss/slotpay/internal/pkg/payments"
)

// PaymentVerifier is the slice of the orchestrator a verification job needs.
type PaymentVerifier interface {
	VerifyAndReconcile(ctx context.Context, providerReference string) error
}

// VerifyPaymentProcessor polls the payment provider for the authoritative
// state of a pending payment and feeds it through reconciliation. Reconcile is
// idempotent, so a job racing a webhook delivery for the same reference is
// harmless: one of them settles, the other no-ops.
type VerifyPaymentProcessor struct {
	payments PaymentVerifier
}

// NewVerifyPaymentProcessor creates a processor bound to the orchestrator.
func NewVerifyPaymentProcessor(paymentService PaymentVerifier) *VerifyPaymentProcessor {
	return &VerifyPaymentProcessor{payments: paymentService}
}

// Process handles one verification job.
func (p *VerifyPaymentProcessor) Process(ctx context.Context, job *Job) error {
	if job.Type != JobTypeVerifyPayment {
		return fmt.Errorf("unsupported job type: %s", job.Type)
	}
	if job.ProviderReference == "" {
		return errors.New("verify job without provider reference")
	}

	err := p.payments.VerifyAndReconcile(ctx, job.ProviderReference)
	if err != nil {
		// An unknown reference will never become known; retrying is pointless.
		if errors.Is(err, payments.ErrUnknownReference) {
			log.Warnf("[JobQueue] Verify job for unknown reference %s dropped", job.ProviderReference)
			return nil
		}
		return err
	}
	return nil
}
