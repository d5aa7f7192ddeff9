package payments

import (
	"strings"

	"github.com/adebayo-oss/slotpay/app/models"
)

// InitializeRequest is the provider-neutral input for starting a hosted
// transaction. Amounts are always expressed in the provider's minor unit.
type InitializeRequest struct {
	Email       string
	AmountKobo  int64
	Currency    string
	Reference   string
	CallbackURL string
}

// InitializeResult carries the redirect target for the hosted payment page.
type InitializeResult struct {
	AuthorizationURL  string
	AccessCode        string
	ProviderReference string
}

// VerifyResult is the provider's view of a transaction when polled.
type VerifyResult struct {
	ProviderReference string
	Status            string
	AmountKobo        int64
	Currency          string
}

// CreatePaymentInput describes a purchase attempt entering the orchestrator.
type CreatePaymentInput struct {
	UserID          uint
	AmountKobo      int64
	Currency        string
	UnitsRequested  int
	EntitlementKind string
	PurchaseType    string
}

// CreatePaymentResult is returned to the client for the provider redirect.
type CreatePaymentResult struct {
	AuthorizationURL  string
	ProviderReference string
	Payment           *models.Payment
}

// normalizeReportedStatus maps a provider-reported status onto the internal
// state machine. Anything that is neither success nor failure (e.g. Paystack's
// "abandoned" or "ongoing") is treated as not-yet-final and ignored.
func normalizeReportedStatus(reported string) (target string, final bool) {
	switch strings.ToLower(strings.TrimSpace(reported)) {
	case "success":
		return models.PaymentStatusSuccess, true
	case "failed":
		return models.PaymentStatusFailed, true
	default:
		return "", false
	}
}
