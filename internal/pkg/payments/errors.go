package payments

import "errors"

// Error taxonomy of the payment engine. Validation and not-found errors are
// returned to the caller; webhook-path errors are absorbed into an idempotent
// acknowledgment by the controller after logging.
var (
	// ErrInvalidRequest is returned for user-correctable input (bad amount or units).
	ErrInvalidRequest = errors.New("invalid payment request")
	// ErrUserNotFound is returned when the payer does not exist or is not active.
	ErrUserNotFound = errors.New("user not found or inactive")
	// ErrProviderUnavailable is returned on provider network failures and 5xx responses.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrProviderRejected is returned when the provider rejects the request (4xx).
	ErrProviderRejected = errors.New("payment provider rejected the transaction")
	// ErrDuplicateReference is returned when a provider reference already exists in the ledger.
	ErrDuplicateReference = errors.New("provider reference already exists")
	// ErrUnknownReference signals a notification for a reference the ledger has never seen.
	ErrUnknownReference = errors.New("unknown provider reference")
	// ErrInternal is returned when the ledger write fails after a successful
	// provider call; the orphaned provider transaction is logged for manual review.
	ErrInternal = errors.New("internal payment error")
	// ErrInsufficientUnits is returned when consumption exceeds the available balance.
	ErrInsufficientUnits = errors.New("insufficient entitlement units")
)
