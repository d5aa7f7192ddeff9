package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Payment status values. A payment starts pending and moves exactly once to
// success or failed; both are terminal.
const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

// Payment provider constants used across payment-related models.
const (
	PaymentProviderPaystack = "paystack"
)

// Purchase types recorded in the ledger for audit purposes.
const (
	PurchaseTypeListingSlots = "listing_slots"
)

// Entitlement kinds a payment may credit.
const (
	EntitlementKindListingSlot = "listing_slot"
)

// Payment is a single attempt to convert money into entitlement units. Rows
// are append-only: a failed payment is soft-voided via VoidedAt, never
// deleted, so the ledger stays a complete audit trail.
type Payment struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	ProviderReference string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"provider_reference" validate:"required,max=64"`
	UserID            uint       `gorm:"not null;index" json:"user_id" validate:"required"`
	AmountKobo        int64      `gorm:"not null" json:"amount_kobo" validate:"required,gt=0"`
	Currency          string     `gorm:"type:varchar(3);not null;default:'NGN'" json:"currency" validate:"required,len=3"`
	Status            string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status" validate:"oneof=pending success failed"`
	UnitsRequested    int        `gorm:"not null" json:"units_requested" validate:"required,gt=0"`
	EntitlementKind   string     `gorm:"type:varchar(32);not null;default:'listing_slot'" json:"entitlement_kind" validate:"required,max=32"`
	Provider          string     `gorm:"type:varchar(20);not null;default:'paystack'" json:"provider"`
	PurchaseType      string     `gorm:"type:varchar(32);not null;default:''" json:"purchase_type"`
	VoidedAt          *time.Time `gorm:"type:timestamp;default:null" json:"voided_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// IsTerminal reports whether the payment has reached a final status.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusFailed
}
