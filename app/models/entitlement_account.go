package models

import "time"

// EntitlementAccount holds the per-user counters for a purchasable resource.
// AvailableUnits only grows through a settled, previously-uncredited payment;
// consumption moves units from available to used.
type EntitlementAccount struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;index:ux_entitlement_accounts_user_kind,unique,priority:1" json:"user_id"`
	Kind           string    `gorm:"type:varchar(32);not null;default:'listing_slot';index:ux_entitlement_accounts_user_kind,unique,priority:2" json:"kind"`
	AvailableUnits int64     `gorm:"not null;default:0" json:"available_units"`
	UsedUnits      int64     `gorm:"not null;default:0" json:"used_units"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
