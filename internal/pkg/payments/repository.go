package payments

import (
	"fmt"
	"time"

	"github.com/adebayo-oss/slotpay/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the payment orchestrator. The
// ledger is append-only: payments are inserted pending and finalized through a
// single conditional update, never deleted.
type Repository interface {
	InsertPending(payment *models.Payment) error
	GetPaymentByID(id uint) (*models.Payment, error)
	GetPaymentByReference(providerReference string) (*models.Payment, error)
	ListPaymentsByUser(userID uint, offset, limit int) ([]models.Payment, error)
	ListStalePendingReferences(olderThan time.Time, limit int) ([]string, error)
	FinalizeAndCredit(providerReference, newStatus string) (bool, *models.Payment, error)
	EnsureAccount(userID uint, kind string) error
	GetAccount(userID uint, kind string) (*models.EntitlementAccount, error)
	ConsumeUnits(userID uint, kind string, units int64) error
	GetUserByID(id uint) (*models.User, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// InsertPending writes a new pending ledger row. A conflicting provider
// reference is reported as ErrDuplicateReference and leaves the ledger
// untouched.
func (r *gormRepository) InsertPending(payment *models.Payment) error {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_reference"}},
		DoNothing: true,
	}).Create(payment)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, payment.ProviderReference)
	}
	return nil
}

func (r *gormRepository) GetPaymentByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *gormRepository) GetPaymentByReference(providerReference string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Where("provider_reference = ?", providerReference).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *gormRepository) ListPaymentsByUser(userID uint, offset, limit int) ([]models.Payment, error) {
	var list []models.Payment
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&list).Error
	return list, err
}

// ListStalePendingReferences returns references of pending payments older than
// the given cutoff, used by the verification sweeper.
func (r *gormRepository) ListStalePendingReferences(olderThan time.Time, limit int) ([]string, error) {
	var refs []string
	err := r.db.Model(&models.Payment{}).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, olderThan).
		Order("created_at").
		Limit(limit).
		Pluck("provider_reference", &refs).Error
	return refs, err
}

// FinalizeAndCredit performs the exactly-once settlement: a conditional
// pending->terminal status flip and, on success, the entitlement credit, both
// inside one transaction. The guard on the current pending status serializes
// concurrent deliveries of the same notification; whoever loses the race
// observes zero affected rows and no-ops with applied=false.
func (r *gormRepository) FinalizeAndCredit(providerReference, newStatus string) (bool, *models.Payment, error) {
	applied := false
	var payment models.Payment

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("provider_reference = ?", providerReference).First(&payment).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"status": newStatus}
		if newStatus == models.PaymentStatusFailed {
			now := time.Now()
			updates["voided_at"] = &now
		}

		res := tx.Model(&models.Payment{}).
			Where("provider_reference = ? AND status = ?", providerReference, models.PaymentStatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already terminal: duplicate or late notification, not an error.
			return nil
		}
		applied = true

		if newStatus == models.PaymentStatusSuccess {
			if err := creditUnits(tx, payment.UserID, payment.EntitlementKind, int64(payment.UnitsRequested)); err != nil {
				return err
			}
		}

		return tx.Where("provider_reference = ?", providerReference).First(&payment).Error
	})
	if err != nil {
		return false, nil, err
	}
	return applied, &payment, nil
}

// creditUnits atomically increments the available counter. The increment is
// commutative, so two different payments for the same user may settle
// concurrently without a user-level lock.
func creditUnits(tx *gorm.DB, userID uint, kind string, units int64) error {
	if units <= 0 {
		return fmt.Errorf("credit units must be positive, got %d", units)
	}

	res := tx.Model(&models.EntitlementAccount{}).
		Where("user_id = ? AND kind = ?", userID, kind).
		UpdateColumn("available_units", gorm.Expr("available_units + ?", units))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Account row missing (created lazily); a concurrent create aborts the
		// surrounding transaction via the unique index and the retry settles it.
		return tx.Create(&models.EntitlementAccount{
			UserID:         userID,
			Kind:           kind,
			AvailableUnits: units,
		}).Error
	}
	return nil
}

// EnsureAccount creates the per-user counter row if it does not exist yet.
func (r *gormRepository) EnsureAccount(userID uint, kind string) error {
	account := models.EntitlementAccount{UserID: userID, Kind: kind}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "kind"}},
		DoNothing: true,
	}).Create(&account).Error
}

func (r *gormRepository) GetAccount(userID uint, kind string) (*models.EntitlementAccount, error) {
	var account models.EntitlementAccount
	err := r.db.Where("user_id = ? AND kind = ?", userID, kind).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ConsumeUnits moves units from available to used for the catalog collaborator.
// The balance guard is part of the update condition, so an overdraw simply
// affects zero rows.
func (r *gormRepository) ConsumeUnits(userID uint, kind string, units int64) error {
	if units <= 0 {
		return fmt.Errorf("consume units must be positive, got %d", units)
	}

	res := r.db.Model(&models.EntitlementAccount{}).
		Where("user_id = ? AND kind = ? AND available_units >= ?", userID, kind, units).
		Updates(map[string]interface{}{
			"available_units": gorm.Expr("available_units - ?", units),
			"used_units":      gorm.Expr("used_units + ?", units),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientUnits
	}
	return nil
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
