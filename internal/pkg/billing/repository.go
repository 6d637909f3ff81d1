package billing

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stitchtrackhq/StitchTrack/app/models"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/database"
)

// Repository is the persistence surface the plan-change service and the
// webhook reconciler need. Tests provide an in-memory implementation.
type Repository interface {
	// GetBillingRecord loads the factory's billing record. Returns nil, nil
	// when the factory has none yet.
	GetBillingRecord(factoryID uint) (*models.BillingRecord, error)
	// GetOrCreateBillingRecord loads the factory's billing record, creating
	// a trial record if none exists.
	GetOrCreateBillingRecord(factoryID uint) (*models.BillingRecord, error)
	// GetBillingRecordBySubscription looks up a record by stored provider
	// subscription reference. Returns nil, nil when no record matches.
	GetBillingRecordBySubscription(subscriptionID string) (*models.BillingRecord, error)
	// GetBillingRecordByCustomer looks up a record by stored provider
	// customer reference. Returns nil, nil when no record matches.
	GetBillingRecordByCustomer(customerID string) (*models.BillingRecord, error)
	// SaveBillingRecord persists all mutable fields of the record.
	SaveBillingRecord(record *models.BillingRecord) error

	// OwnerEmail returns the factory owner's email address.
	OwnerEmail(factoryID uint) (string, error)
	// FactoryIDByUserEmail resolves a factory through a user's account email.
	// Returns 0, nil when no user matches.
	FactoryIDByUserEmail(email string) (uint, error)
	// FactoryIDByUserID resolves a factory through a user ID. Returns 0, nil
	// when no user matches.
	FactoryIDByUserID(userID uint) (uint, error)
	// AdminEmails returns the email addresses of the factory's owner and
	// admins, for billing notifications.
	AdminEmails(factoryID uint) ([]string, error)

	// CreateWebhookEventIfNotExists records the event for idempotent
	// processing. Returns false when the provider event ID was seen before.
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, error)
	// MarkWebhookProcessed stamps the event as processed, storing the
	// processing error if any.
	MarkWebhookProcessed(eventID uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates the GORM-backed billing repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// NewServiceFromDB wires a plan-change service against the global database,
// the Stripe gateway and the default catalog.
func NewServiceFromDB() *Service {
	return NewService(NewRepository(database.GetDB()), NewStripeGatewayFromEnv(), DefaultCatalog())
}

// NewReconcilerFromDB wires a webhook reconciler against the global database,
// the Stripe gateway and the default catalog.
func NewReconcilerFromDB() *Reconciler {
	repo := NewRepository(database.GetDB())
	return NewReconciler(repo, NewStripeGatewayFromEnv(), DefaultCatalog(), NewMailNotifier(repo))
}

func (r *gormRepository) GetBillingRecord(factoryID uint) (*models.BillingRecord, error) {
	var record models.BillingRecord
	err := r.db.Where("factory_id = ?", factoryID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load billing record for factory %d: %w", factoryID, err)
	}
	return &record, nil
}

func (r *gormRepository) GetOrCreateBillingRecord(factoryID uint) (*models.BillingRecord, error) {
	record, err := r.GetBillingRecord(factoryID)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return record, nil
	}

	record = &models.BillingRecord{
		FactoryID:       factoryID,
		Tier:            "trial",
		BillingInterval: models.BillingIntervalMonth,
		Status:          models.BillingStatusTrial,
		MaxLines:        1,
	}
	err = r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "factory_id"}},
		DoNothing: true,
	}).Create(record).Error
	if err != nil {
		return nil, fmt.Errorf("create billing record for factory %d: %w", factoryID, err)
	}
	// A concurrent insert may have won the conflict clause; re-read.
	if record.ID == 0 {
		return r.GetBillingRecord(factoryID)
	}
	return record, nil
}

func (r *gormRepository) GetBillingRecordBySubscription(subscriptionID string) (*models.BillingRecord, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	var record models.BillingRecord
	err := r.db.Where("stripe_subscription_id = ?", subscriptionID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load billing record by subscription %s: %w", subscriptionID, err)
	}
	return &record, nil
}

func (r *gormRepository) GetBillingRecordByCustomer(customerID string) (*models.BillingRecord, error) {
	if customerID == "" {
		return nil, nil
	}
	var record models.BillingRecord
	err := r.db.Where("stripe_customer_id = ?", customerID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load billing record by customer %s: %w", customerID, err)
	}
	return &record, nil
}

func (r *gormRepository) SaveBillingRecord(record *models.BillingRecord) error {
	if err := r.db.Save(record).Error; err != nil {
		return fmt.Errorf("save billing record %d: %w", record.ID, err)
	}
	return nil
}

func (r *gormRepository) OwnerEmail(factoryID uint) (string, error) {
	var user models.User
	err := r.db.Where("factory_id = ? AND role = ?", factoryID, models.ROLE_OWNER).First(&user).Error
	if err != nil {
		return "", fmt.Errorf("load owner for factory %d: %w", factoryID, err)
	}
	return user.Email, nil
}

func (r *gormRepository) FactoryIDByUserEmail(email string) (uint, error) {
	if email == "" {
		return 0, nil
	}
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load user by email: %w", err)
	}
	return user.FactoryID, nil
}

func (r *gormRepository) FactoryIDByUserID(userID uint) (uint, error) {
	if userID == 0 {
		return 0, nil
	}
	var user models.User
	err := r.db.First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load user %d: %w", userID, err)
	}
	return user.FactoryID, nil
}

func (r *gormRepository) AdminEmails(factoryID uint) ([]string, error) {
	var users []models.User
	err := r.db.Where(
		"factory_id = ? AND role IN ? AND status = ?",
		factoryID,
		[]string{models.ROLE_OWNER, models.ROLE_ADMIN},
		models.STATUS_ACTIVE,
	).Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("load admins for factory %d: %w", factoryID, err)
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	return emails, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, fmt.Errorf("record webhook event %s: %w", event.ProviderEventID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) MarkWebhookProcessed(eventID uint, processingError string) error {
	updates := map[string]interface{}{
		"processed_at":     gorm.Expr("CURRENT_TIMESTAMP"),
		"processing_error": processingError,
	}
	err := r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", eventID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("mark webhook event %d processed: %w", eventID, err)
	}
	return nil
}
