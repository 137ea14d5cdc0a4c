package payment

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/CourseFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleStatus is returned when a status update lost a compare-and-set
// against a concurrent writer.
var ErrStaleStatus = errors.New("payment status changed concurrently")

// Repository is the ledger store. Methods called on the Repository handed to
// a Transaction callback run inside that transaction.
type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	LockUser(ctx context.Context, userID uint) (*models.User, error)
	GetCourse(ctx context.Context, courseID uint) (*models.Course, error)
	// GetCourseUnscoped also returns soft-deleted courses. Paid orders are
	// completed even if the course was unpublished and deleted meanwhile.
	GetCourseUnscoped(ctx context.Context, courseID uint) (*models.Course, error)
	IncrementCourseStudents(ctx context.Context, courseID uint) error

	FindInFlightIntent(ctx context.Context, userID, courseID uint) (*models.PaymentIntent, error)
	CreateIntent(ctx context.Context, intent *models.PaymentIntent, tr *models.PaymentTransition) error
	GetIntentByRemoteOrderID(ctx context.Context, remoteOrderID string, forUpdate bool) (*models.PaymentIntent, error)
	ApplyTransition(ctx context.Context, intent *models.PaymentIntent, tr *models.PaymentTransition) error
	ListIntentsByUser(ctx context.Context, userID uint, limit int) ([]models.PaymentIntent, error)
	ListTransitions(ctx context.Context, intentID uint) ([]models.PaymentTransition, error)
	ListCompletedWithoutEnrollment(ctx context.Context, limit int) ([]models.PaymentIntent, error)

	GetEnrollment(ctx context.Context, userID, courseID uint) (*models.Enrollment, error)
	CreateEnrollmentIfNotExists(ctx context.Context, e *models.Enrollment) (bool, *models.Enrollment, error)

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

// LockUser takes a row lock on the buyer so order creation for one user is
// serialized across instances.
func (r *gormRepository) LockUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, userID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetCourse(ctx context.Context, courseID uint) (*models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *gormRepository) GetCourseUnscoped(ctx context.Context, courseID uint) (*models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).Unscoped().First(&course, courseID).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *gormRepository) IncrementCourseStudents(ctx context.Context, courseID uint) error {
	tx := r.db.WithContext(ctx).Unscoped().Model(&models.Course{}).
		Where("id = ?", courseID).
		UpdateColumn("students", gorm.Expr("students + ?", 1))
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) FindInFlightIntent(ctx context.Context, userID, courseID uint) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND status IN ?", userID, courseID,
			[]string{models.PaymentStatusPending, models.PaymentStatusProcessing}).
		Order("id DESC").
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *gormRepository) CreateIntent(ctx context.Context, intent *models.PaymentIntent, tr *models.PaymentTransition) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(intent).Error; err != nil {
		return err
	}
	tr.PaymentIntentID = intent.ID
	return db.Create(tr).Error
}

func (r *gormRepository) GetIntentByRemoteOrderID(ctx context.Context, remoteOrderID string, forUpdate bool) (*models.PaymentIntent, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var intent models.PaymentIntent
	if err := q.Where("remote_order_id = ?", remoteOrderID).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// ApplyTransition moves the intent from tr.FromStatus to tr.ToStatus with a
// compare-and-set on the stored status and appends tr to the log. Transitions
// outside the allowed table are rejected with ErrInvalidTransition.
func (r *gormRepository) ApplyTransition(ctx context.Context, intent *models.PaymentIntent, tr *models.PaymentTransition) error {
	if err := CheckTransition(tr); err != nil {
		return err
	}
	db := r.db.WithContext(ctx)
	updates := map[string]interface{}{
		"status":            intent.Status,
		"remote_payment_id": intent.RemotePaymentID,
		"signature":         intent.Signature,
		"payment_method":    intent.PaymentMethod,
		"failure_reason":    intent.FailureReason,
		"completed_at":      intent.CompletedAt,
		"updated_at":        time.Now(),
	}
	res := db.Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", intent.ID, tr.FromStatus).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	tr.PaymentIntentID = intent.ID
	return db.Create(tr).Error
}

func (r *gormRepository) ListIntentsByUser(ctx context.Context, userID uint, limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}

func (r *gormRepository) ListTransitions(ctx context.Context, intentID uint) ([]models.PaymentTransition, error) {
	var trs []models.PaymentTransition
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", intentID).
		Order("id ASC").
		Find(&trs).Error
	return trs, err
}

func (r *gormRepository) ListCompletedWithoutEnrollment(ctx context.Context, limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Select("payment_intents.*").
		Joins("LEFT JOIN enrollments ON enrollments.user_id = payment_intents.user_id AND enrollments.course_id = payment_intents.course_id").
		Where("payment_intents.status = ? AND enrollments.id IS NULL", models.PaymentStatusCompleted).
		Order("payment_intents.id ASC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}

func (r *gormRepository) GetEnrollment(ctx context.Context, userID, courseID uint) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := r.db.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEnrollmentIfNotExists relies on the (user_id, course_id) unique
// index. When a row already exists it is reloaded with a locking read so a
// concurrently committed enrollment is visible inside this transaction.
func (r *gormRepository) CreateEnrollmentIfNotExists(ctx context.Context, e *models.Enrollment) (bool, *models.Enrollment, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "course_id"},
		},
		DoNothing: true,
	}).Create(e)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.Enrollment
	if err := db.Clauses(clause.Locking{Strength: "SHARE"}).
		Where("user_id = ? AND course_id = ?", e.UserID, e.CourseID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
