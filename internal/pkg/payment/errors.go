package payment

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
)

var (
	ErrDuplicateInProgress = errors.New("a payment for this course is already in progress")
	ErrAlreadyEnrolled     = errors.New("user is already enrolled in this course")
	ErrSignatureInvalid    = errors.New("invalid signature")
	ErrNotFound            = errors.New("not found")
	ErrGateway             = errors.New("payment gateway error")
	ErrInvalidTransition   = errors.New("invalid payment status transition")

	// ErrPaymentNotFound means no intent exists for a remote order id.
	ErrPaymentNotFound = fmt.Errorf("payment %w", ErrNotFound)
	// ErrCourseUnavailable means a known intent points at a course that can
	// no longer be loaded. Completion must be retried, not dropped.
	ErrCourseUnavailable = errors.New("course unavailable for enrollment")
)

// ValidationError reports malformed input. It never carries state changes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return err
}

func paymentNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPaymentNotFound
	}
	return err
}

func courseUnavailable(courseID uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: course %d", ErrCourseUnavailable, courseID)
	}
	return err
}

// CheckTransition guards every status write against the transition table,
// so a completed intent can only ever move on to refunded. Repository
// implementations call it before writing.
func CheckTransition(tr *models.PaymentTransition) error {
	if !models.CanTransitionPayment(tr.FromStatus, tr.ToStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, tr.FromStatus, tr.ToStatus)
	}
	return nil
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
