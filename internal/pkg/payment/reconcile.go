package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
)

// CompletePayment converges any number of completion attempts for one remote
// order into a single completed intent and a single enrollment. The whole
// sequence runs in one transaction behind a row lock on the intent, so the
// verify call and the webhook can race freely. Created is true for exactly
// one caller; the course student counter moves only on that branch.
func (s *Service) CompletePayment(ctx context.Context, in CompletionInput) (*CompletionResult, error) {
	orderID := strings.TrimSpace(in.RemoteOrderID)
	if orderID == "" {
		return nil, invalid("order_id", "is required")
	}
	source := in.Source
	if source == "" {
		source = models.TransitionSourceVerify
	}

	var res *CompletionResult
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		res = nil

		intent, err := tx.GetIntentByRemoteOrderID(ctx, orderID, true)
		if err != nil {
			return paymentNotFound(err)
		}

		if intent.IsCompleted() {
			if in.RemotePaymentID != "" && intent.RemotePaymentID != "" && in.RemotePaymentID != intent.RemotePaymentID {
				log.Warnf("[Payment] order %s already completed with payment %s, ignoring payment %s from %s",
					orderID, intent.RemotePaymentID, in.RemotePaymentID, source)
			}
			// Normally a no-op lookup. Creates the enrollment only if an
			// earlier run left the intent completed without one.
			enrollment, created, err := s.ensureEnrollment(ctx, tx, intent)
			if err != nil {
				return err
			}
			if created {
				log.Warnf("[Payment] repaired missing enrollment for completed order %s", orderID)
			}
			course, err := tx.GetCourseUnscoped(ctx, intent.CourseID)
			if err != nil {
				return courseUnavailable(intent.CourseID, err)
			}
			res = &CompletionResult{Payment: intent, Enrollment: enrollment, Course: course, Created: created}
			return nil
		}

		if !models.CanTransitionPayment(intent.Status, models.PaymentStatusCompleted) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, intent.Status, models.PaymentStatusCompleted)
		}

		from := intent.Status
		now := s.now()
		intent.Status = models.PaymentStatusCompleted
		intent.RemotePaymentID = strings.TrimSpace(in.RemotePaymentID)
		if in.Signature != "" {
			intent.Signature = in.Signature
		}
		intent.PaymentMethod = normalizeMethod(in.Method)
		intent.FailureReason = ""
		intent.CompletedAt = &now

		if err := tx.ApplyTransition(ctx, intent, &models.PaymentTransition{
			FromStatus:      from,
			ToStatus:        models.PaymentStatusCompleted,
			Source:          source,
			RemotePaymentID: intent.RemotePaymentID,
		}); err != nil {
			return err
		}

		enrollment, created, err := s.ensureEnrollment(ctx, tx, intent)
		if err != nil {
			return err
		}
		course, err := tx.GetCourseUnscoped(ctx, intent.CourseID)
		if err != nil {
			return courseUnavailable(intent.CourseID, err)
		}
		res = &CompletionResult{Payment: intent, Enrollment: enrollment, Course: course, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := "duplicate"
	if res.Created {
		outcome = "created"
		log.Infof("[Payment] order %s completed via %s, enrollment %d created for user=%d course=%d",
			orderID, source, res.Enrollment.ID, res.Payment.UserID, res.Payment.CourseID)
	}
	metrics.Reconciliations.WithLabelValues(source, outcome).Inc()
	return res, nil
}

// ensureEnrollment creates the enrollment for a completed intent unless one
// already exists for the pair, and bumps the course counter only when it
// created the row.
func (s *Service) ensureEnrollment(ctx context.Context, tx Repository, intent *models.PaymentIntent) (*models.Enrollment, bool, error) {
	paymentID := intent.ID
	enrollment := &models.Enrollment{
		UserID:     intent.UserID,
		CourseID:   intent.CourseID,
		PaymentID:  &paymentID,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: s.now(),
	}
	created, stored, err := tx.CreateEnrollmentIfNotExists(ctx, enrollment)
	if err != nil {
		return nil, false, err
	}
	if created {
		if err := tx.IncrementCourseStudents(ctx, intent.CourseID); err != nil {
			return nil, false, courseUnavailable(intent.CourseID, err)
		}
	}
	return stored, created, nil
}

// MarkFailed records a failed attempt. It never overrides a completed or
// refunded intent and is a no-op for one already failed. The returned bool
// reports whether the status changed.
func (s *Service) MarkFailed(ctx context.Context, remoteOrderID, remotePaymentID, reason, source string) (*models.PaymentIntent, bool, error) {
	orderID := strings.TrimSpace(remoteOrderID)
	if orderID == "" {
		return nil, false, invalid("order_id", "is required")
	}

	var (
		out     *models.PaymentIntent
		changed bool
	)
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		changed = false
		intent, err := tx.GetIntentByRemoteOrderID(ctx, orderID, true)
		if err != nil {
			return paymentNotFound(err)
		}
		out = intent
		if !models.CanTransitionPayment(intent.Status, models.PaymentStatusFailed) {
			return nil
		}

		from := intent.Status
		intent.Status = models.PaymentStatusFailed
		if remotePaymentID != "" {
			intent.RemotePaymentID = remotePaymentID
		}
		intent.FailureReason = reason
		if err := tx.ApplyTransition(ctx, intent, &models.PaymentTransition{
			FromStatus:      from,
			ToStatus:        models.PaymentStatusFailed,
			Source:          source,
			RemotePaymentID: remotePaymentID,
			Note:            reason,
		}); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		log.Infof("[Payment] order %s marked failed via %s: %s", orderID, source, reason)
	}
	return out, changed, nil
}

func normalizeMethod(method string) string {
	m := strings.ToLower(strings.TrimSpace(method))
	if m == "" {
		return defaultPaymentMethod
	}
	return m
}
