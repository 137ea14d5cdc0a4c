package payment

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
)

const defaultSweepBatch = 200

// RepairCompletedWithoutEnrollment finds completed intents whose buyer has no
// enrollment for the course and creates it. Each repair runs in its own
// transaction with the same row lock and counter rule as CompletePayment.
func (s *Service) RepairCompletedWithoutEnrollment(ctx context.Context, limit int) (*SweepReport, error) {
	if limit <= 0 {
		limit = defaultSweepBatch
	}
	start := time.Now()
	report := &SweepReport{}

	intents, err := s.repo.ListCompletedWithoutEnrollment(ctx, limit)
	if err != nil {
		return nil, err
	}
	report.Scanned = len(intents)

	for i := range intents {
		if err := ctx.Err(); err != nil {
			report.Took = time.Since(start)
			return report, err
		}
		orderID := intents[i].RemoteOrderID
		var created bool
		err := s.repo.Transaction(ctx, func(tx Repository) error {
			created = false
			intent, err := tx.GetIntentByRemoteOrderID(ctx, orderID, true)
			if err != nil {
				return paymentNotFound(err)
			}
			if intent.Status != models.PaymentStatusCompleted {
				return nil
			}
			_, created, err = s.ensureEnrollment(ctx, tx, intent)
			return err
		})
		if err != nil {
			report.Failed++
			log.Errorf("[Sweep] repair of order %s failed: %v", orderID, err)
			continue
		}
		if created {
			report.Repaired++
			metrics.SweepRepairs.Inc()
			log.Warnf("[Sweep] created missing enrollment for completed order %s", orderID)
		}
	}

	report.Took = time.Since(start)
	return report, nil
}
