package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
)

const (
	defaultCurrency       = "INR"
	defaultGatewayTimeout = 15 * time.Second
	defaultPaymentMethod  = models.PaymentProviderRazorpay
	maxListedPayments     = 100
)

// Config holds the secrets and limits the service needs.
type Config struct {
	// KeySecret signs client-side checkout confirmations.
	KeySecret string
	// WebhookSecret signs gateway webhook bodies.
	WebhookSecret  string
	Currency       string
	GatewayTimeout time.Duration
}

// ConfigFromEnv reads the service configuration from the environment.
func ConfigFromEnv() Config {
	return Config{
		KeySecret:      strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_SECRET", "")),
		WebhookSecret:  strings.TrimSpace(env.GetEnv("RAZORPAY_WEBHOOK_SECRET", "")),
		Currency:       strings.ToUpper(strings.TrimSpace(env.GetEnv("PAYMENT_CURRENCY", defaultCurrency))),
		GatewayTimeout: env.GetDuration("GATEWAY_TIMEOUT", defaultGatewayTimeout),
	}
}

// Service turns course purchases into enrollments. Order creation, client
// verification and gateway webhooks all go through it, and completion is
// idempotent on the remote order id.
type Service struct {
	repo    Repository
	gateway Gateway
	cfg     Config

	now        func() time.Time
	newReceipt func() string
}

// NewService creates a payment service from an injected repository and gateway.
func NewService(repo Repository, gateway Gateway, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	return &Service{
		repo:    repo,
		gateway: gateway,
		cfg:     cfg,
		now:     time.Now,
		newReceipt: func() string {
			return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway, cfg Config) *Service {
	return NewService(NewRepository(db), gateway, cfg)
}

// CreateOrder opens a new purchase attempt for userID on courseID. It
// refuses when an attempt is already in flight or the user is enrolled, and
// persists nothing unless the gateway order was created.
func (s *Service) CreateOrder(ctx context.Context, userID, courseID uint) (*OrderDescriptor, error) {
	if userID == 0 {
		return nil, invalid("user_id", "is required")
	}
	if courseID == 0 {
		return nil, invalid("course_id", "is required")
	}

	var out *OrderDescriptor
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return notFound("user", err)
		}
		course, err := tx.GetCourse(ctx, courseID)
		if err != nil {
			return notFound("course", err)
		}
		if !course.IsPurchasable() {
			return invalid("course_id", "course is not available for purchase")
		}

		if existing, err := tx.FindInFlightIntent(ctx, userID, courseID); err == nil {
			log.Warnf("[Security] duplicate order attempt user=%d course=%d in_flight_order=%s", userID, courseID, existing.RemoteOrderID)
			metrics.OrderRejections.WithLabelValues("duplicate_in_progress").Inc()
			return ErrDuplicateInProgress
		} else if !isRecordNotFound(err) {
			return err
		}

		if _, err := tx.GetEnrollment(ctx, userID, courseID); err == nil {
			log.Warnf("[Security] order attempt for owned course user=%d course=%d", userID, courseID)
			metrics.OrderRejections.WithLabelValues("already_enrolled").Inc()
			return ErrAlreadyEnrolled
		} else if !isRecordNotFound(err) {
			return err
		}

		currency := strings.ToUpper(strings.TrimSpace(course.Currency))
		if currency == "" {
			currency = s.cfg.Currency
		}
		receipt := s.newReceipt()

		remote, err := s.createRemoteOrder(ctx, OrderRequest{
			AmountMinor: course.Price,
			Currency:    currency,
			Receipt:     receipt,
			Notes: map[string]string{
				"user_id":   strconv.FormatUint(uint64(userID), 10),
				"course_id": strconv.FormatUint(uint64(courseID), 10),
			},
		})
		if err != nil {
			return err
		}

		intent := &models.PaymentIntent{
			UserID:        userID,
			CourseID:      courseID,
			Provider:      models.PaymentProviderRazorpay,
			RemoteOrderID: remote.ID,
			Receipt:       receipt,
			Amount:        remote.Amount,
			Currency:      remote.Currency,
			Status:        models.PaymentStatusPending,
		}
		if intent.Amount == 0 {
			intent.Amount = course.Price
		}
		if intent.Currency == "" {
			intent.Currency = currency
		}
		if err := tx.CreateIntent(ctx, intent, &models.PaymentTransition{
			ToStatus: models.PaymentStatusPending,
			Source:   models.TransitionSourceOrder,
		}); err != nil {
			return err
		}

		out = &OrderDescriptor{
			PaymentID:     intent.ID,
			RemoteOrderID: intent.RemoteOrderID,
			Amount:        intent.Amount,
			Currency:      intent.Currency,
			Receipt:       receipt,
			Course:        course.Summary(),
			Buyer:         user.Summary(),
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrGateway) {
			log.Errorf("[Payment] order create failed user=%d course=%d: %v", userID, courseID, err)
		}
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	log.Infof("[Payment] order %s created user=%d course=%d amount=%d %s", out.RemoteOrderID, userID, courseID, out.Amount, out.Currency)
	return out, nil
}

func (s *Service) createRemoteOrder(ctx context.Context, req OrderRequest) (*RemoteOrder, error) {
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	start := time.Now()
	remote, err := s.gateway.CreateOrder(gctx, req)
	metrics.GatewayRequestTime.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	if strings.TrimSpace(remote.ID) == "" {
		return nil, fmt.Errorf("%w: gateway returned an empty order id", ErrGateway)
	}
	return remote, nil
}

// ListPayments returns the caller's most recent payment intents.
func (s *Service) ListPayments(ctx context.Context, userID uint) ([]models.PaymentIntent, error) {
	if userID == 0 {
		return nil, invalid("user_id", "is required")
	}
	return s.repo.ListIntentsByUser(ctx, userID, maxListedPayments)
}

// GetPayment returns one of the caller's intents with its status history.
func (s *Service) GetPayment(ctx context.Context, userID uint, remoteOrderID string) (*PaymentDetails, error) {
	remoteOrderID = strings.TrimSpace(remoteOrderID)
	if remoteOrderID == "" {
		return nil, invalid("order_id", "is required")
	}
	intent, err := s.repo.GetIntentByRemoteOrderID(ctx, remoteOrderID, false)
	if err != nil {
		return nil, paymentNotFound(err)
	}
	if intent.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	trs, err := s.repo.ListTransitions(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	return &PaymentDetails{Payment: intent, Transitions: trs}, nil
}

// GetEnrollment reports whether the caller has access to courseID.
func (s *Service) GetEnrollment(ctx context.Context, userID, courseID uint) (*models.Enrollment, error) {
	if userID == 0 || courseID == 0 {
		return nil, invalid("course_id", "is required")
	}
	e, err := s.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return nil, notFound("enrollment", err)
	}
	return e, nil
}
