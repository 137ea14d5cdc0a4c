package payment_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/ManuelReschke/CourseFox/internal/pkg/payment"
	"github.com/ManuelReschke/CourseFox/internal/pkg/payment/paymenttest"
)

// testDB connects to the MySQL instance from DB_* or skips.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	if env.GetEnv("DB_NAME", "") == "" {
		t.Skip("Skipping MySQL-dependent test: DB_NAME not set")
	}
	db, err := database.Open(database.DSN())
	if err != nil {
		t.Skipf("Skipping MySQL-dependent test: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		t.Skipf("Skipping MySQL-dependent test: %v", err)
	}
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func seedGorm(t *testing.T, db *gorm.DB) (models.User, models.Course) {
	t.Helper()
	suffix := time.Now().UnixNano()
	user := models.User{Name: "Integration Buyer", Email: fmt.Sprintf("buyer-%d@example.com", suffix), Status: models.STATUS_ACTIVE}
	require.NoError(t, db.Create(&user).Error)
	course := models.Course{Title: "Integration Course", Slug: fmt.Sprintf("integration-%d", suffix), Price: 2999, Currency: "INR", IsPublished: true}
	require.NoError(t, db.Create(&course).Error)
	return user, course
}

func TestGormRepository_CompletionIsExactlyOnce(t *testing.T) {
	db := testDB(t)
	user, course := seedGorm(t, db)

	gw := &prefixedGateway{FakeGateway: paymenttest.NewFakeGateway(), prefix: fmt.Sprintf("order_it_%d_", time.Now().UnixNano())}
	svc := payment.NewServiceFromDB(db, gw, payment.Config{
		KeySecret:      testKeySecret,
		WebhookSecret:  testWebhookSecret,
		GatewayTimeout: time.Second,
	})
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, user.ID, course.ID)
	require.NoError(t, err)

	_, err = svc.CreateOrder(ctx, user.ID, course.ID)
	assert.ErrorIs(t, err, payment.ErrDuplicateInProgress)

	sig := payment.ComputeSignature(payment.PaymentSignaturePayload(order.RemoteOrderID, "pay_it"), testKeySecret)
	body := paymenttest.CapturedEvent(order.RemoteOrderID, "pay_it")

	const n = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := svc.Verify(ctx, payment.VerifyInput{
				UserID: user.ID, RemoteOrderID: order.RemoteOrderID, RemotePaymentID: "pay_it", Signature: sig,
			})
			if assert.NoError(t, err) && res.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
		go func(i int) {
			defer wg.Done()
			out, err := svc.HandleWebhook(ctx, payment.WebhookDelivery{
				RawBody:   body,
				Signature: payment.ComputeSignature(body, testWebhookSecret),
				EventID:   fmt.Sprintf("%s-evt-%d", order.RemoteOrderID, i),
			})
			if assert.NoError(t, err) && out.Result != nil && out.Result.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)

	var enrollments int64
	require.NoError(t, db.Model(&models.Enrollment{}).Where("user_id = ? AND course_id = ?", user.ID, course.ID).Count(&enrollments).Error)
	assert.Equal(t, int64(1), enrollments)

	var reloaded models.Course
	require.NoError(t, db.First(&reloaded, course.ID).Error)
	assert.Equal(t, 1, reloaded.Students)

	details, err := svc.GetPayment(ctx, user.ID, order.RemoteOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, details.Payment.Status)
	assert.Len(t, details.Transitions, 2)
}

func TestGormRepository_SweepRepairsCrashLeftover(t *testing.T) {
	db := testDB(t)
	user, course := seedGorm(t, db)

	gw := &prefixedGateway{FakeGateway: paymenttest.NewFakeGateway(), prefix: fmt.Sprintf("order_sw_%d_", time.Now().UnixNano())}
	svc := payment.NewServiceFromDB(db, gw, payment.Config{KeySecret: testKeySecret})
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, user.ID, course.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.PaymentIntent{}).
		Where("remote_order_id = ?", order.RemoteOrderID).
		Update("status", models.PaymentStatusCompleted).Error)

	report, err := svc.RepairCompletedWithoutEnrollment(ctx, 1000)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.Repaired, 1)

	_, err = svc.GetEnrollment(ctx, user.ID, course.ID)
	assert.NoError(t, err)
}

func TestGormRepository_CaptureCompletesForSoftDeletedCourse(t *testing.T) {
	db := testDB(t)
	user, course := seedGorm(t, db)

	gw := &prefixedGateway{FakeGateway: paymenttest.NewFakeGateway(), prefix: fmt.Sprintf("order_sd_%d_", time.Now().UnixNano())}
	svc := payment.NewServiceFromDB(db, gw, payment.Config{KeySecret: testKeySecret, WebhookSecret: testWebhookSecret})
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, user.ID, course.ID)
	require.NoError(t, err)
	require.NoError(t, db.Delete(&models.Course{}, course.ID).Error)

	body := paymenttest.CapturedEvent(order.RemoteOrderID, "pay_sd")
	out, err := svc.HandleWebhook(ctx, payment.WebhookDelivery{
		RawBody:   body,
		Signature: payment.ComputeSignature(body, testWebhookSecret),
		EventID:   order.RemoteOrderID + "-evt",
	})
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.Created)

	var reloaded models.Course
	require.NoError(t, db.Unscoped().First(&reloaded, course.ID).Error)
	assert.Equal(t, 1, reloaded.Students)
}

// prefixedGateway keeps remote order ids unique across test runs sharing a database.
type prefixedGateway struct {
	*paymenttest.FakeGateway
	prefix string
}

func (g *prefixedGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.RemoteOrder, error) {
	order, err := g.FakeGateway.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	order.ID = g.prefix + order.ID
	return order, nil
}
