package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/middleware"
	"github.com/ManuelReschke/CourseFox/internal/pkg/payment"
	"github.com/ManuelReschke/CourseFox/internal/pkg/payment/paymenttest"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

const (
	testKeySecret     = "rzp_test_secret"
	testWebhookSecret = "whsec_test"
)

type testServer struct {
	app    *fiber.App
	repo   *paymenttest.MemoryRepository
	buyer  models.User
	course models.Course
}

// newTestServer wires the controller behind a fake identity layer that
// trusts the X-Test-User header.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := paymenttest.NewMemoryRepository()
	svc := payment.NewService(repo, paymenttest.NewFakeGateway(), payment.Config{
		KeySecret:      testKeySecret,
		WebhookSecret:  testWebhookSecret,
		GatewayTimeout: time.Second,
	})
	pc := NewPaymentController(svc, "rzp_test_key")

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if uid, err := strconv.ParseUint(c.Get("X-Test-User"), 10, 64); err == nil && uid > 0 {
			usercontext.Set(c, usercontext.UserContext{UserID: uint(uid), IsLoggedIn: true})
		}
		return c.Next()
	})
	v1 := app.Group("/api/v1")
	v1.Post("/payments/webhook", pc.HandleWebhook)
	v1.Post("/payments/orders", middleware.RequireAPIAuth, pc.HandleCreateOrder)
	v1.Post("/payments/verify", middleware.RequireAPIAuth, pc.HandleVerify)
	v1.Get("/payments", middleware.RequireAPIAuth, pc.HandleListPayments)
	v1.Get("/payments/:orderId", middleware.RequireAPIAuth, pc.HandleGetPayment)
	v1.Get("/courses/:courseId/enrollment", middleware.RequireAPIAuth, pc.HandleGetEnrollment)

	return &testServer{
		app:    app,
		repo:   repo,
		buyer:  repo.AddUser(models.User{Name: "Asha", Email: "asha@example.com"}),
		course: repo.AddCourse(models.Course{Title: "Go for Backends", Price: 2999, IsPublished: true}),
	}
}

func (s *testServer) do(t *testing.T, method, path string, userID uint, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("X-Test-User", uintString(userID))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

func (s *testServer) createOrder(t *testing.T) string {
	t.Helper()
	status, body := s.do(t, "POST", "/api/v1/payments/orders", s.buyer.ID, fiber.Map{"course_id": s.course.ID}, nil)
	require.Equal(t, http.StatusCreated, status)
	return body["order_id"].(string)
}

func TestCreateOrderEndpoint(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/v1/payments/orders", s.buyer.ID, fiber.Map{"course_id": s.course.ID}, nil)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "order_1", body["order_id"])
	assert.Equal(t, float64(2999), body["amount"])
	assert.Equal(t, "rzp_test_key", body["key_id"])

	status, body = s.do(t, "POST", "/api/v1/payments/orders", s.buyer.ID, fiber.Map{"course_id": s.course.ID}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "payment_in_progress", body["error"])

	status, _ = s.do(t, "POST", "/api/v1/payments/orders", s.buyer.ID, fiber.Map{"course_id": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, "POST", "/api/v1/payments/orders", s.buyer.ID, fiber.Map{"course_id": 404}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, "POST", "/api/v1/payments/orders", 0, fiber.Map{"course_id": s.course.ID}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestVerifyEndpoint(t *testing.T) {
	s := newTestServer(t)
	orderID := s.createOrder(t)
	sig := payment.ComputeSignature(payment.PaymentSignaturePayload(orderID, "pay_1"), testKeySecret)
	forged := "a" + sig[1:]
	if sig[0] == 'a' {
		forged = "b" + sig[1:]
	}

	status, body := s.do(t, "POST", "/api/v1/payments/verify", s.buyer.ID, fiber.Map{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  forged,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_signature", body["error"])

	status, body = s.do(t, "POST", "/api/v1/payments/verify", s.buyer.ID, fiber.Map{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  sig,
		"payment_method":      "card",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["created"])
	assert.NotNil(t, body["enrollment"])

	status, body = s.do(t, "POST", "/api/v1/payments/verify", s.buyer.ID, fiber.Map{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  sig,
	}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["created"])

	status, _ = s.do(t, "GET", "/api/v1/courses/"+uintString(s.course.ID)+"/enrollment", s.buyer.ID, nil, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = s.do(t, "GET", "/api/v1/payments/"+orderID, s.buyer.ID, nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["transitions"], 2)

	status, _ = s.do(t, "POST", "/api/v1/payments/verify", s.buyer.ID, fiber.Map{"razorpay_order_id": orderID}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWebhookEndpoint(t *testing.T) {
	s := newTestServer(t)
	orderID := s.createOrder(t)
	body := paymenttest.CapturedEvent(orderID, "pay_1")
	sig := payment.ComputeSignature(body, testWebhookSecret)

	status, resp := s.do(t, "POST", "/api/v1/payments/webhook", 0, body, map[string]string{
		"X-Razorpay-Signature": "deadbeef",
		"X-Razorpay-Event-Id":  "evt_1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_signature", resp["error"])
	assert.Empty(t, s.repo.WebhookEvents())

	status, resp = s.do(t, "POST", "/api/v1/payments/webhook", 0, body, map[string]string{
		"X-Razorpay-Signature": sig,
		"X-Razorpay-Event-Id":  "evt_1",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["ok"])
	assert.Nil(t, resp["duplicate"])

	status, resp = s.do(t, "POST", "/api/v1/payments/webhook", 0, body, map[string]string{
		"X-Razorpay-Signature": sig,
		"X-Razorpay-Event-Id":  "evt_1",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["duplicate"])
	assert.Len(t, s.repo.Enrollments(), 1)
}

func TestWebhookEndpoint_RetryableFailure(t *testing.T) {
	s := newTestServer(t)
	orderID := s.createOrder(t)
	body := paymenttest.CapturedEvent(orderID, "pay_1")
	headers := map[string]string{
		"X-Razorpay-Signature": payment.ComputeSignature(body, testWebhookSecret),
		"X-Razorpay-Event-Id":  "evt_1",
	}

	s.repo.SetHooks(paymenttest.Hooks{FailCreateEnrollment: assert.AnError})
	status, _ := s.do(t, "POST", "/api/v1/payments/webhook", 0, body, headers)
	assert.Equal(t, http.StatusInternalServerError, status)

	s.repo.SetHooks(paymenttest.Hooks{})
	status, _ = s.do(t, "POST", "/api/v1/payments/webhook", 0, body, headers)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, s.repo.Enrollments(), 1)
}

func TestWebhookEndpoint_MalformedSignedBodyIsAcknowledged(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"event":`)

	status, resp := s.do(t, "POST", "/api/v1/payments/webhook", 0, body, map[string]string{
		"X-Razorpay-Signature": payment.ComputeSignature(body, testWebhookSecret),
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, true, resp["ignored"])
	assert.Empty(t, s.repo.WebhookEvents())
}

func TestWebhookEndpoint_MissingCourseIsRetried(t *testing.T) {
	s := newTestServer(t)
	orderID := s.createOrder(t)
	body := paymenttest.CapturedEvent(orderID, "pay_1")
	headers := map[string]string{
		"X-Razorpay-Signature": payment.ComputeSignature(body, testWebhookSecret),
		"X-Razorpay-Event-Id":  "evt_1",
	}

	s.repo.RemoveCourse(s.course.ID)
	status, resp := s.do(t, "POST", "/api/v1/payments/webhook", 0, body, headers)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "webhook_processing_failed", resp["error"])
	assert.Empty(t, s.repo.Enrollments())

	s.repo.AddCourse(s.course)
	status, resp = s.do(t, "POST", "/api/v1/payments/webhook", 0, body, headers)
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, resp["ignored"])
	assert.Len(t, s.repo.Enrollments(), 1)
}

func TestReadEndpoints_OwnershipAndNotFound(t *testing.T) {
	s := newTestServer(t)
	orderID := s.createOrder(t)
	other := s.repo.AddUser(models.User{Name: "Eve"})

	status, body := s.do(t, "GET", "/api/v1/payments", s.buyer.ID, nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["payments"], 1)

	status, _ = s.do(t, "GET", "/api/v1/payments/"+orderID, other.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, "GET", "/api/v1/courses/"+uintString(s.course.ID)+"/enrollment", s.buyer.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, "GET", "/api/v1/courses/abc/enrollment", s.buyer.ID, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
