package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/internal/pkg/payment"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

const requestTimeout = 15 * time.Second

// PaymentController exposes the payment service over HTTP.
type PaymentController struct {
	svc      *payment.Service
	keyID    string
	validate *validator.Validate
}

func NewPaymentController(svc *payment.Service, keyID string) *PaymentController {
	return &PaymentController{svc: svc, keyID: keyID, validate: validator.New()}
}

type createOrderRequest struct {
	CourseID uint `json:"course_id" validate:"required,gt=0"`
}

type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required,max=64"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required,max=64"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required,max=128"`
	PaymentMethod     string `json:"payment_method" validate:"omitempty,max=32"`
}

func (pc *PaymentController) HandleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := pc.bind(c, &req); err != nil {
		return writeError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	order, err := pc.svc.CreateOrder(ctx, usercontext.GetUserID(c), req.CourseID)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"payment_id": order.PaymentID,
		"order_id":   order.RemoteOrderID,
		"amount":     order.Amount,
		"currency":   order.Currency,
		"receipt":    order.Receipt,
		"key_id":     pc.keyID,
		"course":     order.Course,
		"buyer":      order.Buyer,
	})
}

func (pc *PaymentController) HandleVerify(c *fiber.Ctx) error {
	var req verifyPaymentRequest
	if err := pc.bind(c, &req); err != nil {
		return writeError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	res, err := pc.svc.Verify(ctx, payment.VerifyInput{
		UserID:          usercontext.GetUserID(c),
		RemoteOrderID:   req.RazorpayOrderID,
		RemotePaymentID: req.RazorpayPaymentID,
		Signature:       req.RazorpaySignature,
		Method:          req.PaymentMethod,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"payment":    res.Payment,
		"enrollment": res.Enrollment,
		"course":     res.Course.Summary(),
		"created":    res.Created,
	})
}

// HandleWebhook acknowledges with 200 only when the delivery was applied,
// recognized as a duplicate, or is safe to drop. Any 5xx makes the gateway
// redeliver.
func (pc *PaymentController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	out, err := pc.svc.HandleWebhook(ctx, payment.WebhookDelivery{
		RawBody:   rawBody,
		Signature: strings.TrimSpace(c.Get("X-Razorpay-Signature")),
		EventID:   strings.TrimSpace(c.Get("X-Razorpay-Event-Id")),
	})
	switch {
	case errors.Is(err, payment.ErrSignatureInvalid):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	resp := fiber.Map{"ok": true}
	if out.Duplicate {
		resp["duplicate"] = true
	}
	if out.Ignored {
		resp["ignored"] = true
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (pc *PaymentController) HandleListPayments(c *fiber.Ctx) error {
	payments, err := pc.svc.ListPayments(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"payments": payments})
}

func (pc *PaymentController) HandleGetPayment(c *fiber.Ctx) error {
	details, err := pc.svc.GetPayment(c.UserContext(), usercontext.GetUserID(c), c.Params("orderId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(details)
}

func (pc *PaymentController) HandleGetEnrollment(c *fiber.Ctx) error {
	courseID, err := c.ParamsInt("courseId")
	if err != nil || courseID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "invalid course id"})
	}
	enrollment, err := pc.svc.GetEnrollment(c.UserContext(), usercontext.GetUserID(c), uint(courseID))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"enrolled": true, "enrollment": enrollment})
}

// HandleRunSweep runs one repair pass on demand.
func (pc *PaymentController) HandleRunSweep(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Minute)
	defer cancel()

	report, err := pc.svc.RepairCompletedWithoutEnrollment(ctx, c.QueryInt("limit", 0))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"scanned":  report.Scanned,
		"repaired": report.Repaired,
		"failed":   report.Failed,
		"took_ms":  report.Took.Milliseconds(),
	})
}

func (pc *PaymentController) bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return &payment.ValidationError{Field: "body", Message: "malformed request body"}
	}
	if err := pc.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &payment.ValidationError{Field: verrs[0].Field(), Message: "failed " + verrs[0].Tag() + " check"}
		}
		return &payment.ValidationError{Message: err.Error()}
	}
	return nil
}

func writeError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "internal_server_error"
	switch {
	case payment.IsValidationError(err):
		status, code = fiber.StatusBadRequest, "invalid_request"
	case errors.Is(err, payment.ErrDuplicateInProgress):
		status, code = fiber.StatusBadRequest, "payment_in_progress"
	case errors.Is(err, payment.ErrAlreadyEnrolled):
		status, code = fiber.StatusBadRequest, "already_enrolled"
	case errors.Is(err, payment.ErrSignatureInvalid):
		status, code = fiber.StatusBadRequest, "invalid_signature"
	case errors.Is(err, payment.ErrInvalidTransition):
		status, code = fiber.StatusBadRequest, "invalid_state"
	case errors.Is(err, payment.ErrNotFound):
		status, code = fiber.StatusNotFound, "not_found"
	case errors.Is(err, payment.ErrGateway):
		code = "gateway_error"
	}

	if status == fiber.StatusInternalServerError {
		log.Errorf("[Payment] %s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": code, "message": "request could not be completed"})
	}
	return c.Status(status).JSON(fiber.Map{"error": code, "message": err.Error()})
}
