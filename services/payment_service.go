package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"run-challenge-system/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	razorpay "github.com/razorpay/razorpay-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Verification failures. Each is a rejection, not a retryable error — a
// mismatch here is a potential tampering attempt and is logged with ids only.
var (
	ErrOrderCreationFailed = errors.New("order_creation_failed")
	ErrSignatureMismatch   = errors.New("signature_mismatch")
	ErrPaymentNotCaptured  = errors.New("payment_not_captured")
	ErrAmountMismatch      = errors.New("amount_mismatch")
	ErrOrderMismatch       = errors.New("order_mismatch")
)

// ProviderPayment is the provider's authoritative view of a payment, fetched
// server-side. The client's claimed status is never trusted.
type ProviderPayment struct {
	ID          string
	OrderID     string
	Status      string
	AmountPaise int64
	Currency    string
}

// PaymentProvider abstracts the payment provider API: order creation with
// auto-capture, and payment fetch by id.
type PaymentProvider interface {
	CreateOrder(amountPaise int64, currency, receipt string, notes map[string]interface{}) (string, error)
	FetchPayment(paymentID string) (ProviderPayment, error)
}

type razorpayProvider struct {
	client *razorpay.Client
}

// NewRazorpayProvider wraps the Razorpay SDK client.
func NewRazorpayProvider(keyID, keySecret string) PaymentProvider {
	return &razorpayProvider{client: razorpay.NewClient(keyID, keySecret)}
}

func (p *razorpayProvider) CreateOrder(amountPaise int64, currency, receipt string, notes map[string]interface{}) (string, error) {
	data := map[string]interface{}{
		"amount":   amountPaise,
		"currency": currency,
		"receipt":  receipt,
		// Auto-capture: the payment is captured on authorization, there is no
		// separate capture step anywhere in this system.
		"payment_capture": 1,
		"notes":           notes,
	}
	body, err := p.client.Order.Create(data, nil)
	if err != nil {
		return "", fmt.Errorf("razorpay order create: %w", err)
	}
	orderID, ok := body["id"].(string)
	if !ok || orderID == "" {
		return "", errors.New("razorpay order create: response missing order id")
	}
	return orderID, nil
}

func (p *razorpayProvider) FetchPayment(paymentID string) (ProviderPayment, error) {
	body, err := p.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return ProviderPayment{}, fmt.Errorf("razorpay payment fetch: %w", err)
	}
	payment := ProviderPayment{ID: paymentID}
	if v, ok := body["order_id"].(string); ok {
		payment.OrderID = v
	}
	if v, ok := body["status"].(string); ok {
		payment.Status = v
	}
	if v, ok := body["currency"].(string); ok {
		payment.Currency = v
	}
	if v, ok := body["amount"].(float64); ok {
		payment.AmountPaise = int64(v)
	}
	return payment, nil
}

type PaymentService struct {
	DB        *gorm.DB
	Provider  PaymentProvider
	KeyID     string // published to the client for the checkout widget
	KeySecret string // shared secret for signature verification, never leaves the server
	Notifier  *Notifier
	validate  *validator.Validate
}

func NewPaymentService(db *gorm.DB, provider PaymentProvider, keyID, keySecret string, notifier *Notifier) *PaymentService {
	return &PaymentService{
		DB:        db,
		Provider:  provider,
		KeyID:     keyID,
		KeySecret: keySecret,
		Notifier:  notifier,
		validate:  validator.New(),
	}
}

// RupeesToPaise converts a rupee amount to the provider's smallest unit.
// Fractional amounts round rather than truncate — truncation would
// systematically underprice.
func RupeesToPaise(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// verifyPaymentSignature recomputes the HMAC-SHA256 of "orderID|paymentID"
// under the provider secret and compares it against the client-supplied
// signature in constant time. This defeats a forged success callback from a
// compromised client.
func verifyPaymentSignature(orderID, paymentID, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Outcomes of the pre-provider gates.
const (
	verifyProceed = "proceed"
	verifyReplay  = "replay"
)

// gateVerifyRequest runs the pre-provider gates against the locked
// registration row. The signature check always runs first, including for
// replays. An already-paid row only accepts a replay of the exact ids it was
// verified with; anything else is an order mismatch. For a pending row the
// supplied order id must equal the one created at checkout.
func gateVerifyRequest(reg models.Registration, req VerifyPaymentRequest, secret string) (string, error) {
	if !verifyPaymentSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, secret) {
		return "", ErrSignatureMismatch
	}
	if reg.PaymentStatus == models.PaymentPaid {
		if reg.RazorpayOrderID == req.RazorpayOrderID && reg.RazorpayPaymentID == req.RazorpayPaymentID {
			return verifyReplay, nil
		}
		return "", ErrOrderMismatch
	}
	if reg.RazorpayOrderID == "" || reg.RazorpayOrderID != req.RazorpayOrderID {
		return "", ErrOrderMismatch
	}
	return verifyProceed, nil
}

// checkProviderPayment runs the provider-side gates against a fetched payment:
// the payment must belong to the stored order, must be captured (or
// authorized, capture pending), and must match the expected amount exactly.
func checkProviderPayment(p ProviderPayment, storedOrderID string, expectedPaise int64) error {
	if p.OrderID != storedOrderID {
		return ErrOrderMismatch
	}
	if p.Status != "captured" && p.Status != "authorized" {
		return ErrPaymentNotCaptured
	}
	if p.AmountPaise != expectedPaise {
		return ErrAmountMismatch
	}
	return nil
}

// CreateProviderOrder creates the provider-side order for a registration's
// final amount and stamps the order id on the row within the caller's
// transaction. If the provider call fails nothing is written — the caller's
// transaction rolls back as a unit.
func (s *PaymentService) CreateProviderOrder(tx *gorm.DB, reg *models.Registration, receipt string) error {
	amountPaise := RupeesToPaise(reg.FinalAmount)
	orderID, err := s.Provider.CreateOrder(amountPaise, "INR", receipt, map[string]interface{}{
		"registration_id": reg.ID,
		"challenge":       reg.ChallengeName,
	})
	if err != nil {
		log.Printf("[PAYMENT] provider order creation failed (registration=%s): %v", reg.ID, err)
		return ErrOrderCreationFailed
	}

	reg.RazorpayOrderID = orderID
	if err := tx.Model(&models.Registration{}).Where("id = ?", reg.ID).
		Update("razorpay_order_id", orderID).Error; err != nil {
		return err
	}
	return nil
}

type VerifyPaymentRequest struct {
	RegistrationID    string `json:"registration_id" validate:"required"`
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
}

// VerifyPayment finalizes a client-side payment flow. Four mandatory gates,
// in order: signature check, provider status fetch, amount cross-check, then
// a single status update. Failing any gate aborts with no row mutation.
// The registration row is locked for the whole check so a retried callback
// cannot race a legitimate verification; replaying identical valid inputs is
// a safe no-op that fires no notification. The signature gate runs even for
// replays.
func (s *PaymentService) VerifyPayment(c *fiber.Ctx) error {
	var req VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "details": err.Error()})
	}
	userID, _ := c.Locals("user_id").(string)

	var paidNow *models.Registration
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var reg models.Registration
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", req.RegistrationID, userID).
			First(&reg).Error; err != nil {
			return err
		}

		// Gate 1 plus the replay and stored-order checks. An idempotent
		// replay of an already-verified payment ends here as a no-op.
		action, err := gateVerifyRequest(reg, req, s.KeySecret)
		if err != nil {
			log.Printf("[PAYMENT] rejected before provider fetch (registration=%s order=%s payment=%s): %v",
				reg.ID, req.RazorpayOrderID, req.RazorpayPaymentID, err)
			return err
		}
		if action == verifyReplay {
			return nil
		}

		// Gate 2: authoritative status from the provider.
		payment, err := s.Provider.FetchPayment(req.RazorpayPaymentID)
		if err != nil {
			log.Printf("[PAYMENT] provider fetch failed (registration=%s payment=%s): %v",
				reg.ID, req.RazorpayPaymentID, err)
			return err
		}

		// Gate 3: amount cross-check against the amounts persisted at
		// checkout. A pricing-table change after order creation cannot alter
		// this outcome.
		expectedPaise := RupeesToPaise(reg.FinalAmount)
		if err := checkProviderPayment(payment, reg.RazorpayOrderID, expectedPaise); err != nil {
			log.Printf("[PAYMENT] rejected (registration=%s payment=%s status=%s amount=%d expected=%d): %v",
				reg.ID, payment.ID, payment.Status, payment.AmountPaise, expectedPaise, err)
			return err
		}

		// All gates passed: one update, pure status set.
		now := time.Now()
		if err := tx.Model(&models.Registration{}).Where("id = ?", reg.ID).
			Updates(map[string]interface{}{
				"payment_status":      models.PaymentPaid,
				"razorpay_payment_id": req.RazorpayPaymentID,
				"paid_at":             now,
			}).Error; err != nil {
			return err
		}
		reg.PaymentStatus = models.PaymentPaid
		reg.RazorpayPaymentID = req.RazorpayPaymentID
		reg.PaidAt = &now
		paidNow = &reg
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "registration not found"})
		case errors.Is(err, ErrSignatureMismatch),
			errors.Is(err, ErrPaymentNotCaptured),
			errors.Is(err, ErrAmountMismatch),
			errors.Is(err, ErrOrderMismatch):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"verified": false,
				"error":    "payment verification failed",
			})
		default:
			log.Printf("[PAYMENT] verification error (registration=%s): %v", req.RegistrationID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"verified": false,
				"error":    "payment verification unavailable, please retry",
			})
		}
	}

	// Notification only on the pending→paid transition; an idempotent replay
	// leaves paidNow nil and fires nothing.
	if paidNow != nil {
		s.Notifier.PaymentCompleted(paidNow)
	}

	return c.JSON(fiber.Map{"verified": true})
}
