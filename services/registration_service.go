package services

import (
	"errors"
	"log"
	"time"

	"run-challenge-system/models"
	"run-challenge-system/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RegistrationService struct {
	DB       *gorm.DB
	Pricing  *PricingService
	Payments *PaymentService
	Notifier *Notifier
	validate *validator.Validate
}

func NewRegistrationService(db *gorm.DB, pricing *PricingService, payments *PaymentService, notifier *Notifier) *RegistrationService {
	return &RegistrationService{
		DB:       db,
		Pricing:  pricing,
		Payments: payments,
		Notifier: notifier,
		validate: validator.New(),
	}
}

type CreateRegistrationRequest struct {
	ChallengeName string `json:"challenge_name" validate:"required"`
	UserEmail     string `json:"user_email" validate:"required,email"`
	UserName      string `json:"user_name" validate:"required,max=120"`
}

// CreateRegistration records a registration intent. Pricing happens at
// checkout; the row starts with both statuses pending.
func (s *RegistrationService) CreateRegistration(c *fiber.Ctx) error {
	var req CreateRegistrationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "details": err.Error()})
	}
	userID, _ := c.Locals("user_id").(string)

	var challenge models.Challenge
	err := s.DB.Where("name = ? AND is_active = true AND status IN ?",
		req.ChallengeName, []string{"upcoming", "active"}).First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "challenge not open for registration"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var existing int64
	if err := s.DB.Model(&models.Registration{}).
		Where("user_id = ? AND challenge_name = ? AND payment_status != ?",
			userID, challenge.Name, models.PaymentFailed).
		Count(&existing).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already registered for this challenge"})
	}

	reg := &models.Registration{
		ID:                 uuid.NewString(),
		UserID:             userID,
		UserEmail:          req.UserEmail,
		UserName:           req.UserName,
		ChallengeName:      challenge.Name,
		Sport:              challenge.Sport,
		DistanceKm:         challenge.DistanceKm,
		PaymentStatus:      models.PaymentPending,
		VerificationStatus: models.VerificationPending,
		VerificationMethod: models.MethodManual,
	}
	if err := s.DB.Create(reg).Error; err != nil {
		log.Printf("[REGISTRATION] DB error creating registration: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create registration"})
	}

	return c.Status(fiber.StatusCreated).JSON(reg)
}

type CheckoutRequest struct {
	CouponCode string `json:"coupon_code,omitempty"`
}

// errAlreadyPaid aborts a checkout against a settled registration.
var errAlreadyPaid = errors.New("registration already paid")

// planCheckout turns the applied quote into the checkout writes: the column
// updates and whether a provider order is still needed. A fully discounted
// order is marked paid on the spot and never reaches the provider.
func planCheckout(reg models.Registration, q Quote, now time.Time) (map[string]interface{}, bool, error) {
	if reg.PaymentStatus == models.PaymentPaid {
		return nil, false, errAlreadyPaid
	}
	updates := map[string]interface{}{
		"coupon_code":     q.AppliedCouponCode,
		"original_amount": q.OriginalAmount,
		"discount_amount": q.DiscountAmount,
		"final_amount":    q.FinalAmount,
	}
	if q.FinalAmount <= 0 {
		updates["payment_status"] = models.PaymentPaid
		updates["paid_at"] = now
		return updates, false, nil
	}
	return updates, true, nil
}

// Checkout prices the order server-side, consumes the coupon, and creates the
// provider order — all in one transaction, so a provider failure leaves no
// partial state. A fully-discounted order is marked paid immediately and
// never reaches the provider.
func (s *RegistrationService) Checkout(c *fiber.Ctx) error {
	registrationID := c.Params("id")
	if registrationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id required"})
	}
	// The coupon is optional; an empty body is a plain full-price checkout.
	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		req = CheckoutRequest{}
	}
	userID, _ := c.Locals("user_id").(string)

	var reg models.Registration
	var quote Quote
	var freePaid bool

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", registrationID, userID).
			First(&reg).Error; err != nil {
			return err
		}

		q, err := s.Pricing.PriceOrder(reg.ChallengeName, userID, req.CouponCode)
		if err != nil {
			return err
		}
		q, err = s.Pricing.Apply(tx, q, userID, reg.ID)
		if err != nil {
			return err
		}
		quote = q

		now := time.Now()
		updates, needsProvider, err := planCheckout(reg, q, now)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.Registration{}).Where("id = ?", reg.ID).
			Updates(updates).Error; err != nil {
			return err
		}

		reg.CouponCode = q.AppliedCouponCode
		reg.OriginalAmount = q.OriginalAmount
		reg.DiscountAmount = q.DiscountAmount
		reg.FinalAmount = q.FinalAmount

		if !needsProvider {
			reg.PaymentStatus = models.PaymentPaid
			reg.PaidAt = &now
			freePaid = true
			return nil
		}
		return s.Payments.CreateProviderOrder(tx, &reg, reg.ID)
	})

	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "registration not found"})
		case errors.Is(err, errAlreadyPaid):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "registration is already paid"})
		case errors.Is(err, ErrOrderCreationFailed):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "payment provider unavailable, please retry"})
		default:
			log.Printf("[REGISTRATION] checkout failed (registration=%s): %v", registrationID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout failed"})
		}
	}

	if freePaid {
		s.Notifier.PaymentCompleted(&reg)
		return c.JSON(fiber.Map{
			"paid":            true,
			"final_amount":    0,
			"original_amount": quote.OriginalAmount,
			"discount_amount": quote.DiscountAmount,
			"coupon_code":     quote.AppliedCouponCode,
		})
	}

	return c.JSON(fiber.Map{
		"paid":              false,
		"razorpay_order_id": reg.RazorpayOrderID,
		"razorpay_key_id":   s.Payments.KeyID,
		"amount":            RupeesToPaise(reg.FinalAmount),
		"currency":          "INR",
		"original_amount":   quote.OriginalAmount,
		"discount_amount":   quote.DiscountAmount,
		"final_amount":      quote.FinalAmount,
		"coupon_code":       quote.AppliedCouponCode,
	})
}

// SubmitProof attaches a proof screenshot or an external activity link to a
// paid registration and (re)enters the manual review queue.
func (s *RegistrationService) SubmitProof(c *fiber.Ctx) error {
	registrationID := c.Params("id")
	userID, _ := c.Locals("user_id").(string)

	var reg models.Registration
	if err := s.DB.Where("id = ? AND user_id = ?", registrationID, userID).First(&reg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "registration not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if reg.PaymentStatus != models.PaymentPaid {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "registration is not paid"})
	}
	if reg.VerificationStatus == models.VerificationApproved {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "registration is already approved"})
	}

	updates := map[string]interface{}{
		"verification_method": models.MethodManual,
		"verification_status": models.VerificationPending,
	}

	fileHeader, err := c.FormFile("proof")
	if err == nil {
		ext, err := utils.ValidateProofImage(fileHeader)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		key := utils.ProofObjectKey(reg.ID, uuid.NewString(), ext)
		url, err := utils.UploadProofImage(fileHeader, key)
		if err != nil {
			log.Printf("[REGISTRATION] proof upload failed (registration=%s): %v", reg.ID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "proof upload failed, please retry"})
		}
		updates["proof_image_url"] = url
	} else {
		link := c.FormValue("proof_link")
		if link == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "proof file or proof_link is required"})
		}
		updates["proof_link"] = link
	}

	if dateStr := c.FormValue("activity_date"); dateStr != "" {
		if date, err := time.Parse("2006-01-02", dateStr); err == nil {
			updates["activity_date"] = date
		}
	}

	if err := s.DB.Model(&models.Registration{}).Where("id = ?", reg.ID).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save proof"})
	}

	s.DB.First(&reg, "id = ?", reg.ID)
	return c.JSON(reg)
}

// GetMyRegistrations lists the authenticated user's registrations.
func (s *RegistrationService) GetMyRegistrations(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	var regs []models.Registration
	if err := s.DB.Where("user_id = ?", userID).Order("created_at desc").Find(&regs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(regs)
}

type ReviewRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
	Notes  string `json:"notes,omitempty"`
}

// ReviewRegistration is the staff decision on a manually-submitted proof.
func (s *RegistrationService) ReviewRegistration(c *fiber.Ctx) error {
	registrationID := c.Params("id")
	var req ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "details": err.Error()})
	}

	var reg models.Registration
	if err := s.DB.First(&reg, "id = ?", registrationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "registration not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if reg.PaymentStatus != models.PaymentPaid {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "registration is not paid"})
	}

	if err := s.DB.Model(&models.Registration{}).Where("id = ?", reg.ID).
		Updates(map[string]interface{}{
			"verification_status": req.Status,
			"verification_method": models.MethodManual,
		}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "review update failed"})
	}

	log.Printf("[REVIEW] registration %s %s by staff (user=%s challenge=%s)",
		reg.ID, req.Status, reg.UserID, reg.ChallengeName)

	s.DB.First(&reg, "id = ?", reg.ID)
	return c.JSON(reg)
}

// GetPendingReviews lists paid registrations awaiting manual review.
func (s *RegistrationService) GetPendingReviews(c *fiber.Ctx) error {
	var regs []models.Registration
	err := s.DB.Where("payment_status = ? AND verification_status = ? AND (proof_image_url != '' OR proof_link != '')",
		models.PaymentPaid, models.VerificationPending).
		Order("updated_at asc").Find(&regs).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(regs)
}
