package services

import (
	"errors"
	"log"
	"math"
	"strings"
	"time"

	"run-challenge-system/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Validation failure reasons surfaced to the caller. Each failure mode gets
// its own reason so the UI can explain it; never a generic error.
const (
	ReasonCouponNotFound    = "coupon_not_found"
	ReasonCouponExpired     = "coupon_expired"
	ReasonCouponExhausted   = "coupon_exhausted"
	ReasonWrongChallenge    = "wrong_challenge"
	ReasonUsageLimitReached = "usage_limit_reached"
)

// Errors returned by RecordUsage when the locked re-check finds a limit was
// crossed by a concurrent checkout between validation and redemption.
var (
	ErrCouponExhausted = errors.New(ReasonCouponExhausted)
	ErrCouponUserLimit = errors.New(ReasonUsageLimitReached)
)

type CouponService struct {
	DB       *gorm.DB
	validate *validator.Validate
}

func NewCouponService(db *gorm.DB) *CouponService {
	return &CouponService{DB: db, validate: validator.New()}
}

// CouponResult is the outcome of a validation pass. When Valid is false,
// Reason carries one of the Reason* constants.
type CouponResult struct {
	Valid          bool    `json:"valid"`
	Reason         string  `json:"reason,omitempty"`
	DiscountType   string  `json:"discount_type,omitempty"`
	DiscountValue  float64 `json:"discount_value,omitempty"`
	DiscountAmount float64 `json:"discount_amount"`

	coupon *models.Coupon
}

// Coupon returns the underlying coupon row of a successful validation.
func (r CouponResult) Coupon() *models.Coupon { return r.coupon }

// NormalizeCouponCode uppercases and trims a user-supplied code before lookup.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ComputeDiscount returns the discount a coupon yields on an order amount.
// Percentage discounts round to the currency's smallest unit; fixed discounts
// clamp to the order amount so the payable never goes negative.
func ComputeDiscount(coupon *models.Coupon, orderAmount float64) float64 {
	var discount float64
	switch coupon.DiscountType {
	case models.DiscountPercentage:
		discount = math.Round(orderAmount*coupon.DiscountValue) / 100.0
	default:
		discount = coupon.DiscountValue
	}
	return math.Min(discount, orderAmount)
}

// checkCoupon applies every validation rule to an already-loaded coupon.
// Pure: callers supply the user's prior usage count and the clock.
func checkCoupon(coupon *models.Coupon, challengeName string, userUses int64, orderAmount float64, now time.Time) CouponResult {
	if !coupon.IsActive {
		return CouponResult{Reason: ReasonCouponNotFound}
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(now) {
		return CouponResult{Reason: ReasonCouponExpired}
	}
	if coupon.ChallengeName != "" && coupon.ChallengeName != challengeName {
		return CouponResult{Reason: ReasonWrongChallenge}
	}
	if coupon.MaxUses > 0 && coupon.CurrentUses >= coupon.MaxUses {
		return CouponResult{Reason: ReasonCouponExhausted}
	}
	if coupon.PerUserMax > 0 && userUses >= int64(coupon.PerUserMax) {
		return CouponResult{Reason: ReasonUsageLimitReached}
	}
	return CouponResult{
		Valid:          true,
		DiscountType:   coupon.DiscountType,
		DiscountValue:  coupon.DiscountValue,
		DiscountAmount: ComputeDiscount(coupon, orderAmount),
		coupon:         coupon,
	}
}

// Validate decides whether a coupon applies to the given challenge, user and
// order amount. Read-only: recording usage is a separate explicit step, so
// callers may validate speculatively (live discount preview) without burning
// a use.
func (s *CouponService) Validate(code, challengeName, userID string, orderAmount float64) (CouponResult, error) {
	normalized := NormalizeCouponCode(code)
	if normalized == "" {
		return CouponResult{Reason: ReasonCouponNotFound}, nil
	}

	var coupon models.Coupon
	if err := s.DB.Where("code = ?", normalized).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CouponResult{Reason: ReasonCouponNotFound}, nil
		}
		return CouponResult{}, err
	}

	var userUses int64
	if coupon.PerUserMax > 0 {
		if err := s.DB.Model(&models.CouponUsage{}).
			Where("coupon_id = ? AND user_id = ?", coupon.ID, userID).
			Count(&userUses).Error; err != nil {
			return CouponResult{}, err
		}
	}

	return checkCoupon(&coupon, challengeName, userUses, orderAmount, time.Now()), nil
}

// checkRedemption re-applies the limit rules at redemption time. Validation
// ran outside the transaction, so both the global and per-user limits must be
// re-checked against the locked row before the increment.
func checkRedemption(coupon *models.Coupon, userUses int64) error {
	if !coupon.IsActive {
		return ErrCouponExhausted
	}
	if coupon.MaxUses > 0 && coupon.CurrentUses >= coupon.MaxUses {
		return ErrCouponExhausted
	}
	if coupon.PerUserMax > 0 && userUses >= int64(coupon.PerUserMax) {
		return ErrCouponUserLimit
	}
	return nil
}

// RecordUsage consumes one use of a coupon and appends the usage ledger row.
// The coupon row is locked for the transaction, so concurrent checkouts
// serialize here and the re-counted limits hold when the increment lands.
// Must run inside the caller's transaction alongside the order-pricing write.
func (s *CouponService) RecordUsage(tx *gorm.DB, coupon *models.Coupon, userID, registrationID string, orderAmount, discountAmount float64) error {
	var locked models.Coupon
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&locked, "id = ?", coupon.ID).Error; err != nil {
		return err
	}

	var userUses int64
	if locked.PerUserMax > 0 {
		if err := tx.Model(&models.CouponUsage{}).
			Where("coupon_id = ? AND user_id = ?", coupon.ID, userID).
			Count(&userUses).Error; err != nil {
			return err
		}
	}
	if err := checkRedemption(&locked, userUses); err != nil {
		return err
	}

	if err := tx.Model(&models.Coupon{}).Where("id = ?", coupon.ID).
		UpdateColumn("current_uses", gorm.Expr("current_uses + 1")).Error; err != nil {
		return err
	}

	usage := &models.CouponUsage{
		ID:             uuid.NewString(),
		CouponID:       coupon.ID,
		Code:           coupon.Code,
		UserID:         userID,
		RegistrationID: registrationID,
		OrderAmount:    orderAmount,
		DiscountAmount: discountAmount,
	}
	return tx.Create(usage).Error
}

// --- Admin endpoints ---

type CreateCouponRequest struct {
	Code          string     `json:"code" validate:"required,max=64"`
	DiscountType  string     `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue float64    `json:"discount_value" validate:"required,gt=0"`
	ChallengeName string     `json:"challenge_name,omitempty"`
	MaxUses       int        `json:"max_uses,omitempty" validate:"gte=0"`
	PerUserMax    int        `json:"per_user_max,omitempty" validate:"gte=0"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// CreateCoupon issues a new coupon. Admin only.
func (s *CouponService) CreateCoupon(c *fiber.Ctx) error {
	var req CreateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "details": err.Error()})
	}
	if req.DiscountType == models.DiscountPercentage && req.DiscountValue > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "percentage discount cannot exceed 100"})
	}

	code := NormalizeCouponCode(req.Code)
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code cannot be empty after trimming"})
	}

	var count int64
	if err := s.DB.Model(&models.Coupon{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error checking code uniqueness"})
	}
	if count > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "coupon code already exists"})
	}

	coupon := &models.Coupon{
		ID:            uuid.NewString(),
		Code:          code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		ChallengeName: req.ChallengeName,
		MaxUses:       req.MaxUses,
		PerUserMax:    req.PerUserMax,
		IsActive:      true,
		ExpiresAt:     req.ExpiresAt,
	}
	if err := s.DB.Create(coupon).Error; err != nil {
		log.Printf("[COUPON] DB error creating coupon: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create coupon"})
	}

	return c.Status(fiber.StatusCreated).JSON(coupon)
}

func (s *CouponService) GetAllCoupons(c *fiber.Ctx) error {
	var coupons []models.Coupon
	if err := s.DB.Order("created_at desc").Find(&coupons).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(coupons)
}

type UpdateCouponRequest struct {
	IsActive   *bool      `json:"is_active,omitempty"`
	MaxUses    *int       `json:"max_uses,omitempty"`
	PerUserMax *int       `json:"per_user_max,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// UpdateCoupon patches usage limits, expiry or the active flag. Discount type
// and value are immutable once issued — usage ledger rows reference them.
func (s *CouponService) UpdateCoupon(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id required"})
	}
	var req UpdateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	updates := make(map[string]interface{})
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.MaxUses != nil {
		if *req.MaxUses < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "max_uses must be >= 0"})
		}
		updates["max_uses"] = *req.MaxUses
	}
	if req.PerUserMax != nil {
		if *req.PerUserMax < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "per_user_max must be >= 0"})
		}
		updates["per_user_max"] = *req.PerUserMax
	}
	if req.ExpiresAt != nil {
		updates["expires_at"] = *req.ExpiresAt
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no fields to update"})
	}

	result := s.DB.Model(&models.Coupon{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "update failed"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "coupon not found"})
	}

	var updated models.Coupon
	if err := s.DB.First(&updated, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch updated coupon"})
	}
	return c.JSON(updated)
}

// GetCouponUsages lists the append-only usage ledger for one coupon.
func (s *CouponService) GetCouponUsages(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id required"})
	}
	var usages []models.CouponUsage
	if err := s.DB.Where("coupon_id = ?", id).Order("created_at desc").Find(&usages).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(usages)
}
