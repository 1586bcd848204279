package services

import (
	"errors"
	"log"

	"run-challenge-system/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// PriceTable resolves the authoritative price for a challenge. Prices are
// server-owned configuration — amounts claimed by the client are never used.
type PriceTable interface {
	PriceFor(challengeName string) (float64, error)
}

// RuleTable resolves the matching rule for a challenge.
type RuleTable interface {
	RuleFor(challengeName string) (models.ChallengeRule, error)
}

// couponValidator is the slice of CouponService the pricing service needs.
type couponValidator interface {
	Validate(code, challengeName, userID string, orderAmount float64) (CouponResult, error)
	RecordUsage(tx *gorm.DB, coupon *models.Coupon, userID, registrationID string, orderAmount, discountAmount float64) error
}

type PricingService struct {
	Prices       PriceTable
	Coupons      couponValidator
	DefaultPrice float64
	validate     *validator.Validate
}

func NewPricingService(prices PriceTable, coupons couponValidator, defaultPrice float64) *PricingService {
	return &PricingService{
		Prices:       prices,
		Coupons:      coupons,
		DefaultPrice: defaultPrice,
		validate:     validator.New(),
	}
}

// Quote is the priced order for one registration. FinalAmount is the only
// amount ever sent to the payment provider.
type Quote struct {
	OriginalAmount    float64 `json:"original_amount"`
	DiscountAmount    float64 `json:"discount_amount"`
	FinalAmount       float64 `json:"final_amount"`
	AppliedCouponCode string  `json:"applied_coupon_code,omitempty"`

	coupon *models.Coupon
}

// PriceOrder resolves the authoritative price and applies a validated coupon.
// An invalid or stale coupon code is a silent no-op — the order proceeds at
// full price, since coupon errors were already surfaced at the preview step
// and must not block checkout. Read-only: usage is consumed by Apply.
func (s *PricingService) PriceOrder(challengeName, userID, couponCode string) (Quote, error) {
	price, err := s.Prices.PriceFor(challengeName)
	if err != nil {
		if !errors.Is(err, ErrChallengeNotConfigured) {
			return Quote{}, err
		}
		// Configuration gap, not a user error: fall back to the default price
		// but make the gap visible server-side.
		log.Printf("[PRICING] no price configured for challenge %q, using default %.2f", challengeName, s.DefaultPrice)
		price = s.DefaultPrice
	}

	q := Quote{OriginalAmount: price, FinalAmount: price}
	if couponCode == "" {
		return q, nil
	}

	result, err := s.Coupons.Validate(couponCode, challengeName, userID, price)
	if err != nil {
		return Quote{}, err
	}
	if !result.Valid {
		log.Printf("[PRICING] coupon %q skipped at checkout (user=%s challenge=%s): %s",
			NormalizeCouponCode(couponCode), userID, challengeName, result.Reason)
		return q, nil
	}

	q.DiscountAmount = result.DiscountAmount
	q.FinalAmount = price - result.DiscountAmount
	if q.FinalAmount < 0 {
		q.FinalAmount = 0
	}
	q.AppliedCouponCode = result.Coupon().Code
	q.coupon = result.Coupon()
	return q, nil
}

// Apply consumes the quoted coupon inside the caller's transaction. If a
// concurrent checkout hit the global or per-user limit first, the discount is
// stripped and the order reverts to full price — same silent-fallback policy
// as PriceOrder.
func (s *PricingService) Apply(tx *gorm.DB, q Quote, userID, registrationID string) (Quote, error) {
	if q.coupon == nil {
		return q, nil
	}
	err := s.Coupons.RecordUsage(tx, q.coupon, userID, registrationID, q.OriginalAmount, q.DiscountAmount)
	if err == nil {
		return q, nil
	}
	if errors.Is(err, ErrCouponExhausted) || errors.Is(err, ErrCouponUserLimit) {
		log.Printf("[PRICING] coupon %q no longer redeemable at checkout (registration=%s), proceeding at full price: %v",
			q.coupon.Code, registrationID, err)
		return Quote{OriginalAmount: q.OriginalAmount, FinalAmount: q.OriginalAmount}, nil
	}
	return Quote{}, err
}

type ValidateCouponRequest struct {
	Code          string `json:"code" validate:"required"`
	ChallengeName string `json:"challenge_name" validate:"required"`
}

// ValidateCoupon is the live discount preview endpoint. It never consumes a
// use; the response carries the computed discount against the authoritative
// price plus a distinct reason when invalid.
func (s *PricingService) ValidateCoupon(c *fiber.Ctx) error {
	var req ValidateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "details": err.Error()})
	}
	userID, _ := c.Locals("user_id").(string)

	price, err := s.Prices.PriceFor(req.ChallengeName)
	if err != nil {
		if !errors.Is(err, ErrChallengeNotConfigured) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		price = s.DefaultPrice
	}

	result, err := s.Coupons.Validate(req.Code, req.ChallengeName, userID, price)
	if err != nil {
		log.Printf("[PRICING] coupon validation error (code=%s): %v", NormalizeCouponCode(req.Code), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to validate coupon"})
	}

	final := price - result.DiscountAmount
	if final < 0 {
		final = 0
	}
	return c.JSON(fiber.Map{
		"valid":           result.Valid,
		"reason":          result.Reason,
		"discount_amount": result.DiscountAmount,
		"original_amount": price,
		"final_amount":    final,
	})
}
