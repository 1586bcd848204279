package models

import (
	"time"
)

// Discount types supported by coupons.
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

// Coupon is a discount code with usage limits and scope constraints.
// Codes are stored uppercase; lookups normalize before matching.
type Coupon struct {
	ID            string  `json:"id" gorm:"primaryKey"`
	Code          string  `json:"code" gorm:"uniqueIndex;not null;type:varchar(64)"`
	DiscountType  string  `json:"discount_type" gorm:"not null;default:'fixed'"`
	DiscountValue float64 `json:"discount_value" gorm:"not null"`

	// ChallengeName scopes the coupon to one challenge; empty means global.
	ChallengeName string `json:"challenge_name,omitempty" gorm:"index"`

	MaxUses     int `json:"max_uses" gorm:"default:0"`     // 0 = unlimited
	PerUserMax  int `json:"per_user_max" gorm:"default:0"` // 0 = unlimited
	CurrentUses int `json:"current_uses" gorm:"default:0"` // incremented atomically, never past MaxUses

	IsActive  bool       `json:"is_active" gorm:"default:true"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// CouponUsage is the append-only ledger of coupon applications. It fixes the
// monetary effect at time of use so discounts are never re-derived later.
type CouponUsage struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	CouponID       string    `json:"coupon_id" gorm:"not null;index"`
	Code           string    `json:"code" gorm:"type:varchar(64)"`
	UserID         string    `json:"user_id" gorm:"not null;index"`
	RegistrationID string    `json:"registration_id" gorm:"not null;index"`
	OrderAmount    float64   `json:"order_amount"`
	DiscountAmount float64   `json:"discount_amount"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}
