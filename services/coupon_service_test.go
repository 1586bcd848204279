package services

import (
	"errors"
	"testing"
	"time"

	"run-challenge-system/models"
)

func TestNormalizeCouponCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "run50", "RUN50"},
		{"mixed case", "Run50", "RUN50"},
		{"surrounding spaces", "  RUN50  ", "RUN50"},
		{"already normalized", "RUN50", "RUN50"},
		{"empty", "", ""},
		{"only spaces", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeCouponCode(tt.in); got != tt.want {
				t.Errorf("NormalizeCouponCode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name        string
		coupon      models.Coupon
		orderAmount float64
		want        float64
	}{
		{
			"percentage whole",
			models.Coupon{DiscountType: models.DiscountPercentage, DiscountValue: 50},
			399, 199.50,
		},
		{
			"percentage rounds to paise",
			models.Coupon{DiscountType: models.DiscountPercentage, DiscountValue: 10},
			333.33, 33.33,
		},
		{
			"hundred percent",
			models.Coupon{DiscountType: models.DiscountPercentage, DiscountValue: 100},
			499, 499,
		},
		{
			"fixed below order",
			models.Coupon{DiscountType: models.DiscountFixed, DiscountValue: 100},
			399, 100,
		},
		{
			"fixed clamps to order amount",
			models.Coupon{DiscountType: models.DiscountFixed, DiscountValue: 500},
			399, 399,
		},
		{
			"fixed on zero order",
			models.Coupon{DiscountType: models.DiscountFixed, DiscountValue: 100},
			0, 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDiscount(&tt.coupon, tt.orderAmount)
			if got != tt.want {
				t.Errorf("ComputeDiscount = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckCoupon(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	base := models.Coupon{
		Code:          "RUN50",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: 50,
		IsActive:      true,
	}

	tests := []struct {
		name      string
		mutate    func(c *models.Coupon)
		challenge string
		userUses  int64
		wantValid bool
		reason    string
	}{
		{
			"valid global coupon",
			func(c *models.Coupon) {},
			"march-10k", 0, true, "",
		},
		{
			"inactive reads as not found",
			func(c *models.Coupon) { c.IsActive = false },
			"march-10k", 0, false, ReasonCouponNotFound,
		},
		{
			"expired",
			func(c *models.Coupon) { c.ExpiresAt = &past },
			"march-10k", 0, false, ReasonCouponExpired,
		},
		{
			"not yet expired",
			func(c *models.Coupon) { c.ExpiresAt = &future },
			"march-10k", 0, true, "",
		},
		{
			"scoped to another challenge",
			func(c *models.Coupon) { c.ChallengeName = "april-ride" },
			"march-10k", 0, false, ReasonWrongChallenge,
		},
		{
			"scoped to this challenge",
			func(c *models.Coupon) { c.ChallengeName = "march-10k" },
			"march-10k", 0, true, "",
		},
		{
			"globally exhausted",
			func(c *models.Coupon) { c.MaxUses = 10; c.CurrentUses = 10 },
			"march-10k", 0, false, ReasonCouponExhausted,
		},
		{
			"one use left",
			func(c *models.Coupon) { c.MaxUses = 10; c.CurrentUses = 9 },
			"march-10k", 0, true, "",
		},
		{
			"zero max means unlimited",
			func(c *models.Coupon) { c.MaxUses = 0; c.CurrentUses = 100000 },
			"march-10k", 0, true, "",
		},
		{
			"per-user limit reached",
			func(c *models.Coupon) { c.PerUserMax = 1 },
			"march-10k", 1, false, ReasonUsageLimitReached,
		},
		{
			"per-user limit not reached",
			func(c *models.Coupon) { c.PerUserMax = 2 },
			"march-10k", 1, true, "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coupon := base
			tt.mutate(&coupon)
			res := checkCoupon(&coupon, tt.challenge, tt.userUses, 399, now)
			if res.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (reason=%q)", res.Valid, tt.wantValid, res.Reason)
			}
			if !tt.wantValid && res.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", res.Reason, tt.reason)
			}
			if tt.wantValid && res.Coupon() == nil {
				t.Error("valid result should carry the coupon row")
			}
		})
	}
}

func TestCheckRedemption(t *testing.T) {
	base := models.Coupon{
		Code:          "RUN50",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: 50,
		IsActive:      true,
	}

	tests := []struct {
		name     string
		mutate   func(c *models.Coupon)
		userUses int64
		wantErr  error
	}{
		{"under all limits", func(c *models.Coupon) {}, 0, nil},
		{"deactivated since validation", func(c *models.Coupon) { c.IsActive = false }, 0, ErrCouponExhausted},
		{"global limit crossed by a concurrent checkout", func(c *models.Coupon) { c.MaxUses = 5; c.CurrentUses = 5 }, 0, ErrCouponExhausted},
		{"last global use still redeems", func(c *models.Coupon) { c.MaxUses = 5; c.CurrentUses = 4 }, 0, nil},
		{"zero max is unlimited", func(c *models.Coupon) { c.CurrentUses = 100000 }, 0, nil},
		{"per-user cap crossed by a concurrent checkout", func(c *models.Coupon) { c.PerUserMax = 1 }, 1, ErrCouponUserLimit},
		{"per-user cap not reached", func(c *models.Coupon) { c.PerUserMax = 2 }, 1, nil},
		{"zero per-user cap is unlimited", func(c *models.Coupon) {}, 50, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coupon := base
			tt.mutate(&coupon)
			if err := checkRedemption(&coupon, tt.userUses); !errors.Is(err, tt.wantErr) {
				t.Errorf("checkRedemption = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckCouponDiscountAmount(t *testing.T) {
	now := time.Now()
	coupon := models.Coupon{
		Code:          "FLAT100",
		DiscountType:  models.DiscountFixed,
		DiscountValue: 100,
		IsActive:      true,
	}
	res := checkCoupon(&coupon, "march-10k", 0, 399, now)
	if !res.Valid {
		t.Fatalf("expected valid, got reason %q", res.Reason)
	}
	if res.DiscountAmount != 100 {
		t.Errorf("DiscountAmount = %v, want 100", res.DiscountAmount)
	}
	if res.DiscountType != models.DiscountFixed || res.DiscountValue != 100 {
		t.Errorf("result should echo the coupon terms, got %q/%v", res.DiscountType, res.DiscountValue)
	}
}
