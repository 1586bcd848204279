package services

import (
	"errors"
	"testing"
	"time"

	"run-challenge-system/models"
)

func TestPlanCheckout(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	pending := models.Registration{ID: "reg-1", PaymentStatus: models.PaymentPending}

	t.Run("priced order still needs the provider", func(t *testing.T) {
		q := Quote{OriginalAmount: 399, DiscountAmount: 199.50, FinalAmount: 199.50, AppliedCouponCode: "RUN50"}
		updates, needsProvider, err := planCheckout(pending, q, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !needsProvider {
			t.Error("a non-free order must create a provider order")
		}
		if _, ok := updates["payment_status"]; ok {
			t.Error("payment_status must not be touched before verification")
		}
		if updates["final_amount"] != 199.50 || updates["coupon_code"] != "RUN50" {
			t.Errorf("updates missing quote fields: %v", updates)
		}
	})

	t.Run("fully discounted order is paid immediately", func(t *testing.T) {
		q := Quote{OriginalAmount: 399, DiscountAmount: 399, FinalAmount: 0, AppliedCouponCode: "FREE100"}
		updates, needsProvider, err := planCheckout(pending, q, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if needsProvider {
			t.Error("a free order must never reach the provider")
		}
		if updates["payment_status"] != models.PaymentPaid {
			t.Errorf("payment_status = %v, want paid", updates["payment_status"])
		}
		if updates["paid_at"] != now {
			t.Errorf("paid_at = %v, want %v", updates["paid_at"], now)
		}
	})

	t.Run("already-paid registration aborts", func(t *testing.T) {
		paid := models.Registration{ID: "reg-1", PaymentStatus: models.PaymentPaid}
		q := Quote{OriginalAmount: 399, FinalAmount: 399}
		_, _, err := planCheckout(paid, q, now)
		if !errors.Is(err, errAlreadyPaid) {
			t.Errorf("err = %v, want errAlreadyPaid", err)
		}
	})
}
