package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"run-challenge-system/models"
)

func signPayment(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRupeesToPaise(t *testing.T) {
	tests := []struct {
		name   string
		rupees float64
		want   int64
	}{
		{"whole rupees", 399, 39900},
		{"with paise", 199.50, 19950},
		{"rounds up", 10.005, 1001},
		{"rounds binary float", 0.1 + 0.2, 30},
		{"zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RupeesToPaise(tt.rupees); got != tt.want {
				t.Errorf("RupeesToPaise(%v) = %d, want %d", tt.rupees, got, tt.want)
			}
		})
	}
}

func TestVerifyPaymentSignature(t *testing.T) {
	const secret = "test_secret"
	const orderID = "order_MxA1B2C3"
	const paymentID = "pay_NxD4E5F6"
	good := signPayment(orderID, paymentID, secret)

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		want      bool
	}{
		{"valid signature", orderID, paymentID, good, true},
		{"wrong secret", orderID, paymentID, signPayment(orderID, paymentID, "other_secret"), false},
		{"swapped ids", orderID, paymentID, signPayment(paymentID, orderID, secret), false},
		{"signature for a different payment", orderID, paymentID, signPayment(orderID, "pay_other", secret), false},
		{"truncated signature", orderID, paymentID, good[:len(good)-2], false},
		{"empty signature", orderID, paymentID, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verifyPaymentSignature(tt.orderID, tt.paymentID, tt.signature, secret)
			if got != tt.want {
				t.Errorf("verifyPaymentSignature = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGateVerifyRequest(t *testing.T) {
	const secret = "test_secret"
	const storedOrder = "order_MxA1B2C3"
	const paymentID = "pay_NxD4E5F6"

	request := func(orderID, payID, signature string) VerifyPaymentRequest {
		return VerifyPaymentRequest{
			RegistrationID:    "reg-1",
			RazorpayOrderID:   orderID,
			RazorpayPaymentID: payID,
			RazorpaySignature: signature,
		}
	}
	signed := func(orderID, payID string) string { return signPayment(orderID, payID, secret) }

	pending := models.Registration{ID: "reg-1", PaymentStatus: models.PaymentPending, RazorpayOrderID: storedOrder}
	paid := models.Registration{ID: "reg-1", PaymentStatus: models.PaymentPaid, RazorpayOrderID: storedOrder, RazorpayPaymentID: paymentID}

	tests := []struct {
		name       string
		reg        models.Registration
		req        VerifyPaymentRequest
		wantAction string
		wantErr    error
	}{
		{
			"pending row with matching order proceeds",
			pending,
			request(storedOrder, paymentID, signed(storedOrder, paymentID)),
			verifyProceed, nil,
		},
		{
			"replay of the verified ids is a no-op",
			paid,
			request(storedOrder, paymentID, signed(storedOrder, paymentID)),
			verifyReplay, nil,
		},
		{
			"garbage signature fails even on a paid row",
			paid,
			request(storedOrder, paymentID, "not-a-signature"),
			"", ErrSignatureMismatch,
		},
		{
			"paid row rejects different payment id",
			paid,
			request(storedOrder, "pay_other", signed(storedOrder, "pay_other")),
			"", ErrOrderMismatch,
		},
		{
			"pending row rejects a foreign order id",
			pending,
			request("order_other", paymentID, signed("order_other", paymentID)),
			"", ErrOrderMismatch,
		},
		{
			"no order created yet rejects everything",
			models.Registration{ID: "reg-1", PaymentStatus: models.PaymentPending},
			request(storedOrder, paymentID, signed(storedOrder, paymentID)),
			"", ErrOrderMismatch,
		},
		{
			"signature check runs before the order check",
			pending,
			request("order_other", paymentID, "not-a-signature"),
			"", ErrSignatureMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := gateVerifyRequest(tt.reg, tt.req, secret)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("gateVerifyRequest error = %v, want %v", err, tt.wantErr)
			}
			if action != tt.wantAction {
				t.Errorf("gateVerifyRequest action = %q, want %q", action, tt.wantAction)
			}
		})
	}
}

func TestCheckProviderPayment(t *testing.T) {
	const storedOrder = "order_MxA1B2C3"
	base := ProviderPayment{
		ID:          "pay_NxD4E5F6",
		OrderID:     storedOrder,
		Status:      "captured",
		AmountPaise: 39900,
		Currency:    "INR",
	}

	tests := []struct {
		name    string
		mutate  func(p *ProviderPayment)
		wantErr error
	}{
		{"captured exact amount", func(p *ProviderPayment) {}, nil},
		{"authorized counts as paid", func(p *ProviderPayment) { p.Status = "authorized" }, nil},
		{"created is not paid", func(p *ProviderPayment) { p.Status = "created" }, ErrPaymentNotCaptured},
		{"failed is not paid", func(p *ProviderPayment) { p.Status = "failed" }, ErrPaymentNotCaptured},
		{"refunded is not paid", func(p *ProviderPayment) { p.Status = "refunded" }, ErrPaymentNotCaptured},
		{"underpaid by 100 paise", func(p *ProviderPayment) { p.AmountPaise = 39800 }, ErrAmountMismatch},
		{"overpaid", func(p *ProviderPayment) { p.AmountPaise = 40000 }, ErrAmountMismatch},
		{"off by one paisa", func(p *ProviderPayment) { p.AmountPaise = 39901 }, ErrAmountMismatch},
		{"payment for another order", func(p *ProviderPayment) { p.OrderID = "order_other" }, ErrOrderMismatch},
		{"order check runs before status", func(p *ProviderPayment) { p.OrderID = "order_other"; p.Status = "failed" }, ErrOrderMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			err := checkProviderPayment(p, storedOrder, 39900)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("checkProviderPayment = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
