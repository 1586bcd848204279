package models

import (
	"time"

	"gorm.io/datatypes"
)

// Payment lifecycle of a registration.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Verification lifecycle of a registration.
const (
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

// How a registration got (or will get) verified.
const (
	MethodManual = "manual" // proof screenshot/link reviewed by staff
	MethodStrava = "strava" // matched automatically against synced activities
)

// Registration is one user's enrollment in one challenge-distance combination.
// Pricing fields are written once at checkout and are the authoritative amounts
// for payment verification; a later price-table change never affects them.
type Registration struct {
	ID        string `json:"id" gorm:"primaryKey"`
	UserID    string `json:"user_id" gorm:"not null;index"`
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name"`

	ChallengeName string  `json:"challenge_name" gorm:"not null;index"`
	Sport         string  `json:"sport"`
	DistanceKm    float64 `json:"distance_km"` // required distance, snapshotted at registration

	PaymentStatus      string `json:"payment_status" gorm:"default:'pending'"`
	VerificationStatus string `json:"verification_status" gorm:"default:'pending'"`
	VerificationMethod string `json:"verification_method" gorm:"default:'manual'"`

	// Proof of completion (manual path)
	ProofImageURL string `json:"proof_image_url,omitempty"`
	ProofLink     string `json:"proof_link,omitempty"`

	// Recorded activity metrics (filled by proof submission or auto-verification)
	ActivityDate       *time.Time `json:"activity_date,omitempty"`
	ActivityDistanceKm float64    `json:"activity_distance_km"`
	ActivityDuration   int        `json:"activity_duration_secs"`

	// Coupon linkage. Invariant: FinalAmount = OriginalAmount - DiscountAmount >= 0.
	CouponCode     string  `json:"coupon_code,omitempty" gorm:"type:varchar(64)"`
	DiscountAmount float64 `json:"discount_amount" gorm:"default:0"`
	OriginalAmount float64 `json:"original_amount" gorm:"default:0"`
	FinalAmount    float64 `json:"final_amount" gorm:"default:0"`

	// Payment provider linkage
	RazorpayOrderID   string     `json:"razorpay_order_id,omitempty" gorm:"index"`
	RazorpayPaymentID string     `json:"razorpay_payment_id,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`

	// Auto-verification linkage
	StravaActivityID  int64          `json:"strava_activity_id,omitempty" gorm:"index"`
	StravaActivityRaw datatypes.JSON `json:"strava_activity_raw,omitempty"`
	AutoVerifiedAt    *time.Time     `json:"auto_verified_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// VerificationLog is the append-only record of every activity-matcher decision.
// It is the source of truth for "why was this approved automatically".
type VerificationLog struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	RegistrationID string    `json:"registration_id" gorm:"not null;index"`
	ActivityID     int64     `json:"activity_id"`
	SyncType       string    `json:"sync_type"` // manual_sync
	Outcome        string    `json:"outcome"`   // approved, upgraded, no_match, error
	DistanceKm     float64   `json:"distance_km"`
	Details        string    `json:"details"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}
