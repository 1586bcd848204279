package models

import (
	"time"
)

// StravaConnection links a user to their Strava athlete. Tokens are encrypted
// at rest by the token vault; plaintext never reaches the database or the
// client. At most one connection per user has IsActive=true — connecting again
// deactivates the previous row in the same transaction.
type StravaConnection struct {
	ID        string `json:"id" gorm:"primaryKey"`
	UserID    string `json:"user_id" gorm:"not null;index"`
	AthleteID int64  `json:"athlete_id" gorm:"index"`

	AccessToken    string    `json:"-" gorm:"type:text"` // vault ciphertext
	RefreshToken   string    `json:"-" gorm:"type:text"` // vault ciphertext
	TokenExpiresAt time.Time `json:"token_expires_at"`
	Scope          string    `json:"scope"`

	IsActive   bool       `json:"is_active" gorm:"default:true;index"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// SummaryActivity is the slice of Strava's activity summary the matcher cares
// about. Activities are ephemeral — only the one selected as proof is kept,
// as raw JSON on the registration.
type SummaryActivity struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	SportType      string    `json:"sport_type"`
	DistanceMeters float64   `json:"distance"`
	MovingTime     int       `json:"moving_time"`
	ElapsedTime    int       `json:"elapsed_time"`
	StartDate      time.Time `json:"start_date"`
}

// DistanceKm returns the activity distance in kilometres.
func (a SummaryActivity) DistanceKm() float64 {
	return a.DistanceMeters / 1000.0
}
