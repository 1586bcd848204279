package models

import (
	"time"
)

// Internal sport categories. Strava activity types are mapped onto these
// before any eligibility check.
const (
	SportRun  = "run"
	SportRide = "ride"
	SportWalk = "walk"
)

// Aggregation modes for matching recorded distance against a challenge's
// required distance.
const (
	AggregationSingleMax  = "single_max" // best single effort must cover the distance
	AggregationCumulative = "cumulative" // sum of all efforts in the window counts
)

// Challenge is the server-owned definition of a virtual event: its price,
// its time window and the rule activities are matched against.
type Challenge struct {
	ID          string  `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"uniqueIndex;not null"`
	Slug        string  `json:"slug" gorm:"index"`
	Description string  `json:"description"`
	Sport       string  `json:"sport" gorm:"not null;default:'run'"`
	DistanceKm  float64 `json:"distance_km" gorm:"not null"`
	Price       float64 `json:"price" gorm:"not null;default:0"` // whole currency units (rupees)

	StartTime   time.Time `json:"start_time" gorm:"not null"`
	EndTime     time.Time `json:"end_time" gorm:"not null"`
	Timezone    string    `json:"timezone" gorm:"default:'Asia/Kolkata'"` // display timezone of the event
	Aggregation string    `json:"aggregation" gorm:"default:'single_max'"`

	Status    string    `json:"status" gorm:"default:'draft'"` // draft, upcoming, active, ended
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ChallengeRule is the matcher-facing view of a challenge: everything the
// activity matcher needs to decide whether a set of activities qualifies.
type ChallengeRule struct {
	ChallengeName string
	Sport         string
	DistanceKm    float64
	WindowStart   time.Time
	WindowEnd     time.Time
	Aggregation   string
}
