package services

import (
	"testing"
	"time"

	"run-challenge-system/models"
)

func TestMapSport(t *testing.T) {
	tests := []struct {
		name      string
		activity  models.SummaryActivity
		wantSport string
		wantOK    bool
	}{
		{"run", models.SummaryActivity{SportType: "Run"}, models.SportRun, true},
		{"trail run", models.SummaryActivity{SportType: "TrailRun"}, models.SportRun, true},
		{"virtual run", models.SummaryActivity{SportType: "VirtualRun"}, models.SportRun, true},
		{"ride", models.SummaryActivity{SportType: "Ride"}, models.SportRide, true},
		{"gravel ride", models.SummaryActivity{SportType: "GravelRide"}, models.SportRide, true},
		{"e-bike ride", models.SummaryActivity{SportType: "EBikeRide"}, models.SportRide, true},
		{"walk", models.SummaryActivity{SportType: "Walk"}, models.SportWalk, true},
		{"hike maps to walk", models.SummaryActivity{SportType: "Hike"}, models.SportWalk, true},
		{"swim is unmapped", models.SummaryActivity{SportType: "Swim"}, "", false},
		{"legacy type fallback", models.SummaryActivity{Type: "Run"}, models.SportRun, true},
		{"sport_type wins over type", models.SummaryActivity{SportType: "Ride", Type: "Run"}, models.SportRide, true},
		{"empty", models.SummaryActivity{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sport, ok := MapSport(tt.activity)
			if ok != tt.wantOK || sport != tt.wantSport {
				t.Errorf("MapSport = (%q, %v), want (%q, %v)", sport, ok, tt.wantSport, tt.wantOK)
			}
		})
	}
}

func runActivity(id int64, km float64, start time.Time) models.SummaryActivity {
	return models.SummaryActivity{
		ID:             id,
		SportType:      "Run",
		DistanceMeters: km * 1000,
		StartDate:      start,
	}
}

func TestEvaluateRule(t *testing.T) {
	windowStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	inWindow := time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC)

	singleMax := models.ChallengeRule{
		ChallengeName: "march-10k",
		Sport:         models.SportRun,
		DistanceKm:    10,
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
		Aggregation:   models.AggregationSingleMax,
	}
	cumulative := singleMax
	cumulative.Aggregation = models.AggregationCumulative

	t.Run("single_max picks the best qualifying effort", func(t *testing.T) {
		activities := []models.SummaryActivity{
			runActivity(1, 8, inWindow),
			runActivity(2, 12, inWindow),
			runActivity(3, 5, inWindow),
		}
		res := evaluateRule(singleMax, activities)
		if !res.Matched {
			t.Fatal("expected a match")
		}
		if res.Activity.ID != 2 || res.TotalKm != 12 {
			t.Errorf("got activity %d / %v km, want 2 / 12", res.Activity.ID, res.TotalKm)
		}
	})

	t.Run("single_max rejects when no single effort qualifies", func(t *testing.T) {
		activities := []models.SummaryActivity{
			runActivity(1, 8, inWindow),
			runActivity(2, 9, inWindow),
		}
		if res := evaluateRule(singleMax, activities); res.Matched {
			t.Errorf("8km + 9km must not qualify a 10km single_max challenge, got %+v", res)
		}
	})

	t.Run("cumulative sums qualifying activities", func(t *testing.T) {
		activities := []models.SummaryActivity{
			runActivity(1, 3, inWindow),
			runActivity(2, 4, inWindow),
			runActivity(3, 5, inWindow),
		}
		res := evaluateRule(cumulative, activities)
		if !res.Matched {
			t.Fatal("3+4+5 km should satisfy a 10km cumulative challenge")
		}
		if res.TotalKm != 12 {
			t.Errorf("TotalKm = %v, want 12", res.TotalKm)
		}
		if res.Activity.ID != 3 {
			t.Errorf("representative activity = %d, want the longest (3)", res.Activity.ID)
		}
	})

	t.Run("cumulative short of the target", func(t *testing.T) {
		activities := []models.SummaryActivity{
			runActivity(1, 3, inWindow),
			runActivity(2, 4, inWindow),
		}
		if res := evaluateRule(cumulative, activities); res.Matched {
			t.Errorf("7km must not satisfy a 10km cumulative challenge, got %+v", res)
		}
	})

	t.Run("activities outside the window never count", func(t *testing.T) {
		activities := []models.SummaryActivity{
			runActivity(1, 15, windowStart.Add(-time.Hour)),
			runActivity(2, 15, windowEnd.Add(time.Hour)),
		}
		if res := evaluateRule(singleMax, activities); res.Matched {
			t.Errorf("out-of-window activities must not qualify, got %+v", res)
		}
	})

	t.Run("window boundaries are inclusive", func(t *testing.T) {
		activities := []models.SummaryActivity{runActivity(1, 12, windowStart)}
		if res := evaluateRule(singleMax, activities); !res.Matched {
			t.Error("activity exactly at window start should qualify")
		}
		activities = []models.SummaryActivity{runActivity(1, 12, windowEnd)}
		if res := evaluateRule(singleMax, activities); !res.Matched {
			t.Error("activity exactly at window end should qualify")
		}
	})

	t.Run("wrong sport never counts", func(t *testing.T) {
		ride := models.SummaryActivity{ID: 1, SportType: "Ride", DistanceMeters: 40000, StartDate: inWindow}
		if res := evaluateRule(singleMax, []models.SummaryActivity{ride}); res.Matched {
			t.Errorf("a ride must not qualify a run challenge, got %+v", res)
		}
	})

	t.Run("equal distances tie-break on lowest id", func(t *testing.T) {
		activities := []models.SummaryActivity{
			runActivity(7, 12, inWindow),
			runActivity(3, 12, inWindow),
		}
		res := evaluateRule(singleMax, activities)
		if !res.Matched || res.Activity.ID != 3 {
			t.Errorf("representative = %d, want 3 (lowest id wins the tie)", res.Activity.ID)
		}
	})

	t.Run("no activities", func(t *testing.T) {
		if res := evaluateRule(singleMax, nil); res.Matched {
			t.Errorf("empty input must not match, got %+v", res)
		}
	})
}

func TestPlanAction(t *testing.T) {
	matched := matchResult{Matched: true, Activity: models.SummaryActivity{ID: 42}, TotalKm: 12}

	tests := []struct {
		name string
		reg  models.Registration
		res  matchResult
		want string
	}{
		{
			"no match",
			models.Registration{VerificationStatus: models.VerificationPending},
			matchResult{},
			actionNoMatch,
		},
		{
			"pending registration qualifies",
			models.Registration{VerificationStatus: models.VerificationPending},
			matched,
			actionApprove,
		},
		{
			"staff rejection is never overridden",
			models.Registration{VerificationStatus: models.VerificationRejected},
			matched,
			actionSkip,
		},
		{
			"same activity again is a no-op",
			models.Registration{VerificationStatus: models.VerificationApproved, StravaActivityID: 42, ActivityDistanceKm: 12},
			matched,
			actionSkip,
		},
		{
			"better activity upgrades",
			models.Registration{VerificationStatus: models.VerificationApproved, StravaActivityID: 7, ActivityDistanceKm: 10},
			matched,
			actionUpgrade,
		},
		{
			"equal distance still upgrades the reference",
			models.Registration{VerificationStatus: models.VerificationApproved, StravaActivityID: 7, ActivityDistanceKm: 12},
			matched,
			actionUpgrade,
		},
		{
			"shorter activity never downgrades",
			models.Registration{VerificationStatus: models.VerificationApproved, StravaActivityID: 7, ActivityDistanceKm: 15},
			matched,
			actionSkip,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := planAction(tt.reg, tt.res); got != tt.want {
				t.Errorf("planAction = %q, want %q", got, tt.want)
			}
		})
	}
}
