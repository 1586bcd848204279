package services

import (
	"encoding/json"
	"log"
	"sort"
	"time"

	"run-challenge-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// sportMapping is the fixed lookup from Strava activity types to internal
// sport categories. Unmapped types never qualify.
var sportMapping = map[string]string{
	"Run":              models.SportRun,
	"TrailRun":         models.SportRun,
	"VirtualRun":       models.SportRun,
	"Ride":             models.SportRide,
	"VirtualRide":      models.SportRide,
	"GravelRide":       models.SportRide,
	"MountainBikeRide": models.SportRide,
	"EBikeRide":        models.SportRide,
	"Walk":             models.SportWalk,
	"Hike":             models.SportWalk,
}

// MapSport resolves an activity's internal sport category. Strava's newer
// sport_type is preferred over the legacy type field.
func MapSport(a models.SummaryActivity) (string, bool) {
	if sport, ok := sportMapping[a.SportType]; ok {
		return sport, true
	}
	sport, ok := sportMapping[a.Type]
	return sport, ok
}

// matchResult is the outcome of evaluating one rule against a set of
// activities. Activity is the representative attached to the verification:
// in single_max mode the qualifying best effort, in cumulative mode the
// longest candidate (the aggregate is the proof, but one reference id is
// recorded for the audit trail).
type matchResult struct {
	Matched  bool
	Activity models.SummaryActivity
	TotalKm  float64
}

// evaluateRule applies the challenge's eligibility rule: window filter, sport
// mapping, then the aggregation policy against the required distance.
func evaluateRule(rule models.ChallengeRule, activities []models.SummaryActivity) matchResult {
	var candidates []models.SummaryActivity
	for _, a := range activities {
		if a.StartDate.Before(rule.WindowStart) || a.StartDate.After(rule.WindowEnd) {
			continue
		}
		sport, ok := MapSport(a)
		if !ok || sport != rule.Sport {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return matchResult{}
	}

	// Descending by distance; id as tie-break so repeated runs over the same
	// activity set always pick the same representative.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DistanceMeters != candidates[j].DistanceMeters {
			return candidates[i].DistanceMeters > candidates[j].DistanceMeters
		}
		return candidates[i].ID < candidates[j].ID
	})
	best := candidates[0]

	switch rule.Aggregation {
	case models.AggregationCumulative:
		var totalKm float64
		for _, a := range candidates {
			totalKm += a.DistanceKm()
		}
		if totalKm >= rule.DistanceKm {
			return matchResult{Matched: true, Activity: best, TotalKm: totalKm}
		}
	default: // single_max: only the best single effort counts
		if best.DistanceKm() >= rule.DistanceKm {
			return matchResult{Matched: true, Activity: best, TotalKm: best.DistanceKm()}
		}
	}
	return matchResult{}
}

// Planned actions for one registration after evaluation.
const (
	actionSkip    = "skip"    // already approved with the same activity, nothing to do
	actionApprove = "approve" // pending registration qualifies
	actionUpgrade = "upgrade" // approved registration, better activity found on a later sync
	actionNoMatch = "no_match"
)

// planAction decides what to do with a match result for a registration.
// An approved registration is touched again only when the newly-selected
// activity differs AND covers at least the recorded distance — an upgrade,
// never a downgrade. A staff rejection is final: no later sync overrides it.
func planAction(reg models.Registration, res matchResult) string {
	if !res.Matched {
		return actionNoMatch
	}
	switch reg.VerificationStatus {
	case models.VerificationPending:
		return actionApprove
	case models.VerificationApproved:
		if reg.StravaActivityID == res.Activity.ID {
			return actionSkip
		}
		if res.TotalKm >= reg.ActivityDistanceKm {
			return actionUpgrade
		}
		return actionSkip
	default:
		return actionSkip
	}
}

type VerificationService struct {
	DB       *gorm.DB
	Rules    RuleTable
	Notifier *Notifier
}

func NewVerificationService(db *gorm.DB, rules RuleTable, notifier *Notifier) *VerificationService {
	return &VerificationService{DB: db, Rules: rules, Notifier: notifier}
}

// ProcessVerification matches fetched activities against the user's paid,
// not-yet-manually-handled registrations and auto-approves qualifying ones.
// Registrations are processed sequentially and failures are isolated: one
// bad rule or write never aborts the rest. Returns the count of
// registrations newly approved or upgraded in this invocation —
// re-confirmations of unchanged state are never counted.
func (s *VerificationService) ProcessVerification(userID string, activities []models.SummaryActivity) (int, error) {
	var regs []models.Registration
	err := s.DB.
		Where("user_id = ? AND payment_status = ?", userID, models.PaymentPaid).
		Where("verification_status = ? OR (verification_status = ? AND verification_method = ?)",
			models.VerificationPending, models.VerificationApproved, models.MethodStrava).
		Find(&regs).Error
	if err != nil {
		return 0, err
	}

	verified := 0
	for i := range regs {
		reg := regs[i]

		rule, err := s.Rules.RuleFor(reg.ChallengeName)
		if err != nil {
			log.Printf("[MATCH] no rule for challenge %q (registration=%s): %v", reg.ChallengeName, reg.ID, err)
			s.appendLog(reg.ID, 0, "error", 0, "challenge rule unavailable")
			continue
		}

		res := evaluateRule(rule, activities)
		switch planAction(reg, res) {
		case actionSkip:
			continue
		case actionNoMatch:
			s.appendLog(reg.ID, 0, "no_match", 0, "no qualifying activity in window")
			continue
		case actionApprove:
			if err := s.approve(&reg, res, "approved"); err != nil {
				log.Printf("[MATCH] failed to approve registration %s: %v", reg.ID, err)
				s.appendLog(reg.ID, res.Activity.ID, "error", res.TotalKm, "failed to persist approval")
				continue
			}
			verified++
			// Notify only on the pending→approved transition; an upgrade to a
			// better activity must not re-fire emails.
			s.Notifier.RegistrationAutoVerified(&reg, res.Activity.ID)
		case actionUpgrade:
			if err := s.approve(&reg, res, "upgraded"); err != nil {
				log.Printf("[MATCH] failed to upgrade registration %s: %v", reg.ID, err)
				s.appendLog(reg.ID, res.Activity.ID, "error", res.TotalKm, "failed to persist upgrade")
				continue
			}
			verified++
		}
	}

	return verified, nil
}

// approve atomically marks a registration auto-verified and appends the
// audit row recording why.
func (s *VerificationService) approve(reg *models.Registration, res matchResult, outcome string) error {
	raw, err := json.Marshal(res.Activity)
	if err != nil {
		return err
	}
	now := time.Now()
	activityDate := res.Activity.StartDate

	return s.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Registration{}).
			Where("id = ? AND payment_status = ?", reg.ID, models.PaymentPaid).
			Updates(map[string]interface{}{
				"verification_status":  models.VerificationApproved,
				"verification_method":  models.MethodStrava,
				"strava_activity_id":   res.Activity.ID,
				"strava_activity_raw":  raw,
				"activity_date":        activityDate,
				"activity_distance_km": res.TotalKm,
				"activity_duration":    res.Activity.MovingTime,
				"auto_verified_at":     now,
			})
		if result.Error != nil {
			return result.Error
		}

		logRow := &models.VerificationLog{
			ID:             uuid.NewString(),
			RegistrationID: reg.ID,
			ActivityID:     res.Activity.ID,
			SyncType:       "manual_sync",
			Outcome:        outcome,
			DistanceKm:     res.TotalKm,
			Details:        res.Activity.Name,
		}
		if err := tx.Create(logRow).Error; err != nil {
			return err
		}

		reg.VerificationStatus = models.VerificationApproved
		reg.VerificationMethod = models.MethodStrava
		reg.StravaActivityID = res.Activity.ID
		reg.ActivityDistanceKm = res.TotalKm
		reg.AutoVerifiedAt = &now
		return nil
	})
}

// appendLog best-effort appends an audit row outside any transaction.
func (s *VerificationService) appendLog(registrationID string, activityID int64, outcome string, distanceKm float64, details string) {
	row := &models.VerificationLog{
		ID:             uuid.NewString(),
		RegistrationID: registrationID,
		ActivityID:     activityID,
		SyncType:       "manual_sync",
		Outcome:        outcome,
		DistanceKm:     distanceKm,
		Details:        details,
	}
	if err := s.DB.Create(row).Error; err != nil {
		log.Printf("[MATCH] failed to append verification log (registration=%s): %v", registrationID, err)
	}
}

// GetVerificationLogs lists the audit trail for one registration (staff view,
// dispute resolution).
func (s *VerificationService) GetVerificationLogs(c *fiber.Ctx) error {
	registrationID := c.Params("id")
	if registrationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id required"})
	}
	var logs []models.VerificationLog
	if err := s.DB.Where("registration_id = ?", registrationID).
		Order("created_at desc").Find(&logs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(logs)
}
