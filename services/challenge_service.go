package services

import (
	"errors"
	"log"
	"time"

	"run-challenge-system/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// ErrChallengeNotConfigured signals a price/rule lookup against a challenge
// name the table does not know.
var ErrChallengeNotConfigured = errors.New("challenge not configured")

// ChallengeService owns the challenge table and serves as both the price
// table and the rule table for the pricing and verification pipelines.
type ChallengeService struct {
	DB       *gorm.DB
	validate *validator.Validate
}

func NewChallengeService(db *gorm.DB) *ChallengeService {
	return &ChallengeService{DB: db, validate: validator.New()}
}

// PriceFor implements PriceTable over the challenges table.
func (s *ChallengeService) PriceFor(challengeName string) (float64, error) {
	var challenge models.Challenge
	err := s.DB.Select("price").
		Where("name = ? AND is_active = true", challengeName).
		First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrChallengeNotConfigured
		}
		return 0, err
	}
	return challenge.Price, nil
}

// RuleFor implements RuleTable over the challenges table.
func (s *ChallengeService) RuleFor(challengeName string) (models.ChallengeRule, error) {
	var challenge models.Challenge
	err := s.DB.Where("name = ? AND is_active = true", challengeName).First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ChallengeRule{}, ErrChallengeNotConfigured
		}
		return models.ChallengeRule{}, err
	}
	return models.ChallengeRule{
		ChallengeName: challenge.Name,
		Sport:         challenge.Sport,
		DistanceKm:    challenge.DistanceKm,
		WindowStart:   challenge.StartTime,
		WindowEnd:     challenge.EndTime,
		Aggregation:   challenge.Aggregation,
	}, nil
}

// StartStatusScheduler flips challenge statuses from the event window:
// upcoming → active once the window opens, active → ended once it closes.
func (s *ChallengeService) StartStatusScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			now := time.Now()

			res := s.DB.Model(&models.Challenge{}).
				Where("status = ? AND start_time <= ?", "upcoming", now).
				Update("status", "active")
			if res.Error != nil {
				log.Printf("[Scheduler] DB error activating challenges: %v", res.Error)
			} else if res.RowsAffected > 0 {
				log.Printf("✅ Activated %d challenge(s)", res.RowsAffected)
			}

			res = s.DB.Model(&models.Challenge{}).
				Where("status = ? AND end_time < ?", "active", now).
				Update("status", "ended")
			if res.Error != nil {
				log.Printf("[Scheduler] DB error ending challenges: %v", res.Error)
			} else if res.RowsAffected > 0 {
				log.Printf("✅ Ended %d challenge(s)", res.RowsAffected)
			}
		}),
	)
}

type CreateChallengeRequest struct {
	Name        string    `json:"name" validate:"required,max=120"`
	Description string    `json:"description,omitempty"`
	Sport       string    `json:"sport" validate:"required,oneof=run ride walk"`
	DistanceKm  float64   `json:"distance_km" validate:"required,gt=0"`
	Price       float64   `json:"price" validate:"gte=0"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required"`
	Timezone    string    `json:"timezone,omitempty"`
	Aggregation string    `json:"aggregation,omitempty" validate:"omitempty,oneof=single_max cumulative"`
}

// CreateChallenge registers a new challenge. Admin only.
func (s *ChallengeService) CreateChallenge(c *fiber.Ctx) error {
	var req CreateChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "details": err.Error()})
	}
	if !req.EndTime.After(req.StartTime) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end_time must be after start_time"})
	}

	var count int64
	if err := s.DB.Model(&models.Challenge{}).Where("name = ?", req.Name).Count(&count).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if count > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "challenge name already exists"})
	}

	aggregation := req.Aggregation
	if aggregation == "" {
		aggregation = models.AggregationSingleMax
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = "Asia/Kolkata"
	}

	status := "upcoming"
	now := time.Now()
	if !req.StartTime.After(now) {
		status = "active"
	}
	if req.EndTime.Before(now) {
		status = "ended"
	}

	challenge := &models.Challenge{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Slug:        slug.Make(req.Name),
		Description: req.Description,
		Sport:       req.Sport,
		DistanceKm:  req.DistanceKm,
		Price:       req.Price,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Timezone:    timezone,
		Aggregation: aggregation,
		Status:      status,
		IsActive:    true,
	}
	if err := s.DB.Create(challenge).Error; err != nil {
		log.Printf("[CHALLENGE] DB error creating challenge: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create challenge"})
	}

	return c.Status(fiber.StatusCreated).JSON(challenge)
}

// GetOpenChallenges lists challenges users can still register for.
func (s *ChallengeService) GetOpenChallenges(c *fiber.Ctx) error {
	var challenges []models.Challenge
	if err := s.DB.Where("is_active = true AND status IN ?", []string{"upcoming", "active"}).
		Order("start_time asc").Find(&challenges).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(challenges)
}

func (s *ChallengeService) GetChallengeByID(c *fiber.Ctx) error {
	id := c.Params("id")
	var challenge models.Challenge
	if err := s.DB.Where("id = ? OR slug = ?", id, id).First(&challenge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "challenge not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(challenge)
}

type UpdateChallengeRequest struct {
	Description *string    `json:"description,omitempty"`
	Price       *float64   `json:"price,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
}

// UpdateChallenge patches mutable fields. Price changes affect only future
// orders — registrations carry their amounts from checkout time.
func (s *ChallengeService) UpdateChallenge(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id required"})
	}
	var req UpdateChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	updates := make(map[string]interface{})
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "price must be >= 0"})
		}
		updates["price"] = *req.Price
	}
	if req.StartTime != nil {
		updates["start_time"] = *req.StartTime
	}
	if req.EndTime != nil {
		updates["end_time"] = *req.EndTime
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no fields to update"})
	}

	result := s.DB.Model(&models.Challenge{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "update failed"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "challenge not found"})
	}

	var updated models.Challenge
	if err := s.DB.First(&updated, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch updated challenge"})
	}
	return c.JSON(updated)
}
