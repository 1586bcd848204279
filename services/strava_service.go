package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"run-challenge-system/models"
	"run-challenge-system/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const stravaActivitiesURL = "https://www.strava.com/api/v3/athlete/activities"

// ActivitySource fetches a user's recent activities from the activity
// provider using a valid (refreshed if needed) token.
type ActivitySource interface {
	FetchRecentActivities(ctx context.Context, conn *models.StravaConnection) ([]models.SummaryActivity, error)
}

// TokenRefresher proactively refreshes a connection's tokens.
type TokenRefresher interface {
	RefreshConnection(ctx context.Context, conn *models.StravaConnection) error
}

// StravaClient talks to Strava: OAuth code exchange, token refresh and
// activity fetch. Tokens are stored vault-encrypted; refreshed tokens are
// re-encrypted and persisted before use.
type StravaClient struct {
	db  *gorm.DB
	cfg oauth2.Config
}

func NewStravaClient(db *gorm.DB, clientID, clientSecret string) *StravaClient {
	return &StravaClient{
		db: db,
		cfg: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://www.strava.com/oauth/authorize",
				TokenURL: "https://www.strava.com/oauth/token",
			},
		},
	}
}

// Exchange trades an OAuth authorization code for tokens.
func (cl *StravaClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return cl.cfg.Exchange(ctx, code)
}

// tokenFor returns a valid access token for a connection, refreshing and
// re-persisting (encrypted) when the stored one has expired.
func (cl *StravaClient) tokenFor(ctx context.Context, conn *models.StravaConnection) (*oauth2.Token, error) {
	access, err := utils.DecryptToken(conn.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("access token decrypt: %w", err)
	}
	refresh, err := utils.DecryptToken(conn.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh token decrypt: %w", err)
	}

	stored := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       conn.TokenExpiresAt,
	}
	fresh, err := cl.cfg.TokenSource(ctx, stored).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh: %w", err)
	}

	if fresh.AccessToken != access {
		encAccess, err := utils.EncryptToken(fresh.AccessToken)
		if err != nil {
			return nil, err
		}
		encRefresh, err := utils.EncryptToken(fresh.RefreshToken)
		if err != nil {
			return nil, err
		}
		if err := cl.db.Model(&models.StravaConnection{}).Where("id = ?", conn.ID).
			Updates(map[string]interface{}{
				"access_token":     encAccess,
				"refresh_token":    encRefresh,
				"token_expires_at": fresh.Expiry,
			}).Error; err != nil {
			return nil, err
		}
		conn.AccessToken = encAccess
		conn.RefreshToken = encRefresh
		conn.TokenExpiresAt = fresh.Expiry
	}
	return fresh, nil
}

// RefreshConnection implements TokenRefresher for the background worker.
func (cl *StravaClient) RefreshConnection(ctx context.Context, conn *models.StravaConnection) error {
	_, err := cl.tokenFor(ctx, conn)
	return err
}

// FetchRecentActivities pulls the athlete's latest activities (one page,
// newest first). Strava reports distance in meters.
func (cl *StravaClient) FetchRecentActivities(ctx context.Context, conn *models.StravaConnection) ([]models.SummaryActivity, error) {
	token, err := cl.tokenFor(ctx, conn)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s?per_page=100", stravaActivitiesURL)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := utils.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("strava request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[STRAVA] activities fetch returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("strava non-200 response: %d", resp.StatusCode)
	}

	var activities []models.SummaryActivity
	if err := json.NewDecoder(resp.Body).Decode(&activities); err != nil {
		return nil, fmt.Errorf("failed to decode strava response: %w", err)
	}
	return activities, nil
}

type StravaService struct {
	DB       *gorm.DB
	Client   *StravaClient
	Source   ActivitySource
	Verifier *VerificationService
	validate *validator.Validate
}

func NewStravaService(db *gorm.DB, client *StravaClient, verifier *VerificationService) *StravaService {
	return &StravaService{
		DB:       db,
		Client:   client,
		Source:   client,
		Verifier: verifier,
		validate: validator.New(),
	}
}

type ConnectStravaRequest struct {
	Code string `json:"code" validate:"required"`
}

// ConnectStrava exchanges the OAuth code, encrypts the tokens and stores the
// connection. Any previous connection for the user is deactivated in the same
// transaction — at most one active connection per user.
func (s *StravaService) ConnectStrava(c *fiber.Ctx) error {
	var req ConnectStravaRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "details": err.Error()})
	}
	userID, _ := c.Locals("user_id").(string)

	token, err := s.Client.Exchange(c.UserContext(), req.Code)
	if err != nil {
		log.Printf("[STRAVA] token exchange failed (user=%s): %v", userID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "strava authorization failed"})
	}

	// Strava includes the athlete object in the token response.
	var athleteID int64
	if athlete, ok := token.Extra("athlete").(map[string]interface{}); ok {
		if id, ok := athlete["id"].(float64); ok {
			athleteID = int64(id)
		}
	}

	encAccess, err := utils.EncryptToken(token.AccessToken)
	if err != nil {
		log.Printf("[STRAVA] token encrypt failed (user=%s): %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store connection"})
	}
	encRefresh, err := utils.EncryptToken(token.RefreshToken)
	if err != nil {
		log.Printf("[STRAVA] token encrypt failed (user=%s): %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store connection"})
	}

	scope, _ := token.Extra("scope").(string)
	conn := &models.StravaConnection{
		ID:             uuid.NewString(),
		UserID:         userID,
		AthleteID:      athleteID,
		AccessToken:    encAccess,
		RefreshToken:   encRefresh,
		TokenExpiresAt: token.Expiry,
		Scope:          scope,
		IsActive:       true,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.StravaConnection{}).
			Where("user_id = ? AND is_active = true", userID).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(conn).Error
	})
	if err != nil {
		log.Printf("[STRAVA] failed to store connection (user=%s): %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store connection"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"connected":  true,
		"athlete_id": athleteID,
	})
}

// SyncActivities is the user-triggered sync: fetch recent activities and run
// them through the activity matcher. Returns how many registrations were
// newly verified so the client can show "verified!" or "nothing new".
func (s *StravaService) SyncActivities(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var conn models.StravaConnection
	if err := s.DB.Where("user_id = ? AND is_active = true", userID).First(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no active strava connection"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	activities, err := s.Source.FetchRecentActivities(c.UserContext(), &conn)
	if err != nil {
		log.Printf("[STRAVA] activity fetch failed (user=%s): %v", userID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "could not fetch activities, please retry"})
	}

	verified, err := s.Verifier.ProcessVerification(userID, activities)
	if err != nil {
		log.Printf("[STRAVA] verification pass failed (user=%s): %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "verification failed"})
	}

	now := time.Now()
	if err := s.DB.Model(&models.StravaConnection{}).Where("id = ?", conn.ID).
		Update("last_sync_at", now).Error; err != nil {
		log.Printf("[STRAVA] failed to stamp last_sync_at (connection=%s): %v", conn.ID, err)
	}

	return c.JSON(fiber.Map{
		"activities_checked": len(activities),
		"newly_verified":     verified,
	})
}

// GetConnection reports the user's connection status. Tokens never appear in
// the response.
func (s *StravaService) GetConnection(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	var conn models.StravaConnection
	if err := s.DB.Where("user_id = ? AND is_active = true", userID).First(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"connected": false})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(fiber.Map{
		"connected":    true,
		"athlete_id":   conn.AthleteID,
		"last_sync_at": conn.LastSyncAt,
	})
}

// DisconnectStrava deactivates the user's connection.
func (s *StravaService) DisconnectStrava(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	result := s.DB.Model(&models.StravaConnection{}).
		Where("user_id = ? AND is_active = true", userID).
		Update("is_active", false)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no active strava connection"})
	}
	return c.JSON(fiber.Map{"connected": false})
}
