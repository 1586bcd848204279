// run-challenge-system/services/notifier.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"run-challenge-system/models"
)

// Notifier dispatches outbound notification events to the notification
// service. Fire-and-forget: a notification failure is logged and never rolls
// back payment or verification state.
type Notifier struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewNotifier(baseURL, token string) *Notifier {
	return &Notifier{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// PaymentCompleted fires the payment-confirmation email event.
func (n *Notifier) PaymentCompleted(reg *models.Registration) {
	n.dispatch("payment_completed", map[string]interface{}{
		"registration_id": reg.ID,
		"user_id":         reg.UserID,
		"email":           reg.UserEmail,
		"challenge":       reg.ChallengeName,
		"amount":          reg.FinalAmount,
	})
}

// RegistrationAutoVerified fires the auto-verification email event.
func (n *Notifier) RegistrationAutoVerified(reg *models.Registration, activityID int64) {
	n.dispatch("registration_auto_verified", map[string]interface{}{
		"registration_id": reg.ID,
		"user_id":         reg.UserID,
		"email":           reg.UserEmail,
		"challenge":       reg.ChallengeName,
		"activity_id":     activityID,
	})
}

func (n *Notifier) dispatch(event string, payload map[string]interface{}) {
	if n == nil || n.BaseURL == "" {
		log.Printf("[NOTIFY] no notification service configured, skipping %s", event)
		return
	}

	go func() {
		body := map[string]interface{}{
			"event":   event,
			"payload": payload,
		}
		jsonData, _ := json.Marshal(body)

		url := fmt.Sprintf("%s/events", n.BaseURL)
		req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
		if err != nil {
			log.Printf("[NOTIFY] failed to build %s request: %v", event, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+n.Token)

		resp, err := n.Client.Do(req)
		if err != nil {
			log.Printf("[NOTIFY] %s dispatch failed: %v", event, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			log.Printf("[NOTIFY] notification service returned %d for %s", resp.StatusCode, event)
		}
	}()
}
