package services

import (
	"context"
	"encoding/json"
	"time"
)

// Auth event types published to the event channel.
const (
	EventUserRegistered = "user.registered"
	EventUserLoggedIn   = "user.logged_in"
	EventTokensRevoked  = "tokens.revoked"
)

// AuthEvent is the JSON payload published for every auth event.
type AuthEvent struct {
	Type   string    `json:"type"`
	UserID int       `json:"user_id"`
	At     time.Time `json:"at"`
}

// publishEvent is best effort: a broker failure must never fail the
// operation that triggered it.
func (s *AuthService) publishEvent(ctx context.Context, eventType string, userID int) {
	if s.events == nil {
		return
	}

	payload, err := json.Marshal(AuthEvent{
		Type:   eventType,
		UserID: userID,
		At:     time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("encoding auth event", "type", eventType, "error", err)
		return
	}

	attrs := map[string]string{"type": eventType}
	if _, err := s.events.Publish(ctx, s.eventChannel, payload, attrs); err != nil {
		s.logger.Warn("publishing auth event", "type", eventType, "error", err)
	}
}
