package domain

import (
	"context"
	"time"
)

// AuthorizationRecord holds the OAuth tokens granted by a user. Username is
// the player whose raid history the user linked.
type AuthorizationRecord struct {
	UserID       string
	Username     string
	AccessToken  string
	RefreshToken string
	Expiration   time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token expired at or before now.
func (r AuthorizationRecord) Expired(now time.Time) bool {
	return !r.Expiration.After(now)
}

// AuthorizationStore persists AuthorizationRecords keyed by user id.
type AuthorizationStore interface {
	Exists(ctx context.Context, userID string) (bool, error)
	// Get returns ErrNotAuthorized when no record exists.
	Get(ctx context.Context, userID string) (*AuthorizationRecord, error)
	Save(ctx context.Context, record AuthorizationRecord) error
}
