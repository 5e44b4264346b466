package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/raidsync/internal/domain"
)

// AuthorizationStore persists OAuth tokens per user.
type AuthorizationStore struct {
	pool *pgxpool.Pool
}

// NewAuthorizationStore constructs an AuthorizationStore.
func NewAuthorizationStore(pool *pgxpool.Pool) *AuthorizationStore {
	return &AuthorizationStore{pool: pool}
}

// Exists implements domain.AuthorizationStore.
func (s *AuthorizationStore) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_authorization WHERE user_id=$1)`, userID).Scan(&exists)
	return exists, err
}

// Get implements domain.AuthorizationStore.
func (s *AuthorizationStore) Get(ctx context.Context, userID string) (*domain.AuthorizationRecord, error) {
	var record domain.AuthorizationRecord
	err := s.pool.QueryRow(ctx, `SELECT user_id, username, access_token, refresh_token, expires_at, updated_at FROM user_authorization WHERE user_id=$1`, userID).
		Scan(&record.UserID, &record.Username, &record.AccessToken, &record.RefreshToken, &record.Expiration, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotAuthorized
		}
		return nil, err
	}
	record.Expiration = record.Expiration.UTC()
	return &record, nil
}

// Save implements domain.AuthorizationStore. Existing tokens are overwritten.
func (s *AuthorizationStore) Save(ctx context.Context, record domain.AuthorizationRecord) error {
	if record.UserID == "" {
		return domain.ErrInvalidRequest
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO user_authorization (user_id, username, access_token, refresh_token, expires_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id) DO UPDATE
        SET username=EXCLUDED.username, access_token=EXCLUDED.access_token, refresh_token=EXCLUDED.refresh_token, expires_at=EXCLUDED.expires_at, updated_at=EXCLUDED.updated_at`,
		record.UserID, record.Username, record.AccessToken, record.RefreshToken, record.Expiration, record.UpdatedAt)
	return err
}
