// Package postgres provides Postgres-backed stores for sync state and authorizations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/raidsync/internal/domain"
	"example.com/raidsync/internal/events"
)

const uniqueViolation = "23505"

// UserStore persists sync states and records a sync event in the outbox within
// the same transaction.
type UserStore struct {
	pool        *pgxpool.Pool
	eventsTopic string
}

// NewUserStore constructs a UserStore publishing sync events to eventsTopic.
func NewUserStore(pool *pgxpool.Pool, eventsTopic string) *UserStore {
	return &UserStore{pool: pool, eventsTopic: eventsTopic}
}

// Exists implements domain.UserStore.
func (s *UserStore) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_sync_state WHERE username=$1)`, username).Scan(&exists)
	return exists, err
}

// Get implements domain.UserStore.
func (s *UserStore) Get(ctx context.Context, username string) (*domain.UserSyncState, error) {
	const query = `SELECT username, membership_id, membership_type, last_sync_at, raid_history, version, created_at, updated_at
        FROM user_sync_state WHERE username=$1`

	var (
		state   domain.UserSyncState
		history []byte
	)
	err := s.pool.QueryRow(ctx, query, username).Scan(
		&state.Username, &state.MembershipID, &state.MembershipType, &state.LastSyncAt,
		&history, &state.Version, &state.CreatedAt, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(history, &state.RaidHistory); err != nil {
		return nil, fmt.Errorf("decode raid history for %s: %w", username, err)
	}
	state.LastSyncAt = state.LastSyncAt.UTC()
	return &state, nil
}

// Save implements domain.UserStore.
func (s *UserStore) Save(ctx context.Context, state domain.UserSyncState) (saved *domain.UserSyncState, err error) {
	history, err := json.Marshal(nonNil(state.RaidHistory))
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	priorRaids := 0
	if state.Version == 0 {
		state.CreatedAt = now
		_, err = tx.Exec(ctx, `INSERT INTO user_sync_state (username, membership_id, membership_type, last_sync_at, raid_history, version, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,1,$6,$6)`,
			state.Username, state.MembershipID, state.MembershipType, state.LastSyncAt, history, now)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return nil, domain.ErrConflict
			}
			return nil, err
		}
	} else {
		var current int64
		err = tx.QueryRow(ctx, `SELECT version, jsonb_array_length(raid_history), created_at FROM user_sync_state WHERE username=$1 FOR UPDATE`,
			state.Username).Scan(&current, &priorRaids, &state.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrUserNotFound
			}
			return nil, err
		}
		if current != state.Version {
			return nil, domain.ErrConflict
		}
		_, err = tx.Exec(ctx, `UPDATE user_sync_state
            SET membership_id=$2, membership_type=$3, last_sync_at=$4, raid_history=$5, version=version+1, updated_at=$6
            WHERE username=$1 AND version=$7`,
			state.Username, state.MembershipID, state.MembershipType, state.LastSyncAt, history, now, state.Version)
		if err != nil {
			return nil, err
		}
	}
	state.Version++
	state.UpdatedAt = now

	if err = s.insertOutbox(ctx, tx, state, len(state.RaidHistory)-priorRaids); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *UserStore) insertOutbox(ctx context.Context, tx pgx.Tx, state domain.UserSyncState, newRaids int) error {
	body, err := json.Marshal(events.RaidHistorySynced{
		Username:       state.Username,
		MembershipID:   state.MembershipID,
		MembershipType: state.MembershipType,
		LastSyncAt:     state.LastSyncAt,
		TotalRaids:     len(state.RaidHistory),
		NewRaids:       newRaids,
		Version:        state.Version,
		OccurredAt:     state.UpdatedAt,
	})
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		"user_sync_state",
		state.Username,
		events.RaidHistorySyncedType,
		s.eventsTopic,
		state.Username,
		body,
		fmt.Sprintf("%s:%d:%s", state.Username, state.Version, events.RaidHistorySyncedType),
	)
	return err
}

func nonNil(history []domain.RaidDetail) []domain.RaidDetail {
	if history == nil {
		return []domain.RaidDetail{}
	}
	return history
}
