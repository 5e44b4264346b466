package domain

import (
	"context"
	"time"
)

// RaidDifficulty is parsed from the suffix of an activity display name.
type RaidDifficulty string

const (
	DifficultyUnknown RaidDifficulty = ""
	DifficultyNormal  RaidDifficulty = "NORMAL"
	DifficultyMaster  RaidDifficulty = "MASTER"
)

// EmptyRaidName is recorded when the manifest entity carries no display name.
const EmptyRaidName = "empty_name"

// RaidDetail is an enriched raid activity. Once persisted it is never rewritten.
type RaidDetail struct {
	InstanceID      string         `json:"instance_id"`
	RaidName        string         `json:"raid_name"`
	RaidDifficulty  RaidDifficulty `json:"raid_difficulty,omitempty"`
	TotalKills      int            `json:"total_kills"`
	TotalDeaths     int            `json:"total_deaths"`
	KDA             float64        `json:"kda"`
	DurationSeconds int            `json:"duration_seconds"`
	IsCompleted     bool           `json:"is_completed"`
	FromBeginning   bool           `json:"from_beginning"`
}

// UserSyncState is the durable per-user synchronization record.
type UserSyncState struct {
	Username       string
	MembershipID   string
	MembershipType int
	LastSyncAt     time.Time
	RaidHistory    []RaidDetail
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasInstance reports whether the history already contains the instance.
func (s *UserSyncState) HasInstance(instanceID string) bool {
	for _, raid := range s.RaidHistory {
		if raid.InstanceID == instanceID {
			return true
		}
	}
	return false
}

// UserStore persists UserSyncState records keyed by username.
type UserStore interface {
	Exists(ctx context.Context, username string) (bool, error)
	// Get returns ErrUserNotFound when no record exists.
	Get(ctx context.Context, username string) (*UserSyncState, error)
	// Save inserts when Version is zero, otherwise updates only if the stored
	// version still matches, returning ErrConflict when it does not.
	Save(ctx context.Context, state UserSyncState) (*UserSyncState, error)
}
