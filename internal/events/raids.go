// Package events defines the Kafka payloads exchanged with the bot front-end.
package events

import "time"

// RaidHistorySyncedType is the event_type header for RaidHistorySynced.
const RaidHistorySyncedType = "raid_history.synced"

// RaidHistorySynced is emitted after a user's sync state is persisted.
type RaidHistorySynced struct {
	Username       string    `json:"username"`
	MembershipID   string    `json:"membership_id"`
	MembershipType int       `json:"membership_type"`
	LastSyncAt     time.Time `json:"last_sync_at"`
	TotalRaids     int       `json:"total_raids"`
	NewRaids       int       `json:"new_raids"`
	Version        int64     `json:"version"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// SyncRequested asks the sync worker to create or update a user's history.
type SyncRequested struct {
	Username       string    `json:"username"`
	MembershipID   string    `json:"membership_id"`
	MembershipType int       `json:"membership_type"`
	RequestedAt    time.Time `json:"requested_at"`
}
