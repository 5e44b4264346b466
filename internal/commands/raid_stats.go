package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"example.com/raidsync/internal/domain"
)

// HistoryReader loads a user's stored raid history.
type HistoryReader interface {
	Get(ctx context.Context, username string) (*domain.UserSyncState, error)
}

// AccountReader loads the account a user linked through the authorize command.
type AccountReader interface {
	Get(ctx context.Context, userID string) (*domain.AuthorizationRecord, error)
}

// RaidSummary aggregates a user's runs of one raid.
type RaidSummary struct {
	RaidName     string
	Clears       int
	FullClears   int
	TotalKills   int
	TotalDeaths  int
	FastestClear time.Duration
}

// RaidStatsHandler replies with per-raid statistics from the stored history.
// Stats are only served for the player the caller linked.
type RaidStatsHandler struct {
	accounts AccountReader
	history  HistoryReader
}

// NewRaidStatsHandler constructs a RaidStatsHandler.
func NewRaidStatsHandler(accounts AccountReader, history HistoryReader) *RaidStatsHandler {
	return &RaidStatsHandler{accounts: accounts, history: history}
}

// Handle implements Handler. An empty req.Username means the linked player.
func (h *RaidStatsHandler) Handle(ctx context.Context, req Request) (Response, error) {
	account, err := h.accounts.Get(ctx, req.UserID)
	if err != nil {
		return Response{}, err
	}
	if account.Username == "" {
		return Response{}, fmt.Errorf("%w: user %s has no linked player", domain.ErrNotAuthorized, req.UserID)
	}
	if req.Username != "" && req.Username != account.Username {
		return Response{}, fmt.Errorf("%w: user %s is linked to %s, not %s", domain.ErrNotAuthorized, req.UserID, account.Username, req.Username)
	}

	state, err := h.history.Get(ctx, account.Username)
	if err != nil {
		return Response{}, err
	}

	summaries := Summarize(state.RaidHistory)
	fields := make([]Field, 0, len(summaries))
	for _, s := range summaries {
		fastest := "n/a"
		if s.FastestClear > 0 {
			fastest = s.FastestClear.String()
		}
		fields = append(fields, Field{
			Name: s.RaidName,
			Value: fmt.Sprintf("Clears: %d\nFull clears: %d\nKills: %d\nDeaths: %d\nFastest: %s",
				s.Clears, s.FullClears, s.TotalKills, s.TotalDeaths, fastest),
			Inline: true,
		})
	}
	return Response{
		Title:       fmt.Sprintf("Raid stats for %s", state.Username),
		Description: fmt.Sprintf("%d raids recorded", len(state.RaidHistory)),
		Fields:      fields,
	}, nil
}

// Summarize groups raids by name, skipping entries without a resolved name.
func Summarize(history []domain.RaidDetail) []RaidSummary {
	byName := make(map[string]*RaidSummary)
	for _, raid := range history {
		if raid.RaidName == domain.EmptyRaidName {
			continue
		}
		s, ok := byName[raid.RaidName]
		if !ok {
			s = &RaidSummary{RaidName: raid.RaidName}
			byName[raid.RaidName] = s
		}
		s.TotalKills += raid.TotalKills
		s.TotalDeaths += raid.TotalDeaths
		if !raid.IsCompleted {
			continue
		}
		s.Clears++
		if raid.FromBeginning {
			s.FullClears++
		}
		duration := time.Duration(raid.DurationSeconds) * time.Second
		if duration > 0 && (s.FastestClear == 0 || duration < s.FastestClear) {
			s.FastestClear = duration
		}
	}

	out := make([]RaidSummary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RaidName < out[j].RaidName })
	return out
}
