package commands

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/raidsync/internal/domain"
)

type stubHistory struct {
	state *domain.UserSyncState
}

func (s stubHistory) Get(_ context.Context, username string) (*domain.UserSyncState, error) {
	if s.state == nil || s.state.Username != username {
		return nil, domain.ErrUserNotFound
	}
	return s.state, nil
}

type stubGuard struct {
	authorized map[string]bool
}

func (g stubGuard) Guard(ctx context.Context, userID string, fn func(context.Context) error) error {
	if !g.authorized[userID] {
		return domain.ErrNotAuthorized
	}
	return fn(ctx)
}

func TestRegistryDispatch(t *testing.T) {
	calls := 0
	registry := NewRegistry(map[string]Handler{
		"ping": HandlerFunc(func(context.Context, Request) (Response, error) {
			calls++
			return Response{Description: "pong"}, nil
		}),
	})

	resp, err := registry.Dispatch(context.Background(), Request{Command: "ping"})
	require.NoError(t, err)
	require.Equal(t, "pong", resp.Description)
	require.Equal(t, 1, calls)

	_, err = registry.Dispatch(context.Background(), Request{Command: "weekly_raid"})
	require.ErrorIs(t, err, ErrUnknownCommand)
	require.Equal(t, []string{"ping"}, registry.Names())
}

type stubLinks struct {
	userID, username string
}

func (l *stubLinks) AuthorizationLink(userID, username string) (string, error) {
	if userID == "" {
		return "", domain.ErrInvalidRequest
	}
	l.userID, l.username = userID, username
	return "https://www.bungie.net/en/OAuth/Authorize?state=signed", nil
}

func TestAuthorizeRepliesWithLinkForCaller(t *testing.T) {
	links := &stubLinks{}
	handler := NewAuthorizeHandler(links)

	resp, err := handler.Handle(context.Background(), Request{UserID: "u1", Username: "guardian#0001"})
	require.NoError(t, err)
	require.True(t, resp.Ephemeral)
	require.Equal(t, authorizeTitle, resp.Title)

	link, err := url.Parse(resp.URL)
	require.NoError(t, err)
	require.Equal(t, "www.bungie.net", link.Host)
	require.Equal(t, "u1", links.userID)
	require.Equal(t, "guardian#0001", links.username)

	_, err = handler.Handle(context.Background(), Request{})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestGatedHandlerRequiresAuthorization(t *testing.T) {
	calls := 0
	inner := HandlerFunc(func(context.Context, Request) (Response, error) {
		calls++
		return Response{Title: "ok"}, nil
	})
	gated := Gated(stubGuard{authorized: map[string]bool{"u1": true}}, inner)

	_, err := gated.Handle(context.Background(), Request{UserID: "u2"})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
	require.Zero(t, calls)

	resp, err := gated.Handle(context.Background(), Request{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Title)
	require.Equal(t, 1, calls)
}

func TestSummarize(t *testing.T) {
	history := []domain.RaidDetail{
		{RaidName: "Vault of Glass", TotalKills: 100, TotalDeaths: 2, DurationSeconds: 3600, IsCompleted: true, FromBeginning: true},
		{RaidName: "Vault of Glass", TotalKills: 50, TotalDeaths: 1, DurationSeconds: 1800, IsCompleted: true},
		{RaidName: "Vault of Glass", TotalKills: 10, TotalDeaths: 5, DurationSeconds: 600},
		{RaidName: "Last Wish", TotalKills: 20, DurationSeconds: 4000, IsCompleted: true, FromBeginning: true},
		{RaidName: domain.EmptyRaidName, TotalKills: 999, IsCompleted: true},
	}

	require.Equal(t, []RaidSummary{
		{RaidName: "Last Wish", Clears: 1, FullClears: 1, TotalKills: 20, FastestClear: 4000 * time.Second},
		{RaidName: "Vault of Glass", Clears: 2, FullClears: 1, TotalKills: 160, TotalDeaths: 8, FastestClear: 30 * time.Minute},
	}, Summarize(history))
}

type stubAccounts map[string]domain.AuthorizationRecord

func (a stubAccounts) Get(_ context.Context, userID string) (*domain.AuthorizationRecord, error) {
	record, ok := a[userID]
	if !ok {
		return nil, domain.ErrNotAuthorized
	}
	return &record, nil
}

func TestRaidStatsHandler(t *testing.T) {
	accounts := stubAccounts{
		"u1": {UserID: "u1", Username: "guardian#0001"},
		"u2": {UserID: "u2", Username: "nobody"},
	}
	handler := NewRaidStatsHandler(accounts, stubHistory{state: &domain.UserSyncState{
		Username: "guardian#0001",
		RaidHistory: []domain.RaidDetail{
			{RaidName: "Crota's End", TotalKills: 80, DurationSeconds: 2700, IsCompleted: true},
		},
	}})

	resp, err := handler.Handle(context.Background(), Request{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "Raid stats for guardian#0001", resp.Title)
	require.Len(t, resp.Fields, 1)
	require.Equal(t, "Crota's End", resp.Fields[0].Name)
	require.Contains(t, resp.Fields[0].Value, "Fastest: 45m0s")

	_, err = handler.Handle(context.Background(), Request{UserID: "u1", Username: "guardian#0001"})
	require.NoError(t, err)

	_, err = handler.Handle(context.Background(), Request{UserID: "u2"})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestRaidStatsRejectsOtherPlayers(t *testing.T) {
	accounts := stubAccounts{
		"u1":       {UserID: "u1", Username: "guardian#0001"},
		"unlinked": {UserID: "unlinked"},
	}
	handler := NewRaidStatsHandler(accounts, stubHistory{state: &domain.UserSyncState{Username: "guardian#0002"}})

	_, err := handler.Handle(context.Background(), Request{UserID: "u1", Username: "guardian#0002"})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = handler.Handle(context.Background(), Request{UserID: "unlinked", Username: "guardian#0002"})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = handler.Handle(context.Background(), Request{UserID: "stranger"})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
}
