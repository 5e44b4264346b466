package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"example.com/raidsync/internal/auth"
	"example.com/raidsync/internal/commands"
	"example.com/raidsync/internal/domain"
)

var fixedNow = time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC)

type stubSync struct {
	states  map[string]*domain.UserSyncState
	err     error
	created int
	updated int
}

func (s *stubSync) ExistsByID(_ context.Context, username string) (bool, error) {
	_, ok := s.states[username]
	return ok, nil
}

func (s *stubSync) GetState(_ context.Context, username string) (*domain.UserSyncState, error) {
	state, ok := s.states[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return state, nil
}

func (s *stubSync) CreateInitialSync(_ context.Context, ts time.Time, username, membershipID string, membershipType int) (*domain.UserSyncState, error) {
	s.created++
	if s.err != nil {
		return nil, s.err
	}
	state := &domain.UserSyncState{Username: username, MembershipID: membershipID, LastSyncAt: ts, Version: 1,
		RaidHistory: []domain.RaidDetail{{InstanceID: "1", RaidName: "Deep Stone Crypt"}}}
	s.states[username] = state
	return state, nil
}

func (s *stubSync) UpdateSync(_ context.Context, ts time.Time, username, membershipID string, membershipType int) (*domain.UserSyncState, error) {
	s.updated++
	if s.err != nil {
		return nil, s.err
	}
	state := s.states[username]
	state.LastSyncAt = ts
	state.Version++
	return state, nil
}

type stubManifest struct {
	err error
}

func (m stubManifest) GetManifestEntity(_ context.Context, entityType domain.EntityType, hashID string) (domain.ManifestEntity, error) {
	if m.err != nil {
		return domain.ManifestEntity{}, m.err
	}
	return domain.ManifestEntity{EntityType: entityType, HashID: hashID, DisplayName: "Vault of Glass: Master"}, nil
}

type stubLinker struct {
	err   error
	codes []string
}

func (l *stubLinker) CompleteAuthorization(_ context.Context, code, state string) (*domain.AuthorizationRecord, error) {
	l.codes = append(l.codes, code)
	if l.err != nil {
		return nil, l.err
	}
	return &domain.AuthorizationRecord{
		UserID:       state,
		Username:     "guardian#0001",
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		Expiration:   fixedNow.Add(time.Hour),
	}, nil
}

func newTestServer(t *testing.T, sync *stubSync, manifest ManifestLookup, registry CommandDispatcher, scopes ...string) http.Handler {
	t.Helper()
	handler := NewHandler(sync, manifest, registry, &stubLinker{})
	handler.now = func() time.Time { return fixedNow }
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := &auth.Claims{Subject: "bot", Scopes: map[string]struct{}{}, ExpiresAt: fixedNow.Add(time.Hour)}
		for _, s := range scopes {
			claims.Scopes[s] = struct{}{}
		}
		mux.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, &buf))
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	return payload["type"]
}

func TestSyncCreatesThenUpdates(t *testing.T) {
	sync := &stubSync{states: map[string]*domain.UserSyncState{}}
	server := newTestServer(t, sync, stubManifest{}, commands.NewRegistry(nil), auth.ScopeRaidsSync)

	rr := do(t, server, http.MethodPost, "/v1/users/guardian%230001/sync", SyncRequest{MembershipID: "4611686018", MembershipType: 3})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp SyncResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "guardian#0001", resp.Username)
	require.True(t, resp.Created)
	require.Equal(t, 1, resp.TotalRaids)
	require.Equal(t, fixedNow, resp.LastSyncAt)

	rr = do(t, server, http.MethodPost, "/v1/users/guardian%230001/sync", SyncRequest{MembershipID: "4611686018", MembershipType: 3})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, sync.created)
	require.Equal(t, 1, sync.updated)
}

func TestSyncValidatesBody(t *testing.T) {
	server := newTestServer(t, &stubSync{states: map[string]*domain.UserSyncState{}}, stubManifest{}, commands.NewRegistry(nil), auth.ScopeRaidsSync)

	rr := do(t, server, http.MethodPost, "/v1/users/u/sync", SyncRequest{MembershipType: 3})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "validation_failed", decodeError(t, rr))
}

func TestSyncRequiresScope(t *testing.T) {
	server := newTestServer(t, &stubSync{states: map[string]*domain.UserSyncState{}}, stubManifest{}, commands.NewRegistry(nil), auth.ScopeRaidsRead)

	rr := do(t, server, http.MethodPost, "/v1/users/u/sync", SyncRequest{MembershipID: "m", MembershipType: 3})
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "forbidden", decodeError(t, rr))
}

func TestErrorMapping(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		code   string
	}{
		"upstream": {domain.ErrUpstreamUnavailable, http.StatusBadGateway, "upstream_unavailable"},
		"conflict": {domain.ErrConflict, http.StatusConflict, "conflict"},
		"invalid":  {domain.ErrInvalidRequest, http.StatusBadRequest, "validation_failed"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			sync := &stubSync{states: map[string]*domain.UserSyncState{}, err: tc.err}
			server := newTestServer(t, sync, stubManifest{}, commands.NewRegistry(nil), auth.ScopeRaidsSync)

			rr := do(t, server, http.MethodPost, "/v1/users/u/sync", SyncRequest{MembershipID: "m", MembershipType: 3})
			require.Equal(t, tc.status, rr.Code)
			require.Equal(t, tc.code, decodeError(t, rr))
		})
	}
}

func TestListRaids(t *testing.T) {
	sync := &stubSync{states: map[string]*domain.UserSyncState{
		"u": {Username: "u", LastSyncAt: fixedNow, RaidHistory: []domain.RaidDetail{{InstanceID: "9", RaidName: "Last Wish", IsCompleted: true}}},
	}}
	server := newTestServer(t, sync, stubManifest{}, commands.NewRegistry(nil), auth.ScopeRaidsRead)

	rr := do(t, server, http.MethodGet, "/v1/users/u/raids", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp RaidHistoryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Raids, 1)
	require.Equal(t, "Last Wish", resp.Raids[0].RaidName)

	rr = do(t, server, http.MethodGet, "/v1/users/nobody/raids", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "not_found", decodeError(t, rr))
}

func TestManifestLookup(t *testing.T) {
	server := newTestServer(t, &stubSync{}, stubManifest{}, commands.NewRegistry(nil), auth.ScopeRaidsRead)

	rr := do(t, server, http.MethodGet, "/v1/manifest/DestinyActivityDefinition/3881495763", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var entity domain.ManifestEntity
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entity))
	require.Equal(t, "3881495763", entity.HashID)
	require.Equal(t, domain.EntityActivityDefinition, entity.EntityType)

	rr = do(t, server, http.MethodGet, "/v1/manifest/DestinyActivityDefinition/abc", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	failing := newTestServer(t, &stubSync{}, stubManifest{err: domain.ErrUpstreamUnavailable}, commands.NewRegistry(nil), auth.ScopeRaidsRead)
	rr = do(t, failing, http.MethodGet, "/v1/manifest/DestinyActivityDefinition/1", nil)
	require.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestRunCommand(t *testing.T) {
	registry := commands.NewRegistry(map[string]commands.Handler{
		commands.CommandRaidStats: commands.HandlerFunc(func(_ context.Context, req commands.Request) (commands.Response, error) {
			if req.UserID != "u1" {
				return commands.Response{}, domain.ErrNotAuthorized
			}
			return commands.Response{Title: "stats for " + req.Username}, nil
		}),
	})
	server := newTestServer(t, &stubSync{}, stubManifest{}, registry, auth.ScopeRaidsRead)

	rr := do(t, server, http.MethodPost, "/v1/commands/raid_stats", commands.Request{UserID: "u1", Username: "guardian"})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp commands.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "stats for guardian", resp.Title)

	rr = do(t, server, http.MethodPost, "/v1/commands/raid_stats", commands.Request{UserID: "u2"})
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "not_authorized", decodeError(t, rr))

	rr = do(t, server, http.MethodPost, "/v1/commands/weekly_raid", commands.Request{UserID: "u1"})
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "unknown_command", decodeError(t, rr))

	rr = do(t, server, http.MethodPost, "/v1/commands/raid_stats", commands.Request{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRoutesBehindAuthMiddleware(t *testing.T) {
	cfg := auth.Config{Secret: "secret", Issuer: "raidsync"}
	linker := &stubLinker{}
	handler := NewHandler(&stubSync{states: map[string]*domain.UserSyncState{}}, stubManifest{}, commands.NewRegistry(nil), linker)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	server := auth.NewMiddleware(cfg).Wrap(mux)

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/oauth/callback?code=abc&state=u1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []string{"abc"}, linker.codes)

	rr = httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/users/u/raids", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    "bot",
		"iss":    "raidsync",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": "raids:read",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/users/u/raids", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	server.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOAuthCallbackStoresAccountLink(t *testing.T) {
	linker := &stubLinker{}
	handler := NewHandler(&stubSync{}, stubManifest{}, commands.NewRegistry(nil), linker)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	rr := do(t, mux, http.MethodGet, "/v1/oauth/callback?code=abc&state=u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp AccountLinkResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "u1", resp.UserID)
	require.Equal(t, "guardian#0001", resp.Username)
	require.True(t, resp.ExpiresAt.Equal(fixedNow.Add(time.Hour)))
	require.NotContains(t, rr.Body.String(), "access-token")
	require.NotContains(t, rr.Body.String(), "refresh-token")
}

func TestOAuthCallbackRejectsIncompleteRedirects(t *testing.T) {
	linker := &stubLinker{}
	handler := NewHandler(&stubSync{}, stubManifest{}, commands.NewRegistry(nil), linker)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	rr := do(t, mux, http.MethodGet, "/v1/oauth/callback?error=access_denied&state=u1", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "authorization_denied", decodeError(t, rr))

	for _, query := range []string{"", "?code=abc", "?state=u1", "?code=%20&state=u1"} {
		rr = do(t, mux, http.MethodGet, "/v1/oauth/callback"+query, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, query)
		require.Equal(t, "validation_failed", decodeError(t, rr), query)
	}
	require.Empty(t, linker.codes)
}

func TestOAuthCallbackMapsLinkErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		kind   string
	}{
		"bad state":    {err: domain.ErrInvalidRequest, status: http.StatusBadRequest, kind: "validation_failed"},
		"bungie down":  {err: domain.ErrUpstreamUnavailable, status: http.StatusBadGateway, kind: "upstream_unavailable"},
		"store failed": {err: errors.New("db down"), status: http.StatusInternalServerError, kind: "server_error"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			handler := NewHandler(&stubSync{}, stubManifest{}, commands.NewRegistry(nil), &stubLinker{err: tc.err})
			mux := http.NewServeMux()
			handler.RegisterRoutes(mux)

			rr := do(t, mux, http.MethodGet, "/v1/oauth/callback?code=abc&state=u1", nil)
			require.Equal(t, tc.status, rr.Code)
			require.Equal(t, tc.kind, decodeError(t, rr))
		})
	}
}
