// Package api exposes the HTTP surface of the raid sync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/raidsync/internal/auth"
	"example.com/raidsync/internal/commands"
	"example.com/raidsync/internal/domain"
)

// SyncService is the subset of the sync service used by the API.
type SyncService interface {
	ExistsByID(ctx context.Context, username string) (bool, error)
	GetState(ctx context.Context, username string) (*domain.UserSyncState, error)
	CreateInitialSync(ctx context.Context, ts time.Time, username, membershipID string, membershipType int) (*domain.UserSyncState, error)
	UpdateSync(ctx context.Context, ts time.Time, username, membershipID string, membershipType int) (*domain.UserSyncState, error)
}

// ManifestLookup resolves manifest definitions.
type ManifestLookup interface {
	GetManifestEntity(ctx context.Context, entityType domain.EntityType, hashID string) (domain.ManifestEntity, error)
}

// CommandDispatcher runs slash commands.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, req commands.Request) (commands.Response, error)
}

// AccountLinker completes the Bungie OAuth account link started by the authorize command.
type AccountLinker interface {
	CompleteAuthorization(ctx context.Context, code, state string) (*domain.AuthorizationRecord, error)
}

// Handler coordinates HTTP requests with the sync service.
type Handler struct {
	sync     SyncService
	manifest ManifestLookup
	commands CommandDispatcher
	linker   AccountLinker
	now      func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(sync SyncService, manifest ManifestLookup, dispatcher CommandDispatcher, linker AccountLinker) *Handler {
	return &Handler{
		sync:     sync,
		manifest: manifest,
		commands: dispatcher,
		linker:   linker,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/users/{username}/sync", h.syncUser)
	mux.HandleFunc("GET /v1/users/{username}/raids", h.listRaids)
	mux.HandleFunc("GET /v1/manifest/{entityType}/{hash}", h.manifestEntity)
	mux.HandleFunc("POST /v1/commands/{name}", h.runCommand)
	mux.HandleFunc("GET "+auth.OAuthCallbackPath, h.oauthCallback)
	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) syncUser(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeRaidsSync) {
		return
	}
	username := strings.TrimSpace(r.PathValue("username"))

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	exists, err := h.sync.ExistsByID(r.Context(), username)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ts := h.now()
	var state *domain.UserSyncState
	if exists {
		state, err = h.sync.UpdateSync(r.Context(), ts, username, req.MembershipID, req.MembershipType)
	} else {
		state, err = h.sync.CreateInitialSync(r.Context(), ts, username, req.MembershipID, req.MembershipType)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	writeJSON(w, status, SyncResponse{
		Username:   state.Username,
		LastSyncAt: state.LastSyncAt,
		TotalRaids: len(state.RaidHistory),
		Version:    state.Version,
		Created:    !exists,
	})
}

func (h *Handler) listRaids(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeRaidsRead) {
		return
	}
	state, err := h.sync.GetState(r.Context(), r.PathValue("username"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	raids := state.RaidHistory
	if raids == nil {
		raids = []domain.RaidDetail{}
	}
	writeJSON(w, http.StatusOK, RaidHistoryResponse{
		Username:   state.Username,
		LastSyncAt: state.LastSyncAt,
		Raids:      raids,
	})
}

func (h *Handler) manifestEntity(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeRaidsRead) {
		return
	}
	hash := r.PathValue("hash")
	if _, err := strconv.ParseUint(hash, 10, 32); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "hash must be an unsigned 32-bit integer")
		return
	}
	entity, err := h.manifest.GetManifestEntity(r.Context(), domain.EntityType(r.PathValue("entityType")), hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (h *Handler) runCommand(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeRaidsRead) {
		return
	}
	var req commands.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id is required")
		return
	}
	req.Command = r.PathValue("name")

	resp, err := h.commands.Dispatch(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// oauthCallback is reached by the user's browser after Bungie consent, so it
// carries no bearer token. The signed state identifies the user instead.
func (h *Handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		writeError(w, http.StatusBadRequest, "authorization_denied", reason)
		return
	}
	code, state := strings.TrimSpace(query.Get("code")), strings.TrimSpace(query.Get("state"))
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "code and state are required")
		return
	}

	record, err := h.linker.CompleteAuthorization(r.Context(), code, state)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountLinkResponse{
		UserID:    record.UserID,
		Username:  record.Username,
		ExpiresAt: record.Expiration,
	})
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return false
	}
	return true
}

// SyncRequest is the payload for POST /v1/users/{username}/sync.
type SyncRequest struct {
	MembershipID   string `json:"membership_id"`
	MembershipType int    `json:"membership_type"`
}

// Validate ensures request correctness.
func (r SyncRequest) Validate() error {
	if strings.TrimSpace(r.MembershipID) == "" {
		return errors.New("membership_id is required")
	}
	if r.MembershipType <= 0 {
		return errors.New("membership_type must be > 0")
	}
	return nil
}

// SyncResponse summarizes the stored state after a sync.
type SyncResponse struct {
	Username   string    `json:"username"`
	LastSyncAt time.Time `json:"last_sync_at"`
	TotalRaids int       `json:"total_raids"`
	Version    int64     `json:"version"`
	Created    bool      `json:"created"`
}

// AccountLinkResponse confirms a stored account link. Tokens are never echoed.
type AccountLinkResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RaidHistoryResponse returns a user's full history.
type RaidHistoryResponse struct {
	Username   string              `json:"username"`
	LastSyncAt time.Time           `json:"last_sync_at"`
	Raids      []domain.RaidDetail `json:"raids"`
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, commands.ErrUnknownCommand):
		writeError(w, http.StatusNotFound, "unknown_command", err.Error())
	case errors.Is(err, domain.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not_authorized", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		writeError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
