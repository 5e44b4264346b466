package authz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"example.com/raidsync/internal/domain"
)

// CodeExchanger builds consent links and redeems authorization codes.
type CodeExchanger interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
}

// Linker creates AuthorizationRecords through the authorization_code grant.
type Linker struct {
	store     domain.AuthorizationStore
	exchanger CodeExchanger
	states    *StateCodec
	logger    *log.Logger
	now       func() time.Time
}

// NewLinker constructs a Linker. A nil logger uses a prefixed default.
func NewLinker(store domain.AuthorizationStore, exchanger CodeExchanger, states *StateCodec, logger *log.Logger) *Linker {
	if logger == nil {
		logger = log.New(log.Writer(), "[authz] ", log.LstdFlags|log.Lshortfile)
	}
	return &Linker{
		store:     store,
		exchanger: exchanger,
		states:    states,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AuthorizationLink returns the consent link for userID linking username.
func (l *Linker) AuthorizationLink(userID, username string) (string, error) {
	userID = strings.TrimSpace(userID)
	username = strings.TrimSpace(username)
	if userID == "" || username == "" {
		return "", fmt.Errorf("%w: user id and username are required", domain.ErrInvalidRequest)
	}
	state, err := l.states.Issue(userID, username)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return l.exchanger.AuthCodeURL(state), nil
}

// CompleteAuthorization redeems code for the user named in state and stores
// the resulting tokens.
func (l *Linker) CompleteAuthorization(ctx context.Context, code, state string) (*domain.AuthorizationRecord, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: authorization code is required", domain.ErrInvalidRequest)
	}
	userID, username, err := l.states.Decode(state)
	if err != nil {
		linkOutcomes.WithLabelValues("rejected").Inc()
		return nil, err
	}

	token, err := l.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		linkOutcomes.WithLabelValues("failed").Inc()
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= http.StatusBadRequest && retrieveErr.Response.StatusCode < http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: authorization code rejected: %v", domain.ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("%w: exchange authorization code: %v", domain.ErrUpstreamUnavailable, err)
	}

	now := l.now()
	record := domain.AuthorizationRecord{
		UserID:       userID,
		Username:     username,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiration:   tokenExpiry(token, now),
		UpdatedAt:    now,
	}
	if err := l.store.Save(ctx, record); err != nil {
		linkOutcomes.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("save authorization for %s: %w", userID, err)
	}
	linkOutcomes.WithLabelValues("linked").Inc()
	l.logger.Printf("linked user %s to %s, token valid until %s", userID, username, record.Expiration.Format(time.RFC3339))
	return &record, nil
}
