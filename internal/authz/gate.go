// Package authz gates privileged operations on a stored user authorization
// and keeps access tokens fresh in the background.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"example.com/raidsync/internal/domain"
)

// DefaultRefreshTimeout bounds a background token exchange.
const DefaultRefreshTimeout = 10 * time.Second

// TokenExchanger trades a refresh token for a new token pair.
type TokenExchanger interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Gate checks authorization before gated calls and refreshes expired tokens
// without making the caller wait.
type Gate struct {
	store     domain.AuthorizationStore
	exchanger TokenExchanger
	timeout   time.Duration
	logger    *log.Logger
	now       func() time.Time

	flights singleflight.Group
	pending sync.WaitGroup
}

// Option configures the Gate.
type Option func(*Gate)

// WithRefreshTimeout bounds each background refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger overrides the gate logger.
func WithLogger(logger *log.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate constructs a Gate.
func NewGate(store domain.AuthorizationStore, exchanger TokenExchanger, opts ...Option) *Gate {
	g := &Gate{
		store:     store,
		exchanger: exchanger,
		timeout:   DefaultRefreshTimeout,
		logger:    log.New(log.Writer(), "[authz] ", log.LstdFlags|log.Lshortfile),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsUserAuthorized reports whether an authorization record exists for userID.
func (g *Gate) IsUserAuthorized(ctx context.Context, userID string) (bool, error) {
	return g.store.Exists(ctx, userID)
}

// Guard runs fn only when userID is authorized. A background refresh is
// started first but fn does not wait for it.
func (g *Gate) Guard(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	ok, err := g.IsUserAuthorized(ctx, userID)
	if err != nil {
		return fmt.Errorf("check authorization for %s: %w", userID, err)
	}
	if !ok {
		gateDecisions.WithLabelValues("denied").Inc()
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotAuthorized)
	}
	gateDecisions.WithLabelValues("allowed").Inc()
	g.RefreshIfNeeded(userID)
	return fn(ctx)
}

// RefreshIfNeeded refreshes the user's tokens in the background when they are
// expired. Failures are logged and dropped. Concurrent calls for one user
// share a single exchange.
func (g *Gate) RefreshIfNeeded(userID string) {
	g.pending.Add(1)
	go func() {
		defer g.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()

		_, err, _ := g.flights.Do(userID, func() (interface{}, error) {
			return nil, g.refresh(ctx, userID)
		})
		if err != nil {
			g.logger.Printf("token refresh for user %s failed: %v", userID, err)
		}
	}()
}

// Wait blocks until background refreshes complete.
func (g *Gate) Wait() {
	g.pending.Wait()
}

func (g *Gate) refresh(ctx context.Context, userID string) error {
	record, err := g.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotAuthorized) {
			refreshOutcomes.WithLabelValues("skipped").Inc()
			return nil
		}
		refreshOutcomes.WithLabelValues("failed").Inc()
		return err
	}
	if !record.Expired(g.now()) {
		refreshOutcomes.WithLabelValues("skipped").Inc()
		return nil
	}

	token, err := g.exchanger.ExchangeRefreshToken(ctx, record.RefreshToken)
	if err != nil {
		refreshOutcomes.WithLabelValues("failed").Inc()
		return fmt.Errorf("exchange refresh token: %w", err)
	}

	updated := *record
	updated.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		updated.RefreshToken = token.RefreshToken
	}
	updated.Expiration = tokenExpiry(token, g.now())
	updated.UpdatedAt = g.now()
	if err := g.store.Save(ctx, updated); err != nil {
		refreshOutcomes.WithLabelValues("failed").Inc()
		return fmt.Errorf("save refreshed tokens: %w", err)
	}
	refreshOutcomes.WithLabelValues("refreshed").Inc()
	g.logger.Printf("refreshed tokens for user %s, valid until %s", userID, updated.Expiration.Format(time.RFC3339))
	return nil
}
