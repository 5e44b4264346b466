package authz

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenTTL is assumed when the token endpoint omits expires_in.
const DefaultTokenTTL = time.Hour

// ExchangerConfig holds the OAuth client registration.
type ExchangerConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
}

// OAuth2Exchanger performs the authorization_code and refresh_token grants
// against a token endpoint.
type OAuth2Exchanger struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuth2Exchanger constructs an exchanger for the given client registration.
// A nil httpClient uses http.DefaultClient.
func NewOAuth2Exchanger(cfg ExchangerConfig, httpClient *http.Client) *OAuth2Exchanger {
	return &OAuth2Exchanger{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the consent link carrying state.
func (e *OAuth2Exchanger) AuthCodeURL(state string) string {
	return e.config.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for a token pair.
func (e *OAuth2Exchanger) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return e.config.Exchange(e.context(ctx), code)
}

// ExchangeRefreshToken implements TokenExchanger.
func (e *OAuth2Exchanger) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return e.config.TokenSource(e.context(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
}

func (e *OAuth2Exchanger) context(ctx context.Context) context.Context {
	if e.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}
	return ctx
}

func tokenExpiry(token *oauth2.Token, now time.Time) time.Time {
	if token.Expiry.IsZero() {
		return now.Add(DefaultTokenTTL)
	}
	return token.Expiry.UTC()
}
