package authz

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"example.com/raidsync/internal/domain"
)

// DefaultStateTTL bounds how long an account-link state stays valid.
const DefaultStateTTL = 10 * time.Minute

const stateAudience = "raidsync-account-link"

type stateClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// StateCodec signs the OAuth state so a callback can only complete a link
// started by the same user.
type StateCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateCodec constructs a StateCodec signing with secret.
func NewStateCodec(secret string, ttl time.Duration) *StateCodec {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateCodec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue returns a signed state binding userID to username.
func (c *StateCodec) Issue(userID, username string) (string, error) {
	now := c.now()
	claims := stateClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies state and returns the user id and username it carries.
func (c *StateCodec) Decode(state string) (userID, username string, err error) {
	var claims stateClaims
	_, err = jwt.ParseWithClaims(state, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithAudience(stateAudience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", "", fmt.Errorf("%w: oauth state: %v", domain.ErrInvalidRequest, err)
	}
	if claims.Subject == "" {
		return "", "", fmt.Errorf("%w: oauth state has no subject", domain.ErrInvalidRequest)
	}
	return claims.Subject, claims.Username, nil
}
