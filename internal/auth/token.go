// Package auth issues and verifies the join tokens that bind a websocket
// connection to the participant identity handed out by /join.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"netsync/internal/replication"
)

const (
	issuer = "netsync"
	// DefaultTTL bounds how long a join token may wait before dialing.
	DefaultTTL = 2 * time.Minute
)

var (
	// ErrMissingSecret is returned when no signing secret is configured.
	ErrMissingSecret = errors.New("auth: signing secret is required")
	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims are the join token claims.
type Claims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
	Slot int    `json:"slot"`
}

// Issuer signs join tokens with HS256.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer constructs an Issuer. A non-positive ttl selects DefaultTTL.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for a client participant occupying slot.
func (i *Issuer) Issue(participant replication.ParticipantID, slot int) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   string(participant),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Kind: replication.KindClient.String(),
		Slot: slot,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign join token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the participant it was issued to.
func (i *Issuer) Verify(token string) (replication.Participant, int, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return replication.Participant{}, 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return replication.Participant{}, 0, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	kind, ok := replication.ParseKind(claims.Kind)
	if !ok || kind != replication.KindClient {
		return replication.Participant{}, 0, fmt.Errorf("%w: unexpected kind %q", ErrInvalidToken, claims.Kind)
	}
	return replication.Participant{ID: replication.ParticipantID(claims.Subject), Kind: kind}, claims.Slot, nil
}
