// Package tokenauth verifies the bearer tokens that clients present when
// opening a realtime connection.
//
// Tokens are HS256 JWTs carrying the user's hex ObjectID in an "id" claim,
// the same shape the web app issues at sign-in.
package tokenauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrMissingToken = errors.New("tokenauth: missing token")
	ErrInvalidToken = errors.New("tokenauth: invalid token")
	ErrExpiredToken = errors.New("tokenauth: token expired")
)

// DefaultTTL matches the lifetime of tokens issued at sign-in.
const DefaultTTL = 7 * 24 * time.Hour

// Claims is the token payload.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// Authenticator resolves a request to a user id.
type Authenticator interface {
	Authenticate(r *http.Request) (primitive.ObjectID, error)
}

// Verifier checks token signatures and expiry.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier returns a Verifier for the shared signing secret.
func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("tokenauth: signing secret is required")
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

// Verify returns the user id the token was issued for.
func (v *Verifier) Verify(token string) (primitive.ObjectID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return primitive.NilObjectID, ErrMissingToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return primitive.NilObjectID, ErrExpiredToken
		}
		return primitive.NilObjectID, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: bad id claim", ErrInvalidToken)
	}
	return id, nil
}

// Authenticate reads the token from the "token" query parameter (browsers
// cannot set headers on a websocket handshake) or an Authorization: Bearer
// header, and verifies it.
func (v *Verifier) Authenticate(r *http.Request) (primitive.ObjectID, error) {
	return v.Verify(FromRequest(r))
}

// FromRequest extracts the raw token, or "" if none was sent.
func FromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Issuer signs tokens with the same secret a Verifier checks.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer. A non-positive ttl uses DefaultTTL.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("tokenauth: signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for userID.
func (i *Issuer) Issue(userID primitive.ObjectID) (string, error) {
	now := i.now()
	claims := Claims{
		UserID: userID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Chain tries each Authenticator in order. The first success wins. A
// missing credential moves on to the next one; any other failure stops
// the chain so a bad token is never masked by a fallback.
type Chain []Authenticator

func (c Chain) Authenticate(r *http.Request) (primitive.ObjectID, error) {
	for _, a := range c {
		id, err := a.Authenticate(r)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrMissingToken) {
			return primitive.NilObjectID, err
		}
	}
	return primitive.NilObjectID, ErrMissingToken
}
