package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"todoService/models"
)

// DefaultTokenTTL is the lifetime of issued tokens when none is configured.
const DefaultTokenTTL = 3 * time.Hour

// BearerPrefix is the literal scheme prefix expected in the Authorization header.
const BearerPrefix = "Bearer "

var (
	// ErrInvalidToken is the only error Verify returns. Expired, malformed and
	// badly signed tokens are deliberately indistinguishable.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnauthenticated means no verified identity is available for the request.
	ErrUnauthenticated = errors.New("unauthenticated")

	errEmptySecret = errors.New("jwt secret is empty")
)

// Claims is the payload of an identity token.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Principal is the verified caller attached to a request context.
type Principal struct {
	UserID   int64
	Username string // label only; authorization uses UserID
}

type principalKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from context (if any).
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// RequirePrincipal returns the principal in ctx or ErrUnauthenticated.
func RequirePrincipal(ctx context.Context) (*Principal, error) {
	p, ok := FromContext(ctx)
	if !ok || p.UserID <= 0 {
		return nil, ErrUnauthenticated
	}
	return p, nil
}

// TokenService issues and verifies HS256 identity tokens with a key fixed at
// construction. It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService returns a TokenService signing with secret. A non-positive
// ttl selects DefaultTokenTTL.
func NewTokenService(secret []byte, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &TokenService{secret: key, ttl: ttl, now: time.Now}
}

// TTL reports the lifetime applied to issued tokens.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for u that expires ttl after now.
func (s *TokenService) Issue(u *models.User) (string, error) {
	if len(s.secret) == 0 {
		return "", errEmptySecret
	}
	if u == nil || u.ID <= 0 {
		return "", errors.New("user without id")
	}
	now := s.now()
	claims := Claims{
		UserID:   u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks the signature and expiry of tokenStr and returns its claims.
// No audience or issuer validation is performed.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	if len(s.secret) == 0 || tokenStr == "" {
		return nil, ErrInvalidToken
	}
	c := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid || c.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// ParseBearer extracts the token from an Authorization header value. The
// scheme prefix is matched and stripped literally; the rest is the token.
func ParseBearer(header string) (string, error) {
	tok, ok := strings.CutPrefix(header, BearerPrefix)
	if !ok {
		if header == "" {
			return "", errors.New("missing authorization")
		}
		return "", errors.New("invalid authorization header")
	}
	if tok == "" {
		return "", errors.New("empty bearer token")
	}
	return tok, nil
}

// Authenticate resolves an Authorization header value to a Principal. The
// returned error describes the failure for logs only.
func (s *TokenService) Authenticate(header string) (*Principal, error) {
	tok, err := ParseBearer(header)
	if err != nil {
		return nil, err
	}
	c, err := s.Verify(tok)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: c.UserID, Username: c.Username}, nil
}
