// Package auth identifies the caller of an API request. Components never read the current user themselves, the
// API resolves it through a Provider and passes the id explicitly.
package auth

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	grpcauth "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"

	"github.com/Ricardolombre/acdn-elearning/internal/errors"
)

type Role string

const (
	RoleLearner Role = "learner"
	RoleAdmin   Role = "admin"
)

// Provider resolves the caller from a request context.
type Provider interface {
	CurrentUserID(ctx context.Context) (string, error)
	IsAdmin(ctx context.Context) bool
}

type Claims struct {
	Sub  string `json:"sub"`
	Role Role   `json:"role"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// JWT issues and verifies HS256 tokens.
type JWT struct {
	hmac   []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(c Config) *JWT {
	j := &JWT{
		hmac:   []byte(c.Secret),
		issuer: c.Issuer,
		ttl:    c.TTL,
		now:    c.Now,
	}
	if j.ttl <= 0 {
		j.ttl = 8 * time.Hour
	}
	if j.now == nil {
		j.now = time.Now
	}
	return j
}

func (j *JWT) Issue(sub string, role Role) (string, error) {
	now := j.now()
	claims := &Claims{
		Sub:  sub,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.hmac)
}

func (j *JWT) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	t, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return j.hmac, nil
	}, opts...)
	if err != nil {
		return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid token"), errors.WithCause(err))
	}

	c, ok := t.Claims.(*Claims)
	if !ok || c.Sub == "" {
		return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("token has no subject"))
	}
	return c, nil
}

// AuthFunc reads the bearer token of a gRPC call and stores its claims in the context.
func (j *JWT) AuthFunc(ctx context.Context) (context.Context, error) {
	token, err := grpcauth.AuthFromMD(ctx, "bearer")
	if err != nil {
		return nil, err
	}

	c, err := j.Parse(token)
	if err != nil {
		return nil, err
	}
	return WithClaims(ctx, c), nil
}

func (j *JWT) CurrentUserID(ctx context.Context) (string, error) {
	return CurrentUserID(ctx)
}

func (j *JWT) IsAdmin(ctx context.Context) bool {
	return IsAdmin(ctx)
}

type claimsKey struct{}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}

var ErrNoUser = stderrors.New("no authenticated user")

func CurrentUserID(ctx context.Context) (string, error) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return "", errors.New(errors.CodeUnauthenticated, errors.WithCause(ErrNoUser))
	}
	return c.Sub, nil
}

func IsAdmin(ctx context.Context) bool {
	c, ok := ClaimsFromContext(ctx)
	return ok && c.Role == RoleAdmin
}
