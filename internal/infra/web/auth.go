package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"collab-billing/internal/domain"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ===== Bearer JWT primitives =====

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) IsAdmin() bool { return c != nil && c.Role == RoleAdmin }

type AuthManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	admins map[string]bool
	now    func() time.Time
}

// NewAuthManager verifies HS256 tokens. Subjects listed in adminIDs are admins
// regardless of the role claim.
func NewAuthManager(secret, issuer string, ttl time.Duration, adminIDs []string) *AuthManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = true
		}
	}
	return &AuthManager{secret: []byte(secret), issuer: issuer, ttl: ttl, admins: admins, now: time.Now}
}

// Mint issues a token for userID. Used by tooling and tests; end-user tokens come from the identity service.
func (a *AuthManager) Mint(userID, role string) (string, error) {
	if userID == "" {
		return "", domain.ErrInvalidArgument
	}
	now := a.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*Claims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errors.New("missing token")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now)}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	if a.admins[claims.Subject] {
		claims.Role = RoleAdmin
	}
	if claims.Role == "" {
		claims.Role = RoleUser
	}
	return claims, nil
}

type claimsKey struct{}

func withClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}
