// Package auth verifies bearer tokens and carries the caller's identity
// through the gin context.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Role is the caller's access level
type Role string

// Roles, lowest first
const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Level maps the role onto 1..3; unknown roles are 0
func (r Role) Level() int {
	switch r {
	case RoleUser:
		return 1
	case RoleSeller:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

var (
	// ErrMissingToken is returned when no bearer token was sent
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned for tokens that fail verification
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the token claims this service reads
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller
type Principal struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the caller holds the admin role
func (p Principal) IsAdmin() bool {
	return p.Role.Level() >= RoleAdmin.Level()
}

// Owns reports whether the caller may act on resources of userID
func (p Principal) Owns(userID string) bool {
	return p.IsAdmin() || (userID != "" && p.UserID == userID)
}

// Verifier checks HS256 tokens
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier. An empty issuer is not checked.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses the token and returns its principal
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	if role.Level() == 0 {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return &Principal{UserID: claims.Subject, Role: role}, nil
}

// Issue signs a token for userID, valid for ttl
func (v *Verifier) Issue(userID string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

const principalKey = "auth.principal"

// Middleware rejects requests without a valid bearer token
func Middleware(v *Verifier, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := v.fromHeader(c.GetHeader("Authorization"))
		if err != nil {
			logger.Warn("Authentication failed",
				slog.String("path", c.Request.URL.Path),
				slog.String("method", c.Request.Method),
				slog.Any("error", err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated"})
			return
		}

		c.Set(principalKey, *principal)
		c.Next()
	}
}

func (v *Verifier) fromHeader(header string) (*Principal, error) {
	if header == "" {
		return nil, ErrMissingToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return nil, ErrMissingToken
	}

	return v.Verify(parts[1])
}

// RequireRole answers 403 unless the caller holds at least min
func RequireRole(min Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := FromContext(c)
		if !ok || p.Role.Level() < min.Level() {
			Forbid(c)
			return
		}
		c.Next()
	}
}

// Forbid aborts with the 403 body every authorization check uses
func Forbid(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Unauthorized"})
}

// FromContext returns the caller set by Middleware
func FromContext(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
