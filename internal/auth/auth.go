package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuth is returned for any credential that must not be admitted: missing,
// malformed, expired, badly signed, or naming an inactive account.
var ErrAuth = errors.New("authentication failed")

// Identity is who a connection acts as. It is fixed at handshake.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// AccountChecker reports whether a user still exists and may play.
type AccountChecker interface {
	Active(ctx context.Context, userID string) (bool, error)
}

type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

// JWTVerifier verifies HMAC-signed access tokens issued by the account API.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	accounts AccountChecker
	now      func() time.Time
}

type Option func(*JWTVerifier)

func WithIssuer(issuer string) Option {
	return func(v *JWTVerifier) { v.issuer = issuer }
}

func WithAccountChecker(c AccountChecker) Option {
	return func(v *JWTVerifier) { v.accounts = c }
}

func WithClock(now func() time.Time) Option {
	return func(v *JWTVerifier) { v.now = now }
}

func NewJWTVerifier(secret []byte, opts ...Option) *JWTVerifier {
	v := &JWTVerifier{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: credential is required", ErrAuth)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return Identity{}, mapJWTError(err)
	}

	if strings.TrimSpace(c.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: subject is required", ErrAuth)
	}

	if v.accounts != nil {
		active, err := v.accounts.Active(ctx, c.Subject)
		if err != nil {
			return Identity{}, fmt.Errorf("check account: %w", err)
		}
		if !active {
			return Identity{}, fmt.Errorf("%w: account not found or inactive", ErrAuth)
		}
	}

	return Identity{UserID: c.Subject, Username: c.Username, Role: c.Role}, nil
}

// Issue signs a token for id. The realtime server never issues tokens in
// production; this backs the dev token command and tests.
func (v *JWTVerifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := v.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: id.Username,
		Role:     id.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: credential expired", ErrAuth)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: signature is invalid", ErrAuth)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: credential is malformed", ErrAuth)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: issuer mismatch", ErrAuth)
	default:
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
}

// TokenFromRequest reads a bearer credential from the Authorization header,
// falling back to the token query parameter since browsers cannot set headers
// on a WebSocket handshake.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

type contextKey string

const identityContextKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}

// Middleware rejects requests without a valid credential and stores the
// verified identity in the request context.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Verify(r.Context(), TokenFromRequest(r))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="bingo"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
