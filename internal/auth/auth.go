// Package auth resolves the caller of the management API.
//
// Callers present an HS256-signed bearer token whose subject is the owner ID
// stored on every link they create.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sundayezeilo/linkstat/internal/errx"
	"github.com/sundayezeilo/linkstat/internal/httpx"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
}

// Authenticator resolves the caller identity of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// JWT verifies bearer tokens signed with a shared HMAC secret.
type JWT struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWT returns an HS256 authenticator. An empty issuer disables the issuer check.
func NewJWT(secret, issuer string) *JWT {
	return &JWT{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Authenticate validates the bearer token and returns its subject as the identity.
func (a *JWT) Authenticate(r *http.Request) (Identity, error) {
	const op = "auth.jwt.Authenticate"

	raw, ok := bearerToken(r)
	if !ok {
		return Identity{}, errx.Errorf(op, errx.Unauthorized, "missing bearer token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Identity{}, errx.E(op, errx.Unauthorized, fmt.Errorf("invalid token: %w", err))
	}
	if claims.Subject == "" {
		return Identity{}, errx.Errorf(op, errx.Unauthorized, "token has no subject")
	}

	return Identity{UserID: claims.Subject}, nil
}

// Issue signs a token for subject. A non-positive ttl yields a token without expiry.
func (a *JWT) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject cannot be empty")
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		Issuer:   a.issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Require rejects requests that do not authenticate and stores the identity
// of those that do in the request context.
func Require(a Authenticator, logger *slog.Logger) httpx.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r)
			if err != nil {
				logger.DebugContext(r.Context(), "authentication failed",
					"request_id", httpx.GetRequestID(r.Context()),
					"error", err,
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="linkstat"`)
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "valid bearer token required", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
