package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/observability"
)

var (
	ErrTokenMissing = errors.New("auth: bearer token missing")
	ErrTokenInvalid = errors.New("auth: bearer token invalid")
)

// Claims carried by access tokens. The subject is the numeric user id.
type Claims struct {
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Verify parses and validates the token and returns the identity it carries.
func (v *Verifier) Verify(token string) (*Identity, error) {
	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return nil, fmt.Errorf("%w: subject %q is not a user id", ErrTokenInvalid, claims.Subject)
	}
	return &Identity{UserID: uid, Email: claims.Email, IsAdmin: claims.IsAdmin}, nil
}

// Sign issues a token for identity. Used by tests and local tooling; token
// issuance for end users lives outside this service.
func (v *Verifier) Sign(identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:   identity.Email,
		IsAdmin: identity.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware rejects requests without a valid bearer token and stores the
// identity on the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondAuthError(w, r, "unauthenticated", "bearer token missing")
			return
		}
		identity, err := v.Verify(token)
		if err != nil {
			observability.FromContext(r.Context()).Info("token rejected", zap.Error(err))
			respondAuthError(w, r, "invalid_token", "bearer token invalid")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// Static authenticates every request as identity. Only for local runs with
// AUTH_DISABLED=true.
func Static(identity Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identity
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), &id)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func respondAuthError(w http.ResponseWriter, r *http.Request, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="orders"`)
	w.WriteHeader(http.StatusUnauthorized)
	payload := map[string]any{
		"error":   code,
		"message": message,
		"status":  http.StatusUnauthorized,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		payload["request_id"] = id
	}
	_ = json.NewEncoder(w).Encode(payload)
}
