package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/restaurant-orders/internal/domain/auth"
)

// APIKeyHeader carries the administrative API key.
const APIKeyHeader = "api_key"

// Security authenticates customers by bearer JWT and operators by API key.
type Security struct {
	apikeys     auth.Repository
	pepper      []byte
	tokenSecret []byte
}

// NewSecurity creates a Security. Bearer tokens are verified as HS256 JWTs
// signed with tokenSecret; API keys are hashed with pepper before lookup.
func NewSecurity(apikeys auth.Repository, pepper, tokenSecret []byte) *Security {
	return &Security{
		apikeys:     apikeys,
		pepper:      pepper,
		tokenSecret: tokenSecret,
	}
}

// RequireUser rejects requests without a valid bearer token and stores the
// token's user ID in the request context.
func (s *Security) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.userFromBearer(r.Header.Get("Authorization"))
		if err != nil {
			zctx.From(r.Context()).Debug("Bearer rejected", zap.Error(err))
			writeErrorBody(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		next(w, r.WithContext(auth.WithUser(r.Context(), userID)))
	}
}

func (s *Security) userFromBearer(header string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", errors.New("missing bearer token")
	}
	if len(s.tokenSecret) == 0 {
		return "", errors.New("token secret not configured")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.tokenSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errors.Wrap(err, "parse token")
	}

	if id, ok := claims["userId"].(string); ok && id != "" {
		return id, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", errors.New("token carries no user id")
}

// RequireAPIKey authenticates an incoming request by computing the
// HMAC-SHA256 of the provided API key, looking it up in the repository, and
// performing a constant-time comparison. Keys lacking scope are forbidden.
func (s *Security) RequireAPIKey(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.apiKey(r)
		if err != nil {
			zctx.From(r.Context()).Debug("API key rejected", zap.Error(err))
			writeErrorBody(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		if !info.HasScope(scope) {
			writeErrorBody(w, http.StatusForbidden, "forbidden", "api key lacks scope "+scope)
			return
		}
		next(w, r.WithContext(auth.WithAPIKey(r.Context(), info)))
	}
}

func (s *Security) apiKey(r *http.Request) (*auth.APIKeyInfo, error) {
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		return nil, errors.New("missing api key")
	}

	hexHash := auth.HashAPIKey(s.pepper, key)
	info, err := s.apikeys.FindByHash(r.Context(), hexHash)
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}

	// The stored hash could differ from what we computed if the repository
	// returns a stale or wrong row.
	computed, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, errors.Wrap(err, "decode computed hash")
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, errors.Wrap(err, "decode stored hash")
	}
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, errors.New("api key hash mismatch")
	}
	return info, nil
}
