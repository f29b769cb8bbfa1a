package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/cloo-solutions/sheetrag/internal/api"
)

type contextKey string

const ClientKey contextKey = "client"

const errCodeUnauthorized = "UNAUTHORIZED"

// ErrInvalidAPIKey is returned by validators that reject a token
var ErrInvalidAPIKey = errors.New("invalid api key")

// AuthValidator resolves a bearer token to a client name
type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

// StaticKey accepts exactly one configured token.
type StaticKey string

func (k StaticKey) ValidateAPIKey(_ context.Context, token string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(k), []byte(token)) != 1 {
		return "", ErrInvalidAPIKey
	}
	return "default", nil
}

// APIKeyAuth requires "Authorization: Bearer <key>" and records the client
// the key belongs to in the context and in X-Client, replacing whatever the
// caller sent there. A nil validator lets every request through.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if validator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				unauthorized(w, err.Error())
				return
			}

			client, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				unauthorized(w, ErrInvalidAPIKey.Error())
				return
			}

			r.Header.Set("X-Client", client)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClientKey, client)))
		})
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("invalid authorization format")
	}
	return strings.TrimSpace(token), nil
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="sheetrag"`)
	api.JSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: message, Code: errCodeUnauthorized})
}

func GetClient(ctx context.Context) string {
	client, _ := ctx.Value(ClientKey).(string)
	return client
}
