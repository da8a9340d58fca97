package transport

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

type callerKey struct{}

// TokenVerifier checks a bearer token and names the caller it belongs to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// StaticTokens accepts a fixed set of tokens from configuration.
type StaticTokens struct {
	hashes [][sha256.Size]byte
}

// NewStaticTokens creates a verifier for tokens. Blank entries are ignored.
func NewStaticTokens(tokens []string) *StaticTokens {
	st := &StaticTokens{}
	for _, tok := range tokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			st.hashes = append(st.hashes, sha256.Sum256([]byte(tok)))
		}
	}
	return st
}

// Verify compares in constant time. The caller name is "token-<n>" by
// configuration order so logs never carry the secret.
func (s *StaticTokens) Verify(_ context.Context, token string) (string, error) {
	sum := sha256.Sum256([]byte(token))
	match := -1
	for i, h := range s.hashes {
		if subtle.ConstantTimeCompare(sum[:], h[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return "", ErrUnauthorized
	}
	return "token-" + strconv.Itoa(match+1), nil
}

// CallerFromContext returns the authenticated caller, if present.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey{}).(string)
	return caller, ok
}

// AuthMiddleware enforces bearer token authentication. Websocket clients
// that cannot set headers may pass the token as access_token.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			caller, err := verifier.Verify(r.Context(), token)
			if err != nil || caller == "" {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), callerKey{}, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
