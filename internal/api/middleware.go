package api

import (
	"net/http"
	"strings"

	"github.com/kalambet/tasktalk/internal/auth"
)

// TokenVerifier turns a bearer token into a principal. *auth.Verifier
// satisfies it.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller's principal in the request context.
func Authenticate(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(strings.TrimSpace(r.Header.Get("Authorization")))
			if !ok {
				httpError(w, http.StatusUnauthorized, errorBody{ErrorKind: kindUnauthenticated, Detail: "missing bearer token"})
				return
			}
			p, err := v.Verify(token)
			if err != nil {
				httpError(w, http.StatusUnauthorized, errorBody{ErrorKind: kindUnauthenticated, Detail: "invalid credentials"})
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

func ownerOf(r *http.Request) string {
	p, _ := auth.FromContext(r.Context())
	return p.Owner
}
