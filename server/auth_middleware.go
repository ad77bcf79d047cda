package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/agentify-session/identity/localidp"
	"github.com/rs/zerolog/log"
)

type claimsKey struct{}

// RequireAuth accepts requests carrying a Bearer identity assertion minted by
// this process (see /auth/token) and stores its claims on the context.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, "unauthorized", "Missing or malformed bearer assertion", http.StatusUnauthorized)
				return
			}

			claims, err := s.provider.VerifyAssertion(r.Context(), raw)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("assertion rejected")
				writeJSONError(w, "unauthorized", "Invalid token", http.StatusUnauthorized)
				return
			}

			next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func claimsFrom(ctx context.Context) *localidp.AssertionClaims {
	claims, _ := ctx.Value(claimsKey{}).(*localidp.AssertionClaims)
	return claims
}
