package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/linking"
	"github.com/jrsteele09/agentify-session/navigation"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/rs/zerolog/log"
)

const eventsKeepAlive = 30 * time.Second

// SessionHandler returns the session state without blocking
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, newSessionResponse(s.store.GetSession()))
	}
}

// TokenHandler returns a fresh identity assertion, null when signed out
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := s.accessor.GetToken(r.Context())
		if err != nil {
			log.Err(err).Str("request_id", RequestID(r.Context())).Msg("failed to get identity assertion")
			status, code := classify(err)
			writeJSONError(w, code, "Failed to get token. Please sign in again.", status)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]*string{"token": tok})
	}
}

// MeHandler echoes the verified claims of the bearer assertion
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, claimsFrom(r.Context()))
	}
}

func (s *Server) GithubSignInHandler() http.HandlerFunc {
	return s.githubFlowHandler(linking.FlowGithubSignIn, s.controller.SignInWithGithub)
}

func (s *Server) GithubLinkHandler() http.HandlerFunc {
	return s.githubFlowHandler(linking.FlowGithubLink, s.controller.LinkGithubToExistingAccount)
}

// githubFlowHandler blocks until the popup resolves
func (s *Server) githubFlowHandler(flow linking.Flow, run func(context.Context) (*linking.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := run(r.Context())
		if err != nil {
			s.writeFlowError(w, r, flow, err)
			return
		}

		resp := newFlowResponse(flow, result)
		if flow == linking.FlowGithubLink {
			resp.Message = linking.LinkSucceededMessage
		} else {
			resp.Redirect = navigation.Dashboard
			if isHTMXRequest(r) {
				redirectSuccess(w, r, navigation.Dashboard)
				return
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GithubPopupCallbackHandler receives GitHub's redirect in the popup window
func (s *Server) GithubPopupCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		err := s.provider.CompletePopup(q.Get("state"), popupResult(q))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err != nil {
			log.Warn().Err(err).Msg("popup callback for unknown or finished attempt")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, popupPage("This sign-in window has expired. Please try again."))
			return
		}
		fmt.Fprint(w, popupPage("You can close this window."))
	}
}

func (s *Server) EmailSignInHandler() http.HandlerFunc {
	return s.emailFlowHandler(linking.FlowEmailSignIn, s.controller.SignInWithEmail)
}

func (s *Server) EmailRegisterHandler() http.HandlerFunc {
	return s.emailFlowHandler(linking.FlowEmailRegister, s.controller.RegisterWithEmail)
}

func (s *Server) emailFlowHandler(flow linking.Flow, run func(ctx context.Context, email, password string) (*linking.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, err := readCredentials(w, r)
		if err != nil {
			writeJSONError(w, "invalid_request", "Invalid request.", http.StatusBadRequest)
			return
		}

		result, err := run(r.Context(), creds.Email, creds.Password)
		if err != nil {
			s.writeFlowError(w, r, flow, err)
			return
		}
		if isHTMXRequest(r) {
			redirectSuccess(w, r, navigation.Dashboard)
			return
		}
		resp := newFlowResponse(flow, result)
		resp.Redirect = navigation.Dashboard
		writeJSON(w, http.StatusOK, resp)
	}
}

// SignOutHandler always sends the user to the public entry
func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, redirect := navigation.WithRedirect(r.Context())
		err := s.controller.SignOut(ctx)
		if err != nil {
			log.Err(err).Str("request_id", RequestID(r.Context())).Msg("provider sign-out failed")
		}

		target := redirect.Path()
		if target == "" {
			target = navigation.PublicEntry
		}
		if !wantsJSON(r) {
			redirectSuccess(w, r, target)
			return
		}
		resp := map[string]string{"redirect": target}
		if err != nil {
			resp["warning"] = linking.Message(linking.FlowSignOut, err)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// AuthCallbackHandler completes the authorization-code redirect
func (s *Server) AuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, redirect := navigation.WithRedirect(r.Context())
		status, err := s.completer.Complete(ctx, r.URL.Query())
		if err != nil {
			log.Warn().Err(err).Str("status", string(status)).Msg("redirect completion failed")
		}

		if redirect.Path() == "" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, popupPage("Completing sign-in..."))
			return
		}
		redirectSuccess(w, r, redirect.Path())
	}
}

type settingsResponse struct {
	UID             string   `json:"uid"`
	Email           string   `json:"email,omitempty"`
	GithubLinked    bool     `json:"github_linked"`
	LinkedProviders []string `json:"linked_providers"`
}

// SettingsHandler reports the providers linked to the signed-in identity
func (s *Server) SettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.store.GetSession().Session
		if session == nil {
			redirectSuccess(w, r, navigation.PublicEntry)
			return
		}
		resp := settingsResponse{
			UID:             session.Identity.ID,
			Email:           session.Identity.Email,
			GithubLinked:    session.HasProvider(sessions.ProviderGithub),
			LinkedProviders: []string{},
		}
		for _, p := range session.LinkedProviders {
			resp.LinkedProviders = append(resp.LinkedProviders, string(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.provider.JWKS()
		if err != nil {
			http.Error(w, "Failed to get JWKS: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(jwks)
	}
}

// EventsHandler streams session changes and navigation as server-sent events
func (s *Server) EventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		events, cancel := s.hub.Subscribe()
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		initial := navigation.Event{Type: navigation.EventSession, Data: newSessionResponse(s.store.GetSession())}
		if err := writeEvent(w, initial); err != nil {
			return
		}
		flusher.Flush()

		keepAlive := time.NewTicker(eventsKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
			case e, ok := <-events:
				if !ok {
					return
				}
				if err := writeEvent(w, e); err != nil {
					return
				}
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, e navigation.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
	return err
}

func (s *Server) writeFlowError(w http.ResponseWriter, r *http.Request, flow linking.Flow, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Err(err).Str("request_id", RequestID(r.Context())).Str("flow", string(flow)).Msg("authentication flow failed")
	}
	writeJSONError(w, code, linking.Message(flow, err), status)
}

// classify maps the error taxonomy onto a status and an error code
func classify(err error) (int, string) {
	var rejection *errors.RejectionError
	switch {
	case errors.As(err, &rejection):
		if rejection.Reason == errors.ReasonEmailInUse {
			return http.StatusConflict, string(rejection.Reason)
		}
		if rejection.Reason == errors.ReasonMalformedEmail || rejection.Reason == errors.ReasonWeakPassword {
			return http.StatusBadRequest, string(rejection.Reason)
		}
		return http.StatusUnauthorized, string(rejection.Reason)
	case errors.Is(err, errors.ErrProviderDenied):
		return http.StatusForbidden, "provider_denied"
	case errors.Is(err, errors.ErrCredentialConflict):
		return http.StatusConflict, "credential_conflict"
	case errors.Is(err, errors.ErrNoSession), errors.Is(err, errors.ErrSessionExpired):
		return http.StatusUnauthorized, "no_session"
	case errors.Is(err, errors.ErrSessionMismatch):
		return http.StatusConflict, "session_mismatch"
	case errors.Is(err, errors.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusBadGateway, "provider_error"
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
