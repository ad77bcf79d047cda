package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/agentify-session/linking"
	"github.com/jrsteele09/agentify-session/sessions"
)

const maxFormBytes = 1 << 16

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a classified error with the message shown to the user
func writeJSONError(w http.ResponseWriter, errorCode, message string, statusCode int) {
	writeJSON(w, statusCode, errorResponse{Error: errorCode, Message: message})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type identityResponse struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type sessionResponse struct {
	Ready           bool              `json:"ready"`
	Authenticated   bool              `json:"authenticated"`
	User            *identityResponse `json:"user"`
	LinkedProviders []string          `json:"linked_providers,omitempty"`
}

func newSessionResponse(state sessions.State) sessionResponse {
	resp := sessionResponse{Ready: state.Ready, Authenticated: state.Authenticated()}
	if state.Session == nil {
		return resp
	}
	id := state.Session.Identity
	resp.User = &identityResponse{
		UID:         id.ID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		AvatarURL:   id.AvatarURL,
	}
	for _, p := range state.Session.LinkedProviders {
		resp.LinkedProviders = append(resp.LinkedProviders, string(p))
	}
	return resp
}

type flowResponse struct {
	Session  sessionResponse `json:"session"`
	Synced   bool            `json:"synced"`
	Warning  string          `json:"warning,omitempty"`
	Message  string          `json:"message,omitempty"`
	Redirect string          `json:"redirect,omitempty"`
}

func newFlowResponse(flow linking.Flow, result *linking.Result) flowResponse {
	resp := flowResponse{
		Session: newSessionResponse(sessions.State{Session: result.Session, Ready: true}),
		Synced:  result.Synced,
	}
	if result.Warning != nil {
		resp.Warning = linking.Message(flow, result.Warning)
	}
	return resp
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// readCredentials accepts a JSON body or a submitted form
func readCredentials(w http.ResponseWriter, r *http.Request) (credentials, error) {
	var c credentials
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(r.Body).Decode(&c)
		return c, err
	}
	if err := r.ParseForm(); err != nil {
		return c, err
	}
	c.Email = r.PostFormValue("email")
	c.Password = r.PostFormValue("password")
	return c, nil
}
