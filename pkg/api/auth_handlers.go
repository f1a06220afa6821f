package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/labkit/pkg/httputil"
	"github.com/platinummonkey/labkit/pkg/observability"
)

const stateCookie = "labkit_oauth_state"

// AuthHandlers handles the browser login round trip
type AuthHandlers struct {
	login  LoginFlow
	logger *observability.Logger
}

// NewAuthHandlers creates login handlers
func NewAuthHandlers(login LoginFlow, logger *observability.Logger) *AuthHandlers {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AuthHandlers{login: login, logger: logger}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.startLogin).Methods("GET")
	router.HandleFunc("/auth/callback", h.callback).Methods("GET")
}

// startLogin handles GET /auth/login
func (h *AuthHandlers) startLogin(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.login.LoginURL(state), http.StatusFound)
}

// callback handles GET /auth/callback. The response carries the ID token
// the client presents as its bearer token.
func (h *AuthHandlers) callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		httputil.WriteBadRequest(w, "invalid login state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth", MaxAge: -1})

	if errCode := r.URL.Query().Get("error"); errCode != "" {
		httputil.WriteUnauthorized(w, "login failed: "+errCode)
		return
	}

	identity, token, err := h.login.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("login exchange failed")
		httputil.WriteUnauthorized(w, "login failed")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"token":    token,
		"identity": identity,
	})
}
