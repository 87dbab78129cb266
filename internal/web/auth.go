package web

import (
	"net/http"

	"github.com/fahadahaf/chat-ui/internal/auth"
	"github.com/fahadahaf/chat-ui/internal/log"
)

// authHandler exposes the identity endpoints backed by the auth service.
type authHandler struct {
	client *auth.Client
	logger log.Logger
}

// me returns the authenticated caller. The auth middleware already resolved
// the identity; this just echoes it.
func (h *authHandler) me(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "sign in required", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, identity, h.logger)
}

// logout invalidates the session at the auth service and expires the cookie.
func (h *authHandler) logout(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		token = cookie.Value
	}

	if err := h.client.Logout(r.Context(), token); err != nil {
		h.logger.Error("logging out", "error", err)
		writeError(w, http.StatusBadGateway, "auth_unavailable", "auth service unavailable", h.logger)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true}, h.logger)
}
