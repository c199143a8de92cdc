package httpx

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/splax/localpost/internal/view"
)

const flashCookieName = "localpost_flash"

// Flash kinds shown on the next rendered page.
const (
	flashSuccess = "success"
	flashError   = "error"
	flashWarning = "warning"
)

// setFlashes queues one-shot notices in a short-lived cookie. The cookie is
// consumed and cleared by the next page render, so no server-side state is
// needed for anonymous flows like registration.
func (r *Router) setFlashes(w http.ResponseWriter, flashes ...view.Flash) {
	payload, err := json.Marshal(flashes)
	if err != nil {
		r.logger.Warn("flash encode failed", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   r.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlashes returns and clears any queued flashes.
func (r *Router) popFlashes(w http.ResponseWriter, req *http.Request) []view.Flash {
	cookie, err := req.Cookie(flashCookieName)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var flashes []view.Flash
	if err := json.Unmarshal(raw, &flashes); err != nil {
		return nil
	}
	return flashes
}
