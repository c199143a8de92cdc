package httpx

import (
	"context"
	"net/http"

	"github.com/splax/localpost/internal/domain"
)

type sessionContextKey string

const contextKeySession sessionContextKey = "localpost-session"

type contextSetter interface {
	SetContext(context.Context)
}

// requireSession gates protected pages: without a live session the request
// is redirected to the login page before the handler runs.
func (r *Router) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		sess, ok := r.resolveSession(req)
		if !ok {
			http.Redirect(w, req, "/login", http.StatusSeeOther)
			return
		}
		ctx := context.WithValue(req.Context(), contextKeySession, sess)
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// resolveSession reads the session cookie and validates it. A missing or
// stale cookie is a plain miss, never an error response.
func (r *Router) resolveSession(req *http.Request) (domain.Session, bool) {
	cookie, err := req.Cookie(r.cookieName)
	if err != nil {
		return domain.Session{}, false
	}
	return r.sessions.Current(req.Context(), cookie.Value)
}

// sessionFromContext extracts the session placed by requireSession.
func sessionFromContext(ctx context.Context) (domain.Session, bool) {
	value := ctx.Value(contextKeySession)
	if value == nil {
		return domain.Session{}, false
	}
	sess, ok := value.(domain.Session)
	return sess, ok
}
