package httpx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/localpost/internal/repository"
	"github.com/splax/localpost/internal/service/account"
	"github.com/splax/localpost/internal/service/mail"
	"github.com/splax/localpost/internal/service/session"
	"github.com/splax/localpost/internal/view"
	"github.com/splax/localpost/internal/ws"
)

// Version reported by the health endpoint.
const Version = "1.0.0"

const (
	rateWindowDefault  = time.Minute
	rateLimitRegister  = 5
	rateLimitLogin     = 12
	healthCheckTimeout = 2 * time.Second
)

// Router wires HTTP endpoints to services. It owns no business logic: each
// handler validates input shape, applies session gating and maps service
// results to a response.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	accounts account.Service
	mail     mail.Service
	sessions session.Manager
	renderer *view.Renderer
	upgrader websocket.Upgrader
	limiter  RateLimiter
	dbHealth func(context.Context) error

	cookieName   string
	cookieSecure bool

	metricsOnce    sync.Once
	metricsReady   bool
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, accountSvc account.Service, mailSvc mail.Service, sessionMgr session.Manager, renderer *view.Renderer, limiter RateLimiter, cookieName string, cookieSecure bool, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		accounts: accountSvc,
		mail:     mailSvc,
		sessions: sessionMgr,
		renderer: renderer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:      limiter,
		dbHealth:     dbHealth,
		cookieName:   cookieName,
		cookieSecure: cookieSecure,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/", r.audit("home", r.handleHome))
	r.mux.HandleFunc("/register", r.audit("register", r.withRateLimit("register", rateLimitRegister, rateWindowDefault, r.handleRegister)))
	r.mux.HandleFunc("/login", r.audit("login", r.withRateLimit("login", rateLimitLogin, rateWindowDefault, r.handleLogin)))
	r.mux.HandleFunc("/verify/", r.audit("verify", r.handleVerify))
	r.mux.HandleFunc("/dashboard", r.audit("dashboard", r.requireSession(r.handleDashboard)))
	r.mux.HandleFunc("/compose", r.audit("compose", r.requireSession(r.handleCompose)))
	r.mux.HandleFunc("/inbox", r.audit("inbox", r.requireSession(r.handleInbox)))
	r.mux.HandleFunc("/email/", r.audit("email", r.requireSession(r.handleViewMessage)))
	r.mux.HandleFunc("/logout", r.audit("logout", r.handleLogout))
	r.mux.HandleFunc("/api/emails/unread", r.audit("unread", r.handleUnreadCount))
	r.mux.HandleFunc("/ws/unread", r.audit("unread_ws", r.handleUnreadWS))
	r.mux.HandleFunc("/health", r.audit("health", r.handleHealth))
	r.mux.Handle("/metrics", promhttp.Handler())
}

func (r *Router) handleHome(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if _, ok := r.resolveSession(req); ok {
		http.Redirect(w, req, "/dashboard", http.StatusSeeOther)
		return
	}
	page := view.Landing{Base: view.Base{Title: "Welcome", Flashes: r.popFlashes(w, req)}}
	r.renderPage(w, "landing", page)
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		page := view.RegisterForm{Base: view.Base{Title: "Register", Flashes: r.popFlashes(w, req)}}
		r.renderPage(w, "register", page)
	case http.MethodPost:
		if err := req.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		_, err := r.accounts.Register(req.Context(),
			req.PostFormValue("username"),
			req.PostFormValue("email"),
			req.PostFormValue("password"),
			req.PostFormValue("confirm_password"))
		if err != nil {
			r.setFlashes(w, view.Flash{Kind: flashError, Message: registerErrorMessage(err)})
			if !isRegisterInputError(err) {
				r.logger.Error("registration failed", "error", err)
			}
			http.Redirect(w, req, "/register", http.StatusSeeOther)
			return
		}
		r.setFlashes(w, view.Flash{Kind: flashSuccess, Message: "Registration successful! Please check your email to verify your account."})
		http.Redirect(w, req, "/login", http.StatusSeeOther)
	default:
		r.methodNotAllowed(w)
	}
}

func isRegisterInputError(err error) bool {
	return errors.Is(err, account.ErrMissingFields) ||
		errors.Is(err, account.ErrPasswordMismatch) ||
		errors.Is(err, account.ErrUsernameTaken) ||
		errors.Is(err, account.ErrEmailTaken)
}

func registerErrorMessage(err error) string {
	if isRegisterInputError(err) {
		return capitalize(err.Error())
	}
	return "Registration failed, please try again"
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		page := view.LoginForm{Base: view.Base{Title: "Log in", Flashes: r.popFlashes(w, req)}}
		r.renderPage(w, "login", page)
	case http.MethodPost:
		if err := req.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		signed, _, err := r.sessions.Login(req.Context(), req.PostFormValue("email"), req.PostFormValue("password"))
		if err != nil {
			switch {
			case errors.Is(err, account.ErrNotVerified):
				r.setFlashes(w, view.Flash{Kind: flashWarning, Message: "Please verify your email before logging in."})
			case errors.Is(err, account.ErrInvalidCredentials):
				r.setFlashes(w, view.Flash{Kind: flashError, Message: "Invalid email or password"})
			default:
				r.logger.Error("login failed", "error", err)
				r.setFlashes(w, view.Flash{Kind: flashError, Message: "Login failed, please try again"})
			}
			http.Redirect(w, req, "/login", http.StatusSeeOther)
			return
		}
		r.setSessionCookie(w, signed)
		r.setFlashes(w, view.Flash{Kind: flashSuccess, Message: "Login successful!"})
		http.Redirect(w, req, "/dashboard", http.StatusSeeOther)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleVerify(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	verificationToken := strings.TrimPrefix(req.URL.Path, "/verify/")
	if verificationToken == "" || strings.Contains(verificationToken, "/") {
		r.notFound(w)
		return
	}
	if _, err := r.accounts.Verify(req.Context(), verificationToken); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.Error("verification failed", "error", err)
		}
		r.setFlashes(w, view.Flash{Kind: flashError, Message: "Invalid verification token."})
		http.Redirect(w, req, "/login", http.StatusSeeOther)
		return
	}
	r.setFlashes(w, view.Flash{Kind: flashSuccess, Message: "Email verified successfully! You can now log in."})
	http.Redirect(w, req, "/login", http.StatusSeeOther)
}

func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	sess, _ := sessionFromContext(req.Context())
	messages, err := r.mail.Inbox(req.Context(), sess.AccountID, mail.DashboardLimit)
	if err != nil {
		r.serverError(w, "load dashboard", err)
		return
	}
	unread, err := r.mail.UnreadCount(req.Context(), sess.AccountID)
	if err != nil {
		r.serverError(w, "count unread", err)
		return
	}
	page := view.Dashboard{
		Base:   view.Base{Title: "Dashboard", Username: sess.Username, Flashes: r.popFlashes(w, req)},
		Unread: unread,
	}
	for _, m := range messages {
		page.Messages = append(page.Messages, view.NewMessageItem(m))
	}
	r.renderPage(w, "dashboard", page)
}

func (r *Router) handleCompose(w http.ResponseWriter, req *http.Request) {
	sess, _ := sessionFromContext(req.Context())
	switch req.Method {
	case http.MethodGet:
		page := view.ComposeForm{Base: view.Base{Title: "Compose", Username: sess.Username, Flashes: r.popFlashes(w, req)}}
		r.renderPage(w, "compose", page)
	case http.MethodPost:
		if err := req.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		sender, err := r.accounts.Get(req.Context(), sess.AccountID)
		if err != nil {
			r.serverError(w, "load sender account", err)
			return
		}
		result, err := r.mail.Send(req.Context(), sender,
			req.PostFormValue("recipient"),
			req.PostFormValue("subject"),
			req.PostFormValue("body"))
		if err != nil {
			if errors.Is(err, mail.ErrMissingFields) {
				r.setFlashes(w, view.Flash{Kind: flashError, Message: capitalize(err.Error())})
				http.Redirect(w, req, "/compose", http.StatusSeeOther)
				return
			}
			r.serverError(w, "send message", err)
			return
		}
		if result.Warn != nil {
			r.setFlashes(w, view.Flash{Kind: flashWarning, Message: fmt.Sprintf("Email saved but sending failed: %v", result.Warn)})
		} else {
			r.setFlashes(w, view.Flash{Kind: flashSuccess, Message: "Email sent successfully!"})
		}
		http.Redirect(w, req, "/dashboard", http.StatusSeeOther)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleInbox(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	sess, _ := sessionFromContext(req.Context())
	messages, err := r.mail.Inbox(req.Context(), sess.AccountID, 0)
	if err != nil {
		r.serverError(w, "load inbox", err)
		return
	}
	page := view.Inbox{Base: view.Base{Title: "Inbox", Username: sess.Username, Flashes: r.popFlashes(w, req)}}
	for _, m := range messages {
		page.Messages = append(page.Messages, view.NewMessageItem(m))
	}
	r.renderPage(w, "inbox", page)
}

func (r *Router) handleViewMessage(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	messageID := strings.TrimPrefix(req.URL.Path, "/email/")
	if messageID == "" || strings.Contains(messageID, "/") {
		r.notFound(w)
		return
	}
	sess, _ := sessionFromContext(req.Context())
	msg, err := r.mail.View(req.Context(), sess.AccountID, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.setFlashes(w, view.Flash{Kind: flashError, Message: "Email not found"})
			http.Redirect(w, req, "/inbox", http.StatusSeeOther)
			return
		}
		r.serverError(w, "view message", err)
		return
	}
	page := view.NewMessage(*msg)
	page.Base = view.Base{Title: msg.Subject, Username: sess.Username, Flashes: r.popFlashes(w, req)}
	r.renderPage(w, "message", page)
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if cookie, err := req.Cookie(r.cookieName); err == nil {
		r.sessions.Logout(req.Context(), cookie.Value)
	}
	r.clearSessionCookie(w)
	r.setFlashes(w, view.Flash{Kind: flashSuccess, Message: "Logged out successfully"})
	http.Redirect(w, req, "/", http.StatusSeeOther)
}

// handleUnreadCount reports zero for anonymous callers instead of failing,
// so the desktop shell can poll it without credentials.
func (r *Router) handleUnreadCount(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	sess, ok := r.resolveSession(req)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]int{"count": 0})
		return
	}
	count, err := r.mail.UnreadCount(req.Context(), sess.AccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not count unread emails")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (r *Router) handleUnreadWS(w http.ResponseWriter, req *http.Request) {
	sess, ok := r.resolveSession(req)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.mail.Hub().Register(sess.AccountID, client)

	// The initial count goes through the hub like every later push, so the
	// connection only ever has the run loop as its writer.
	r.mail.NotifyUnread(req.Context(), sess.AccountID)

	go func() {
		defer func() {
			r.mail.Hub().Unregister(sess.AccountID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"version":    Version,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) renderPage(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := r.renderer.Render(w, name, data); err != nil {
		r.logger.Error("template render failed", "page", name, "error", err)
	}
}

func (r *Router) serverError(w http.ResponseWriter, action string, err error) {
	r.logger.Error(action+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (r *Router) setSessionCookie(w http.ResponseWriter, signed string) {
	http.SetCookie(w, &http.Cookie{
		Name:     r.cookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(r.sessions.TTL() / time.Second),
		HttpOnly: true,
		Secure:   r.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (r *Router) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     r.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if sess, ok := sessionFromContext(ctx); ok {
			actor = "account"
			fields = append(fields, "account_id", sess.AccountID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	headers.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", fmt.Sprintf("%d", decision.windowEnd.Unix()))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
