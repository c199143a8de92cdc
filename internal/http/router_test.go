package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/splax/localpost/internal/domain"
	"github.com/splax/localpost/internal/notify"
	"github.com/splax/localpost/internal/repository"
	"github.com/splax/localpost/internal/service/account"
	"github.com/splax/localpost/internal/service/mail"
	"github.com/splax/localpost/internal/service/session"
	"github.com/splax/localpost/internal/view"
	"github.com/splax/localpost/internal/ws"
)

type memoryRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	outbound []domain.OutboundMessage
	inbound  map[string]*domain.InboundMessage
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts: make(map[string]*domain.Account),
		inbound:  make(map[string]*domain.InboundMessage),
	}
}

func (m *memoryRepo) CreateAccount(_ context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Username == account.Username {
			return &repository.ConflictError{Constraint: "accounts_username_key"}
		}
		if existing.Email == account.Email {
			return &repository.ConflictError{Constraint: "accounts_email_key"}
		}
	}
	clone := *account
	m.accounts[account.ID] = &clone
	return nil
}

func (m *memoryRepo) GetAccountByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

func (m *memoryRepo) GetAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.Email == email {
			clone := *account
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepo) MarkVerified(_ context.Context, verificationToken string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if verificationToken == "" {
		return nil, repository.ErrNotFound
	}
	for _, account := range m.accounts {
		if account.VerificationToken == verificationToken {
			account.Verified = true
			account.VerificationToken = ""
			clone := *account
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepo) CreateOutbound(_ context.Context, msg *domain.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbound = append(m.outbound, *msg)
	return nil
}

func (m *memoryRepo) CreateInbound(_ context.Context, msg *domain.InboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *msg
	m.inbound[msg.ID] = &clone
	return nil
}

func (m *memoryRepo) ListInbound(_ context.Context, accountID string, limit int) ([]domain.InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InboundMessage
	for _, msg := range m.inbound {
		if msg.AccountID == accountID {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) MarkRead(_ context.Context, accountID, messageID string) (*domain.InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.inbound[messageID]
	if !ok || msg.AccountID != accountID {
		return nil, repository.ErrNotFound
	}
	msg.Read = true
	clone := *msg
	return &clone, nil
}

func (m *memoryRepo) CountUnread(_ context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, msg := range m.inbound {
		if msg.AccountID == accountID && !msg.Read {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) tokenFor(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.Email == email {
			return account.VerificationToken
		}
	}
	t.Fatalf("no account for %s", email)
	return ""
}

type testEnv struct {
	router *Router
	repo   *memoryRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemoryRepo()
	notifier := notify.NewLogNotifier(logger)
	accounts := account.New(repo, notifier, logger, "http://localhost:5000", "noreply@localpost.local")

	hub := ws.NewHub()
	t.Cleanup(hub.Close)
	mailSvc := mail.New(repo, repo, notifier, hub, logger)

	store := session.NewMemoryStore()
	sessions := session.NewManager(accounts, store, logger, "test-secret", time.Hour)
	t.Cleanup(sessions.Close)

	renderer, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	router := NewRouter(logger, accounts, mailSvc, sessions, renderer, nil, "localpost_session", false,
		func(context.Context) error { return nil })
	t.Cleanup(router.Close)
	return &testEnv{router: router, repo: repo}
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "localpost_session" && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

// register, verify and log in a user, returning the session cookie.
func loginUser(t *testing.T, env *testEnv, username, email, password string) *http.Cookie {
	t.Helper()
	rec := env.postForm(t, "/register", url.Values{
		"username":         {username},
		"email":            {email},
		"password":         {password},
		"confirm_password": {password},
	}, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("register %s: status %d", username, rec.Code)
	}

	rec = env.get(t, "/verify/"+env.repo.tokenFor(t, email), nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("verify %s: status %d", username, rec.Code)
	}

	rec = env.postForm(t, "/login", url.Values{"email": {email}, "password": {password}}, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login %s: status %d", username, rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("login redirect = %q", loc)
	}
	return sessionCookie(t, rec)
}

func unreadCount(t *testing.T, env *testEnv, cookie *http.Cookie) int {
	t.Helper()
	rec := env.get(t, "/api/emails/unread", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("unread: status %d", rec.Code)
	}
	var payload struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode unread: %v", err)
	}
	return payload.Count
}

func TestRegisterVerifyLoginComposeFlow(t *testing.T) {
	env := newTestEnv(t)

	aliceCookie := loginUser(t, env, "alice", "alice@x.com", "pw123")
	bobCookie := loginUser(t, env, "bob", "bob@x.com", "pw456")

	// Alice sends to Bob; the recipient is local so a copy lands in his inbox.
	rec := env.postForm(t, "/compose", url.Values{
		"recipient": {"bob@x.com"},
		"subject":   {"hi"},
		"body":      {"hello bob"},
	}, aliceCookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("compose: status %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("compose redirect = %q", loc)
	}

	if got := unreadCount(t, env, bobCookie); got != 1 {
		t.Fatalf("bob unread = %d, want 1", got)
	}

	// Bob's inbox lists the message.
	rec = env.get(t, "/inbox", bobCookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("inbox: status %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "hi") || !strings.Contains(body, "alice@x.com") {
		t.Error("inbox should list the delivered message")
	}

	var messageID string
	for id := range env.repo.inbound {
		messageID = id
	}
	rec = env.get(t, "/email/"+messageID, bobCookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("view message: status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hello bob") {
		t.Error("message page should contain the body")
	}

	if got := unreadCount(t, env, bobCookie); got != 0 {
		t.Fatalf("bob unread after view = %d, want 0", got)
	}
}

func TestProtectedRoutesRedirectToLogin(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/dashboard", "/compose", "/inbox", "/email/abc"} {
		rec := env.get(t, path, nil)
		if rec.Code != http.StatusSeeOther {
			t.Errorf("%s: status %d, want %d", path, rec.Code, http.StatusSeeOther)
		}
		if loc := rec.Header().Get("Location"); loc != "/login" {
			t.Errorf("%s: redirect = %q, want /login", path, loc)
		}
	}
}

func TestHomeRedirectsWhenLoggedIn(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous home: status %d", rec.Code)
	}

	cookie := loginUser(t, env, "alice", "alice@x.com", "pw123")
	rec = env.get(t, "/", cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("logged-in home: status %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("home redirect = %q", loc)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/no-such-page", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rec.Code)
	}
}

func TestRegisterDuplicateFlashesError(t *testing.T) {
	env := newTestEnv(t)
	loginUser(t, env, "alice", "alice@x.com", "pw123")

	rec := env.postForm(t, "/register", url.Values{
		"username":         {"alice"},
		"email":            {"other@x.com"},
		"password":         {"pw"},
		"confirm_password": {"pw"},
	}, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("duplicate register: status %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/register" {
		t.Fatalf("redirect = %q, want /register", loc)
	}
}

func TestLoginBeforeVerification(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm(t, "/register", url.Values{
		"username":         {"carol"},
		"email":            {"carol@x.com"},
		"password":         {"pw"},
		"confirm_password": {"pw"},
	}, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("register: status %d", rec.Code)
	}

	rec = env.postForm(t, "/login", url.Values{"email": {"carol@x.com"}, "password": {"pw"}}, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("unverified login: status %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("unverified login redirect = %q, want /login", loc)
	}
}

func TestVerifyTokenSingleUse(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm(t, "/register", url.Values{
		"username":         {"dave"},
		"email":            {"dave@x.com"},
		"password":         {"pw"},
		"confirm_password": {"pw"},
	}, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("register: status %d", rec.Code)
	}
	token := env.repo.tokenFor(t, "dave@x.com")

	if rec := env.get(t, "/verify/"+token, nil); rec.Code != http.StatusSeeOther {
		t.Fatalf("first verify: status %d", rec.Code)
	}
	// A spent token redirects with an error flash rather than verifying.
	rec = env.get(t, "/verify/"+token, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("second verify: status %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("second verify redirect = %q", loc)
	}
}

func TestAnonymousUnreadCountIsZero(t *testing.T) {
	env := newTestEnv(t)

	if got := unreadCount(t, env, nil); got != 0 {
		t.Errorf("anonymous unread = %d, want 0", got)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := loginUser(t, env, "alice", "alice@x.com", "pw123")

	rec := env.get(t, "/logout", cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("logout: status %d", rec.Code)
	}

	rec = env.get(t, "/dashboard", cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("dashboard after logout: status %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("redirect = %q, want /login", loc)
	}
}

func TestViewForeignMessageRedirectsToInbox(t *testing.T) {
	env := newTestEnv(t)
	aliceCookie := loginUser(t, env, "alice", "alice@x.com", "pw123")
	bobCookie := loginUser(t, env, "bob", "bob@x.com", "pw456")

	rec := env.postForm(t, "/compose", url.Values{
		"recipient": {"bob@x.com"},
		"subject":   {"private"},
		"body":      {"for bob only"},
	}, aliceCookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("compose: status %d", rec.Code)
	}

	var messageID string
	for id := range env.repo.inbound {
		messageID = id
	}

	// Alice cannot read Bob's copy.
	rec = env.get(t, "/email/"+messageID, aliceCookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("foreign view: status %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/inbox" {
		t.Fatalf("foreign view redirect = %q, want /inbox", loc)
	}

	// Still unread for Bob.
	if got := unreadCount(t, env, bobCookie); got != 1 {
		t.Errorf("bob unread = %d, want 1", got)
	}
}

func TestUnreadWSRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/ws/unread", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous ws: status %d, want 401", rec.Code)
	}
}

func TestUnreadWSPushesCounts(t *testing.T) {
	env := newTestEnv(t)
	aliceCookie := loginUser(t, env, "alice", "alice@x.com", "pw123")
	bobCookie := loginUser(t, env, "bob", "bob@x.com", "pw456")

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/unread"
	header := http.Header{}
	header.Set("Cookie", bobCookie.String())
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	readCount := func() int {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var payload struct {
			Count int `json:"count"`
		}
		if err := conn.ReadJSON(&payload); err != nil {
			t.Fatalf("read ws payload: %v", err)
		}
		return payload.Count
	}

	// The connection pushes the current count right after the handshake.
	if got := readCount(); got != 0 {
		t.Fatalf("initial count = %d, want 0", got)
	}

	// A compose landing in Bob's inbox while the socket is open pushes the
	// new count on the same connection. Everything is written by the hub
	// run loop, so this passes the race detector.
	rec := env.postForm(t, "/compose", url.Values{
		"recipient": {"bob@x.com"},
		"subject":   {"ping"},
		"body":      {"are you there"},
	}, aliceCookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("compose: status %d", rec.Code)
	}
	if got := readCount(); got != 1 {
		t.Fatalf("count after delivery = %d, want 1", got)
	}

	// Reading the message drops the count back to zero.
	var messageID string
	for id := range env.repo.inbound {
		messageID = id
	}
	if rec := env.get(t, "/email/"+messageID, bobCookie); rec.Code != http.StatusOK {
		t.Fatalf("view message: status %d", rec.Code)
	}
	if got := readCount(); got != 0 {
		t.Fatalf("count after view = %d, want 0", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}
	var payload struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if payload.Status != "ok" {
		t.Errorf("status = %q", payload.Status)
	}
	if payload.Version != Version {
		t.Errorf("version = %q", payload.Version)
	}
}

func TestHealthReportsDatabaseDown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemoryRepo()
	notifier := notify.NewLogNotifier(logger)
	accounts := account.New(repo, notifier, logger, "http://localhost:5000", "noreply@localpost.local")
	mailSvc := mail.New(repo, repo, notifier, nil, logger)
	store := session.NewMemoryStore()
	sessions := session.NewManager(accounts, store, logger, "test-secret", time.Hour)
	renderer, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	router := NewRouter(logger, accounts, mailSvc, sessions, renderer, nil, "localpost_session", false,
		func(context.Context) error { return context.DeadlineExceeded })
	t.Cleanup(router.Close)
	t.Cleanup(sessions.Close)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("health with db down: status %d", rec.Code)
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if payload.Status != "degraded" {
		t.Errorf("status = %q, want degraded", payload.Status)
	}
}

func TestRateLimitOnRegister(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{
		"username":         {"x"},
		"email":            {"x@x.com"},
		"password":         {"pw"},
		"confirm_password": {"other"},
	}
	var last *httptest.ResponseRecorder
	for i := 0; i < rateLimitRegister+1; i++ {
		last = env.postForm(t, "/register", form, nil)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", last.Code)
	}
	if last.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("rate limit headers missing")
	}
}
