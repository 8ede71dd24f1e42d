package oauth_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauthcore/pkg/audit"
	"github.com/dmitrymomot/oauthcore/pkg/pkce"
	"github.com/dmitrymomot/oauthcore/pkg/ratelimit"
	"github.com/dmitrymomot/oauthcore/pkg/secrets"
	"github.com/dmitrymomot/oauthcore/pkg/ttlstore"
	"github.com/dmitrymomot/oauthcore/svc/oauth"
	"github.com/dmitrymomot/oauthcore/svc/oauth/memstore"
)

// fakeIdP is a minimal authorization server with PKCE, refresh token
// rotation and a userinfo endpoint.
type fakeIdP struct {
	srv *httptest.Server

	mu        sync.Mutex
	codes     map[string]string // code -> challenge
	refresh   map[string]bool   // live refresh tokens
	profile   any
	emails    any
	rotate    bool
	noRefresh bool
	expiresIn int
	seq       int

	tokenStatus   []int // statuses to return before succeeding
	userStatus    []int
	tokenCalls    atomic.Int32
	refreshCalls  atomic.Int32
	userCalls     atomic.Int32
	invalidGrants atomic.Int32
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	idp := &fakeIdP{
		codes:     make(map[string]string),
		refresh:   make(map[string]bool),
		rotate:    true,
		expiresIn: 3600,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", idp.handleToken)
	mux.HandleFunc("/userinfo", idp.handleUser)
	mux.HandleFunc("/user", idp.handleUser)
	mux.HandleFunc("/user/emails", idp.handleEmails)
	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)
	return idp
}

func (f *fakeIdP) config(id string, kind oauth.ProviderKind) oauth.ProviderConfig {
	userURL := f.srv.URL + "/userinfo"
	if kind == oauth.KindGitHub {
		userURL = f.srv.URL + "/user"
	}
	return oauth.ProviderConfig{
		ID:           id,
		Kind:         kind,
		ClientID:     "client-" + id,
		ClientSecret: "secret-" + id,
		AuthURL:      f.srv.URL + "/authorize",
		TokenURL:     f.srv.URL + "/token",
		UserInfoURL:  userURL,
	}
}

func (f *fakeIdP) setProfile(profile any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = profile
}

func (f *fakeIdP) setEmails(emails any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = emails
}

// approve plays the user consenting at the provider and returns the code
// the provider would redirect back with.
func (f *fakeIdP) approve(t *testing.T, authURL string) (code, state string) {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "code", q.Get("response_type"))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	code = fmt.Sprintf("code-%d", f.seq)
	f.codes[code] = q.Get("code_challenge")
	return code, q.Get("state")
}

// update mutates the provider's behaviour under its lock.
func (f *fakeIdP) update(fn func(f *fakeIdP)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// revokeAll invalidates every refresh token.
func (f *fakeIdP) revokeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh = make(map[string]bool)
}

func (f *fakeIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	f.tokenCalls.Add(1)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.tokenStatus) > 0 {
		status := f.tokenStatus[0]
		f.tokenStatus = f.tokenStatus[1:]
		writeJSON(w, status, map[string]string{"error": "server_error"})
		return
	}

	switch r.Form.Get("grant_type") {
	case "authorization_code":
		challenge, ok := f.codes[r.Form.Get("code")]
		delete(f.codes, r.Form.Get("code"))
		if !ok || !pkce.VerifyPair(r.Form.Get("code_verifier"), challenge) {
			f.invalidGrants.Add(1)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	case "refresh_token":
		f.refreshCalls.Add(1)
		rt := r.Form.Get("refresh_token")
		if !f.refresh[rt] {
			f.invalidGrants.Add(1)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		if !f.rotate {
			f.seq++
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": fmt.Sprintf("at-%d", f.seq),
				"token_type":   "Bearer",
				"expires_in":   f.expiresIn,
			})
			return
		}
		delete(f.refresh, rt)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	f.seq++
	resp := map[string]any{
		"access_token": fmt.Sprintf("at-%d", f.seq),
		"token_type":   "Bearer",
		"expires_in":   f.expiresIn,
		"scope":        "openid email profile",
	}
	if !f.noRefresh {
		rt := fmt.Sprintf("rt-%d", f.seq)
		f.refresh[rt] = true
		resp["refresh_token"] = rt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeIdP) handleUser(w http.ResponseWriter, r *http.Request) {
	f.userCalls.Add(1)
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer at-") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.userStatus) > 0 {
		status := f.userStatus[0]
		f.userStatus = f.userStatus[1:]
		writeJSON(w, status, map[string]string{"error": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, f.profile)
}

func (f *fakeIdP) handleEmails(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emails == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, f.emails)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires a Service over in-memory stores and a fake provider.
type harness struct {
	idp      *fakeIdP
	svc      *oauth.Service
	store    *memstore.Store
	users    *memstore.Users
	requests *ttlstore.Memory
	vault    *oauth.Vault
	cipher   *secrets.Cipher
	registry *oauth.Registry
	audit    *audit.MemoryStorage
	clock    *fakeClock

	mu       sync.Mutex
	sessions []uuid.UUID
}

type harnessConfig struct {
	providers   []oauth.ProviderConfig
	limits      []oauth.LimitsOption
	service     []oauth.ServiceOption
	noLimits    bool
	stepUp      bool
	sessionFail error
}

func newHarness(t *testing.T, opts ...func(*harnessConfig)) *harness {
	t.Helper()
	idp := newFakeIdP(t)
	cfg := harnessConfig{
		providers: []oauth.ProviderConfig{
			idp.config("google", oauth.KindGoogle),
			idp.config("github", oauth.KindGitHub),
		},
		stepUp: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &harness{
		idp:      idp,
		store:    memstore.New(),
		users:    memstore.NewUsers(),
		requests: ttlstore.NewMemory(),
		audit:    audit.NewMemoryStorage(),
		clock:    newFakeClock(),
	}
	t.Cleanup(func() { _ = h.requests.Close() })

	var err error
	h.registry, err = oauth.BuildRegistry(cfg.providers, oauth.WithRetryBackoff(time.Millisecond))
	require.NoError(t, err)

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	h.cipher, err = secrets.NewCipher(key)
	require.NoError(t, err)

	auditLog, err := audit.NewLogger(h.audit)
	require.NoError(t, err)

	h.vault, err = oauth.NewVault(h.cipher, h.store, h.registry, oauth.WithVaultAudit(auditLog))
	require.NoError(t, err)

	resolver, err := oauth.NewResolver(h.store, h.users, oauth.WithStepUp(cfg.stepUp))
	require.NoError(t, err)

	sessions := oauth.SessionEstablisherFunc(func(_ context.Context, userID uuid.UUID) error {
		if cfg.sessionFail != nil {
			return cfg.sessionFail
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		h.sessions = append(h.sessions, userID)
		return nil
	})

	svcOpts := []oauth.ServiceOption{
		oauth.WithAudit(auditLog),
		oauth.WithCallbackURL(func(p string) string { return "https://app.test/auth/oauth/" + p + "/callback" }),
		oauth.WithRedirectPolicy(oauth.NewRedirectPolicy("/dashboard", "docs.app.test")),
	}
	if !cfg.noLimits {
		limitStore := ratelimit.NewMemoryStore()
		t.Cleanup(func() { _ = limitStore.Close() })
		limits, err := oauth.NewLimits(limitStore, append([]oauth.LimitsOption{
			oauth.WithLimitsClock(ratelimit.ClockFunc(h.clock.Now)),
			oauth.WithLimitsAudit(auditLog),
		}, cfg.limits...)...)
		require.NoError(t, err)
		svcOpts = append(svcOpts, oauth.WithLimits(limits))
	}
	svcOpts = append(svcOpts, cfg.service...)

	h.svc, err = oauth.NewService(h.registry, h.requests, h.store, h.vault, resolver, h.users, sessions, svcOpts...)
	require.NoError(t, err)
	return h
}

const (
	testIP      = "203.0.113.7"
	testSession = "browser-session-1"
)

// start runs Initiate and the provider consent step.
func (h *harness) start(t *testing.T, provider string, linkUser *uuid.UUID) (code, state string) {
	t.Helper()
	res, err := h.svc.Initiate(context.Background(), oauth.InitiateRequest{
		Provider:       provider,
		RedirectTarget: "/settings",
		LinkUserID:     linkUser,
		ClientIP:       testIP,
		SessionKey:     testSession,
	})
	require.NoError(t, err)
	code, state = h.idp.approve(t, res.URL)
	require.Equal(t, res.State, state)
	return code, state
}

func (h *harness) callback(code, state, provider string) (*oauth.CallbackResult, error) {
	return h.svc.HandleCallback(context.Background(), oauth.CallbackRequest{
		Provider:   provider,
		Code:       code,
		State:      state,
		SessionKey: testSession,
		ClientIP:   testIP,
	})
}

func (h *harness) login(t *testing.T, provider string) (*oauth.CallbackResult, error) {
	t.Helper()
	code, state := h.start(t, provider, nil)
	return h.callback(code, state, provider)
}

func (h *harness) sessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func googleProfile(sub, email string, verified bool) map[string]any {
	return map[string]any{
		"sub":            sub,
		"email":          email,
		"email_verified": verified,
		"name":           "Ada Lovelace",
	}
}
