package oauth

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/oauthcore/pkg/clientip"
	"github.com/dmitrymomot/oauthcore/pkg/logger"
	"github.com/dmitrymomot/oauthcore/pkg/session"
	svc "github.com/dmitrymomot/oauthcore/svc/oauth"
)

func (m *Module) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := m.sessions.Ensure(ctx, w, r)
	if err != nil {
		m.fail(w, r, err)
		return
	}

	res, err := m.core.Initiate(ctx, svc.InitiateRequest{
		Provider:       chi.URLParam(r, "provider"),
		RedirectTarget: r.URL.Query().Get("redirect_to"),
		ClientIP:       clientIP(r),
		SessionKey:     s.ID.String(),
	})
	if err != nil {
		m.fail(w, r, err)
		return
	}
	http.Redirect(w, r, res.URL, http.StatusFound)
}

func (m *Module) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var key string
	if s, ok := session.FromContext(ctx); ok {
		key = s.ID.String()
	}

	q := r.URL.Query()
	res, err := m.core.HandleCallback(withExchange(ctx, w, r), svc.CallbackRequest{
		Provider:         chi.URLParam(r, "provider"),
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		SessionKey:       key,
		ClientIP:         clientIP(r),
	})
	if err != nil {
		m.fail(w, r, err)
		return
	}
	http.Redirect(w, r, res.RedirectTarget, http.StatusFound)
}

func (m *Module) link(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, _ := session.FromContext(ctx)

	res, err := m.core.Initiate(ctx, svc.InitiateRequest{
		Provider:       chi.URLParam(r, "provider"),
		RedirectTarget: r.URL.Query().Get("redirect_to"),
		LinkUserID:     s.UserID,
		ClientIP:       clientIP(r),
		SessionKey:     s.ID.String(),
	})
	if err != nil {
		m.fail(w, r, err)
		return
	}
	http.Redirect(w, r, res.URL, http.StatusFound)
}

func (m *Module) unlink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := session.UserIDFromContext(ctx)

	if err := m.core.Unlink(ctx, userID, chi.URLParam(r, "provider")); err != nil {
		m.fail(w, r, err)
		return
	}
	http.Redirect(w, r, m.core.SafeRedirect(r.FormValue("redirect_to")), http.StatusSeeOther)
}

type accountView struct {
	Provider       string    `json:"provider"`
	Email          string    `json:"email,omitempty"`
	EmailVerified  bool      `json:"email_verified"`
	ReauthRequired bool      `json:"reauth_required"`
	LinkedAt       time.Time `json:"linked_at"`
	LastUsedAt     time.Time `json:"last_used_at"`
}

func (m *Module) accounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := session.UserIDFromContext(ctx)

	accounts, err := m.core.Accounts(ctx, userID)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to list accounts", logger.UserID(userID), logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": svc.ReasonInternal})
		return
	}

	out := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountView{
			Provider:       a.Provider,
			Email:          a.Email,
			EmailVerified:  a.EmailVerified,
			ReauthRequired: a.ReauthRequired,
			LinkedAt:       a.CreatedAt,
			LastUsedAt:     a.LastUsedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (m *Module) providers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": m.core.Providers()})
}

// fail sends the browser to the error page with a coarse reason code.
func (m *Module) fail(w http.ResponseWriter, r *http.Request, err error) {
	reason := svc.ReasonOf(err)
	level := slog.LevelWarn
	if reason == svc.ReasonInternal {
		level = slog.LevelError
	}
	m.logger.Log(r.Context(), level, "oauth request failed",
		slog.String("path", r.URL.Path),
		logger.Reason(reason),
		logger.Error(err),
	)

	if wait := svc.RetryAfter(err); wait > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}

	status := http.StatusFound
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, withReason(m.errorURL, reason), status)
}

func withReason(base, reason string) string {
	u, err := url.Parse(base)
	if err != nil {
		return "/?reason=" + url.QueryEscape(reason)
	}
	q := u.Query()
	q.Set("reason", reason)
	u.RawQuery = q.Encode()
	return u.String()
}

func clientIP(r *http.Request) string {
	if ip := clientip.GetIPFromContext(r.Context()); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
