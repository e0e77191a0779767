package handlers

import (
	"errors"
	"net/http"

	"github.com/foxzi/outreach/internal/identity"
	"github.com/foxzi/outreach/internal/web/auth"
	"github.com/foxzi/outreach/internal/web/middleware"
	"github.com/foxzi/outreach/internal/web/repository"
)

const stateCookie = "oidc_state"

// LoginPage renders the login page
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, http.StatusOK, "", "")
}

func (h *Handlers) renderLogin(w http.ResponseWriter, r *http.Request, status int, email, message string) {
	data := map[string]any{
		"Title":        "ログイン",
		"LocalEnabled": h.local != nil,
		"OIDCEnabled":  h.oidc != nil,
		"OIDCProvider": h.cfg.Auth.OIDC.Provider,
		"Email":        email,
		"Error":        message,
	}
	h.renderStatus(w, r, status, "login", data)
}

// Login handles the local sign-in form
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if h.local == nil {
		h.renderLogin(w, r, http.StatusNotFound, "", "ローカル認証は無効です")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, r, http.StatusBadRequest, "", "入力内容を読み取れません")
		return
	}

	email := r.FormValue("email")
	login, err := h.local.Login(email, r.FormValue("password"))
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Error("local login failed", "email", email, "error", err)
		}
		h.logger.Info("login rejected", "email", email, "ip", middleware.ClientIP(r))
		h.renderLogin(w, r, http.StatusUnauthorized, email, "メールアドレスまたはパスワードが違います")
		return
	}

	h.startSession(w, r, login)
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, login *auth.Login) {
	if err := h.sealer.Start(w, login); err != nil {
		h.logger.Error("failed to start session", "uid", login.UID, "error", err)
		h.renderLogin(w, r, http.StatusInternalServerError, login.Email, "ログインに失敗しました")
		return
	}
	h.logger.Info("user logged in", "uid", login.UID, "email", login.Email)

	signedIn := identity.WithPrincipal(r.Context(), &identity.Principal{UID: login.UID, Email: login.Email})
	h.record(r.WithContext(signedIn), repository.ActionLogin, "session", login.UID, nil)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout clears the session cookie. It works for expired sessions too;
// the audit entry is written only when the caller still resolves.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.sealer.Token(r); token != "" {
		if p, err := h.gate.Resolve(r.Context(), token); err == nil {
			h.record(r.WithContext(identity.WithPrincipal(r.Context(), p)), repository.ActionLogout, "session", p.UID, nil)
		}
	}
	h.sealer.Clear(w)
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

// OIDCLogin initiates the OIDC login flow
func (h *Handlers) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		h.renderLogin(w, r, http.StatusNotFound, "", "OIDC認証は無効です")
		return
	}

	url, state, err := h.oidc.AuthCodeURL()
	if err != nil {
		h.logger.Error("failed to generate auth URL", "error", err)
		h.renderLogin(w, r, http.StatusInternalServerError, "", "ログインを開始できません")
		return
	}

	// binds the state to this browser in addition to the provider's record
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   h.cfg.Server.TLS.Enabled,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// OIDCCallback completes the OIDC login flow
func (h *Handlers) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		h.renderLogin(w, r, http.StatusNotFound, "", "OIDC認証は無効です")
		return
	}

	cookie, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || cookie.Value == "" || cookie.Value != state {
		h.renderLogin(w, r, http.StatusBadRequest, "", "ログイン状態が無効です。もう一度お試しください")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Warn("oidc provider returned error", "error", errParam, "description", r.URL.Query().Get("error_description"))
		h.renderLogin(w, r, http.StatusUnauthorized, "", "ログインが拒否されました")
		return
	}

	login, err := h.oidc.Exchange(r.Context(), state, r.URL.Query().Get("code"))
	switch {
	case errors.Is(err, auth.ErrGroupDenied):
		h.logger.Warn("oidc login denied by group", "ip", middleware.ClientIP(r))
		h.renderLogin(w, r, http.StatusForbidden, "", "このアカウントには利用権限がありません")
		return
	case errors.Is(err, auth.ErrInvalidState):
		h.renderLogin(w, r, http.StatusBadRequest, "", "ログイン状態が無効です。もう一度お試しください")
		return
	case err != nil:
		h.logger.Error("oidc exchange failed", "error", err)
		h.renderLogin(w, r, http.StatusUnauthorized, "", "ログインに失敗しました")
		return
	}

	h.startSession(w, r, login)
}
