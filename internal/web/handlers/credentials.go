package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/outreach/internal/credential"
	"github.com/foxzi/outreach/internal/mailcheck"
	"github.com/foxzi/outreach/internal/web/models"
	"github.com/foxzi/outreach/internal/web/repository"
)

const (
	entityRPAAccount   = "rpa_account"
	entityMailSettings = "mail_settings"
	entityAPISettings  = "api_settings"
)

// RPAAccountList lists job-board accounts, optionally for one platform
func (h *Handlers) RPAAccountList(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	if platform != models.PlatformJobbox && platform != models.PlatformEngage {
		platform = ""
	}

	accounts, err := h.credentials.RPAAccounts(r.Context(), h.source(r), platform)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data := h.page(r, "RPAアカウント", "rpa")
	data["Accounts"] = accounts
	data["Platform"] = platform
	flash(r, data)
	h.render(w, r, "rpa_accounts", data)
}

// RPAAccountNew shows an empty account form
func (h *Handlers) RPAAccountNew(w http.ResponseWriter, r *http.Request) {
	h.renderRPAForm(w, r, http.StatusOK, &models.RPAAccount{Platform: models.PlatformJobbox}, nil)
}

// RPAAccountEdit shows the form for an existing account
func (h *Handlers) RPAAccountEdit(w http.ResponseWriter, r *http.Request) {
	a, err := h.credentials.RPAAccount(r.Context(), h.source(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderRPAForm(w, r, http.StatusOK, a, nil)
}

func (h *Handlers) renderRPAForm(w http.ResponseWriter, r *http.Request, status int, a *models.RPAAccount, errs credential.Errors) {
	title := "RPAアカウント追加"
	action := "/settings/rpa"
	if a.ID != "" {
		title = "RPAアカウント編集"
		action = "/settings/rpa/" + a.ID
	}
	data := h.page(r, title, "rpa")
	data["Account"] = a
	data["Action"] = action
	data["Errors"] = errs
	h.renderStatus(w, r, status, "rpa_form", data)
}

// RPAAccountSave creates or overwrites an account
func (h *Handlers) RPAAccountSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.error(w, r, http.StatusBadRequest, "入力内容を読み取れません")
		return
	}

	a := &models.RPAAccount{
		ID:          chi.URLParam(r, "id"),
		Platform:    r.FormValue("platform"),
		AccountName: r.FormValue("account_name"),
		LoginID:     r.FormValue("jobbox_id"),
		Password:    r.FormValue("jobbox_password"),
	}
	isNew := a.ID == ""

	if err := h.credentials.SaveRPAAccount(r.Context(), h.source(r), a); err != nil {
		var errs credential.Errors
		if errors.As(err, &errs) {
			h.renderRPAForm(w, r, http.StatusBadRequest, a, errs)
			return
		}
		h.fail(w, r, err)
		return
	}

	action := repository.ActionUpdate
	if isNew {
		action = repository.ActionCreate
	}
	h.record(r, action, entityRPAAccount, a.ID, map[string]any{"platform": a.Platform, "account_name": a.AccountName})
	http.Redirect(w, r, "/settings/rpa?flash=saved", http.StatusSeeOther)
}

// RPAAccountDeleteConfirm asks before deleting an account
func (h *Handlers) RPAAccountDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	a, err := h.credentials.RPAAccount(r.Context(), h.source(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := h.page(r, "RPAアカウントの削除", "rpa")
	data["Account"] = a
	h.render(w, r, "rpa_delete", data)
}

// RPAAccountDelete removes an account once confirmed
func (h *Handlers) RPAAccountDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if r.FormValue("confirm") != "yes" {
		http.Redirect(w, r, "/settings/rpa/"+id+"/delete", http.StatusSeeOther)
		return
	}
	if err := h.credentials.DeleteRPAAccount(r.Context(), h.source(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(r, repository.ActionDelete, entityRPAAccount, id, nil)
	http.Redirect(w, r, "/settings/rpa?flash=deleted", http.StatusSeeOther)
}

// MailSettings shows the relay login form
func (h *Handlers) MailSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.credentials.MailSettings(r.Context(), h.source(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderMailSettings(w, r, http.StatusOK, s, s != nil, nil, "")
}

func (h *Handlers) renderMailSettings(w http.ResponseWriter, r *http.Request, status int, s *models.MailSettings, saved bool, errs credential.Errors, errMsg string) {
	if s == nil {
		s = &models.MailSettings{}
	}
	data := h.page(r, "メール設定", "mail")
	data["Settings"] = s
	data["Saved"] = saved
	data["Errors"] = errs
	if errMsg != "" {
		data["Error"] = errMsg
	}
	flash(r, data)
	h.renderStatus(w, r, status, "mail_settings", data)
}

// MailSettingsSave overwrites the relay login
func (h *Handlers) MailSettingsSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.error(w, r, http.StatusBadRequest, "入力内容を読み取れません")
		return
	}

	s := &models.MailSettings{
		Email:   r.FormValue("email"),
		AppPass: r.FormValue("appPass"),
	}
	if err := h.credentials.SaveMailSettings(r.Context(), h.source(r), s); err != nil {
		var errs credential.Errors
		if errors.As(err, &errs) {
			h.renderMailSettings(w, r, http.StatusBadRequest, s, false, errs, "")
			return
		}
		h.fail(w, r, err)
		return
	}

	h.record(r, repository.ActionUpdate, entityMailSettings, "settings", map[string]any{"email": s.Email})
	http.Redirect(w, r, "/settings/mail?flash=saved", http.StatusSeeOther)
}

// MailSettingsDelete removes the relay login
func (h *Handlers) MailSettingsDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.credentials.DeleteMailSettings(r.Context(), h.source(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(r, repository.ActionDelete, entityMailSettings, "settings", nil)
	http.Redirect(w, r, "/settings/mail?flash=deleted", http.StatusSeeOther)
}

// MailSettingsCheck signs in to the relay with the saved login
func (h *Handlers) MailSettingsCheck(w http.ResponseWriter, r *http.Request) {
	s, err := h.credentials.MailSettings(r.Context(), h.source(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if s == nil {
		h.renderMailSettings(w, r, http.StatusBadRequest, nil, false, nil, "メール設定が保存されていません")
		return
	}

	if err := h.mailcheck.Check(r.Context(), s.Email, s.AppPass); err != nil {
		msg := "接続に失敗しました: " + err.Error()
		switch {
		case errors.Is(err, mailcheck.ErrAuthFailed):
			msg = "認証に失敗しました。メールアドレスとアプリパスワードを確認してください"
		case errors.Is(err, mailcheck.ErrAuthNotOffered):
			msg = "メールサーバーがパスワード認証に対応していません"
		}
		h.renderMailSettings(w, r, http.StatusBadGateway, s, true, nil, msg)
		return
	}
	http.Redirect(w, r, "/settings/mail?flash=checked", http.StatusSeeOther)
}

// APISettings shows the outbound SMS API form
func (h *Handlers) APISettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.credentials.APISettings(r.Context(), h.source(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderAPISettings(w, r, http.StatusOK, s, s != nil, nil)
}

func (h *Handlers) renderAPISettings(w http.ResponseWriter, r *http.Request, status int, s *models.APISettings, saved bool, errs credential.Errors) {
	if s == nil {
		s = &models.APISettings{Provider: models.DefaultAPIProvider}
	}
	data := h.page(r, "API設定", "api")
	data["Settings"] = s
	data["Saved"] = saved
	data["Errors"] = errs
	flash(r, data)
	h.renderStatus(w, r, status, "api_settings", data)
}

// APISettingsSave overwrites the outbound SMS API login
func (h *Handlers) APISettingsSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.error(w, r, http.StatusBadRequest, "入力内容を読み取れません")
		return
	}

	s := &models.APISettings{
		Provider: r.FormValue("provider"),
		BaseURL:  strings.TrimSpace(r.FormValue("baseUrl")),
		APIID:    strings.TrimSpace(r.FormValue("apiId")),
		APIPass:  r.FormValue("apiPass"),
		Auth:     r.FormValue("auth"),
	}
	if err := h.credentials.SaveAPISettings(r.Context(), h.source(r), s); err != nil {
		var errs credential.Errors
		if errors.As(err, &errs) {
			h.renderAPISettings(w, r, http.StatusBadRequest, s, false, errs)
			return
		}
		h.fail(w, r, err)
		return
	}

	h.record(r, repository.ActionUpdate, entityAPISettings, "settings", map[string]any{"provider": s.Provider, "base_url": s.BaseURL})
	http.Redirect(w, r, "/settings/api?flash=saved", http.StatusSeeOther)
}

// APISettingsDelete removes the outbound SMS API login
func (h *Handlers) APISettingsDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.credentials.DeleteAPISettings(r.Context(), h.source(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(r, repository.ActionDelete, entityAPISettings, "settings", nil)
	http.Redirect(w, r, "/settings/api?flash=deleted", http.StatusSeeOther)
}
