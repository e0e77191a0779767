package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxzi/outreach/internal/credential"
	"github.com/foxzi/outreach/internal/identity"
	"github.com/foxzi/outreach/internal/mailcheck"
	"github.com/foxzi/outreach/internal/segment"
	"github.com/foxzi/outreach/internal/web/auth"
	"github.com/foxzi/outreach/internal/web/config"
	"github.com/foxzi/outreach/internal/web/docstore"
	"github.com/foxzi/outreach/internal/web/middleware"
	"github.com/foxzi/outreach/internal/web/models"
	"github.com/foxzi/outreach/internal/web/repository"
	"github.com/foxzi/outreach/internal/web/views"
)

// Deps are the collaborators the handlers call into
type Deps struct {
	Views       *views.Engine
	Sealer      *auth.Sealer
	OIDC        *auth.OIDCProvider // nil unless OIDC sign-in is enabled
	Local       *auth.LocalProvider
	Gate        *identity.Gate
	Segments    *segment.Service
	Credentials *credential.Service
	History     *repository.HistoryRepository
	Audit       *repository.AuditRepository
	MailCheck   *mailcheck.Checker
}

type Handlers struct {
	cfg         *config.Config
	logger      *slog.Logger
	views       *views.Engine
	sealer      *auth.Sealer
	oidc        *auth.OIDCProvider
	local       *auth.LocalProvider
	gate        *identity.Gate
	segments    *segment.Service
	credentials *credential.Service
	history     *repository.HistoryRepository
	audit       *repository.AuditRepository
	mailcheck   *mailcheck.Checker
	loc         *time.Location
	now         func() time.Time
}

func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Handlers {
	loc, err := cfg.History.Location()
	if err != nil {
		logger.Warn("unknown history timezone, using UTC", "timezone", cfg.History.Timezone, "error", err)
		loc = time.UTC
	}
	return &Handlers{
		cfg:         cfg,
		logger:      logger,
		views:       deps.Views,
		sealer:      deps.Sealer,
		oidc:        deps.OIDC,
		local:       deps.Local,
		gate:        deps.Gate,
		segments:    deps.Segments,
		credentials: deps.Credentials,
		history:     deps.History,
		audit:       deps.Audit,
		mailcheck:   deps.MailCheck,
		loc:         loc,
		now:         time.Now,
	}
}

// Health check
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// page starts the template data shared by every console page
func (h *Handlers) page(r *http.Request, title, active string) map[string]any {
	return map[string]any{
		"Title":  title,
		"Active": active,
		"User":   identity.FromContext(r.Context()),
	}
}

// source is the principal source the auth middleware bound to the request
func (h *Handlers) source(r *http.Request) identity.Source {
	return middleware.SourceFrom(r.Context())
}

// render executes a page into a buffer so a template failure still
// produces a clean error response. Results for cancelled requests are
// discarded.
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	h.renderStatus(w, r, http.StatusOK, name, data)
}

func (h *Handlers) renderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if r.Context().Err() != nil {
		return
	}

	var buf bytes.Buffer
	if err := h.views.Render(&buf, name, data); err != nil {
		h.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// error renders the error page
func (h *Handlers) error(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request error", "path", r.URL.Path, "status", status, "message", message)
	}
	data := h.page(r, http.StatusText(status), "")
	data["Message"] = message
	h.renderStatus(w, r, status, "error", data)
}

// fail maps a service error onto a response. Lost sessions show a
// message and send the browser back to sign-in; JSON callers get 401.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)

	if middleware.WantsJSON(r) {
		h.apiError(w, status, message)
		return
	}

	if status == http.StatusUnauthorized {
		data := h.page(r, "ログインが必要です", "")
		data["Message"] = message
		data["NeedsSignIn"] = true
		h.renderStatus(w, r, status, "error", data)
		return
	}
	h.error(w, r, status, message)
}

func classify(err error) (int, string) {
	switch {
	case segment.IsAuthError(err):
		return http.StatusUnauthorized, segment.ErrorMessage(err)
	case errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound, "見つかりません"
	case errors.Is(err, segment.ErrSaveInFlight):
		return http.StatusConflict, segment.ErrorMessage(err)
	case credential.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	}
	var verr *segment.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Message
	}
	return http.StatusInternalServerError, err.Error()
}

// apiJSON writes a JSON response
func (h *Handlers) apiJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) apiError(w http.ResponseWriter, status int, message string) {
	h.apiJSON(w, status, map[string]any{"ok": false, "error": message})
}

// record writes an audit entry for a console write. Audit failures are
// logged and never fail the request.
func (h *Handlers) record(r *http.Request, action, entityType, entityID string, details any) {
	entry := &models.AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		IPAddress:  middleware.ClientIP(r),
		CreatedAt:  h.now(),
	}
	if p := identity.FromContext(r.Context()); p != nil {
		entry.UserID = p.UID
		entry.UserEmail = p.Email
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			entry.Details = string(data)
		}
	}

	// the audit row outlives a client that hung up after the write
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	if err := h.audit.Add(ctx, entry); err != nil {
		h.logger.Error("failed to write audit log", "action", action, "entity", entityType, "error", err)
	}
}

var flashMessages = map[string]string{
	"saved":   "保存しました",
	"deleted": "削除しました",
	"moved":   "並び替えました",
	"checked": "接続を確認しました",
}

// flash copies the one-shot message named by ?flash= into page data
func flash(r *http.Request, data map[string]any) {
	if msg, ok := flashMessages[r.URL.Query().Get("flash")]; ok {
		data["Flash"] = msg
	}
}
