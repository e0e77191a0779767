package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/foxzi/outreach/internal/identity"
	"github.com/foxzi/outreach/internal/web/models"
	"github.com/foxzi/outreach/internal/web/repository"
)

const auditPageSize = 50

var (
	auditActions = []string{
		repository.ActionCreate, repository.ActionUpdate, repository.ActionToggle,
		repository.ActionMove, repository.ActionDelete, repository.ActionLogin, repository.ActionLogout,
	}
	auditEntityTypes = []string{entitySegment, entityRPAAccount, entityMailSettings, entityAPISettings, "session"}
	auditDayChoices  = []int{1, 7, 30, 90}
)

// AuditLog lists the signed-in user's console writes, newest first
func (h *Handlers) AuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	user := identity.FromContext(r.Context())
	if user == nil {
		h.fail(w, r, identity.ErrNotSignedIn)
		return
	}

	filter := models.AuditFilter{
		UserID:     user.UID,
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		Limit:      auditPageSize,
		Offset:     (page - 1) * auditPageSize,
	}
	days, _ := strconv.Atoi(q.Get("days"))
	if days > 0 {
		filter.Since = time.Now().AddDate(0, 0, -days)
	}
	entries, total, err := h.audit.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list audit log", "error", err)
		h.error(w, r, http.StatusInternalServerError, "監査ログを読み込めません")
		return
	}

	totalPages := (total + auditPageSize - 1) / auditPageSize
	if totalPages < 1 {
		totalPages = 1
	}

	data := h.page(r, "監査ログ", "audit")
	data["Entries"] = entries
	data["Filter"] = filter
	data["Page"] = page
	data["TotalPages"] = totalPages
	data["Actions"] = auditActions
	data["EntityTypes"] = auditEntityTypes
	data["DayChoices"] = auditDayChoices
	data["Days"] = days
	data["Location"] = h.loc
	h.render(w, r, "audit", data)
}
