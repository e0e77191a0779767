package handlers

import (
	"net/http"

	"github.com/foxzi/outreach/internal/dashboard"
	"github.com/foxzi/outreach/internal/web/docstore"
)

// Dashboard shows send counters and the daily chart for a date range
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "ダッシュボード", "dashboard")
	now := h.now()

	q := r.URL.Query()
	rng, err := dashboard.ParseRange(q.Get("start"), q.Get("end"), now, h.loc)
	if err != nil {
		data["Error"] = "期間の指定が不正です"
		rng = dashboard.DefaultRange(now, h.loc)
	}

	p, err := docstore.Authorize(r.Context(), h.source(r), now)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	recs, err := h.history.All(r.Context(), p.UID)
	if err != nil {
		h.logger.Error("failed to load history", "uid", p.UID, "error", err)
		h.fail(w, r, err)
		return
	}

	stats := dashboard.Build(recs, rng)
	data["Stats"] = stats
	data["Chart"] = dashboard.NewChart(stats)
	h.render(w, r, "dashboard", data)
}
