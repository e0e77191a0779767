package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/foxzi/outreach/internal/history"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/web/docstore"
)

// historyRows loads the newest records and normalizes them for display
func (h *Handlers) historyRows(r *http.Request) ([]history.Row, error) {
	p, err := docstore.Authorize(r.Context(), h.source(r), h.now())
	if err != nil {
		return nil, err
	}
	recs, err := h.history.Latest(r.Context(), p.UID, h.cfg.History.Limit)
	if err != nil {
		h.logger.Error("failed to load history", "uid", p.UID, "error", err)
		return nil, err
	}
	return history.NormalizeAll(recs, h.loc), nil
}

// History shows the send history table with its counters
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	rows, err := h.historyRows(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	data := h.page(r, "送信履歴", "history")
	data["Summary"] = history.Summarize(rows)
	data["Page"] = history.Paginate(rows, page, h.cfg.History.PageSize)
	data["Limit"] = h.cfg.History.Limit
	h.render(w, r, "history", data)
}

// HistoryExportCSV downloads the history table as CSV
func (h *Handlers) HistoryExportCSV(w http.ResponseWriter, r *http.Request) {
	h.exportHistory(w, r, "csv", "text/csv; charset=utf-8", history.WriteCSV)
}

// HistoryExportXLSX downloads the history table as a workbook
func (h *Handlers) HistoryExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.exportHistory(w, r, "xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", history.WriteXLSX)
}

func (h *Handlers) exportHistory(w http.ResponseWriter, r *http.Request, ext, contentType string,
	write func(w io.Writer, rows []history.Row) error) {
	rows, err := h.historyRows(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	name := history.ExportFilename(h.now().In(h.loc), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := write(w, rows); err != nil {
		h.logger.Error("failed to export history", "format", ext, "error", err)
		return
	}
	metrics.IncHistoryExport(ext)
}
