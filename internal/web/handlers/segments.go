package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/outreach/internal/segment"
	"github.com/foxzi/outreach/internal/tokentext"
	"github.com/foxzi/outreach/internal/web/middleware"
	"github.com/foxzi/outreach/internal/web/models"
	"github.com/foxzi/outreach/internal/web/repository"
)

const entitySegment = "segment"

// SegmentList shows the segments in priority order
func (h *Handlers) SegmentList(w http.ResponseWriter, r *http.Request) {
	segs, err := h.segments.List(r.Context(), h.source(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderSegments(w, r, http.StatusOK, segs, "")
}

func (h *Handlers) renderSegments(w http.ResponseWriter, r *http.Request, status int, segs []models.Segment, errMsg string) {
	data := h.page(r, "セグメント", "segments")
	data["Segments"] = segs
	if errMsg != "" {
		data["Error"] = errMsg
	}
	flash(r, data)
	h.renderStatus(w, r, status, "segments", data)
}

// SegmentNew shows the editor with the default draft
func (h *Handlers) SegmentNew(w http.ResponseWriter, r *http.Request) {
	h.renderEditor(w, r, http.StatusOK, segment.NewEditor())
}

// SegmentEdit shows the editor bound to an existing segment
func (h *Handlers) SegmentEdit(w http.ResponseWriter, r *http.Request) {
	seg, err := h.segments.Get(r.Context(), h.source(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderEditor(w, r, http.StatusOK, segment.EditorFor(segment.FromSegment(*seg)))
}

func (h *Handlers) renderEditor(w http.ResponseWriter, r *http.Request, status int, e *segment.Editor) {
	d := e.Draft()
	title := "セグメント作成"
	action := "/segments"
	if !d.IsNew() {
		title = "セグメント編集"
		action = "/segments/" + d.ID
	}

	data := h.page(r, title, "segments")
	data["Draft"] = d
	data["Action"] = action
	data["State"] = e.State().String()
	if e.State() == segment.StateSaveFailed {
		data["Error"] = e.Message()
		data["NeedsSignIn"] = e.NeedsSignIn()
	}
	flash(r, data)
	h.renderStatus(w, r, status, "segment_form", data)
}

// SegmentSave creates a segment (no id in the route) or overwrites one
func (h *Handlers) SegmentSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.error(w, r, http.StatusBadRequest, "入力内容を読み取れません")
		return
	}

	id := chi.URLParam(r, "id")
	draft := draftFromForm(r, id)

	var e *segment.Editor
	if id == "" {
		e = segment.NewEditor()
		e.Edit(func(d *segment.Draft) { *d = draft })
	} else {
		e = segment.EditorFor(draft)
	}

	if err := e.Submit(r.Context(), h.segments, h.source(r)); err != nil {
		status, _ := classify(err)
		if middleware.WantsJSON(r) {
			h.apiError(w, status, e.Message())
			return
		}
		h.renderEditor(w, r, status, e)
		return
	}

	saved := e.Saved()
	action := repository.ActionUpdate
	if id == "" {
		action = repository.ActionCreate
	}
	h.record(r, action, entitySegment, saved.ID, map[string]any{"title": saved.Title, "enabled": saved.Enabled})

	if middleware.WantsJSON(r) {
		h.apiJSON(w, http.StatusOK, map[string]any{"ok": true, "id": saved.ID})
		return
	}
	if id == "" {
		http.Redirect(w, r, "/segments/new?flash=saved", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/segments/"+saved.ID+"/edit?flash=saved", http.StatusSeeOther)
}

// draftFromForm reads the editor form. Message bodies arrive as editor
// markup and are converted back to stored text.
func draftFromForm(r *http.Request, id string) segment.Draft {
	checked := func(name string) bool {
		v := r.FormValue(name)
		return v == "on" || v == "true" || v == "1"
	}
	age := func(name string, def int) int {
		n, err := strconv.Atoi(strings.TrimSpace(r.FormValue(name)))
		if err != nil {
			return def
		}
		return n
	}
	channel := func(prefix string) segment.ChannelDraft {
		return segment.ChannelDraft{
			Enabled:       checked(prefix + "_enabled"),
			Body:          storedText(r.FormValue(prefix + "_body")),
			SendMode:      r.FormValue(prefix + "_send_mode"),
			ScheduledTime: strings.TrimSpace(r.FormValue(prefix + "_scheduled_time")),
			DelayMinutes:  strings.TrimSpace(r.FormValue(prefix + "_delay_minutes")),
		}
	}

	d := segment.Draft{
		ID:      id,
		Title:   r.FormValue("title"),
		Enabled: checked("enabled"),
		Conditions: models.Conditions{
			NameTypes: models.NameTypes{
				Kanji:    checked("name_kanji"),
				Katakana: checked("name_katakana"),
				Hiragana: checked("name_hiragana"),
				Alpha:    checked("name_alpha"),
			},
			Genders: models.Genders{
				Male:   checked("gender_male"),
				Female: checked("gender_female"),
			},
			AgeRanges: models.AgeRanges{
				MaleMin:   age("male_min", segment.DefaultMinAge),
				MaleMax:   age("male_max", segment.DefaultMaxAge),
				FemaleMin: age("female_min", segment.DefaultMinAge),
				FemaleMax: age("female_max", segment.DefaultMaxAge),
			},
		},
		SMS:  channel("sms"),
		Mail: channel("mail"),
	}
	d.Mail.Subject = r.FormValue("mail_subject")
	return d
}

func storedText(markup string) string {
	doc, err := tokentext.ParseHTML(markup)
	if err != nil {
		return markup
	}
	return doc.String()
}

// SegmentToggle flips the enabled flag. The page updates optimistically;
// a failed write answers 500 so the client reverts the checkbox.
func (h *Handlers) SegmentToggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.apiError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else if v := r.FormValue("enabled"); v != "" {
		enabled := v == "on" || v == "true" || v == "1"
		req.Enabled = &enabled
	}
	if req.Enabled == nil {
		h.apiError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := h.segments.Toggle(r.Context(), h.source(r), id, *req.Enabled); err != nil {
		status, msg := classify(err)
		h.apiError(w, status, msg)
		return
	}
	h.record(r, repository.ActionToggle, entitySegment, id, map[string]any{"enabled": *req.Enabled})
	h.apiJSON(w, http.StatusOK, map[string]any{"ok": true, "enabled": *req.Enabled})
}

type segmentOrder struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Priority int    `json:"priority"`
}

// SegmentMove swaps a segment with its neighbour
func (h *Handlers) SegmentMove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dir, err := segment.ParseDirection(r.FormValue("direction"))
	if err != nil {
		if middleware.WantsJSON(r) {
			h.apiError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.error(w, r, http.StatusBadRequest, "並び替えの方向が不正です")
		return
	}

	segs, err := h.segments.Move(r.Context(), h.source(r), id, dir)
	if err == nil {
		h.record(r, repository.ActionMove, entitySegment, id, map[string]any{"direction": r.FormValue("direction")})
	}

	if middleware.WantsJSON(r) {
		if err != nil {
			status, msg := classify(err)
			h.apiError(w, status, msg)
			return
		}
		order := make([]segmentOrder, len(segs))
		for i, s := range segs {
			order[i] = segmentOrder{ID: s.ID, Title: s.Title, Priority: s.Priority}
		}
		h.apiJSON(w, http.StatusOK, map[string]any{"ok": true, "segments": order})
		return
	}

	if err != nil {
		status, msg := classify(err)
		if status == http.StatusUnauthorized || segs == nil {
			h.fail(w, r, err)
			return
		}
		h.renderSegments(w, r, status, segs, "並び替えに失敗しました: "+msg)
		return
	}
	http.Redirect(w, r, "/segments?flash=moved", http.StatusSeeOther)
}

// SegmentDeleteConfirm asks before deleting
func (h *Handlers) SegmentDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	seg, err := h.segments.Get(r.Context(), h.source(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := h.page(r, "セグメントの削除", "segments")
	data["Segment"] = seg
	h.render(w, r, "segment_delete", data)
}

// SegmentDelete removes a segment once the confirmation was submitted
func (h *Handlers) SegmentDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if r.FormValue("confirm") != "yes" {
		http.Redirect(w, r, "/segments/"+id+"/delete", http.StatusSeeOther)
		return
	}

	if err := h.segments.Delete(r.Context(), h.source(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(r, repository.ActionDelete, entitySegment, id, nil)

	if middleware.WantsJSON(r) {
		h.apiJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	http.Redirect(w, r, "/segments?flash=deleted", http.StatusSeeOther)
}

// SegmentPreview shows which segment an applicant would get and the
// rendered messages
func (h *Handlers) SegmentPreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	form := map[string]string{
		"name":      strings.TrimSpace(q.Get("name")),
		"gender":    q.Get("gender"),
		"age":       strings.TrimSpace(q.Get("age")),
		"job_title": strings.TrimSpace(q.Get("job_title")),
		"company":   strings.TrimSpace(q.Get("company")),
	}

	data := h.page(r, "振り分け確認", "segments")
	data["Form"] = form

	if form["name"] != "" {
		age, _ := strconv.Atoi(form["age"])
		applicant := segment.Applicant{
			Name:   form["name"],
			Gender: segment.NormalizeGender(form["gender"]),
			Age:    age,
		}

		seg, ok, err := h.segments.Preview(r.Context(), h.source(r), applicant)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		data["Checked"] = true
		data["Matched"] = ok
		if ok {
			values := tokentext.ValuesFromDetail(form)
			values["applicant_name"] = form["name"]
			data["Segment"] = seg
			data["SMSText"] = tokentext.Render(seg.Actions.SMS.Text, values)
			data["MailSubject"] = tokentext.Render(seg.Actions.Mail.Subject, values)
			data["MailBody"] = tokentext.Render(seg.Actions.Mail.Body, values)
		}
	}

	h.render(w, r, "segment_preview", data)
}
