package segment

import (
	"context"
	"errors"

	"github.com/foxzi/outreach/internal/identity"
	"github.com/foxzi/outreach/internal/web/docstore"
	"github.com/foxzi/outreach/internal/web/models"
)

// State of the segment editor
type State int

const (
	StateEmpty State = iota
	StateEditing
	StateSaving
	StateSaved
	StateSaveFailed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateEditing:
		return "editing"
	case StateSaving:
		return "saving"
	case StateSaved:
		return "saved"
	case StateSaveFailed:
		return "save_failed"
	}
	return "unknown"
}

// Saver persists a draft
type Saver interface {
	Save(ctx context.Context, src identity.Source, d Draft) (models.Segment, error)
}

// Editor tracks one editing session of a segment form
type Editor struct {
	state State
	draft Draft
	saved *models.Segment
	err   error
}

// NewEditor starts with the default empty draft
func NewEditor() *Editor {
	return &Editor{state: StateEmpty, draft: DefaultDraft()}
}

// EditorFor starts an editing session on d
func EditorFor(d Draft) *Editor {
	return &Editor{state: StateEditing, draft: d}
}

func (e *Editor) State() State           { return e.state }
func (e *Editor) Draft() Draft           { return e.draft }
func (e *Editor) Saved() *models.Segment { return e.saved }
func (e *Editor) Err() error             { return e.err }
func (e *Editor) Succeeded() bool        { return e.state == StateSaved }

// Edit applies a change to the draft. Changes are ignored while saving.
func (e *Editor) Edit(fn func(d *Draft)) {
	if e.state == StateSaving {
		return
	}
	fn(&e.draft)
	e.state = StateEditing
	e.err = nil
}

// Submit saves the draft. On success a new segment resets the editor to
// defaults and an existing one stays bound to its id.
func (e *Editor) Submit(ctx context.Context, saver Saver, src identity.Source) error {
	if e.state == StateSaving {
		return ErrSaveInFlight
	}
	e.state = StateSaving

	seg, err := saver.Save(ctx, src, e.draft)
	if err != nil {
		e.state = StateSaveFailed
		e.err = err
		return err
	}

	e.saved = &seg
	if e.draft.IsNew() {
		e.draft = DefaultDraft()
	} else {
		e.draft = FromSegment(seg)
	}
	e.state = StateSaved
	e.err = nil
	return nil
}

// NeedsSignIn reports whether the last failure means the session is gone
func (e *Editor) NeedsSignIn() bool {
	return IsAuthError(e.err)
}

// Message is the banner text for the current state
func (e *Editor) Message() string {
	switch e.state {
	case StateSaved:
		return "保存しました"
	case StateSaveFailed:
		return ErrorMessage(e.err)
	}
	return ""
}

// IsAuthError reports errors that should send the user back to sign-in
func IsAuthError(err error) bool {
	return errors.Is(err, identity.ErrNotSignedIn) || errors.Is(err, docstore.ErrPermissionDenied)
}

// ErrorMessage maps a segment operation error to user-facing text
func ErrorMessage(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, identity.ErrNotSignedIn):
		return "未ログインです。ログインしてください。"
	case errors.Is(err, docstore.ErrPermissionDenied):
		return "権限がありません。再度ログインしてください。"
	case errors.Is(err, ErrSaveInFlight):
		return "保存処理中です。しばらくお待ちください。"
	case errors.Is(err, docstore.ErrNotFound):
		return "セグメントが見つかりません"
	}
	return "保存に失敗しました: " + err.Error()
}
