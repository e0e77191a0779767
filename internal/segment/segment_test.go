package segment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/outreach/internal/identity"
	"github.com/foxzi/outreach/internal/web/docstore"
	"github.com/foxzi/outreach/internal/web/models"
)

type memRepo struct {
	mu         sync.Mutex
	segs       map[string]models.Segment
	writes     int
	next       int
	reorderErr error
	block      chan struct{}
}

func newMemRepo(segs ...models.Segment) *memRepo {
	r := &memRepo{segs: make(map[string]models.Segment)}
	for _, s := range segs {
		r.segs[s.ID] = s
	}
	return r
}

func (r *memRepo) List(ctx context.Context, uid string) ([]models.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Segment, 0, len(r.segs))
	for _, s := range r.segs {
		out = append(out, s)
	}
	Sort(out)
	return out, nil
}

func (r *memRepo) Get(ctx context.Context, uid, id string) (*models.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segs[id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return &s, nil
}

func (r *memRepo) Create(ctx context.Context, uid string, seg *models.Segment) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	r.next++
	seg.ID = "seg" + strconv.Itoa(r.next)
	seg.Priority = len(r.segs)
	r.segs[seg.ID] = *seg
	return nil
}

func (r *memRepo) Update(ctx context.Context, uid string, seg *models.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	r.segs[seg.ID] = *seg
	return nil
}

func (r *memRepo) SetEnabled(ctx context.Context, uid, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segs[id]
	if !ok {
		return docstore.ErrNotFound
	}
	r.writes++
	s.Enabled = enabled
	r.segs[id] = s
	return nil
}

func (r *memRepo) Reorder(ctx context.Context, uid string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reorderErr != nil {
		return r.reorderErr
	}
	r.writes++
	for i, id := range ids {
		s := r.segs[id]
		s.Priority = i
		r.segs[id] = s
	}
	return nil
}

func (r *memRepo) Delete(ctx context.Context, uid, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	delete(r.segs, id)
	return nil
}

func testService(repo Repository) *Service {
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var alice = identity.Static(&identity.Principal{UID: "alice"})

func validDraft() Draft {
	d := DefaultDraft()
	d.Title = "新卒向け"
	d.SMS.Body = "{{applicant_name}}様"
	return d
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(d *Draft)
		wantErr error
	}{
		{"valid", func(d *Draft) {}, nil},
		{"blank title", func(d *Draft) { d.Title = "   " }, ErrTitleRequired},
		{"no channel", func(d *Draft) { d.SMS.Enabled = false; d.Mail.Enabled = false }, ErrNoChannel},
		{"mail only", func(d *Draft) { d.SMS.Enabled = false; d.Mail.Enabled = true }, nil},
		{"delay zero", func(d *Draft) { d.SMS.SendMode = models.SendModeDelayed; d.SMS.DelayMinutes = "0" }, ErrDelayMinutes},
		{"delay too large", func(d *Draft) { d.SMS.SendMode = models.SendModeDelayed; d.SMS.DelayMinutes = "1441" }, ErrDelayMinutes},
		{"delay min", func(d *Draft) { d.SMS.SendMode = models.SendModeDelayed; d.SMS.DelayMinutes = "1" }, nil},
		{"delay max", func(d *Draft) { d.SMS.SendMode = models.SendModeDelayed; d.SMS.DelayMinutes = "1440" }, nil},
		{"delay fraction", func(d *Draft) { d.SMS.SendMode = models.SendModeDelayed; d.SMS.DelayMinutes = "1.5" }, ErrDelayMinutes},
		{"delay text", func(d *Draft) { d.SMS.SendMode = models.SendModeDelayed; d.SMS.DelayMinutes = "abc" }, ErrDelayMinutes},
		{"delay unused", func(d *Draft) { d.SMS.DelayMinutes = "abc" }, nil},
		{"disabled channel delay ignored", func(d *Draft) {
			d.Mail.SendMode = models.SendModeDelayed
			d.Mail.DelayMinutes = "0"
		}, nil},
		{"scheduled bad", func(d *Draft) { d.SMS.SendMode = models.SendModeScheduled; d.SMS.ScheduledTime = "25:00" }, ErrScheduledTime},
		{"scheduled ok", func(d *Draft) { d.SMS.SendMode = models.SendModeScheduled; d.SMS.ScheduledTime = "18:30" }, nil},
		{"unknown mode", func(d *Draft) { d.SMS.SendMode = "weekly" }, ErrSendMode},
		{"male ages reversed", func(d *Draft) { d.Conditions.AgeRanges.MaleMin = 40; d.Conditions.AgeRanges.MaleMax = 30 }, ErrAgeRange},
		{"reversed but gender off", func(d *Draft) {
			d.Conditions.Genders.Female = false
			d.Conditions.AgeRanges.FemaleMin = 40
			d.Conditions.AgeRanges.FemaleMax = 30
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.edit(&d)
			_, err := Validate(d)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				var verr *ValidationError
				if !errors.As(err, &verr) || verr.Message == "" {
					t.Errorf("Validate() error %v is not a ValidationError with a message", err)
				}
			}
		})
	}
}

func TestValidateTrimsTitle(t *testing.T) {
	d := validDraft()
	d.Title = "  夏季  "
	d.SMS.SendMode = models.SendModeDelayed
	d.SMS.DelayMinutes = " 30 "

	seg, err := Validate(d)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if seg.Title != "夏季" {
		t.Errorf("Title = %q, want 夏季", seg.Title)
	}
	if seg.Actions.SMS.DelayMinutes != 30 {
		t.Errorf("DelayMinutes = %d, want 30", seg.Actions.SMS.DelayMinutes)
	}
}

func TestSaveRejectsWithoutWrite(t *testing.T) {
	repo := newMemRepo()
	svc := testService(repo)

	d := validDraft()
	d.SMS.Enabled = false
	d.Mail.Enabled = false

	if _, err := svc.Save(context.Background(), alice, d); !errors.Is(err, ErrNoChannel) {
		t.Fatalf("Save() error = %v, want ErrNoChannel", err)
	}
	if repo.writes != 0 {
		t.Errorf("writes = %d, want 0", repo.writes)
	}
}

func TestSaveNotSignedIn(t *testing.T) {
	repo := newMemRepo()
	svc := testService(repo)

	anon := identity.SourceFunc(func(ctx context.Context) (*identity.Principal, error) {
		return nil, identity.ErrNotSignedIn
	})

	d := validDraft()
	d.Title = ""
	// identity is checked before the draft
	if _, err := svc.Save(context.Background(), anon, d); !errors.Is(err, identity.ErrNotSignedIn) {
		t.Fatalf("Save() error = %v, want ErrNotSignedIn", err)
	}

	expired := identity.Static(&identity.Principal{UID: "alice", ExpiresAt: time.Now().Add(-time.Minute)})
	if _, err := svc.Save(context.Background(), expired, validDraft()); !errors.Is(err, docstore.ErrPermissionDenied) {
		t.Fatalf("Save() error = %v, want ErrPermissionDenied", err)
	}
	if repo.writes != 0 {
		t.Errorf("writes = %d, want 0", repo.writes)
	}
}

func TestSaveCreateAndUpdate(t *testing.T) {
	repo := newMemRepo()
	svc := testService(repo)
	ctx := context.Background()

	first, err := svc.Save(ctx, alice, validDraft())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second, err := svc.Save(ctx, alice, validDraft())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if first.Priority != 0 || second.Priority != 1 {
		t.Errorf("priorities = %d, %d, want 0, 1", first.Priority, second.Priority)
	}
	if first.CreatedAt == 0 || first.UpdatedAt == 0 {
		t.Error("timestamps not set on create")
	}

	d := FromSegment(first)
	d.Title = "更新後"
	updated, err := svc.Save(ctx, alice, d)
	if err != nil {
		t.Fatalf("Save() update error = %v", err)
	}
	if updated.ID != first.ID || updated.Priority != 0 || updated.CreatedAt != first.CreatedAt {
		t.Errorf("update changed identity fields: %+v", updated)
	}

	stored, _ := repo.Get(ctx, "alice", first.ID)
	if stored.Title != "更新後" {
		t.Errorf("stored title = %q, want 更新後", stored.Title)
	}

	d.ID = "missing"
	if _, err := svc.Save(ctx, alice, d); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Save() missing id error = %v, want ErrNotFound", err)
	}
}

func TestSaveInFlight(t *testing.T) {
	repo := newMemRepo()
	repo.block = make(chan struct{})
	svc := testService(repo)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Save(context.Background(), alice, validDraft())
		done <- err
	}()

	// wait for the first save to hold the guard
	deadline := time.Now().Add(2 * time.Second)
	for {
		svc.mu.Lock()
		held := svc.inflight["alice"]
		svc.mu.Unlock()
		if held {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first save never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := svc.Save(context.Background(), alice, validDraft()); !errors.Is(err, ErrSaveInFlight) {
		t.Errorf("concurrent Save() error = %v, want ErrSaveInFlight", err)
	}

	close(repo.block)
	if err := <-done; err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	if repo.writes != 1 {
		t.Errorf("writes = %d, want 1", repo.writes)
	}
}

func TestToggle(t *testing.T) {
	repo := newMemRepo(models.Segment{ID: "a", Title: "A", Enabled: true})
	svc := testService(repo)

	if err := svc.Toggle(context.Background(), alice, "a", false); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	s, _ := repo.Get(context.Background(), "alice", "a")
	if s.Enabled || s.Title != "A" {
		t.Errorf("after toggle = %+v", s)
	}

	if err := svc.Toggle(context.Background(), alice, "nope", true); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Toggle() missing error = %v, want ErrNotFound", err)
	}
}

func threeSegments() []models.Segment {
	return []models.Segment{
		{ID: "a", Priority: 0},
		{ID: "b", Priority: 1},
		{ID: "c", Priority: 2},
	}
}

func ids(segs []models.Segment) string {
	out := ""
	for _, s := range segs {
		out += s.ID + strconv.Itoa(s.Priority)
	}
	return out
}

func TestMove(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		dir       Direction
		want      string
		wantMoved bool
	}{
		{"down from top", "a", Down, "b0a1c2", true},
		{"up from bottom", "c", Up, "a0c1b2", true},
		{"up at top", "a", Up, "a0b1c2", false},
		{"down at bottom", "c", Down, "a0b1c2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := threeSegments()
			got, moved, err := Move(in, tt.id, tt.dir)
			if err != nil {
				t.Fatalf("Move() error = %v", err)
			}
			if moved != tt.wantMoved {
				t.Errorf("Move() moved = %v, want %v", moved, tt.wantMoved)
			}
			if ids(got) != tt.want {
				t.Errorf("Move() = %s, want %s", ids(got), tt.want)
			}
			if ids(in) != "a0b1c2" {
				t.Errorf("Move() modified its input: %s", ids(in))
			}
		})
	}

	if _, _, err := Move(threeSegments(), "zzz", Up); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Move() unknown id error = %v, want ErrNotFound", err)
	}
}

func TestMoveRenumbersGaps(t *testing.T) {
	in := []models.Segment{{ID: "a", Priority: 3}, {ID: "b", Priority: 7}, {ID: "c", Priority: 9}}
	got, _, _ := Move(in, "b", Down)
	if ids(got) != "a0c1b2" {
		t.Errorf("Move() = %s, want a0c1b2", ids(got))
	}
}

func TestServiceMove(t *testing.T) {
	repo := newMemRepo(threeSegments()...)
	svc := testService(repo)
	ctx := context.Background()

	got, err := svc.Move(ctx, alice, "b", Up)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if ids(got) != "b0a1c2" {
		t.Errorf("Move() = %s, want b0a1c2", ids(got))
	}
	stored, _ := repo.List(ctx, "alice")
	if ids(stored) != "b0a1c2" {
		t.Errorf("stored = %s, want b0a1c2", ids(stored))
	}

	writes := repo.writes
	if _, err := svc.Move(ctx, alice, "b", Up); err != nil {
		t.Fatalf("Move() at top error = %v", err)
	}
	if repo.writes != writes {
		t.Error("Move() at the boundary wrote to storage")
	}
}

func TestServiceMoveReloadsOnFailure(t *testing.T) {
	repo := newMemRepo(threeSegments()...)
	repo.reorderErr = errors.New("disk full")
	svc := testService(repo)

	got, err := svc.Move(context.Background(), alice, "a", Down)
	if err == nil {
		t.Fatal("Move() expected error")
	}
	if ids(got) != "a0b1c2" {
		t.Errorf("Move() after failure = %s, want stored order a0b1c2", ids(got))
	}
}

func TestDelete(t *testing.T) {
	repo := newMemRepo(threeSegments()...)
	svc := testService(repo)

	if err := svc.Delete(context.Background(), alice, "b"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	segs, _ := svc.List(context.Background(), alice)
	if len(segs) != 2 {
		t.Errorf("List() after delete = %d segments, want 2", len(segs))
	}
}

func TestEditor(t *testing.T) {
	repo := newMemRepo()
	svc := testService(repo)
	ctx := context.Background()

	e := NewEditor()
	if e.State() != StateEmpty {
		t.Fatalf("State() = %v, want empty", e.State())
	}

	e.Edit(func(d *Draft) { d.SMS.Enabled = false })
	if e.State() != StateEditing {
		t.Fatalf("State() = %v, want editing", e.State())
	}

	if err := e.Submit(ctx, svc, alice); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("Submit() error = %v, want ErrTitleRequired", err)
	}
	if e.State() != StateSaveFailed || e.Message() == "" {
		t.Errorf("after failure state = %v message = %q", e.State(), e.Message())
	}
	if e.Draft().SMS.Enabled {
		t.Error("failed save lost the draft")
	}

	e.Edit(func(d *Draft) { d.Title = "新規"; d.SMS.Enabled = true })
	if err := e.Submit(ctx, svc, alice); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if e.State() != StateSaved || e.Message() != "保存しました" {
		t.Errorf("after save state = %v message = %q", e.State(), e.Message())
	}
	if e.Draft().Title != "" || !e.Draft().IsNew() {
		t.Errorf("create did not reset the draft: %+v", e.Draft())
	}

	saved := *e.Saved()
	edit := EditorFor(FromSegment(saved))
	edit.Edit(func(d *Draft) { d.Title = "変更" })
	if err := edit.Submit(ctx, svc, alice); err != nil {
		t.Fatalf("Submit() edit error = %v", err)
	}
	if edit.Draft().ID != saved.ID || edit.Draft().Title != "変更" {
		t.Errorf("edit did not stay bound: %+v", edit.Draft())
	}
}

func TestEditorNeedsSignIn(t *testing.T) {
	svc := testService(newMemRepo())
	anon := identity.SourceFunc(func(ctx context.Context) (*identity.Principal, error) {
		return nil, identity.ErrNotSignedIn
	})

	e := EditorFor(validDraft())
	if err := e.Submit(context.Background(), svc, anon); err == nil {
		t.Fatal("Submit() expected error")
	}
	if !e.NeedsSignIn() {
		t.Error("NeedsSignIn() = false, want true")
	}
}

func TestDetectNameTypes(t *testing.T) {
	tests := []struct {
		name string
		want models.NameTypes
	}{
		{"山田太郎", models.NameTypes{Kanji: true}},
		{"ヤマダ", models.NameTypes{Katakana: true}},
		{"やまだ", models.NameTypes{Hiragana: true}},
		{"John Smith", models.NameTypes{Alpha: true}},
		{"山田 Taro", models.NameTypes{Kanji: true, Alpha: true}},
		{"1234", models.NameTypes{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectNameTypes(tt.name); got != tt.want {
				t.Errorf("DetectNameTypes(%q) = %+v, want %+v", tt.name, got, tt.want)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	kanjiOnly := DefaultDraft().Conditions
	kanjiOnly.NameTypes = models.NameTypes{Kanji: true}

	femaleYoung := DefaultDraft().Conditions
	femaleYoung.Genders.Male = false
	femaleYoung.AgeRanges.FemaleMin = 18
	femaleYoung.AgeRanges.FemaleMax = 25

	segs := []models.Segment{
		{ID: "fallback", Enabled: true, Priority: 2, Conditions: DefaultDraft().Conditions},
		{ID: "kanji", Enabled: true, Priority: 1, Conditions: kanjiOnly},
		{ID: "young", Enabled: true, Priority: 0, Conditions: femaleYoung},
		{ID: "off", Enabled: false, Priority: -1, Conditions: DefaultDraft().Conditions},
	}

	tests := []struct {
		name   string
		a      Applicant
		wantID string
		wantOK bool
	}{
		{"young woman", Applicant{Name: "さくら", Gender: "女性", Age: 22}, "young", true},
		{"older woman kanji", Applicant{Name: "佐藤花子", Gender: "女性", Age: 40}, "kanji", true},
		{"alpha man", Applicant{Name: "John", Gender: "男性", Age: 30}, "fallback", true},
		{"unknown gender", Applicant{Name: "John", Age: 30}, "fallback", true},
		{"digits only", Applicant{Name: "007", Gender: "male"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Select(segs, tt.a)
			if ok != tt.wantOK || got.ID != tt.wantID {
				t.Errorf("Select() = %q, %v, want %q, %v", got.ID, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection("up"); err != nil || d != Up {
		t.Errorf("ParseDirection(up) = %v, %v", d, err)
	}
	if d, err := ParseDirection("down"); err != nil || d != Down {
		t.Errorf("ParseDirection(down) = %v, %v", d, err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Error("ParseDirection(sideways) expected error")
	}
}
