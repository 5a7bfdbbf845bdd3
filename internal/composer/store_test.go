package composer

import (
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"
)

func assertDense(t *testing.T, drafts []ResourceDraft) {
	t.Helper()
	seen := make(map[Identity]bool, len(drafts))
	for i, d := range drafts {
		if d.Order != i+1 {
			t.Fatalf("order at index %d: expected %d, got %d", i, i+1, d.Order)
		}
		if seen[d.ID] {
			t.Fatalf("duplicate identity %s", d.ID)
		}
		seen[d.ID] = true
	}
}

func tempIDs(drafts []ResourceDraft) []string {
	out := make([]string, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, d.ID.TempID)
	}
	return out
}

func TestDraftStoreAddAssignsNextOrder(t *testing.T) {
	s := NewDraftStore(newCountingPool(), WithTempIDs(sequentialIDs()))

	first, ok := s.Add()
	if !ok {
		t.Fatal("Add refused on an open store")
	}
	if first.Order != 1 || first.Status != StatusActive || first.ID.TempID != "tmp-1" || first.ID.IsPersisted() {
		t.Fatalf("unexpected first draft %+v", first)
	}

	second, _ := s.Add()
	if second.Order != 2 {
		t.Fatalf("expected order 2, got %d", second.Order)
	}
	assertDense(t, s.Drafts())
}

func TestDraftStoreOrderStaysDenseUnderRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := NewDraftStore(newCountingPool())

	for step := 0; step < 500; step++ {
		n := s.Len()
		switch rng.Intn(5) {
		case 0, 1:
			s.Add()
		case 2:
			if n > 0 {
				s.SetSelected(rng.Intn(n), true)
				s.RemoveSelected()
			}
		case 3:
			if n > 0 {
				s.Move(rng.Intn(n), rng.Intn(n))
			}
		case 4:
			s.RestoreTombstoned()
		}
		assertDense(t, s.Drafts())

		ids := make(map[Identity]int)
		for _, d := range append(s.Drafts(), s.Tombstones()...) {
			ids[d.ID]++
		}
		for id, c := range ids {
			if c != 1 {
				t.Fatalf("step %d: identity %s seen %d times", step, id, c)
			}
		}
	}
}

func TestDraftStoreRemoveSelected(t *testing.T) {
	s := NewDraftStore(newCountingPool(), WithTempIDs(sequentialIDs()))
	for i := 0; i < 4; i++ {
		s.Add()
	}

	if n := s.RemoveSelected(); n != 0 {
		t.Fatalf("nothing selected should be a no-op, removed %d", n)
	}

	s.SetSelected(1, true)
	s.SetSelected(3, true)
	if n := s.RemoveSelected(); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}

	drafts := s.Drafts()
	if got := tempIDs(drafts); !reflect.DeepEqual(got, []string{"tmp-1", "tmp-3"}) {
		t.Fatalf("unexpected active drafts %v", got)
	}
	assertDense(t, drafts)

	tombs := s.Tombstones()
	if len(tombs) != 2 || tombs[0].Order != 2 || tombs[1].Order != 4 {
		t.Fatalf("tombstones must keep their recorded order, got %+v", tombs)
	}
}

func TestDraftStoreRestoreThenRemoveIsIdempotent(t *testing.T) {
	s := NewDraftStore(newCountingPool(), WithTempIDs(sequentialIDs()))
	for i := 0; i < 5; i++ {
		s.Add()
		s.SetField(i, FieldTitle, strings.Repeat("x", i+1))
	}
	s.SetField(2, FieldStatus, "inactive")
	before := s.Drafts()

	s.SetSelected(0, true)
	s.SetSelected(2, true)
	s.SetSelected(4, true)
	if n := s.RemoveSelected(); n != 3 {
		t.Fatalf("expected 3 removed, got %d", n)
	}
	if n := s.RestoreTombstoned(); n != 3 {
		t.Fatalf("expected 3 restored, got %d", n)
	}
	if !reflect.DeepEqual(before, s.Drafts()) {
		t.Fatalf("restore changed the collection:\nbefore %+v\nafter  %+v", before, s.Drafts())
	}
	if len(s.Tombstones()) != 0 {
		t.Fatalf("tombstones not cleared: %+v", s.Tombstones())
	}

	// Remove the same identities again, then restore: still the original collection.
	s.SetSelected(0, true)
	s.SetSelected(2, true)
	s.SetSelected(4, true)
	s.RemoveSelected()
	s.RestoreTombstoned()
	if !reflect.DeepEqual(before, s.Drafts()) {
		t.Fatalf("second round changed the collection: %+v", s.Drafts())
	}
}

func TestDraftStoreRestoreUsesRecordedOrder(t *testing.T) {
	s := NewDraftStore(newCountingPool(), WithTempIDs(sequentialIDs()))
	for i := 0; i < 3; i++ {
		s.Add()
	}
	s.SetSelected(2, true)
	s.RemoveSelected()
	s.SetSelected(1, true)
	s.RemoveSelected()

	// Tombstoned as 3 then 2; restored ascending.
	if n := s.RestoreTombstoned(); n != 2 {
		t.Fatalf("expected 2 restored, got %d", n)
	}
	drafts := s.Drafts()
	if got := tempIDs(drafts); !reflect.DeepEqual(got, []string{"tmp-1", "tmp-2", "tmp-3"}) {
		t.Fatalf("unexpected order %v", got)
	}
	assertDense(t, drafts)
	for _, d := range drafts {
		if d.SelectedForRemoval {
			t.Fatalf("restored draft still selected: %+v", d)
		}
	}
}

func TestDraftStoreRestoreSamePositionRemovedTwice(t *testing.T) {
	s := NewDraftStore(newCountingPool(), WithTempIDs(sequentialIDs()))
	for i := 0; i < 3; i++ {
		s.Add()
	}
	before := s.Drafts()

	s.SetSelected(1, true)
	s.RemoveSelected()
	s.SetSelected(1, true)
	s.RemoveSelected()
	if s.Len() != 1 {
		t.Fatalf("expected 1 active draft, got %d", s.Len())
	}

	if n := s.RestoreTombstoned(); n != 2 {
		t.Fatalf("expected 2 restored, got %d", n)
	}
	if got := tempIDs(s.Drafts()); !reflect.DeepEqual(got, tempIDs(before)) {
		t.Fatalf("expected %v, got %v", tempIDs(before), got)
	}
	if !reflect.DeepEqual(before, s.Drafts()) {
		t.Fatalf("restore changed the collection: %+v", s.Drafts())
	}
}

func TestDraftStoreMove(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		want     []string
		changed  bool
	}{
		{name: "forward", from: 0, to: 2, want: []string{"tmp-2", "tmp-3", "tmp-1"}, changed: true},
		{name: "backward", from: 2, to: 0, want: []string{"tmp-3", "tmp-1", "tmp-2"}, changed: true},
		{name: "same index", from: 1, to: 1, want: []string{"tmp-1", "tmp-2", "tmp-3"}},
		{name: "out of range", from: 0, to: 9, want: []string{"tmp-1", "tmp-2", "tmp-3"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewDraftStore(newCountingPool(), WithTempIDs(sequentialIDs()))
			for i := 0; i < 3; i++ {
				s.Add()
			}
			if changed := s.Move(tt.from, tt.to); changed != tt.changed {
				t.Fatalf("expected changed=%v, got %v", tt.changed, changed)
			}
			if got := tempIDs(s.Drafts()); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			assertDense(t, s.Drafts())
		})
	}
}

func TestDraftStoreDragAndDrop(t *testing.T) {
	s := NewDraftStore(newCountingPool(), WithTempIDs(sequentialIDs()))
	for i := 0; i < 3; i++ {
		s.Add()
	}

	if s.DropOn(0) {
		t.Fatal("drop without a drag must be refused")
	}
	if !s.BeginDrag(2) {
		t.Fatal("BeginDrag refused")
	}
	if from, ok := s.Dragging(); !ok || from != 2 {
		t.Fatalf("expected drag from 2, got %d (%v)", from, ok)
	}

	if !s.DropOn(0) {
		t.Fatal("DropOn refused")
	}
	if _, ok := s.Dragging(); ok {
		t.Fatal("drag state must clear after drop")
	}
	if first := s.Drafts()[0].ID.TempID; first != "tmp-3" {
		t.Fatalf("expected tmp-3 first, got %s", first)
	}

	s.BeginDrag(0)
	s.CancelDrag()
	if s.DropOn(2) {
		t.Fatal("drop after cancel must be refused")
	}
	if first := s.Drafts()[0].ID.TempID; first != "tmp-3" {
		t.Fatalf("cancelled drag moved a draft: %s", first)
	}
}

func TestDraftStoreSetField(t *testing.T) {
	s := NewDraftStore(newCountingPool())
	s.Add()

	tests := []struct {
		name  string
		index int
		field Field
		value string
		ok    bool
	}{
		{name: "long title", field: FieldTitle, value: strings.Repeat("é", 80), ok: true},
		{name: "long description", field: FieldDescription, value: strings.Repeat("d", 400), ok: true},
		{name: "bad status", field: FieldStatus, value: "archived"},
		{name: "status case", field: FieldStatus, value: "Inactive", ok: true},
		{name: "bad selected", field: FieldSelected, value: "maybe"},
		{name: "bad index", index: 3, field: FieldTitle, value: "nope"},
	}
	for _, tt := range tests {
		if ok := s.SetField(tt.index, tt.field, tt.value); ok != tt.ok {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.ok, ok)
		}
	}

	d, ok := s.Draft(0)
	if !ok {
		t.Fatal("Draft(0) missing")
	}
	if n := len([]rune(d.Title)); n != MaxTitleRunes {
		t.Fatalf("expected title truncated to %d runes, got %d", MaxTitleRunes, n)
	}
	if len(d.Description) != MaxDescriptionRunes {
		t.Fatalf("expected description truncated to %d, got %d", MaxDescriptionRunes, len(d.Description))
	}
	if d.Status != StatusInactive || d.Order != 1 {
		t.Fatalf("unexpected draft %+v", d)
	}
}

func TestDraftStoreSetAttachmentRejectsNonVideo(t *testing.T) {
	pool := newCountingPool()
	s := NewDraftStore(pool)
	s.Add()
	before := s.Drafts()

	if s.SetAttachment(0, File{Path: "/tmp/notes.pdf", Name: "notes.pdf"}) {
		t.Fatal("pdf attachment accepted")
	}
	err := s.SetAttachmentChecked(0, File{Path: "/tmp/pic.png", Name: "pic.png", ContentType: "image/png"})
	if !errors.Is(err, ErrAttachmentRejected) {
		t.Fatalf("expected ErrAttachmentRejected, got %v", err)
	}
	if !reflect.DeepEqual(before, s.Drafts()) {
		t.Fatalf("rejected attachment changed state: %+v", s.Drafts())
	}
	if pool.acquired() != 0 {
		t.Fatalf("rejected attachment acquired %d previews", pool.acquired())
	}
}

func TestDraftStoreReplaceAttachmentReleasesPrevious(t *testing.T) {
	pool := newCountingPool()
	s := NewDraftStore(pool)
	s.Add()

	if !s.SetAttachment(0, video("a.mp4")) {
		t.Fatal("mp4 attachment refused")
	}
	first, _ := s.Draft(0)
	if !s.SetAttachment(0, File{Path: "/tmp/b.mov", Name: "b.mov"}) {
		t.Fatal("mov attachment refused")
	}
	second, _ := s.Draft(0)

	if first.Attachment.Preview == second.Attachment.Preview {
		t.Fatalf("expected a new preview, got %s twice", first.Attachment.Preview)
	}
	if second.Attachment.File.Name != "b.mov" {
		t.Fatalf("unexpected file %+v", second.Attachment.File)
	}
	if pool.live() != 1 {
		t.Fatalf("expected 1 live preview, got %d", pool.live())
	}

	if !s.ClearAttachment(0) {
		t.Fatal("ClearAttachment refused")
	}
	if pool.live() != 0 || pool.noops != 0 {
		t.Fatalf("expected clean release, live=%d noops=%d", pool.live(), pool.noops)
	}
}

func TestDraftStoreThumbnailAppliedToCurrentPreviewOnly(t *testing.T) {
	pool := newCountingPool()
	s := NewDraftStore(pool, WithThumbnails(stubThumbs{delay: 20 * time.Millisecond}, time.Second))
	s.Add()

	s.SetAttachment(0, video("first.mp4"))
	s.SetAttachment(0, video("second.mp4"))
	s.Wait()

	d, _ := s.Draft(0)
	if d.Attachment.Thumbnail != "data:image/jpeg;base64,SECOND.MP4" {
		t.Fatalf("unexpected thumbnail %q", d.Attachment.Thumbnail)
	}
	if pool.live() != 1 {
		t.Fatalf("expected 1 live preview, got %d", pool.live())
	}
}

func TestDraftStoreThumbnailFailureLeavesAttachment(t *testing.T) {
	s := NewDraftStore(newCountingPool(), WithThumbnails(stubThumbs{err: errors.New("no decoder")}, 0))
	s.Add()

	if !s.SetAttachment(0, video("clip.mp4")) {
		t.Fatal("attachment refused")
	}
	s.Wait()

	d, _ := s.Draft(0)
	if !d.Pending() || d.Attachment.Thumbnail != "" {
		t.Fatalf("expected pending attachment without thumbnail, got %+v", d.Attachment)
	}
}

func TestDraftStoreReleaseAllCoversTombstones(t *testing.T) {
	pool := newCountingPool()
	s := NewDraftStore(pool)
	s.Add()
	s.Add()
	s.Add()
	s.SetAttachment(0, video("a.mp4"))
	s.SetAttachment(1, video("b.mp4"))
	s.SetSelected(1, true)
	s.RemoveSelected()

	if pool.live() != 2 {
		t.Fatalf("expected 2 live previews, got %d", pool.live())
	}
	if n := s.ReleaseAll(); n != 2 {
		t.Fatalf("expected 2 released, got %d", n)
	}
	if pool.live() != 0 {
		t.Fatalf("expected no live previews, got %d", pool.live())
	}

	// Closed: further releases and edits do nothing.
	if n := s.ReleaseAll(); n != 0 {
		t.Fatalf("second ReleaseAll released %d", n)
	}
	if _, ok := s.Add(); ok {
		t.Fatal("Add accepted on a closed store")
	}
	if err := s.SetAttachmentChecked(0, video("c.mp4")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if pool.acquired() != 2 {
		t.Fatalf("expected 2 acquisitions, got %d", pool.acquired())
	}
}

func TestDraftStoreFrozenIgnoresMutations(t *testing.T) {
	s := NewDraftStore(newCountingPool())
	s.Add()
	s.setFrozen(true)

	if _, ok := s.Add(); ok {
		t.Fatal("Add accepted while frozen")
	}
	if s.SetField(0, FieldTitle, "late") {
		t.Fatal("SetField accepted while frozen")
	}
	if err := s.SetAttachmentChecked(0, video("a.mp4")); !errors.Is(err, ErrCommitInFlight) {
		t.Fatalf("expected ErrCommitInFlight, got %v", err)
	}

	s.setFrozen(false)
	if !s.SetField(0, FieldTitle, "now") {
		t.Fatal("SetField refused after unfreeze")
	}
}
