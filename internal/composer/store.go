package composer

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"course-backend/internal/shared/telemetry"
)

const (
	MaxTitleRunes       = 60
	MaxDescriptionRunes = 300

	DefaultThumbnailOffset = 8 * time.Second
	thumbnailTimeout       = 30 * time.Second
)

// Field names an editable draft field for SetField.
type Field int

const (
	FieldTitle Field = iota + 1
	FieldDescription
	FieldStatus
	FieldSelected
)

// ThumbnailExtractor produces a still-frame preview for a local video as a data URI.
type ThumbnailExtractor interface {
	Extract(ctx context.Context, f File, offset time.Duration) (string, error)
}

// StoreOption configures a DraftStore.
type StoreOption func(*DraftStore)

// WithThumbnails enables preview extraction for attached videos.
func WithThumbnails(x ThumbnailExtractor, offset time.Duration) StoreOption {
	return func(s *DraftStore) {
		s.thumbs = x
		if offset > 0 {
			s.thumbOffset = offset
		}
	}
}

// WithTempIDs overrides the temporary identity generator.
func WithTempIDs(fn func() string) StoreOption {
	return func(s *DraftStore) {
		if fn != nil {
			s.newTempID = fn
		}
	}
}

type dragState struct {
	from int
}

// DraftStore is the ordered edit buffer for one section's resources, plus the tombstones of
// drafts removed during this session. Orders are kept dense (1..N) after every mutation.
// Mutators report whether they changed anything; they never fail.
type DraftStore struct {
	mu         sync.Mutex
	drafts     []ResourceDraft
	tombstones []ResourceDraft
	drag       *dragState
	frozen     bool
	closed     bool

	previews    PreviewPool
	thumbs      ThumbnailExtractor
	thumbOffset time.Duration
	inflight    sync.WaitGroup
	newTempID   func() string
}

// NewDraftStore returns an empty store backed by the given preview pool.
func NewDraftStore(previews PreviewPool, opts ...StoreOption) *DraftStore {
	if previews == nil {
		previews = NewBlobManager()
	}
	s := &DraftStore{
		previews:    previews,
		thumbOffset: DefaultThumbnailOffset,
		newTempID:   func() string { return "tmp-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DraftStore) seed(drafts []ResourceDraft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = cloneDrafts(drafts)
	sort.SliceStable(s.drafts, func(i, j int) bool { return s.drafts[i].Order < s.drafts[j].Order })
	s.renumber()
}

// Add appends an empty active draft with a temporary identity.
func (s *DraftStore) Add() (ResourceDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked() {
		return ResourceDraft{}, false
	}
	maxOrder := 0
	for _, d := range s.drafts {
		if d.Order > maxOrder {
			maxOrder = d.Order
		}
	}
	d := ResourceDraft{
		ID:     Temporary(s.newTempID()),
		Order:  maxOrder + 1,
		Status: StatusActive,
	}
	s.drafts = append(s.drafts, d)
	return d.clone(), true
}

// RemoveSelected tombstones every draft marked for removal and returns how many moved.
func (s *DraftStore) RemoveSelected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked() {
		return 0
	}
	kept := s.drafts[:0:0]
	removed := 0
	for _, d := range s.drafts {
		if d.SelectedForRemoval {
			s.tombstones = append(s.tombstones, d)
			removed++
			continue
		}
		kept = append(kept, d)
	}
	if removed == 0 {
		return 0
	}
	s.drafts = kept
	s.drag = nil
	s.renumber()
	return removed
}

// RestoreTombstoned reinserts every tombstoned draft at its recorded position, ascending by
// recorded order, then clears the tombstone list. Returns how many drafts came back.
func (s *DraftStore) RestoreTombstoned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked() || len(s.tombstones) == 0 {
		return 0
	}
	// Tombstones are kept in removal sequence. Equal recorded orders come back latest-removed
	// first, so drafts taken from the same position in separate removals regain their layout.
	pending := make([]ResourceDraft, 0, len(s.tombstones))
	for i := len(s.tombstones) - 1; i >= 0; i-- {
		pending = append(pending, s.tombstones[i])
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Order < pending[j].Order })

	restored := 0
	for _, t := range pending {
		if s.indexOf(t.ID) >= 0 {
			s.releaseUnshared(t)
			continue
		}
		t.SelectedForRemoval = false
		pos := t.Order - 1
		if pos < 0 {
			pos = 0
		}
		if pos > len(s.drafts) {
			pos = len(s.drafts)
		}
		s.drafts = append(s.drafts, ResourceDraft{})
		copy(s.drafts[pos+1:], s.drafts[pos:])
		s.drafts[pos] = t
		restored++
	}
	s.tombstones = nil
	s.drag = nil
	s.renumber()
	return restored
}

// Move relocates the draft at from to index to.
func (s *DraftStore) Move(from, to int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(from, to)
}

// BeginDrag remembers the origin index of a drag gesture.
func (s *DraftStore) BeginDrag(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked() || !s.inRange(index) {
		return false
	}
	s.drag = &dragState{from: index}
	return true
}

// DropOn resolves an in-progress drag against the hovered index.
func (s *DraftStore) DropOn(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return false
	}
	from := s.drag.from
	s.drag = nil
	return s.moveLocked(from, index)
}

// CancelDrag forgets an in-progress drag.
func (s *DraftStore) CancelDrag() {
	s.mu.Lock()
	s.drag = nil
	s.mu.Unlock()
}

// Dragging returns the origin index of the in-progress drag, if any.
func (s *DraftStore) Dragging() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return 0, false
	}
	return s.drag.from, true
}

// SetField mutates one field in place. Invalid values are ignored.
func (s *DraftStore) SetField(index int, field Field, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked() || !s.inRange(index) {
		return false
	}
	d := &s.drafts[index]
	switch field {
	case FieldTitle:
		d.Title = truncateRunes(value, MaxTitleRunes)
	case FieldDescription:
		d.Description = truncateRunes(value, MaxDescriptionRunes)
	case FieldStatus:
		st, ok := ParseStatus(value)
		if !ok {
			return false
		}
		d.Status = st
	case FieldSelected:
		selected, err := strconv.ParseBool(value)
		if err != nil {
			return false
		}
		d.SelectedForRemoval = selected
	default:
		return false
	}
	return true
}

// SetSelected toggles the removal checkbox of a draft.
func (s *DraftStore) SetSelected(index int, selected bool) bool {
	return s.SetField(index, FieldSelected, strconv.FormatBool(selected))
}

// SetAttachment attaches a local video to the draft at index, replacing and releasing any
// previous local preview. Non-video files are ignored and false is returned.
func (s *DraftStore) SetAttachment(index int, f File) bool {
	return s.SetAttachmentChecked(index, f) == nil
}

// SetAttachmentChecked is SetAttachment for callers that want to surface the rejection.
func (s *DraftStore) SetAttachmentChecked(index int, f File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.frozen {
		return ErrCommitInFlight
	}
	if !s.inRange(index) {
		return &ValidationError{Field: "index", Message: "no class at position " + strconv.Itoa(index+1)}
	}
	if !f.IsVideo() {
		return ErrAttachmentRejected
	}

	ref := s.previews.Acquire(f)
	d := &s.drafts[index]
	if d.Pending() {
		s.previews.Release(d.Attachment.Preview)
	}
	d.Attachment = &Attachment{Kind: AttachmentPending, File: f, Preview: ref}

	if s.thumbs != nil {
		s.inflight.Add(1)
		go s.extractThumbnail(ref, f)
	}
	return nil
}

// ClearAttachment drops the draft's media, releasing a local preview if present.
func (s *DraftStore) ClearAttachment(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked() || !s.inRange(index) || s.drafts[index].Attachment == nil {
		return false
	}
	d := &s.drafts[index]
	if d.Pending() {
		s.previews.Release(d.Attachment.Preview)
	}
	d.Attachment = nil
	return true
}

func (s *DraftStore) extractThumbnail(ref PreviewRef, f File) {
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), thumbnailTimeout)
	defer cancel()
	dataURI, err := s.thumbs.Extract(ctx, f, s.thumbOffset)
	if err != nil {
		telemetry.Debug("composer.thumbnail.unavailable", map[string]any{
			"file": f.Name,
			"err":  err.Error(),
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range [][]ResourceDraft{s.drafts, s.tombstones} {
		for i := range list {
			a := list[i].Attachment
			if a != nil && a.Kind == AttachmentPending && a.Preview == ref {
				a.Thumbnail = dataURI
				return
			}
		}
	}
	// Superseded or discarded while decoding; the preview was already released.
}

// Wait blocks until in-flight thumbnail extractions have finished.
func (s *DraftStore) Wait() {
	s.inflight.Wait()
}

// Drafts returns a copy of the active collection in order.
func (s *DraftStore) Drafts() []ResourceDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDrafts(s.drafts)
}

// Tombstones returns a copy of the drafts removed this session.
func (s *DraftStore) Tombstones() []ResourceDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDrafts(s.tombstones)
}

// Draft returns a copy of the draft at index.
func (s *DraftStore) Draft(index int) (ResourceDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inRange(index) {
		return ResourceDraft{}, false
	}
	return s.drafts[index].clone(), true
}

// Len returns the number of active drafts.
func (s *DraftStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}

// ReleaseAll releases every local preview held by active and tombstoned drafts and closes the
// store to further edits. It returns the number of references released.
func (s *DraftStore) ReleaseAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, list := range [][]ResourceDraft{s.drafts, s.tombstones} {
		for i := range list {
			if list[i].Pending() && s.previews.Release(list[i].Attachment.Preview) {
				n++
			}
		}
	}
	s.closed = true
	s.drag = nil
	return n
}

func (s *DraftStore) setFrozen(frozen bool) {
	s.mu.Lock()
	s.frozen = frozen
	if frozen {
		s.drag = nil
	}
	s.mu.Unlock()
}

func (s *DraftStore) moveLocked(from, to int) bool {
	if s.locked() || from == to || !s.inRange(from) || !s.inRange(to) {
		return false
	}
	d := s.drafts[from]
	s.drafts = append(s.drafts[:from], s.drafts[from+1:]...)
	s.drafts = append(s.drafts, ResourceDraft{})
	copy(s.drafts[to+1:], s.drafts[to:])
	s.drafts[to] = d
	s.renumber()
	return true
}

// releaseUnshared releases a dropped tombstone's preview unless an active draft still uses it.
func (s *DraftStore) releaseUnshared(t ResourceDraft) {
	if !t.Pending() {
		return
	}
	for _, d := range s.drafts {
		if d.Pending() && d.Attachment.Preview == t.Attachment.Preview {
			return
		}
	}
	s.previews.Release(t.Attachment.Preview)
}

func (s *DraftStore) indexOf(id Identity) int {
	for i, d := range s.drafts {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (s *DraftStore) renumber() {
	for i := range s.drafts {
		s.drafts[i].Order = i + 1
	}
}

func (s *DraftStore) inRange(index int) bool {
	return index >= 0 && index < len(s.drafts)
}

func (s *DraftStore) locked() bool {
	return s.frozen || s.closed
}

func truncateRunes(v string, max int) string {
	if utf8.RuneCountInString(v) <= max {
		return v
	}
	return string([]rune(v)[:max])
}
