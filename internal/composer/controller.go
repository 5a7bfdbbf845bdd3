package composer

import (
	"context"
	"strings"
	"sync"
	"time"

	"course-backend/internal/shared/telemetry"
)

// Mode is whether the composer will create a new section or edit an existing one.
type Mode int

const (
	ModeCreate Mode = iota + 1
	ModeEdit
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeEdit:
		return "edit"
	default:
		return "unknown"
	}
}

// Deps are the collaborators of a composer session.
type Deps struct {
	Uploads           UploadGateway
	Persistence       Persistence
	Previews          PreviewPool
	Thumbnails        ThumbnailExtractor
	ThumbnailOffset   time.Duration
	UploadConcurrency int
}

// Controller is one create-or-edit session for a single section and its resources.
type Controller struct {
	mu       sync.Mutex
	mode     Mode
	section  SectionSnapshot
	snapshot []ResourceDraft
	closed   bool
	inflight bool

	store       *DraftStore
	engine      *Engine
	persistence Persistence
}

// NewSection opens a composer for a section that does not exist yet, seeded with one empty class.
func NewSection(courseID int64, order int, deps Deps) *Controller {
	c := newController(ModeCreate, SectionSnapshot{
		CourseID: courseID,
		Status:   StatusActive,
		Order:    order,
	}, deps)
	c.store.Add()
	return c
}

// EditSection opens a composer over an existing section. Its resources are fetched and
// become the snapshot the commit is reconciled against.
func EditSection(ctx context.Context, section SectionSnapshot, deps Deps) (*Controller, error) {
	resources, err := deps.Persistence.FetchResourcesForSection(ctx, section.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "fetch resources", Err: err}
	}
	drafts := make([]ResourceDraft, 0, len(resources))
	for _, r := range resources {
		d := ResourceDraft{
			ID:          Persisted(r.ID),
			Order:       r.Order,
			Title:       r.Title,
			Description: r.Description,
			Status:      r.Status,
		}
		if d.Status == "" {
			d.Status = StatusActive
		}
		if r.MediaURL != "" {
			d.Attachment = &Attachment{Kind: AttachmentRemote, URL: r.MediaURL}
		}
		drafts = append(drafts, d)
	}
	if section.Status == "" {
		section.Status = StatusActive
	}
	c := newController(ModeEdit, section, deps)
	c.store.seed(drafts)
	c.snapshot = c.store.Drafts()
	c.section.Resources = cloneDrafts(c.snapshot)
	return c, nil
}

func newController(mode Mode, section SectionSnapshot, deps Deps) *Controller {
	var opts []StoreOption
	if deps.Thumbnails != nil {
		opts = append(opts, WithThumbnails(deps.Thumbnails, deps.ThumbnailOffset))
	}
	return &Controller{
		mode:        mode,
		section:     section,
		store:       NewDraftStore(deps.Previews, opts...),
		engine:      NewEngine(deps.Uploads, deps.Persistence, deps.UploadConcurrency),
		persistence: deps.Persistence,
	}
}

// Store exposes the edit buffer.
func (c *Controller) Store() *DraftStore { return c.store }

// Mode reports whether a commit will create or update the section.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SectionID is 0 until the section exists server-side.
func (c *Controller) SectionID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.section.ID
}

// Snapshot returns the server state the session was opened with.
func (c *Controller) Snapshot() SectionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.section
	out.Resources = cloneDrafts(c.snapshot)
	return out
}

func (c *Controller) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.section.Name
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.section.Status
}

// SetName edits the section name.
func (c *Controller) SetName(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.inflight {
		return false
	}
	c.section.Name = name
	return true
}

// SetStatus edits the section visibility. Unknown values are ignored.
func (c *Controller) SetStatus(raw string) bool {
	st, ok := ParseStatus(raw)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.inflight {
		return false
	}
	c.section.Status = st
	return true
}

// Commit validates, uploads, then persists the section and its resources. On success the
// session closes and all previews are released. On failure the edit buffer is left as it
// was so the user can retry.
func (c *Controller) Commit(ctx context.Context) (SyncResult, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return SyncResult{}, ErrClosed
	}
	if c.inflight {
		c.mu.Unlock()
		return SyncResult{}, ErrCommitInFlight
	}
	c.inflight = true
	mode := c.mode
	section := c.section
	snapshot := cloneDrafts(c.snapshot)
	c.mu.Unlock()

	c.store.setFrozen(true)
	defer func() {
		c.mu.Lock()
		c.inflight = false
		c.mu.Unlock()
		c.store.setFrozen(false)
	}()

	start := time.Now()
	p, err := c.engine.Prepare(ctx, CommitInput{
		SectionID:   section.ID,
		SectionName: section.Name,
		Snapshot:    snapshot,
		Drafts:      c.store.Drafts(),
		Tombstones:  c.store.Tombstones(),
	})
	if err != nil {
		return SyncResult{}, err
	}

	fields := SectionFields{
		CourseID: section.CourseID,
		Name:     strings.TrimSpace(section.Name),
		Status:   section.Status,
		Order:    section.Order,
	}
	sectionID := section.ID
	if mode == ModeCreate {
		sectionID, err = c.persistence.CreateSection(ctx, fields)
		if err != nil {
			c.engine.DiscardUploads(context.WithoutCancel(ctx), p.Uploads)
			return SyncResult{}, &PersistenceError{Op: "create section", Err: err}
		}
		// A retry after a failed sync must update this section, not create another.
		c.mu.Lock()
		c.mode = ModeEdit
		c.section.ID = sectionID
		c.mu.Unlock()
	} else if err := c.persistence.UpdateSection(ctx, sectionID, fields); err != nil {
		c.engine.DiscardUploads(context.WithoutCancel(ctx), p.Uploads)
		return SyncResult{}, &PersistenceError{Op: "update section", Err: err}
	}

	res, err := c.engine.Apply(ctx, sectionID, p)
	if err != nil {
		return SyncResult{}, err
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	released := c.store.ReleaseAll()
	telemetry.Info("composer.commit.ok", map[string]any{
		"section_id":  sectionID,
		"mode":        mode.String(),
		"resources":   len(p.Drafts),
		"released":    released,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return res, nil
}

// Discard abandons the session, releasing every preview. Nothing is sent anywhere.
// While a commit is outstanding the session is left untouched and ErrCommitInFlight is returned.
func (c *Controller) Discard() (int, error) {
	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return 0, ErrCommitInFlight
	}
	if c.closed {
		c.mu.Unlock()
		return 0, nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.store.ReleaseAll(), nil
}

// Closed reports whether the session has committed or been discarded.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
