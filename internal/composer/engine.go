package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"course-backend/internal/shared/telemetry"
)

// DefaultUploadConcurrency bounds parallel uploads during a commit.
const DefaultUploadConcurrency = 3

// UploadDestination is where one file goes and the durable URL it will be reachable at.
type UploadDestination struct {
	UploadTarget string
	FinalURL     string
	Key          string
}

// UploadGateway issues upload destinations and transfers file bytes.
type UploadGateway interface {
	RequestUploadDestination(ctx context.Context, sectionID int64, f File) (UploadDestination, error)
	Upload(ctx context.Context, dest UploadDestination, f File) error
}

// OrphanCleaner is optionally implemented by gateways that can delete uploaded objects
// which never got referenced by a stored resource.
type OrphanCleaner interface {
	DiscardUpload(ctx context.Context, dest UploadDestination) error
}

// SectionFields are the section attributes the composer edits.
type SectionFields struct {
	CourseID int64
	Name     string
	Status   Status
	Order    int
}

// PersistedResource is a resource as returned by the backend.
type PersistedResource struct {
	ID          int64
	Order       int
	Title       string
	Description string
	Status      Status
	MediaURL    string
}

// ResourceWrite is the payload for one create or update.
type ResourceWrite struct {
	ID          int64
	TempID      string
	Order       int
	Title       string
	Description string
	Status      Status
	MediaURL    string
}

// SyncRequest is the reconciliation sent for one section in a single call.
type SyncRequest struct {
	Creates    []ResourceWrite
	Updates    []ResourceWrite
	Deletes    []int64
	FinalOrder []Identity
}

// CreatedResource maps a temporary identity to the id the backend assigned.
type CreatedResource struct {
	TempID string
	ID     int64
}

// SyncResult reports the ids assigned to created resources.
type SyncResult struct {
	Created []CreatedResource
}

// Persistence is the section/resource backend.
type Persistence interface {
	CreateSection(ctx context.Context, fields SectionFields) (int64, error)
	UpdateSection(ctx context.Context, sectionID int64, fields SectionFields) error
	SyncResources(ctx context.Context, sectionID int64, req SyncRequest) (SyncResult, error)
	FetchResourcesForSection(ctx context.Context, sectionID int64) ([]PersistedResource, error)
}

// SectionSnapshot is the server-side state captured when an edit session opens.
type SectionSnapshot struct {
	ID        int64
	CourseID  int64
	Name      string
	Status    Status
	Order     int
	Resources []ResourceDraft
}

// CommitInput is everything the engine needs to reconcile one section.
type CommitInput struct {
	SectionID   int64
	SectionName string
	Snapshot    []ResourceDraft
	Drafts      []ResourceDraft
	Tombstones  []ResourceDraft
}

// Prepared is a validated, fully uploaded commit waiting to be applied.
type Prepared struct {
	Drafts  []ResourceDraft
	Request SyncRequest
	Uploads []UploadDestination
}

// Engine turns an edit buffer into upload and persistence calls.
type Engine struct {
	uploads     UploadGateway
	persistence Persistence
	concurrency int
}

// NewEngine builds an engine. concurrency <= 0 uses DefaultUploadConcurrency.
func NewEngine(uploads UploadGateway, persistence Persistence, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = DefaultUploadConcurrency
	}
	return &Engine{uploads: uploads, persistence: persistence, concurrency: concurrency}
}

// Validate checks local preconditions. It makes no calls. A tombstoned identity must not
// also be active, or its delete and its update would both be derived from one draft.
func Validate(in CommitInput) error {
	if strings.TrimSpace(in.SectionName) == "" {
		return &ValidationError{Field: "name", Message: "section name is required"}
	}
	if len(in.Drafts) == 0 {
		return &ValidationError{Field: "classes", Message: "at least one class is required"}
	}
	known := make(map[int64]struct{}, len(in.Snapshot))
	for _, s := range in.Snapshot {
		if s.ID.IsPersisted() {
			known[s.ID.PersistedID] = struct{}{}
		}
	}
	seen := make(map[Identity]struct{}, len(in.Drafts))
	for i, d := range in.Drafts {
		if _, dup := seen[d.ID]; dup {
			return &ValidationError{Field: "classes", Message: fmt.Sprintf("class %d appears twice", i+1)}
		}
		seen[d.ID] = struct{}{}
		if d.ID.IsPersisted() {
			if _, ok := known[d.ID.PersistedID]; !ok {
				return &ValidationError{Field: "classes", Message: fmt.Sprintf("class %d refers to unknown resource %d", i+1, d.ID.PersistedID)}
			}
		} else if d.ID.TempID == "" {
			return &ValidationError{Field: "classes", Message: fmt.Sprintf("class %d has no identity", i+1)}
		}
	}
	for _, tomb := range in.Tombstones {
		if _, active := seen[tomb.ID]; active {
			return &ValidationError{Field: "classes", Message: fmt.Sprintf("class %s is both active and removed", tomb.ID)}
		}
	}
	return nil
}

// Prepare validates the input and uploads every pending attachment. On any upload failure
// the whole commit aborts with an *UploadError and nothing is persisted; uploads that did
// complete are discarded when the gateway supports it.
func (e *Engine) Prepare(ctx context.Context, in CommitInput) (*Prepared, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	drafts := cloneDrafts(in.Drafts)
	var (
		mu      sync.Mutex
		uploads []UploadDestination
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range drafts {
		if !drafts[i].Pending() {
			continue
		}
		i := i
		f := drafts[i].Attachment.File
		title := drafts[i].Title
		g.Go(func() error {
			dest, err := e.uploads.RequestUploadDestination(gctx, in.SectionID, f)
			if err != nil {
				return &UploadError{Index: i, Title: title, File: f.Name, Err: err}
			}
			if err := e.uploads.Upload(gctx, dest, f); err != nil {
				return &UploadError{Index: i, Title: title, File: f.Name, Err: err}
			}
			mu.Lock()
			uploads = append(uploads, dest)
			drafts[i].Attachment = &Attachment{Kind: AttachmentRemote, URL: dest.FinalURL}
			mu.Unlock()
			telemetry.Debug("composer.upload.done", map[string]any{
				"file": f.Name,
				"key":  dest.Key,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.DiscardUploads(context.WithoutCancel(ctx), uploads)
		var uerr *UploadError
		if !errors.As(err, &uerr) {
			err = &UploadError{Index: noClass, Err: err}
		}
		telemetry.Warn("composer.upload.failed", map[string]any{
			"section_id": in.SectionID,
			"err":        err.Error(),
			"discarded":  len(uploads),
		})
		return nil, err
	}

	return &Prepared{
		Drafts:  drafts,
		Request: Partition(in.Snapshot, drafts),
		Uploads: uploads,
	}, nil
}

// Partition derives the reconciliation for a section from its snapshot and the fully
// uploaded active drafts. Tombstoned temp drafts never reach the backend.
func Partition(snapshot, drafts []ResourceDraft) SyncRequest {
	var req SyncRequest
	active := make(map[int64]struct{}, len(drafts))
	for _, d := range drafts {
		w := ResourceWrite{
			Order:       d.Order,
			Title:       d.Title,
			Description: d.Description,
			Status:      d.Status,
			MediaURL:    d.MediaURL(),
		}
		if d.ID.IsPersisted() {
			w.ID = d.ID.PersistedID
			active[d.ID.PersistedID] = struct{}{}
			req.Updates = append(req.Updates, w)
		} else {
			w.TempID = d.ID.TempID
			req.Creates = append(req.Creates, w)
		}
		req.FinalOrder = append(req.FinalOrder, d.ID)
	}
	for _, s := range snapshot {
		if !s.ID.IsPersisted() {
			continue
		}
		if _, ok := active[s.ID.PersistedID]; !ok {
			req.Deletes = append(req.Deletes, s.ID.PersistedID)
		}
	}
	return req
}

// Apply sends a prepared reconciliation. On failure the uploads of this commit are
// discarded and a *PersistenceError is returned.
func (e *Engine) Apply(ctx context.Context, sectionID int64, p *Prepared) (SyncResult, error) {
	res, err := e.persistence.SyncResources(ctx, sectionID, p.Request)
	if err != nil {
		e.DiscardUploads(context.WithoutCancel(ctx), p.Uploads)
		return SyncResult{}, &PersistenceError{Op: "sync resources", Err: err}
	}
	telemetry.Info("composer.sync.ok", map[string]any{
		"section_id": sectionID,
		"creates":    len(p.Request.Creates),
		"updates":    len(p.Request.Updates),
		"deletes":    len(p.Request.Deletes),
	})
	return res, nil
}

// Commit runs Prepare then Apply for an already persisted section.
func (e *Engine) Commit(ctx context.Context, in CommitInput) (SyncResult, error) {
	p, err := e.Prepare(ctx, in)
	if err != nil {
		return SyncResult{}, err
	}
	return e.Apply(ctx, in.SectionID, p)
}

// DiscardUploads deletes uploaded objects best-effort. Failures are logged only.
func (e *Engine) DiscardUploads(ctx context.Context, uploads []UploadDestination) {
	cleaner, ok := e.uploads.(OrphanCleaner)
	if !ok || len(uploads) == 0 {
		return
	}
	for _, dest := range uploads {
		if err := cleaner.DiscardUpload(ctx, dest); err != nil {
			telemetry.Warn("composer.upload.discard_failed", map[string]any{
				"key": dest.Key,
				"err": err.Error(),
			})
		}
	}
}
