package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// countingPool is a reference-counted PreviewPool stub.
type countingPool struct {
	mu       sync.Mutex
	next     int
	refs     map[PreviewRef]int
	releases int
	noops    int
}

func newCountingPool() *countingPool {
	return &countingPool{refs: make(map[PreviewRef]int)}
}

func (p *countingPool) Acquire(File) PreviewRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	ref := PreviewRef(fmt.Sprintf("ref-%d", p.next))
	p.refs[ref] = 1
	return ref
}

func (p *countingPool) Release(ref PreviewRef) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refs[ref] == 0 {
		p.noops++
		return false
	}
	p.refs[ref]--
	p.releases++
	return true
}

func (p *countingPool) live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.refs {
		n += c
	}
	return n
}

func (p *countingPool) acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

type fakeGateway struct {
	mu        sync.Mutex
	requested []string
	uploaded  []string
	discarded []string
	failOn    string
}

func (g *fakeGateway) RequestUploadDestination(_ context.Context, sectionID int64, f File) (UploadDestination, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requested = append(g.requested, f.Name)
	key := fmt.Sprintf("sections/%d/%s", sectionID, f.Name)
	return UploadDestination{
		UploadTarget: "https://upload.test/" + key,
		FinalURL:     "https://cdn.test/" + key,
		Key:          key,
	}, nil
}

func (g *fakeGateway) Upload(_ context.Context, dest UploadDestination, f File) error {
	if g.failOn != "" && f.Name == g.failOn {
		return errors.New("connection reset")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploaded = append(g.uploaded, dest.Key)
	return nil
}

func (g *fakeGateway) DiscardUpload(_ context.Context, dest UploadDestination) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.discarded = append(g.discarded, dest.Key)
	return nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requested) + len(g.uploaded)
}

type fakePersistence struct {
	mu         sync.Mutex
	resources  []PersistedResource
	created    []SectionFields
	updated    []SectionFields
	syncs      []SyncRequest
	nextID     int64
	createErr  error
	syncErrors []error
	// syncEntered and syncRelease, when set, hold SyncResources open until the test lets it go.
	syncEntered chan struct{}
	syncRelease chan struct{}
}

func (p *fakePersistence) CreateSection(_ context.Context, fields SectionFields) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return 0, p.createErr
	}
	p.created = append(p.created, fields)
	return 77, nil
}

func (p *fakePersistence) UpdateSection(_ context.Context, _ int64, fields SectionFields) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, fields)
	return nil
}

func (p *fakePersistence) SyncResources(_ context.Context, _ int64, req SyncRequest) (SyncResult, error) {
	if p.syncEntered != nil {
		close(p.syncEntered)
		<-p.syncRelease
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncs = append(p.syncs, req)
	if len(p.syncErrors) > 0 {
		err := p.syncErrors[0]
		p.syncErrors = p.syncErrors[1:]
		if err != nil {
			return SyncResult{}, err
		}
	}
	var res SyncResult
	for _, c := range req.Creates {
		p.nextID++
		res.Created = append(res.Created, CreatedResource{TempID: c.TempID, ID: 100 + p.nextID})
	}
	return res, nil
}

func (p *fakePersistence) FetchResourcesForSection(context.Context, int64) ([]PersistedResource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PersistedResource(nil), p.resources...), nil
}

func (p *fakePersistence) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.created) + len(p.updated) + len(p.syncs)
}

type stubThumbs struct {
	delay time.Duration
	err   error
}

func (s stubThumbs) Extract(ctx context.Context, f File, _ time.Duration) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.err != nil {
		return "", s.err
	}
	return "data:image/jpeg;base64," + strings.ToUpper(f.Name), nil
}

func video(name string) File {
	return File{Path: "/tmp/" + name, Name: name, ContentType: "video/mp4", Size: 1024}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tmp-%d", n)
	}
}
