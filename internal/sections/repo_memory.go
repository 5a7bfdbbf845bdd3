package sections

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu           sync.RWMutex
	nextSection  int64
	nextResource int64
	sections     map[int64]Section
	resources    map[int64][]Resource // sectionID -> resources
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		sections:  make(map[int64]Section),
		resources: make(map[int64][]Resource),
	}
}

// CreateSection stores a new section and assigns its id.
func (r *MemoryRepo) CreateSection(ctx context.Context, section Section) (Section, error) {
	if err := ctx.Err(); err != nil {
		return Section{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSection++
	now := time.Now().UTC()
	section.ID = r.nextSection
	section.CreatedAt = now
	section.UpdatedAt = now
	r.sections[section.ID] = section
	return section, nil
}

// UpdateSection overwrites the editable fields of a section.
func (r *MemoryRepo) UpdateSection(ctx context.Context, section Section) (Section, error) {
	if err := ctx.Err(); err != nil {
		return Section{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sections[section.ID]
	if !ok {
		return Section{}, ErrNotFound
	}
	current.CourseID = section.CourseID
	current.Name = section.Name
	current.Status = section.Status
	current.Order = section.Order
	current.UpdatedAt = time.Now().UTC()
	r.sections[section.ID] = current
	return current, nil
}

// GetSection returns a section by id.
func (r *MemoryRepo) GetSection(ctx context.Context, id int64) (Section, error) {
	if err := ctx.Err(); err != nil {
		return Section{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	section, ok := r.sections[id]
	if !ok {
		return Section{}, ErrNotFound
	}
	return section, nil
}

// ListSections returns the sections of a course ordered by position.
func (r *MemoryRepo) ListSections(ctx context.Context, courseID int64) ([]Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Section{}
	for _, s := range r.sections {
		if s.CourseID == courseID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListResources returns a section's resources ordered by position.
func (r *MemoryRepo) ListResources(ctx context.Context, sectionID int64) ([]Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Resource, len(r.resources[sectionID]))
	copy(out, r.resources[sectionID])
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// SyncResources applies the batch under a single lock; nothing changes if the ids do not match the section.
func (r *MemoryRepo) SyncResources(ctx context.Context, sectionID int64, in SyncInput) ([]CreatedResource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sections[sectionID]; !ok {
		return nil, ErrNotFound
	}

	current := r.resources[sectionID]
	owned := make(map[int64]struct{}, len(current))
	for _, res := range current {
		owned[res.ID] = struct{}{}
	}
	if err := checkOwnership(sectionID, owned, in); err != nil {
		return nil, err
	}
	deleted := make(map[int64]struct{}, len(in.Deletes))
	for _, id := range in.Deletes {
		deleted[id] = struct{}{}
	}

	now := time.Now().UTC()
	next := make([]Resource, 0, len(current)+len(in.Creates))
	for _, res := range current {
		if _, gone := deleted[res.ID]; !gone {
			next = append(next, res)
		}
	}
	for _, u := range in.Updates {
		for i := range next {
			if next[i].ID == u.ID {
				next[i].Order = u.Order
				next[i].Title = u.Title
				next[i].Description = u.Description
				next[i].Status = u.Status
				next[i].MediaURL = u.MediaURL
				next[i].UpdatedAt = now
			}
		}
	}
	created := make([]CreatedResource, 0, len(in.Creates))
	for _, c := range in.Creates {
		r.nextResource++
		next = append(next, Resource{
			ID:          r.nextResource,
			SectionID:   sectionID,
			Order:       c.Order,
			Title:       c.Title,
			Description: c.Description,
			Status:      c.Status,
			MediaURL:    c.MediaURL,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		created = append(created, CreatedResource{TempID: c.TempID, ID: r.nextResource})
	}
	r.resources[sectionID] = next
	return created, nil
}

// MediaInUse scans every section's resources for the urls.
func (r *MemoryRepo) MediaInUse(ctx context.Context, urls []string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, list := range r.resources {
		for _, res := range list {
			if res.MediaURL == "" {
				continue
			}
			for _, u := range urls {
				if res.MediaURL == u {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

var _ Repo = (*MemoryRepo)(nil)
