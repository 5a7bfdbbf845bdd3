package sections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"course-backend/internal/queue"
	"course-backend/internal/shared/metrics"
	"course-backend/internal/shared/telemetry"
)

const (
	maxSectionNameRunes = 120
	maxTitleRunes       = 60
	maxDescriptionRunes = 300
)

// SectionInput carries the editable fields of a section.
type SectionInput struct {
	CourseID int64
	Name     string
	Status   string
	Order    int
}

// Service contains business logic for sections and resources.
type Service struct {
	Repo Repo
	// Events receives media attach/detach notifications after each sync; nil disables them.
	Events queue.Client
}

// NewService constructs a Service.
func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// CreateSection validates and stores a new section.
func (s *Service) CreateSection(ctx context.Context, in SectionInput) (Section, error) {
	section, err := sectionFromInput(in)
	if err != nil {
		return Section{}, err
	}
	created, err := s.Repo.CreateSection(ctx, section)
	if err != nil {
		return Section{}, err
	}
	metrics.IncSectionsCreated()
	telemetry.Info("sections.created", map[string]any{
		"section_id": created.ID,
		"course_id":  created.CourseID,
	})
	return created, nil
}

// UpdateSection validates and overwrites a section's fields.
func (s *Service) UpdateSection(ctx context.Context, id int64, in SectionInput) (Section, error) {
	if id <= 0 {
		return Section{}, fmt.Errorf("%w: section id must be positive", ErrInvalidInput)
	}
	section, err := sectionFromInput(in)
	if err != nil {
		return Section{}, err
	}
	section.ID = id
	return s.Repo.UpdateSection(ctx, section)
}

// GetSection returns a section by id.
func (s *Service) GetSection(ctx context.Context, id int64) (Section, error) {
	if id <= 0 {
		return Section{}, ErrNotFound
	}
	return s.Repo.GetSection(ctx, id)
}

// ListSections returns the sections of a course.
func (s *Service) ListSections(ctx context.Context, courseID int64) ([]Section, error) {
	if courseID <= 0 {
		return nil, fmt.Errorf("%w: course id must be positive", ErrInvalidInput)
	}
	return s.Repo.ListSections(ctx, courseID)
}

// ListResources returns the resources of an existing section.
func (s *Service) ListResources(ctx context.Context, sectionID int64) ([]Resource, error) {
	if _, err := s.GetSection(ctx, sectionID); err != nil {
		return nil, err
	}
	return s.Repo.ListResources(ctx, sectionID)
}

// MediaInUse reports whether a stored resource still references any of the urls.
func (s *Service) MediaInUse(ctx context.Context, urls ...string) (bool, error) {
	if len(urls) == 0 {
		return false, nil
	}
	return s.Repo.MediaInUse(ctx, urls)
}

// SyncResources validates the batch and applies it atomically.
func (s *Service) SyncResources(ctx context.Context, sectionID int64, in SyncInput) ([]CreatedResource, error) {
	start := time.Now()
	normalized, err := normalizeSync(in)
	if err == nil {
		before := s.mediaSnapshot(ctx, sectionID)
		var created []CreatedResource
		created, err = s.Repo.SyncResources(ctx, sectionID, normalized)
		if err == nil {
			metrics.IncSyncSucceeded()
			metrics.ObserveSyncDurationMs(float64(time.Since(start).Microseconds()) / 1000)
			telemetry.Info("sections.sync.applied", map[string]any{
				"section_id": sectionID,
				"creates":    len(normalized.Creates),
				"updates":    len(normalized.Updates),
				"deletes":    len(normalized.Deletes),
			})
			if s.Events != nil {
				s.publishMediaEvents(ctx, mediaEvents(sectionID, before, normalized, created, time.Now()))
			}
			return created, nil
		}
	}

	metrics.IncSyncFailed()
	fields := map[string]any{"section_id": sectionID, "err": err.Error()}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		telemetry.Warn("sections.sync.rejected", fields)
	} else {
		telemetry.Error("sections.sync.failed", fields)
	}
	return nil, err
}

func sectionFromInput(in SectionInput) (Section, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Section{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxSectionNameRunes {
		return Section{}, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidInput, maxSectionNameRunes)
	}
	if in.CourseID <= 0 {
		return Section{}, fmt.Errorf("%w: courseId must be positive", ErrInvalidInput)
	}
	status, err := parseStatus(in.Status)
	if err != nil {
		return Section{}, err
	}
	order := in.Order
	if order <= 0 {
		order = 1
	}
	return Section{CourseID: in.CourseID, Name: name, Status: status, Order: order}, nil
}

func parseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
	}
}

// normalizeSync checks the batch shape: known statuses, bounded text, unique identities,
// and orders forming exactly 1..N over creates and updates.
func normalizeSync(in SyncInput) (SyncInput, error) {
	out := SyncInput{
		Creates: make([]ResourceInput, 0, len(in.Creates)),
		Updates: make([]ResourceInput, 0, len(in.Updates)),
		Deletes: make([]int64, 0, len(in.Deletes)),
	}
	total := len(in.Creates) + len(in.Updates)
	orders := make(map[int]struct{}, total)
	checkResource := func(r ResourceInput) (ResourceInput, error) {
		status, err := parseStatus(string(r.Status))
		if err != nil {
			return ResourceInput{}, err
		}
		r.Status = status
		r.Title = strings.TrimSpace(r.Title)
		r.MediaURL = strings.TrimSpace(r.MediaURL)
		if utf8.RuneCountInString(r.Title) > maxTitleRunes {
			return ResourceInput{}, fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, maxTitleRunes)
		}
		if utf8.RuneCountInString(r.Description) > maxDescriptionRunes {
			return ResourceInput{}, fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, maxDescriptionRunes)
		}
		if r.Order < 1 || r.Order > total {
			return ResourceInput{}, fmt.Errorf("%w: order %d outside 1..%d", ErrInvalidInput, r.Order, total)
		}
		if _, dup := orders[r.Order]; dup {
			return ResourceInput{}, fmt.Errorf("%w: order %d used twice", ErrInvalidInput, r.Order)
		}
		orders[r.Order] = struct{}{}
		return r, nil
	}

	tempIDs := make(map[string]struct{}, len(in.Creates))
	for _, c := range in.Creates {
		if strings.TrimSpace(c.TempID) == "" {
			return SyncInput{}, fmt.Errorf("%w: creates need a tempId", ErrInvalidInput)
		}
		if _, dup := tempIDs[c.TempID]; dup {
			return SyncInput{}, fmt.Errorf("%w: tempId %q used twice", ErrInvalidInput, c.TempID)
		}
		tempIDs[c.TempID] = struct{}{}
		c.ID = 0
		checked, err := checkResource(c)
		if err != nil {
			return SyncInput{}, err
		}
		out.Creates = append(out.Creates, checked)
	}

	ids := make(map[int64]struct{}, len(in.Updates)+len(in.Deletes))
	for _, u := range in.Updates {
		if u.ID <= 0 {
			return SyncInput{}, fmt.Errorf("%w: updates need a positive id", ErrInvalidInput)
		}
		if _, dup := ids[u.ID]; dup {
			return SyncInput{}, fmt.Errorf("%w: resource %d updated twice", ErrInvalidInput, u.ID)
		}
		ids[u.ID] = struct{}{}
		u.TempID = ""
		checked, err := checkResource(u)
		if err != nil {
			return SyncInput{}, err
		}
		out.Updates = append(out.Updates, checked)
	}
	for _, id := range in.Deletes {
		if id <= 0 {
			return SyncInput{}, fmt.Errorf("%w: delete ids must be positive", ErrInvalidInput)
		}
		if _, dup := ids[id]; dup {
			return SyncInput{}, fmt.Errorf("%w: resource %d both kept and deleted", ErrInvalidInput, id)
		}
		ids[id] = struct{}{}
		out.Deletes = append(out.Deletes, id)
	}
	return out, nil
}
