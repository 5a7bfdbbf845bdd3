package sections

import (
	"context"
	"fmt"
	"sort"
)

// Repo defines persistence operations for sections and their resources.
type Repo interface {
	CreateSection(ctx context.Context, section Section) (Section, error)
	UpdateSection(ctx context.Context, section Section) (Section, error)
	GetSection(ctx context.Context, id int64) (Section, error)
	ListSections(ctx context.Context, courseID int64) ([]Section, error)
	ListResources(ctx context.Context, sectionID int64) ([]Resource, error)
	// SyncResources applies deletes, updates and creates atomically. The batch must name every
	// resource the section owns as an update or a delete; foreign or missing ids fail the
	// whole call with ErrConflict.
	SyncResources(ctx context.Context, sectionID int64, in SyncInput) ([]CreatedResource, error)
	// MediaInUse reports whether any resource in any section points at one of the urls.
	MediaInUse(ctx context.Context, urls []string) (bool, error)
}

// checkOwnership matches the batch against the ids the section currently owns.
func checkOwnership(sectionID int64, owned map[int64]struct{}, in SyncInput) error {
	named := make(map[int64]struct{}, len(in.Updates)+len(in.Deletes))
	for _, u := range in.Updates {
		if _, ok := owned[u.ID]; !ok {
			return fmt.Errorf("%w: resource %d is not in section %d", ErrConflict, u.ID, sectionID)
		}
		named[u.ID] = struct{}{}
	}
	for _, id := range in.Deletes {
		if _, ok := owned[id]; !ok {
			return fmt.Errorf("%w: resource %d is not in section %d", ErrConflict, id, sectionID)
		}
		named[id] = struct{}{}
	}
	var missing []int64
	for id := range owned {
		if _, ok := named[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return fmt.Errorf("%w: section %d changed since it was loaded; resources %v are not in the batch", ErrConflict, sectionID, missing)
	}
	return nil
}
