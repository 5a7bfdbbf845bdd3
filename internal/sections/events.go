package sections

import (
	"context"
	"time"

	"course-backend/internal/queue"
	"course-backend/internal/shared/telemetry"
)

// mediaSnapshot maps resource id to its media URL before a sync.
func (s *Service) mediaSnapshot(ctx context.Context, sectionID int64) map[int64]string {
	if s.Events == nil {
		return nil
	}
	list, err := s.Repo.ListResources(ctx, sectionID)
	if err != nil {
		return nil
	}
	out := make(map[int64]string, len(list))
	for _, r := range list {
		out[r.ID] = r.MediaURL
	}
	return out
}

// mediaEvents derives attach/detach notifications from an applied sync.
func mediaEvents(sectionID int64, before map[int64]string, in SyncInput, created []CreatedResource, now time.Time) []queue.Message {
	stamp := now.UTC().Format(time.RFC3339)
	ids := make(map[string]int64, len(created))
	for _, c := range created {
		ids[c.TempID] = c.ID
	}
	msg := func(event string, id int64, url string) queue.Message {
		return queue.Message{Event: event, SectionID: sectionID, ResourceID: id, MediaURL: url, EnqueuedAt: stamp}
	}

	var out []queue.Message
	for _, c := range in.Creates {
		if c.MediaURL != "" {
			out = append(out, msg(queue.EventMediaAttached, ids[c.TempID], c.MediaURL))
		}
	}
	for _, u := range in.Updates {
		prev := before[u.ID]
		switch {
		case u.MediaURL == prev:
		case u.MediaURL == "":
			out = append(out, msg(queue.EventMediaDetached, u.ID, prev))
		default:
			if prev != "" {
				out = append(out, msg(queue.EventMediaDetached, u.ID, prev))
			}
			out = append(out, msg(queue.EventMediaAttached, u.ID, u.MediaURL))
		}
	}
	for _, id := range in.Deletes {
		if prev := before[id]; prev != "" {
			out = append(out, msg(queue.EventMediaDetached, id, prev))
		}
	}
	return out
}

// publishMediaEvents is best effort: the sync is already committed.
func (s *Service) publishMediaEvents(ctx context.Context, msgs []queue.Message) {
	for _, m := range msgs {
		if err := s.Events.Send(ctx, m); err != nil {
			telemetry.Warn("sections.events.send_failed", map[string]any{
				"section_id":  m.SectionID,
				"resource_id": m.ResourceID,
				"event":       m.Event,
				"err":         err.Error(),
			})
		}
	}
}
