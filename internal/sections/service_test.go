package sections

import (
	"context"
	"errors"
	"strings"
	"testing"

	"course-backend/internal/queue"
)

func newTestService(t *testing.T) (*Service, Section) {
	t.Helper()
	svc := NewService(NewMemoryRepo())
	section, err := svc.CreateSection(context.Background(), SectionInput{CourseID: 7, Name: "Week 1", Order: 1})
	if err != nil {
		t.Fatalf("CreateSection: %v", err)
	}
	return svc, section
}

func TestCreateSectionValidation(t *testing.T) {
	tests := []struct {
		name string
		in   SectionInput
	}{
		{name: "blank name", in: SectionInput{CourseID: 1, Name: "   "}},
		{name: "no course", in: SectionInput{Name: "Intro"}},
		{name: "bad status", in: SectionInput{CourseID: 1, Name: "Intro", Status: "archived"}},
		{name: "long name", in: SectionInput{CourseID: 1, Name: strings.Repeat("n", 121)}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := NewService(NewMemoryRepo())
			if _, err := svc.CreateSection(context.Background(), tt.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCreateSectionDefaults(t *testing.T) {
	svc, section := newTestService(t)
	if section.ID == 0 || section.Status != StatusActive || section.Order != 1 {
		t.Fatalf("unexpected section %+v", section)
	}

	updated, err := svc.UpdateSection(context.Background(), section.ID, SectionInput{CourseID: 7, Name: "Week One", Status: "INACTIVE", Order: 2})
	if err != nil {
		t.Fatalf("UpdateSection: %v", err)
	}
	if updated.Name != "Week One" || updated.Status != StatusInactive || updated.Order != 2 {
		t.Fatalf("unexpected update %+v", updated)
	}

	if _, err := svc.UpdateSection(context.Background(), 999, SectionInput{CourseID: 7, Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSyncResourcesAppliesPartitions(t *testing.T) {
	ctx := context.Background()
	svc, section := newTestService(t)

	created, err := svc.SyncResources(ctx, section.ID, SyncInput{Creates: []ResourceInput{
		{TempID: "a", Order: 1, Title: "one"},
		{TempID: "b", Order: 2, Title: "two"},
		{TempID: "c", Order: 3, Title: "three", MediaURL: "https://cdn.test/3.mp4"},
	}})
	if err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	if len(created) != 3 || created[0].TempID != "a" {
		t.Fatalf("unexpected created %+v", created)
	}
	idOf := map[string]int64{}
	for _, c := range created {
		idOf[c.TempID] = c.ID
	}

	second, err := svc.SyncResources(ctx, section.ID, SyncInput{
		Creates: []ResourceInput{{TempID: "d", Order: 3, Title: "four"}},
		Updates: []ResourceInput{
			{ID: idOf["b"], Order: 1, Title: "two, revised"},
			{ID: idOf["c"], Order: 2, Title: "three", MediaURL: "https://cdn.test/3.mp4"},
		},
		Deletes: []int64{idOf["a"]},
	})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(second) != 1 || second[0].TempID != "d" {
		t.Fatalf("unexpected created %+v", second)
	}

	list, err := svc.ListResources(ctx, section.ID)
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	got := make([]string, 0, len(list))
	for i, r := range list {
		if r.Order != i+1 {
			t.Fatalf("order not dense: %+v", list)
		}
		got = append(got, r.Title)
	}
	if strings.Join(got, "|") != "two, revised|three|four" {
		t.Fatalf("unexpected resources %v", got)
	}
	if list[1].MediaURL != "https://cdn.test/3.mp4" {
		t.Fatalf("media url lost: %+v", list[1])
	}
}

func TestSyncResourcesRejects(t *testing.T) {
	ctx := context.Background()
	svc, section := newTestService(t)
	other, err := svc.CreateSection(ctx, SectionInput{CourseID: 7, Name: "Week 2", Order: 2})
	if err != nil {
		t.Fatalf("CreateSection: %v", err)
	}
	foreign, err := svc.SyncResources(ctx, other.ID, SyncInput{Creates: []ResourceInput{{TempID: "x", Order: 1}}})
	if err != nil {
		t.Fatalf("seed other: %v", err)
	}

	tests := []struct {
		name string
		id   int64
		in   SyncInput
		want error
	}{
		{
			name: "gap in orders",
			id:   section.ID,
			in:   SyncInput{Creates: []ResourceInput{{TempID: "a", Order: 1}, {TempID: "b", Order: 3}}},
			want: ErrInvalidInput,
		},
		{
			name: "duplicate order",
			id:   section.ID,
			in:   SyncInput{Creates: []ResourceInput{{TempID: "a", Order: 1}, {TempID: "b", Order: 1}}},
			want: ErrInvalidInput,
		},
		{
			name: "missing temp id",
			id:   section.ID,
			in:   SyncInput{Creates: []ResourceInput{{Order: 1}}},
			want: ErrInvalidInput,
		},
		{
			name: "unknown status",
			id:   section.ID,
			in:   SyncInput{Creates: []ResourceInput{{TempID: "a", Order: 1, Status: "draft"}}},
			want: ErrInvalidInput,
		},
		{
			name: "title too long",
			id:   section.ID,
			in:   SyncInput{Creates: []ResourceInput{{TempID: "a", Order: 1, Title: strings.Repeat("t", 61)}}},
			want: ErrInvalidInput,
		},
		{
			name: "update and delete same id",
			id:   other.ID,
			in:   SyncInput{Updates: []ResourceInput{{ID: foreign[0].ID, Order: 1}}, Deletes: []int64{foreign[0].ID}},
			want: ErrInvalidInput,
		},
		{
			name: "foreign update",
			id:   section.ID,
			in:   SyncInput{Updates: []ResourceInput{{ID: foreign[0].ID, Order: 1}}},
			want: ErrConflict,
		},
		{
			name: "foreign delete",
			id:   section.ID,
			in:   SyncInput{Deletes: []int64{foreign[0].ID}},
			want: ErrConflict,
		},
		{
			name: "missing section",
			id:   404,
			in:   SyncInput{},
			want: ErrNotFound,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SyncResources(ctx, tt.id, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	list, err := svc.ListResources(ctx, other.ID)
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("rejected syncs must not change state, got %+v", list)
	}
}

func TestSyncResourcesRejectsStaleBatch(t *testing.T) {
	ctx := context.Background()
	svc, section := newTestService(t)

	created, err := svc.SyncResources(ctx, section.ID, SyncInput{Creates: []ResourceInput{
		{TempID: "a", Order: 1, Title: "one"},
		{TempID: "b", Order: 2, Title: "two"},
	}})
	if err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	// A session loaded before the first sync knows nothing about a and b.
	_, err = svc.SyncResources(ctx, section.ID, SyncInput{Creates: []ResourceInput{{TempID: "c", Order: 1, Title: "three"}}})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	_, err = svc.SyncResources(ctx, section.ID, SyncInput{
		Creates: []ResourceInput{{TempID: "c", Order: 2, Title: "three"}},
		Updates: []ResourceInput{{ID: created[0].ID, Order: 1, Title: "one"}},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for a partial batch, got %v", err)
	}

	list, err := svc.ListResources(ctx, section.ID)
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("rejected syncs must not change state, got %+v", list)
	}
	for i, r := range list {
		if r.Order != i+1 {
			t.Fatalf("order not dense: %+v", list)
		}
	}
}

func TestSyncResourcesPublishesMediaEvents(t *testing.T) {
	ctx := context.Background()
	svc, section := newTestService(t)
	events := &queue.MemoryClient{}
	svc.Events = events

	created, err := svc.SyncResources(ctx, section.ID, SyncInput{Creates: []ResourceInput{
		{TempID: "a", Order: 1, Title: "one", MediaURL: "https://cdn.test/1.mp4"},
		{TempID: "b", Order: 2, Title: "two"},
		{TempID: "c", Order: 3, Title: "three", MediaURL: "https://cdn.test/3.mp4"},
	}})
	if err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	msgs := events.Messages()
	if len(msgs) != 2 || msgs[0].Event != queue.EventMediaAttached || msgs[0].ResourceID != created[0].ID {
		t.Fatalf("unexpected events after create: %+v", msgs)
	}

	_, err = svc.SyncResources(ctx, section.ID, SyncInput{
		Updates: []ResourceInput{
			{ID: created[1].ID, Order: 1, Title: "two", MediaURL: "https://cdn.test/2.mp4"},
			{ID: created[2].ID, Order: 2, Title: "three"},
		},
		Deletes: []int64{created[0].ID},
	})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	msgs = events.Messages()[2:]
	want := []struct {
		event string
		id    int64
		url   string
	}{
		{queue.EventMediaAttached, created[1].ID, "https://cdn.test/2.mp4"},
		{queue.EventMediaDetached, created[2].ID, "https://cdn.test/3.mp4"},
		{queue.EventMediaDetached, created[0].ID, "https://cdn.test/1.mp4"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), msgs)
	}
	for i, w := range want {
		if msgs[i].Event != w.event || msgs[i].ResourceID != w.id || msgs[i].MediaURL != w.url || msgs[i].SectionID != section.ID {
			t.Fatalf("event %d: got %+v, want %+v", i, msgs[i], w)
		}
	}
}
