package sections

import "time"

// Status is the visibility of a section or resource.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Section is an ordered group of resources within a course.
type Section struct {
	ID        int64
	CourseID  int64
	Name      string
	Status    Status
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Resource is one lesson ("class") of a section.
type Resource struct {
	ID          int64
	SectionID   int64
	Order       int
	Title       string
	Description string
	Status      Status
	MediaURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ResourceInput is one create (TempID set) or update (ID set) in a sync.
type ResourceInput struct {
	ID          int64
	TempID      string
	Order       int
	Title       string
	Description string
	Status      Status
	MediaURL    string
}

// SyncInput reconciles a section's resources in one call.
type SyncInput struct {
	Creates []ResourceInput
	Updates []ResourceInput
	Deletes []int64
}

// CreatedResource maps a client temp id to the id assigned on insert.
type CreatedResource struct {
	TempID string
	ID     int64
}
