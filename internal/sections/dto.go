package sections

import "time"

// SectionResponse is the outward-facing representation of a section.
type SectionResponse struct {
	ID        int64     `json:"id"`
	CourseID  int64     `json:"courseId"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResourceResponse is the outward-facing representation of a resource.
type ResourceResponse struct {
	ID          int64  `json:"id"`
	Order       int    `json:"order"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	MediaURL    string `json:"mediaUrl,omitempty"`
}

type sectionRequest struct {
	CourseID int64  `json:"courseId"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Order    int    `json:"order"`
}

type resourceWrite struct {
	ID          int64  `json:"id,omitempty"`
	TempID      string `json:"tempId,omitempty"`
	Order       int    `json:"order"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	MediaURL    string `json:"mediaUrl,omitempty"`
}

type syncRequest struct {
	Creates []resourceWrite `json:"creates"`
	Updates []resourceWrite `json:"updates"`
	Deletes []int64         `json:"deletes"`
}

type createdResponse struct {
	TempID string `json:"tempId"`
	ID     int64  `json:"id"`
}

type syncResponse struct {
	Created []createdResponse `json:"created"`
}

func toSectionResponse(s Section) SectionResponse {
	return SectionResponse{
		ID:        s.ID,
		CourseID:  s.CourseID,
		Name:      s.Name,
		Status:    s.Status,
		Order:     s.Order,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func toResourceResponse(r Resource) ResourceResponse {
	return ResourceResponse{
		ID:          r.ID,
		Order:       r.Order,
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		MediaURL:    r.MediaURL,
	}
}

func (w resourceWrite) toInput() ResourceInput {
	return ResourceInput{
		ID:          w.ID,
		TempID:      w.TempID,
		Order:       w.Order,
		Title:       w.Title,
		Description: w.Description,
		Status:      Status(w.Status),
		MediaURL:    w.MediaURL,
	}
}

func (r syncRequest) toInput() SyncInput {
	in := SyncInput{Deletes: r.Deletes}
	for _, c := range r.Creates {
		in.Creates = append(in.Creates, c.toInput())
	}
	for _, u := range r.Updates {
		in.Updates = append(in.Updates, u.toInput())
	}
	return in
}
