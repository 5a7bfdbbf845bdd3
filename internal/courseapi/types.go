package courseapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"course-backend/internal/composer"
)

// APIError is a non-2xx response, decoded from the standard error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("course api %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("course api %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func parseAPIError(status int, raw []byte) *APIError {
	out := &APIError{StatusCode: status, Body: strings.TrimSpace(string(raw))}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil {
		out.Code = env.Error.Code
		out.Message = env.Error.Message
	}
	return out
}

type destinationRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type destinationResponse struct {
	UploadURL        string `json:"uploadUrl"`
	FinalURL         string `json:"finalUrl"`
	Key              string `json:"key"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

type sectionRequest struct {
	CourseID int64  `json:"courseId"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Order    int    `json:"order"`
}

type sectionResponse struct {
	ID       int64  `json:"id"`
	CourseID int64  `json:"courseId"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Order    int    `json:"order"`
}

type resourceResponse struct {
	ID          int64  `json:"id"`
	Order       int    `json:"order"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	MediaURL    string `json:"mediaUrl"`
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

type syncResponse struct {
	Created []struct {
		TempID string `json:"tempId"`
		ID     int64  `json:"id"`
	} `json:"created"`
}

func toSectionRequest(f composer.SectionFields) sectionRequest {
	return sectionRequest{
		CourseID: f.CourseID,
		Name:     f.Name,
		Status:   string(f.Status),
		Order:    f.Order,
	}
}

func toResourceWrite(w composer.ResourceWrite) resourceWrite {
	return resourceWrite{
		ID:          w.ID,
		TempID:      w.TempID,
		Order:       w.Order,
		Title:       w.Title,
		Description: w.Description,
		Status:      string(w.Status),
		MediaURL:    w.MediaURL,
	}
}

// toSyncRequest flattens the reconciliation; FinalOrder is carried by each write's order.
func toSyncRequest(req composer.SyncRequest) syncRequest {
	out := syncRequest{
		Creates: make([]resourceWrite, 0, len(req.Creates)),
		Updates: make([]resourceWrite, 0, len(req.Updates)),
		Deletes: append([]int64{}, req.Deletes...),
	}
	for _, w := range req.Creates {
		out.Creates = append(out.Creates, toResourceWrite(w))
	}
	for _, w := range req.Updates {
		out.Updates = append(out.Updates, toResourceWrite(w))
	}
	return out
}

func (s sectionResponse) toSnapshot() composer.SectionSnapshot {
	status, ok := composer.ParseStatus(s.Status)
	if !ok {
		status = composer.StatusActive
	}
	return composer.SectionSnapshot{
		ID:       s.ID,
		CourseID: s.CourseID,
		Name:     s.Name,
		Status:   status,
		Order:    s.Order,
	}
}
