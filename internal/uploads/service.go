package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"course-backend/internal/sections"
	"course-backend/internal/shared/metrics"
	"course-backend/internal/shared/storage/object"
	"course-backend/internal/shared/telemetry"
	"course-backend/internal/shared/util"
)

const (
	DefaultMaxBytes = 2 << 30
	DefaultExpires  = 15 * time.Minute

	// ObjectsPath is the API path the local receiver is mounted on.
	ObjectsPath = "/api/v1/uploads/objects/"
)

// SectionLookup resolves the section an upload is scoped to and whether stored resources
// still point at uploaded media.
type SectionLookup interface {
	GetSection(ctx context.Context, id int64) (sections.Section, error)
	MediaInUse(ctx context.Context, urls ...string) (bool, error)
}

// DestinationRequest describes the file a client is about to upload.
type DestinationRequest struct {
	FileName    string
	ContentType string
	SizeBytes   int64
}

// Destination tells the client where to PUT the bytes and the durable URL afterwards.
type Destination struct {
	UploadURL string
	FinalURL  string
	Key       string
	ExpiresIn time.Duration
}

// Service issues upload destinations and manages uploaded media objects.
type Service struct {
	Store     object.ObjectStore
	Presigner Presigner
	Sections  SectionLookup

	// APIBaseURL is the public origin of this API, used for local upload and media URLs.
	APIBaseURL string
	// MediaBaseURL prefixes final URLs when a Presigner is configured.
	MediaBaseURL string
	// MediaKeyFor maps a storage key onto the key under MediaBaseURL.
	MediaKeyFor func(string) string

	MaxBytes int64
	Expires  time.Duration
}

// IssueDestination validates the request and returns a destination scoped to the section.
// Section id 0 scopes the upload to a section that does not exist yet.
func (s *Service) IssueDestination(ctx context.Context, sectionID int64, req DestinationRequest) (Destination, error) {
	if sectionID < 0 {
		return Destination{}, fmt.Errorf("%w: section id must not be negative", ErrInvalidInput)
	}
	contentType, err := videoContentType(req.ContentType)
	if err != nil {
		return Destination{}, err
	}
	if req.SizeBytes <= 0 {
		return Destination{}, fmt.Errorf("%w: sizeBytes must be positive", ErrInvalidInput)
	}
	if req.SizeBytes > s.maxBytes() {
		return Destination{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, req.SizeBytes, s.maxBytes())
	}
	name, err := util.SanitizeFileName(req.FileName)
	if err != nil {
		return Destination{}, fmt.Errorf("%w: invalid fileName", ErrInvalidInput)
	}

	scope := "new"
	if sectionID > 0 {
		scope = strconv.FormatInt(sectionID, 10)
		if s.Sections != nil {
			if _, err := s.Sections.GetSection(ctx, sectionID); err != nil {
				if errors.Is(err, sections.ErrNotFound) {
					return Destination{}, ErrSectionNotFound
				}
				return Destination{}, err
			}
		}
	}
	key := path.Join("sections", scope, uuid.NewString()+"-"+name)

	dest := Destination{Key: key, ExpiresIn: s.expires()}
	if s.Presigner != nil {
		dest.UploadURL, err = s.Presigner.PresignPut(ctx, key, contentType, dest.ExpiresIn)
		if err != nil {
			telemetry.Error("uploads.presign.failed", map[string]any{
				"err":         err.Error(),
				"key":         key,
				"contentType": contentType,
				"sizeBytes":   req.SizeBytes,
			})
			return Destination{}, fmt.Errorf("presign upload: %w", err)
		}
		dest.FinalURL = s.mediaURL(key)
	} else {
		dest.UploadURL = s.localURL(key)
		dest.FinalURL = dest.UploadURL
	}

	metrics.IncUploadsIssued()
	telemetry.Info("uploads.destination.issued", map[string]any{
		"section_id": sectionID,
		"key":        key,
		"sizeBytes":  req.SizeBytes,
		"presigned":  s.Presigner != nil,
	})
	return dest, nil
}

// Receive stores bytes PUT to the local receiver.
func (s *Service) Receive(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	clean, err := util.CleanObjectKey(key)
	if err != nil || !strings.HasPrefix(clean, "sections/") {
		return 0, fmt.Errorf("%w: invalid key", ErrInvalidInput)
	}
	ct, err := videoContentType(contentType)
	if err != nil {
		return 0, err
	}
	limit := s.maxBytes()
	n, err := s.Store.Put(ctx, clean, ct, io.LimitReader(r, limit+1))
	if err != nil {
		return 0, err
	}
	if n > limit {
		if delErr := s.Store.Delete(ctx, clean); delErr != nil {
			telemetry.Warn("uploads.oversize.cleanup_failed", map[string]any{"key": clean, "err": delErr.Error()})
		}
		return 0, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return n, nil
}

// Open streams a stored object.
func (s *Service) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	clean, err := util.CleanObjectKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid key", ErrInvalidInput)
	}
	return s.Store.Open(ctx, clean)
}

// Delete removes an uploaded object. Missing objects are not an error; objects a stored
// resource still references are refused with ErrInUse.
func (s *Service) Delete(ctx context.Context, key string) error {
	clean, err := util.CleanObjectKey(key)
	if err != nil || !strings.HasPrefix(clean, "sections/") {
		return fmt.Errorf("%w: invalid key", ErrInvalidInput)
	}
	if s.Sections != nil {
		urls := []string{s.localURL(clean)}
		if s.Presigner != nil {
			urls = append(urls, s.mediaURL(clean))
		}
		inUse, err := s.Sections.MediaInUse(ctx, urls...)
		if err != nil {
			return fmt.Errorf("check references: %w", err)
		}
		if inUse {
			return fmt.Errorf("%w: %s", ErrInUse, clean)
		}
	}
	if err := s.Store.Delete(ctx, clean); err != nil && !errors.Is(err, object.ErrNotFound) {
		return err
	}
	metrics.IncUploadsDeleted()
	telemetry.Info("uploads.object.deleted", map[string]any{"key": clean})
	return nil
}

func (s *Service) localURL(key string) string {
	return strings.TrimRight(s.APIBaseURL, "/") + ObjectsPath + key
}

func (s *Service) mediaURL(key string) string {
	mapped := key
	if s.MediaKeyFor != nil {
		mapped = s.MediaKeyFor(key)
	}
	return strings.TrimRight(s.MediaBaseURL, "/") + "/" + mapped
}

func (s *Service) maxBytes() int64 {
	if s.MaxBytes > 0 {
		return s.MaxBytes
	}
	return DefaultMaxBytes
}

func (s *Service) expires() time.Duration {
	if s.Expires > 0 {
		return s.Expires
	}
	return DefaultExpires
}

func videoContentType(raw string) (string, error) {
	ct, _, err := mime.ParseMediaType(strings.TrimSpace(raw))
	if err != nil || !strings.HasPrefix(ct, "video/") {
		return "", fmt.Errorf("%w: contentType must be a video type", ErrInvalidInput)
	}
	return ct, nil
}
