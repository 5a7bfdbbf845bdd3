package composer

import (
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Status is the visibility of a section or resource.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus accepts the canonical values case-insensitively.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusActive:
		return StatusActive, true
	case StatusInactive:
		return StatusInactive, true
	default:
		return "", false
	}
}

// Identity names a draft. Exactly one of PersistedID and TempID is set.
// Only persisted ids are ever sent as update or delete targets.
type Identity struct {
	PersistedID int64
	TempID      string
}

// Persisted returns the identity of a resource that already exists server-side.
func Persisted(id int64) Identity { return Identity{PersistedID: id} }

// Temporary returns a locally generated identity for a resource not yet created.
func Temporary(tempID string) Identity { return Identity{TempID: tempID} }

// IsPersisted reports whether the identity refers to a stored resource.
func (i Identity) IsPersisted() bool { return i.PersistedID > 0 }

func (i Identity) String() string {
	if i.IsPersisted() {
		return strconv.FormatInt(i.PersistedID, 10)
	}
	return i.TempID
}

// File is a locally held media file the user attached but has not uploaded.
type File struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

// Open opens the file for streaming to an upload target.
func (f File) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// The platform mime tables are not guaranteed to know video extensions.
var videoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".ogv":  "video/ogg",
	".3gp":  "video/3gpp",
}

// MediaType returns the declared content type, falling back to the extension.
func (f File) MediaType() string {
	if ct := strings.TrimSpace(f.ContentType); ct != "" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil {
			return parsed
		}
		return strings.ToLower(ct)
	}
	name := f.Name
	if name == "" {
		name = f.Path
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := videoExtensions[ext]; ok {
		return ct
	}
	byExt := mime.TypeByExtension(ext)
	if parsed, _, err := mime.ParseMediaType(byExt); err == nil {
		return parsed
	}
	return ""
}

// IsVideo reports whether the file may be attached to a draft.
func (f File) IsVideo() bool {
	return strings.HasPrefix(f.MediaType(), "video/")
}

// AttachmentKind distinguishes durable media from locally held media.
type AttachmentKind int

const (
	// AttachmentRemote is a durable URL already persisted server-side.
	AttachmentRemote AttachmentKind = iota + 1
	// AttachmentPending is a local file plus its preview reference, not yet uploaded.
	AttachmentPending
)

// Attachment is the single media item a draft may carry.
type Attachment struct {
	Kind AttachmentKind

	URL string

	File      File
	Preview   PreviewRef
	Thumbnail string // data URI, empty while extraction runs or when unavailable
}

// ResourceDraft is one lesson ("class") under edit.
type ResourceDraft struct {
	ID                 Identity
	Order              int
	Title              string
	Description        string
	Status             Status
	SelectedForRemoval bool
	Attachment         *Attachment
}

// Pending reports whether the draft holds a not-yet-uploaded file.
func (d ResourceDraft) Pending() bool {
	return d.Attachment != nil && d.Attachment.Kind == AttachmentPending
}

// MediaURL returns the durable URL for remote attachments, or "".
func (d ResourceDraft) MediaURL() string {
	if d.Attachment != nil && d.Attachment.Kind == AttachmentRemote {
		return d.Attachment.URL
	}
	return ""
}

func (d ResourceDraft) clone() ResourceDraft {
	out := d
	if d.Attachment != nil {
		a := *d.Attachment
		out.Attachment = &a
	}
	return out
}

func cloneDrafts(in []ResourceDraft) []ResourceDraft {
	out := make([]ResourceDraft, len(in))
	for i := range in {
		out[i] = in[i].clone()
	}
	return out
}
