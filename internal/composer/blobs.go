package composer

import (
	"sync"

	"github.com/google/uuid"

	"course-backend/internal/shared/telemetry"
)

// PreviewRef is a revocable local reference to an attached file, usable as a media source
// until released.
type PreviewRef string

// PreviewPool hands out and revokes preview references.
// Release must be idempotent: it returns true only for the call that actually revoked the ref.
type PreviewPool interface {
	Acquire(f File) PreviewRef
	Release(ref PreviewRef) bool
}

// BlobStats counts preview references over the life of a pool.
type BlobStats struct {
	Acquired int
	Released int
	Live     int
}

// BlobManager is the owner-tracked PreviewPool used by composer sessions.
type BlobManager struct {
	mu       sync.Mutex
	live     map[PreviewRef]File
	acquired int
	released int
	revoke   func(ref PreviewRef, f File) error
}

// NewBlobManager returns an empty pool.
func NewBlobManager() *BlobManager {
	return &BlobManager{live: make(map[PreviewRef]File)}
}

// OnRevoke installs a hook run when a reference is released. Hook errors are logged and dropped.
func (m *BlobManager) OnRevoke(fn func(ref PreviewRef, f File) error) {
	m.mu.Lock()
	m.revoke = fn
	m.mu.Unlock()
}

// Acquire creates a new preview reference for f.
func (m *BlobManager) Acquire(f File) PreviewRef {
	ref := PreviewRef("blob:" + uuid.NewString())
	m.mu.Lock()
	m.live[ref] = f
	m.acquired++
	m.mu.Unlock()
	return ref
}

// Release invalidates ref. Unknown, empty, or already released refs are a no-op.
func (m *BlobManager) Release(ref PreviewRef) bool {
	if ref == "" {
		return false
	}
	m.mu.Lock()
	f, ok := m.live[ref]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.live, ref)
	m.released++
	revoke := m.revoke
	m.mu.Unlock()

	if revoke != nil {
		if err := revoke(ref, f); err != nil {
			telemetry.Warn("composer.preview.revoke_failed", map[string]any{
				"ref": string(ref),
				"err": err.Error(),
			})
		}
	}
	return true
}

// Resolve returns the file behind a live reference.
func (m *BlobManager) Resolve(ref PreviewRef) (File, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.live[ref]
	return f, ok
}

// Stats reports acquire/release accounting.
func (m *BlobManager) Stats() BlobStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return BlobStats{Acquired: m.acquired, Released: m.released, Live: len(m.live)}
}

var _ PreviewPool = (*BlobManager)(nil)
