package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"course-backend/internal/composer"
)

// Manifest describes one composer session. Edits are applied in order: classes, then
// removals, then moves. Move positions are 1-based and refer to the list after removals.
type Manifest struct {
	CourseID  int64           `yaml:"courseId"`
	SectionID int64           `yaml:"sectionId"`
	Name      string          `yaml:"name"`
	Status    string          `yaml:"status"`
	Order     int             `yaml:"order"`
	Classes   []ManifestClass `yaml:"classes"`
	Remove    []int64         `yaml:"remove"`
	Move      []ManifestMove  `yaml:"move"`

	dir string
}

type ManifestClass struct {
	ID          int64  `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Status      string `yaml:"status"`
	Video       string `yaml:"video"`
}

type ManifestMove struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

func loadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if m.SectionID == 0 && m.CourseID <= 0 {
		return Manifest{}, fmt.Errorf("manifest: courseId is required when sectionId is not set")
	}
	if m.Order <= 0 {
		m.Order = 1
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

// videoPath resolves a class video relative to the manifest.
func (m Manifest) videoPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.dir, p)
}

// describeFunc turns a local path into an attachable file.
type describeFunc func(path string) (composer.File, error)

// applyManifest replays the manifest onto the controller's edit buffer.
func applyManifest(ctl *composer.Controller, m Manifest, describe describeFunc) error {
	if strings.TrimSpace(m.Name) != "" {
		ctl.SetName(m.Name)
	}
	if m.Status != "" && !ctl.SetStatus(m.Status) {
		return fmt.Errorf("section status %q is not active or inactive", m.Status)
	}

	store := ctl.Store()
	// A new section starts with one empty class; the first new class fills it.
	reuse := ctl.Mode() == composer.ModeCreate && store.Len() == 1
	for n, class := range m.Classes {
		idx := -1
		switch {
		case class.ID > 0:
			idx = indexOfPersisted(store, class.ID)
			if idx < 0 {
				return fmt.Errorf("class %d: resource %d is not in this section", n+1, class.ID)
			}
		case reuse:
			idx = 0
			reuse = false
		default:
			if _, ok := store.Add(); !ok {
				return fmt.Errorf("class %d: composer is not accepting edits", n+1)
			}
			idx = store.Len() - 1
		}
		if err := applyClass(store, idx, class, m, describe); err != nil {
			return fmt.Errorf("class %d: %w", n+1, err)
		}
	}

	if len(m.Remove) > 0 {
		for _, id := range m.Remove {
			idx := indexOfPersisted(store, id)
			if idx < 0 {
				return fmt.Errorf("remove: resource %d is not in this section", id)
			}
			store.SetSelected(idx, true)
		}
		store.RemoveSelected()
	}

	for _, mv := range m.Move {
		if !store.BeginDrag(mv.From-1) || !store.DropOn(mv.To-1) {
			store.CancelDrag()
			return fmt.Errorf("move %d -> %d: position out of range", mv.From, mv.To)
		}
	}
	return nil
}

func applyClass(store *composer.DraftStore, idx int, class ManifestClass, m Manifest, describe describeFunc) error {
	if class.Title != "" {
		store.SetField(idx, composer.FieldTitle, class.Title)
	}
	if class.Description != "" {
		store.SetField(idx, composer.FieldDescription, class.Description)
	}
	if class.Status != "" && !store.SetField(idx, composer.FieldStatus, class.Status) {
		return fmt.Errorf("status %q is not active or inactive", class.Status)
	}
	if class.Video == "" {
		return nil
	}
	f, err := describe(m.videoPath(class.Video))
	if err != nil {
		return err
	}
	if err := store.SetAttachmentChecked(idx, f); err != nil {
		return fmt.Errorf("attach %s: %w", f.Name, err)
	}
	return nil
}

func indexOfPersisted(store *composer.DraftStore, id int64) int {
	for i, d := range store.Drafts() {
		if d.ID.PersistedID == id {
			return i
		}
	}
	return -1
}
