package sections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"course-backend/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// CreateSection inserts a new section.
func (r *PGRepo) CreateSection(ctx context.Context, section Section) (Section, error) {
	const query = `
INSERT INTO sections (course_id, name, status, sort_order)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`
	err := r.DB.QueryRowContext(ctx, query,
		section.CourseID,
		section.Name,
		string(section.Status),
		section.Order,
	).Scan(&section.ID, &section.CreatedAt, &section.UpdatedAt)
	if err != nil {
		return Section{}, err
	}
	return section, nil
}

// UpdateSection updates the editable fields of a section.
func (r *PGRepo) UpdateSection(ctx context.Context, section Section) (Section, error) {
	const query = `
UPDATE sections
SET course_id = $1, name = $2, status = $3, sort_order = $4, updated_at = now()
WHERE id = $5
RETURNING created_at, updated_at`
	err := r.DB.QueryRowContext(ctx, query,
		section.CourseID,
		section.Name,
		string(section.Status),
		section.Order,
		section.ID,
	).Scan(&section.CreatedAt, &section.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Section{}, ErrNotFound
		}
		return Section{}, err
	}
	return section, nil
}

// GetSection fetches a section by id.
func (r *PGRepo) GetSection(ctx context.Context, id int64) (Section, error) {
	const query = `
SELECT id, course_id, name, status, sort_order, created_at, updated_at
FROM sections
WHERE id = $1`
	var section Section
	var status string
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&section.ID,
		&section.CourseID,
		&section.Name,
		&status,
		&section.Order,
		&section.CreatedAt,
		&section.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Section{}, ErrNotFound
		}
		return Section{}, err
	}
	section.Status = Status(status)
	return section, nil
}

// ListSections lists the sections of a course by position.
func (r *PGRepo) ListSections(ctx context.Context, courseID int64) ([]Section, error) {
	const query = `
SELECT id, course_id, name, status, sort_order, created_at, updated_at
FROM sections
WHERE course_id = $1
ORDER BY sort_order, id`
	rows, err := r.DB.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Section{}
	for rows.Next() {
		var section Section
		var status string
		if err := rows.Scan(
			&section.ID,
			&section.CourseID,
			&section.Name,
			&status,
			&section.Order,
			&section.CreatedAt,
			&section.UpdatedAt,
		); err != nil {
			return nil, err
		}
		section.Status = Status(status)
		out = append(out, section)
	}
	return out, rows.Err()
}

// ListResources lists a section's resources by position.
func (r *PGRepo) ListResources(ctx context.Context, sectionID int64) ([]Resource, error) {
	const query = `
SELECT id, section_id, sort_order, title, description, status, media_url, created_at, updated_at
FROM resources
WHERE section_id = $1
ORDER BY sort_order, id`
	rows, err := r.DB.QueryContext(ctx, query, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Resource{}
	for rows.Next() {
		var res Resource
		var status string
		var mediaURL sql.NullString
		if err := rows.Scan(
			&res.ID,
			&res.SectionID,
			&res.Order,
			&res.Title,
			&res.Description,
			&status,
			&mediaURL,
			&res.CreatedAt,
			&res.UpdatedAt,
		); err != nil {
			return nil, err
		}
		res.Status = Status(status)
		if mediaURL.Valid {
			res.MediaURL = mediaURL.String
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// SyncResources applies the batch in one transaction, locking the section row first.
func (r *PGRepo) SyncResources(ctx context.Context, sectionID int64, in SyncInput) ([]CreatedResource, error) {
	var created []CreatedResource
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var locked int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM sections WHERE id = $1 FOR UPDATE`, sectionID).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		owned, err := ownedResourceIDs(ctx, tx, sectionID)
		if err != nil {
			return err
		}
		if err := checkOwnership(sectionID, owned, in); err != nil {
			return err
		}

		for _, id := range in.Deletes {
			if _, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id = $1 AND section_id = $2`, id, sectionID); err != nil {
				return fmt.Errorf("delete resource %d: %w", id, err)
			}
		}

		const update = `
UPDATE resources
SET sort_order = $1, title = $2, description = $3, status = $4, media_url = $5, updated_at = now()
WHERE id = $6 AND section_id = $7`
		for _, u := range in.Updates {
			if _, err := tx.ExecContext(ctx, update,
				u.Order,
				u.Title,
				u.Description,
				string(u.Status),
				nullString(u.MediaURL),
				u.ID,
				sectionID,
			); err != nil {
				return fmt.Errorf("update resource %d: %w", u.ID, err)
			}
		}

		const insert = `
INSERT INTO resources (section_id, sort_order, title, description, status, media_url)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
		created = make([]CreatedResource, 0, len(in.Creates))
		for _, c := range in.Creates {
			var id int64
			if err := tx.QueryRowContext(ctx, insert,
				sectionID,
				c.Order,
				c.Title,
				c.Description,
				string(c.Status),
				nullString(c.MediaURL),
			).Scan(&id); err != nil {
				return fmt.Errorf("insert resource %q: %w", c.TempID, err)
			}
			created = append(created, CreatedResource{TempID: c.TempID, ID: id})
		}

		_, err = tx.ExecContext(ctx, `UPDATE sections SET updated_at = now() WHERE id = $1`, sectionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func ownedResourceIDs(ctx context.Context, tx *sql.Tx, sectionID int64) (map[int64]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM resources WHERE section_id = $1`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	owned := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owned[id] = struct{}{}
	}
	return owned, rows.Err()
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// MediaInUse checks each url against resources.media_url.
func (r *PGRepo) MediaInUse(ctx context.Context, urls []string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM resources WHERE media_url = $1)`
	for _, u := range urls {
		var found bool
		if err := r.DB.QueryRowContext(ctx, query, u).Scan(&found); err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

var _ Repo = (*PGRepo)(nil)
