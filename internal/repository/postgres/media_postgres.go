package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"mediaapi/internal/model"
	"mediaapi/internal/repository"
)

// MediaPostgres is a PostgreSQL implementation of repository.MediaRepository.
// Per-kind attributes and the artifact list are stored as JSONB.
type MediaPostgres struct {
	db *sql.DB
}

// NewMediaPostgres creates a new MediaPostgres repository.
func NewMediaPostgres(db *sql.DB) *MediaPostgres {
	return &MediaPostgres{db: db}
}

var _ repository.MediaRepository = (*MediaPostgres)(nil)

const mediaColumns = `id, kind, title, description, original_filename, extension, content_type,
		checksum, size, is_public, slug, storage_path, alt_text, width, height, page_count,
		duration_seconds, attributes, artifacts, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedia(s rowScanner) (*model.MediaFile, error) {
	var (
		m                              model.MediaFile
		kind                           string
		width, height, pages, duration sql.NullInt64
		attrs, artifacts               []byte
	)
	if err := s.Scan(
		&m.ID,
		&kind,
		&m.Title,
		&m.Description,
		&m.OriginalFilename,
		&m.Extension,
		&m.ContentType,
		&m.Checksum,
		&m.Size,
		&m.IsPublic,
		&m.Slug,
		&m.StoragePath,
		&m.AltText,
		&width,
		&height,
		&pages,
		&duration,
		&attrs,
		&artifacts,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	m.Kind = model.Kind(kind)
	m.Width = intPtr(width)
	m.Height = intPtr(height)
	m.PageCount = intPtr(pages)
	m.DurationSeconds = intPtr(duration)

	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &m.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", m.ID, err)
		}
	}
	if len(artifacts) > 0 {
		if err := json.Unmarshal(artifacts, &m.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts of %s: %w", m.ID, err)
		}
	}
	return &m, nil
}

const slugIndex = "idx_media_files_slug"

// checkSlug maps a unique violation on the slug index to ErrSlugTaken.
func checkSlug(m *model.MediaFile, err error) (*model.MediaFile, error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == slugIndex {
		return nil, repository.ErrSlugTaken
	}
	return m, err
}

func encodeJSON(m *model.MediaFile) (attrs, artifacts string, err error) {
	a := m.Attributes
	if a == nil {
		a = model.Attributes{}
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return "", "", fmt.Errorf("encode attributes: %w", err)
	}
	arts := m.Artifacts
	if arts == nil {
		arts = []model.Artifact{}
	}
	rb, err := json.Marshal(arts)
	if err != nil {
		return "", "", fmt.Errorf("encode artifacts: %w", err)
	}
	return string(ab), string(rb), nil
}

// Create inserts a new media row and returns the stored record.
func (r *MediaPostgres) Create(ctx context.Context, m *model.MediaFile) (*model.MediaFile, error) {
	attrs, artifacts, err := encodeJSON(m)
	if err != nil {
		return nil, err
	}
	q := `
		INSERT INTO media_files (` + mediaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING ` + mediaColumns
	row := r.db.QueryRowContext(ctx, q,
		m.ID,
		string(m.Kind),
		m.Title,
		m.Description,
		m.OriginalFilename,
		m.Extension,
		m.ContentType,
		m.Checksum,
		m.Size,
		m.IsPublic,
		m.Slug,
		m.StoragePath,
		m.AltText,
		nullInt(m.Width),
		nullInt(m.Height),
		nullInt(m.PageCount),
		nullInt(m.DurationSeconds),
		attrs,
		artifacts,
		m.CreatedAt,
		m.UpdatedAt,
	)
	return checkSlug(scanMedia(row))
}

// Update overwrites the mutable columns of the row with m.ID.
func (r *MediaPostgres) Update(ctx context.Context, m *model.MediaFile) (*model.MediaFile, error) {
	attrs, artifacts, err := encodeJSON(m)
	if err != nil {
		return nil, err
	}
	q := `
		UPDATE media_files SET
			title = $2, description = $3, original_filename = $4, extension = $5,
			content_type = $6, checksum = $7, size = $8, is_public = $9, slug = $10,
			storage_path = $11, alt_text = $12, width = $13, height = $14, page_count = $15,
			duration_seconds = $16, attributes = $17, artifacts = $18, updated_at = $19
		WHERE id = $1
		RETURNING ` + mediaColumns
	row := r.db.QueryRowContext(ctx, q,
		m.ID,
		m.Title,
		m.Description,
		m.OriginalFilename,
		m.Extension,
		m.ContentType,
		m.Checksum,
		m.Size,
		m.IsPublic,
		m.Slug,
		m.StoragePath,
		m.AltText,
		nullInt(m.Width),
		nullInt(m.Height),
		nullInt(m.PageCount),
		nullInt(m.DurationSeconds),
		attrs,
		artifacts,
		m.UpdatedAt,
	)
	return checkSlug(scanMedia(row))
}

// FindByID fetches a single record by its ID.
func (r *MediaPostgres) FindByID(ctx context.Context, id string) (*model.MediaFile, error) {
	q := `SELECT ` + mediaColumns + ` FROM media_files WHERE id = $1`
	return scanMedia(r.db.QueryRowContext(ctx, q, id))
}

// FindBySlug fetches a single record by its slug.
func (r *MediaPostgres) FindBySlug(ctx context.Context, slug string) (*model.MediaFile, error) {
	q := `SELECT ` + mediaColumns + ` FROM media_files WHERE slug = $1`
	return scanMedia(r.db.QueryRowContext(ctx, q, slug))
}

func (r *MediaPostgres) SlugExists(ctx context.Context, slug string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM media_files WHERE slug = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, slug).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// List returns records using LIMIT/OFFSET pagination and a total count.
// With f.After set it pages by keyset instead and the offset should be zero.
func (r *MediaPostgres) List(ctx context.Context, f repository.MediaFilter, pq repository.PageQuery) (*repository.PageResult[model.MediaFile], error) {
	where, args := buildFilter(f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_files`+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT %s FROM media_files%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		mediaColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, pq.Limit, pq.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.MediaFile, 0)
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.MediaFile]{
		Items: items,
		Total: total,
	}, nil
}

// Delete removes a record by ID. It does not return an error if the row does not exist.
func (r *MediaPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM media_files WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

func buildFilter(f repository.MediaFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.Public != nil {
		args = append(args, *f.Public)
		conds = append(conds, fmt.Sprintf("is_public = $%d", len(args)))
	}
	if f.After != nil {
		args = append(args, f.After.CreatedAt, f.After.ID)
		conds = append(conds, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
