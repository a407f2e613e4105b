package repository

import (
	"context"

	"mediaapi/internal/model"
)

// MediaRepository defines persistence for media file records.
// Lookups of missing rows return sql.ErrNoRows.
type MediaRepository interface {
	// Create inserts a new record and returns it as stored.
	Create(ctx context.Context, m *model.MediaFile) (*model.MediaFile, error)

	// Update overwrites every mutable column of an existing record.
	Update(ctx context.Context, m *model.MediaFile) (*model.MediaFile, error)

	FindByID(ctx context.Context, id string) (*model.MediaFile, error)
	FindBySlug(ctx context.Context, slug string) (*model.MediaFile, error)

	// SlugExists reports whether any record uses slug.
	SlugExists(ctx context.Context, slug string) (bool, error)

	// List returns a page of records, newest first, and the total matching count.
	List(ctx context.Context, f MediaFilter, pq PageQuery) (*PageResult[model.MediaFile], error)

	// Delete removes a record by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error
}
