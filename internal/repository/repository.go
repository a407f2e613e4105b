// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.
package repository

import (
	"errors"
	"time"

	"mediaapi/internal/model"
)

// ErrSlugTaken is returned by Create and Update when another row already
// holds the slug.
var ErrSlugTaken = errors.New("slug already taken")

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}

// Cursor is a position in the newest-first ordering of List.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the position just after m.
func CursorOf(m model.MediaFile) *Cursor {
	return &Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// MediaFilter narrows List results. Zero values do not filter.
// After restricts the results and the total to rows older than the cursor.
type MediaFilter struct {
	Kind   model.Kind
	Public *bool
	After  *Cursor
}
