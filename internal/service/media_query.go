package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mediaapi/internal/inspect"
	"mediaapi/internal/model"
	"mediaapi/internal/pipeline"
	"mediaapi/internal/repository"
	"mediaapi/internal/storage"
	"mediaapi/internal/validate"
)

func (s *mediaService) find(ctx context.Context, id string) (*model.MediaFile, error) {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// Get returns a media record by ID.
func (s *mediaService) Get(ctx context.Context, id string) (*model.MediaFile, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	return s.find(ctx, id)
}

// GetBySlug returns a media record by slug.
func (s *mediaService) GetBySlug(ctx context.Context, slug string) (*model.MediaFile, error) {
	if slug == "" {
		return nil, ErrIDRequired
	}
	m, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// List returns paginated media without exposing repository types.
func (s *mediaService) List(ctx context.Context, in ListInput) (*MediaListResult, error) {
	if in.Kind != "" && !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", validate.ErrInvalidKind, in.Kind)
	}
	limit, offset := in.Limit, in.Offset
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 || in.After != nil {
		offset = 0
	}

	res, err := s.repo.List(ctx,
		repository.MediaFilter{Kind: in.Kind, Public: in.Public, After: in.After},
		repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &MediaListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *mediaService) UpdateDetails(ctx context.Context, id string, in DetailsInput) (*model.MediaFile, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	rec, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		rec.Title = *in.Title
	}
	if in.Description != nil {
		rec.Description = *in.Description
	}
	if in.AltText != nil && rec.Kind == model.KindImage {
		rec.AltText = *in.AltText
	}
	if in.IsPublic != nil {
		rec.IsPublic = *in.IsPublic
	}
	rec.UpdatedAt = s.now()

	updated, err := s.repo.Update(ctx, rec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

// Delete removes the original and its artifacts from storage, then deletes the record.
func (s *mediaService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	rec, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	// Delete from storage first; if this fails, keep DB row to avoid orphaned storage reference loss
	if err := s.deleteKeys(ctx, objectKeys(rec)); err != nil {
		return fmt.Errorf("delete storage: %w", err)
	}
	// Delete DB row (repository ignores missing row errors as per contract)
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("media deleted", zap.String("id", id), zap.String("name", rec.DisplayName()), zap.String("storage_path", rec.StoragePath))
	return nil
}

func (s *mediaService) Open(ctx context.Context, id string) (*Object, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	rec, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	rc, info, err := s.store.Get(ctx, rec.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open storage: %w", err)
	}
	size := info.Size
	if size <= 0 {
		size = rec.Size
	}
	return &Object{Body: rc, ContentType: rec.ContentType, Size: size, Filename: rec.OriginalFilename}, nil
}

func (s *mediaService) OpenArtifact(ctx context.Context, id string, kind model.ArtifactKind) (*Object, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	rec, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	a, ok := rec.Artifact(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, kind)
	}
	rc, _, err := s.store.Get(ctx, a.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, kind)
		}
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &Object{Body: rc, ContentType: a.ContentType, Size: a.Size, Filename: path.Base(a.StoragePath)}, nil
}

func (s *mediaService) PresignURL(ctx context.Context, id string, expiry time.Duration) (string, error) {
	if id == "" {
		return "", ErrIDRequired
	}
	rec, err := s.find(ctx, id)
	if err != nil {
		return "", err
	}
	if expiry <= 0 {
		expiry = s.expiry
	}
	return s.store.PresignGet(ctx, rec.StoragePath, expiry)
}

func (s *mediaService) Verify(ctx context.Context, id string) (_ *IntegrityReport, err error) {
	ctx, span := tracer.Start(ctx, "MediaService.Verify",
		trace.WithAttributes(attribute.String("media.id", id)))
	defer func() { finishSpan(span, err) }()

	if id == "" {
		return nil, ErrIDRequired
	}
	rec, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{
		ID:          rec.ID,
		StoragePath: rec.StoragePath,
		Expected:    rec.Checksum,
		CheckedAt:   s.now(),
	}
	rc, _, err := s.store.Get(ctx, rec.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			report.Missing = true
			span.SetAttributes(attribute.Bool("media.integrity_ok", false))
			return report, nil
		}
		return nil, fmt.Errorf("open storage: %w", err)
	}
	defer rc.Close()

	actual, err := inspect.Checksum(rc)
	if err != nil {
		return nil, fmt.Errorf("checksum: %w", err)
	}
	report.Actual = actual
	report.OK = actual == rec.Checksum
	span.SetAttributes(attribute.Bool("media.integrity_ok", report.OK))
	if !report.OK {
		s.log.Warn("media checksum mismatch",
			zap.String("id", rec.ID),
			zap.String("expected", rec.Checksum),
			zap.String("actual", actual))
	}
	return report, nil
}

func (s *mediaService) Frame(ctx context.Context, id string, at float64) ([]byte, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	rec, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Kind != model.KindVideo {
		return nil, ErrNotVideo
	}
	if at < 0 {
		at = 0
	}

	rc, _, err := s.store.Get(ctx, rec.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open storage: %w", err)
	}
	staged, err := pipeline.Stage(rc, s.tempDir, 0)
	rc.Close()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := staged.Cleanup(); err != nil {
			s.log.Warn("temp file cleanup failed", zap.String("path", staged.Path), zap.Error(err))
		}
	}()

	return s.runner.Frame(ctx, staged.Path, at, 0, 0)
}
