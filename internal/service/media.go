package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mediaapi/internal/artifact"
	"mediaapi/internal/ffmpeg"
	"mediaapi/internal/inspect"
	"mediaapi/internal/model"
	"mediaapi/internal/pipeline"
	"mediaapi/internal/repository"
	"mediaapi/internal/storage"
	"mediaapi/internal/validate"
)

var (
	ErrIDRequired       = errors.New("id is required")
	ErrNotFound         = errors.New("media not found")
	ErrReaderNil        = errors.New("reader is nil")
	ErrKindMismatch     = errors.New("file does not match the media kind of the record")
	ErrNotVideo         = errors.New("media is not a video")
	ErrArtifactNotFound = errors.New("artifact not found")
)

var tracer = otel.Tracer("mediaapi/internal/service")

// UploadInput carries a new file and its editable details.
// Kind may be empty, in which case it is inferred from the extension.
// Size is the declared length or -1 when unknown.
type UploadInput struct {
	Reader      io.Reader
	Filename    string
	Kind        model.Kind
	Size        int64
	Title       string
	Description string
	AltText     string
	IsPublic    bool
}

// ReplaceInput carries the new content of an existing record.
type ReplaceInput struct {
	Reader   io.Reader
	Filename string
	Size     int64
}

// DetailsInput lists the editable fields. Nil fields are left unchanged.
type DetailsInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	AltText     *string `json:"alt_text"`
	IsPublic    *bool   `json:"is_public"`
}

// ListInput filters and pages List. A non-nil After pages by keyset from
// that position and Total counts only the rows past it.
type ListInput struct {
	Kind   model.Kind
	Public *bool
	Limit  int
	Offset int
	After  *repository.Cursor
}

// MediaListResult is the service-level DTO for paginated media.
type MediaListResult struct {
	Items []model.MediaFile `json:"data"`
	Total int               `json:"total"`
}

// ArtifactSummary describes a derived artifact without its content.
type ArtifactSummary struct {
	Kind        model.ArtifactKind `json:"kind"`
	Name        string             `json:"name"`
	ContentType string             `json:"content_type"`
	Size        int64              `json:"size"`
}

// InspectResult is what the pipeline learned about a file that was not stored.
type InspectResult struct {
	Kind            model.Kind        `json:"kind"`
	Filename        string            `json:"filename"`
	Extension       string            `json:"extension"`
	ContentType     string            `json:"content_type"`
	MIMESniffed     bool              `json:"mime_sniffed"`
	Checksum        string            `json:"checksum"`
	Size            int64             `json:"size"`
	HumanSize       string            `json:"human_size"`
	Width           *int              `json:"width,omitempty"`
	Height          *int              `json:"height,omitempty"`
	PageCount       *int              `json:"page_count,omitempty"`
	DurationSeconds *int              `json:"duration_seconds,omitempty"`
	Attributes      model.Attributes  `json:"attributes,omitempty"`
	Artifacts       []ArtifactSummary `json:"artifacts,omitempty"`
	Text            string            `json:"text,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// IntegrityReport compares the stored checksum with the stored object.
type IntegrityReport struct {
	ID          string    `json:"id"`
	StoragePath string    `json:"storage_path"`
	Expected    string    `json:"expected"`
	Actual      string    `json:"actual,omitempty"`
	Missing     bool      `json:"missing"`
	OK          bool      `json:"ok"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Object is an open stored file. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
	Filename    string
}

// MediaService defines the use cases for handling media files.
type MediaService interface {
	// Upload validates, processes and stores a new file with its artifacts, then saves the record.
	// Stored objects are removed again if the record cannot be saved.
	Upload(ctx context.Context, in UploadInput) (*model.MediaFile, error)

	// Replace swaps the content of an existing record. Every derived fact and the checksum are
	// recomputed; the previous objects are deleted once the record is updated.
	Replace(ctx context.Context, id string, in ReplaceInput) (*model.MediaFile, error)

	UpdateDetails(ctx context.Context, id string, in DetailsInput) (*model.MediaFile, error)

	Get(ctx context.Context, id string) (*model.MediaFile, error)
	GetBySlug(ctx context.Context, slug string) (*model.MediaFile, error)

	// List returns media using limit/offset and a total count.
	List(ctx context.Context, in ListInput) (*MediaListResult, error)

	// Delete removes the stored objects first, then the record.
	Delete(ctx context.Context, id string) error

	Open(ctx context.Context, id string) (*Object, error)
	OpenArtifact(ctx context.Context, id string, kind model.ArtifactKind) (*Object, error)

	// PresignURL returns a temporary download URL. expiry <= 0 uses the configured default.
	PresignURL(ctx context.Context, id string, expiry time.Duration) (string, error)

	// Verify recomputes the checksum of the stored original.
	Verify(ctx context.Context, id string) (*IntegrityReport, error)

	// Frame extracts a JPEG frame at the given second of a stored video.
	Frame(ctx context.Context, id string, at float64) ([]byte, error)

	// Inspect runs the pipeline on r without storing anything.
	Inspect(ctx context.Context, r io.Reader, filename string, kind model.Kind) (*InspectResult, error)
}

// Options holds the non-collaborator settings of the media service.
type Options struct {
	TempDir       string
	PresignExpiry time.Duration
	Logger        *zap.Logger
}

// mediaService is a concrete implementation of MediaService.
type mediaService struct {
	store     storage.Storage
	repo      repository.MediaRepository
	validator *validate.Validator
	processor *pipeline.Processor
	runner    ffmpeg.Runner
	tempDir   string
	expiry    time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// NewMediaService constructs a new MediaService.
func NewMediaService(
	store storage.Storage,
	repo repository.MediaRepository,
	v *validate.Validator,
	proc *pipeline.Processor,
	runner ffmpeg.Runner,
	opts Options,
) MediaService {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	expiry := opts.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &mediaService{
		store:     store,
		repo:      repo,
		validator: v,
		processor: proc,
		runner:    runner,
		tempDir:   opts.TempDir,
		expiry:    expiry,
		log:       log.Named("media"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// prepared is a staged and processed upload. cleanup removes the temp file.
type prepared struct {
	kind   model.Kind
	ext    string
	staged *pipeline.Staged
	result *pipeline.Result
}

func (p *prepared) cleanup(log *zap.Logger) {
	if err := p.staged.Cleanup(); err != nil {
		log.Warn("temp file cleanup failed", zap.String("path", p.staged.Path), zap.Error(err))
	}
}

// resolveKind validates the filename and picks the kind, inferring it from
// the extension when kind is empty.
func (s *mediaService) resolveKind(filename string, kind model.Kind) (model.Kind, string, error) {
	if err := s.validator.Filename(filename); err != nil {
		return "", "", err
	}
	ext := inspect.Extension(filename)
	if kind == "" {
		k, err := s.validator.KindForExtension(ext)
		if err != nil {
			return "", "", err
		}
		kind = k
	}
	if err := s.validator.Extension(kind, ext); err != nil {
		return "", "", err
	}
	return kind, ext, nil
}

// prepare stages r and runs the pipeline. The caller owns cleanup on success.
func (s *mediaService) prepare(ctx context.Context, r io.Reader, filename string, kind model.Kind, ext string, size int64) (*prepared, error) {
	if err := s.validator.Size(size); err != nil {
		return nil, err
	}
	staged, err := pipeline.Stage(r, s.tempDir, s.validator.MaxBytes())
	if err != nil {
		return nil, err
	}
	p := &prepared{kind: kind, ext: ext, staged: staged}

	res, err := s.processor.Process(ctx, staged, filename, kind)
	if err != nil {
		p.cleanup(s.log)
		return nil, err
	}
	p.result = res

	if err := s.validator.MIME(res.Metadata.ContentType, kind); err != nil {
		if s.validator.Strict() {
			p.cleanup(s.log)
			return nil, err
		}
		s.log.Warn("content type does not match media kind",
			zap.String("filename", filename),
			zap.String("content_type", res.Metadata.ContentType),
			zap.String("kind", string(kind)))
	}
	return p, nil
}

// storeOriginal uploads the staged file under key.
func (s *mediaService) storeOriginal(ctx context.Context, key, filename string, p *prepared) (storage.ObjectInfo, error) {
	f, err := p.staged.Open()
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	info, err := s.store.Put(ctx, key, f, storage.PutObjectOptions{
		Size:        p.staged.Size,
		ContentType: p.result.Metadata.ContentType,
		Metadata: map[string]string{
			"original-filename": filename,
			"checksum":          p.staged.Checksum,
		},
	})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload to storage: %w", err)
	}
	return info, nil
}

// storeArtifacts uploads derived artifacts under prefix. A failed artifact is
// logged and left out; it never fails the upload.
func (s *mediaService) storeArtifacts(ctx context.Context, prefix string, arts []artifact.Artifact) []model.Artifact {
	out := make([]model.Artifact, 0, len(arts))
	for _, a := range arts {
		key := path.Join(prefix, a.Name)
		info, err := s.store.Put(ctx, key, bytes.NewReader(a.Data), storage.PutObjectOptions{
			Size:        int64(len(a.Data)),
			ContentType: a.ContentType,
		})
		if err != nil {
			s.log.Warn("artifact upload failed", zap.String("key", key), zap.Error(err))
			continue
		}
		out = append(out, model.Artifact{
			Kind:        a.Kind,
			StoragePath: info.Key,
			ContentType: a.ContentType,
			Size:        int64(len(a.Data)),
		})
	}
	return out
}

// deleteKeys removes every key and joins the failures.
func (s *mediaService) deleteKeys(ctx context.Context, keys []string) error {
	var errs []error
	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := s.store.Delete(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// maxSlugAttempts bounds how often Upload retries Create after losing a
// slug to a concurrent insert.
const maxSlugAttempts = 5

// uniqueSlug returns the first free slug of base, base-2, base-3 and so on,
// starting at suffix n (1 is base itself), together with the suffix used.
func (s *mediaService) uniqueSlug(ctx context.Context, base string, n int) (string, int, error) {
	for ; ; n++ {
		slug := base
		if n > 1 {
			slug = fmt.Sprintf("%s-%d", base, n)
		}
		exists, err := s.repo.SlugExists(ctx, slug)
		if err != nil {
			return "", n, fmt.Errorf("check slug: %w", err)
		}
		if !exists {
			return slug, n, nil
		}
	}
}

// create inserts rec under a free slug of base. A slug taken between the
// check and the insert moves on to the next suffix.
func (s *mediaService) create(ctx context.Context, rec *model.MediaFile, base string) (*model.MediaFile, error) {
	n := 1
	for attempt := 1; ; attempt++ {
		slug, used, err := s.uniqueSlug(ctx, base, n)
		if err != nil {
			return nil, err
		}
		rec.Slug = slug
		created, err := s.repo.Create(ctx, rec)
		if err == nil || !errors.Is(err, repository.ErrSlugTaken) || attempt == maxSlugAttempts {
			return created, err
		}
		s.log.Debug("slug taken concurrently, retrying", zap.String("slug", slug), zap.Int("attempt", attempt))
		n = used + 1
	}
}

func (s *mediaService) Upload(ctx context.Context, in UploadInput) (_ *model.MediaFile, err error) {
	ctx, span := tracer.Start(ctx, "MediaService.Upload",
		trace.WithAttributes(attribute.String("media.filename", in.Filename)))
	defer func() { finishSpan(span, err) }()

	if in.Reader == nil {
		return nil, ErrReaderNil
	}
	kind, ext, err := s.resolveKind(in.Filename, in.Kind)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("media.kind", string(kind)))

	p, err := s.prepare(ctx, in.Reader, in.Filename, kind, ext, in.Size)
	if err != nil {
		return nil, err
	}
	defer p.cleanup(s.log)

	now := s.now()
	id := uuid.New().String()
	key := originalKey(kind, now, id, in.Filename)

	info, err := s.storeOriginal(ctx, key, in.Filename, p)
	if err != nil {
		return nil, err
	}
	artifacts := s.storeArtifacts(ctx, artifactPrefix(kind, id, ""), p.result.Artifacts)

	stored := make([]string, 0, len(artifacts)+1)
	stored = append(stored, info.Key)
	for _, a := range artifacts {
		stored = append(stored, a.StoragePath)
	}

	md := p.result.Metadata
	rec := &model.MediaFile{
		ID:               id,
		Kind:             kind,
		Title:            in.Title,
		Description:      in.Description,
		OriginalFilename: in.Filename,
		Extension:        ext,
		ContentType:      md.ContentType,
		Checksum:         p.staged.Checksum,
		Size:             p.staged.Size,
		IsPublic:         in.IsPublic,
		StoragePath:      info.Key,
		Width:            md.Width,
		Height:           md.Height,
		PageCount:        md.PageCount,
		DurationSeconds:  md.DurationSeconds,
		Attributes:       md.Attributes,
		Artifacts:        artifacts,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if kind == model.KindImage {
		rec.AltText = in.AltText
	}

	created, err := s.create(ctx, rec, model.Slugify(model.SlugSource(in.Title, in.Filename)))
	if err != nil {
		return nil, s.rollback(ctx, stored, err)
	}

	s.log.Info("media uploaded",
		zap.String("id", created.ID),
		zap.String("kind", string(kind)),
		zap.String("checksum", created.Checksum),
		zap.Int64("size", created.Size),
		zap.Int("artifacts", len(artifacts)),
		zap.Strings("warnings", p.result.Warnings))
	return created, nil
}

// rollback deletes objects stored for a record that could not be saved.
func (s *mediaService) rollback(ctx context.Context, keys []string, cause error) error {
	if delErr := s.deleteKeys(ctx, keys); delErr != nil {
		return fmt.Errorf("db save failed: %v; rollback delete failed: %v", cause, delErr)
	}
	return fmt.Errorf("db save failed: %w", cause)
}

func (s *mediaService) Replace(ctx context.Context, id string, in ReplaceInput) (_ *model.MediaFile, err error) {
	ctx, span := tracer.Start(ctx, "MediaService.Replace",
		trace.WithAttributes(attribute.String("media.id", id), attribute.String("media.filename", in.Filename)))
	defer func() { finishSpan(span, err) }()

	if id == "" {
		return nil, ErrIDRequired
	}
	if in.Reader == nil {
		return nil, ErrReaderNil
	}
	rec, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Filename(in.Filename); err != nil {
		return nil, err
	}
	ext := inspect.Extension(in.Filename)
	if err := s.validator.Extension(rec.Kind, ext); err != nil {
		if k, kerr := s.validator.KindForExtension(ext); kerr == nil && k != rec.Kind {
			return nil, fmt.Errorf("%w: %s file for %s record", ErrKindMismatch, k, rec.Kind)
		}
		return nil, err
	}

	p, err := s.prepare(ctx, in.Reader, in.Filename, rec.Kind, ext, in.Size)
	if err != nil {
		return nil, err
	}
	defer p.cleanup(s.log)

	now := s.now()
	// New objects live under a fresh version so the old row stays intact
	// until the update commits.
	version := uuid.New().String()
	key := originalKey(rec.Kind, now, version, in.Filename)
	info, err := s.storeOriginal(ctx, key, in.Filename, p)
	if err != nil {
		return nil, err
	}
	artifacts := s.storeArtifacts(ctx, artifactPrefix(rec.Kind, rec.ID, version), p.result.Artifacts)

	oldKeys := objectKeys(rec)
	newKeys := []string{info.Key}
	for _, a := range artifacts {
		newKeys = append(newKeys, a.StoragePath)
	}

	md := p.result.Metadata
	updated := *rec
	updated.OriginalFilename = in.Filename
	updated.Extension = ext
	updated.ContentType = md.ContentType
	updated.Checksum = p.staged.Checksum
	updated.Size = p.staged.Size
	updated.StoragePath = info.Key
	updated.Width = md.Width
	updated.Height = md.Height
	updated.PageCount = md.PageCount
	updated.DurationSeconds = md.DurationSeconds
	updated.Attributes = md.Attributes
	updated.Artifacts = artifacts
	updated.UpdatedAt = now

	saved, err := s.repo.Update(ctx, &updated)
	if err != nil {
		return nil, s.rollback(ctx, newKeys, err)
	}

	if delErr := s.deleteKeys(ctx, without(oldKeys, newKeys)); delErr != nil {
		s.log.Warn("old media objects not deleted", zap.String("id", id), zap.Error(delErr))
	}
	s.log.Info("media replaced",
		zap.String("id", id),
		zap.String("old_checksum", rec.Checksum),
		zap.String("checksum", saved.Checksum),
		zap.Strings("warnings", p.result.Warnings))
	return saved, nil
}

func (s *mediaService) Inspect(ctx context.Context, r io.Reader, filename string, kind model.Kind) (*InspectResult, error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	kind, ext, err := s.resolveKind(filename, kind)
	if err != nil {
		return nil, err
	}
	p, err := s.prepare(ctx, r, filename, kind, ext, -1)
	if err != nil {
		return nil, err
	}
	defer p.cleanup(s.log)

	md := p.result.Metadata
	out := &InspectResult{
		Kind:            kind,
		Filename:        filename,
		Extension:       ext,
		ContentType:     md.ContentType,
		MIMESniffed:     md.MIMESniffed,
		Checksum:        p.staged.Checksum,
		Size:            p.staged.Size,
		HumanSize:       model.HumanSize(p.staged.Size),
		Width:           md.Width,
		Height:          md.Height,
		PageCount:       md.PageCount,
		DurationSeconds: md.DurationSeconds,
		Attributes:      md.Attributes,
		Warnings:        p.result.Warnings,
	}
	for _, a := range p.result.Artifacts {
		out.Artifacts = append(out.Artifacts, ArtifactSummary{
			Kind:        a.Kind,
			Name:        a.Name,
			ContentType: a.ContentType,
			Size:        int64(len(a.Data)),
		})
	}
	if kind == model.KindDocument {
		text, err := inspect.ExtractText(p.staged.Path, md.ContentType)
		switch {
		case err == nil:
			out.Text = text
		case !errors.Is(err, inspect.ErrUnsupportedType):
			out.Warnings = append(out.Warnings, fmt.Sprintf("text extraction failed: %v", err))
		}
	}
	return out, nil
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// originalKey builds uploads/<kind>/<year>/<month>/<id>_<filename>.
func originalKey(kind model.Kind, t time.Time, id, filename string) string {
	return fmt.Sprintf("uploads/%s/%04d/%02d/%s_%s", kind, t.Year(), int(t.Month()), id, objectName(filename))
}

// artifactPrefix builds artifacts/<kind>/<id>, plus /<version> for the
// objects of a replace.
func artifactPrefix(kind model.Kind, id, version string) string {
	return path.Join("artifacts", string(kind), id, version)
}

// objectName drops any directory part a client sent with the filename.
func objectName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		return "file"
	}
	return name
}

func objectKeys(m *model.MediaFile) []string {
	keys := []string{m.StoragePath}
	for _, a := range m.Artifacts {
		keys = append(keys, a.StoragePath)
	}
	return keys
}

// without returns the keys of a that are not in b.
func without(a, b []string) []string {
	skip := make(map[string]struct{}, len(b))
	for _, k := range b {
		skip[k] = struct{}{}
	}
	var out []string
	for _, k := range a {
		if _, ok := skip[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}
