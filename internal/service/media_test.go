package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"mediaapi/internal/config"
	ffMocks "mediaapi/internal/ffmpeg/mocks"
	"mediaapi/internal/model"
	"mediaapi/internal/pipeline"
	"mediaapi/internal/repository"
	repoMocks "mediaapi/internal/repository/mocks"
	"mediaapi/internal/storage"
	storeMocks "mediaapi/internal/storage/mocks"
	"mediaapi/internal/validate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store  *storeMocks.MockStorage
	repo   *repoMocks.MockMediaRepository
	runner *ffMocks.MockRunner
	tmp    string
	svc    MediaService
}

func newFixture(t *testing.T, tune func(*config.ProcessingConfig)) *fixture {
	t.Helper()
	cfg := config.DefaultProcessing()
	cfg.TempDir = t.TempDir()
	if tune != nil {
		tune(&cfg)
	}
	f := &fixture{
		store:  new(storeMocks.MockStorage),
		repo:   new(repoMocks.MockMediaRepository),
		runner: new(ffMocks.MockRunner),
		tmp:    cfg.TempDir,
	}
	v := validate.New(cfg.AllowedExtensions, cfg.MaxUploadBytes, cfg.StrictMIME)
	proc := pipeline.NewProcessor(cfg, f.runner, nil, zap.NewNop())
	f.svc = NewMediaService(f.store, f.repo, v, proc, f.runner, Options{
		TempDir:       cfg.TempDir,
		PresignExpiry: 10 * time.Minute,
	})
	return f
}

func (f *fixture) assertTempEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged files must be removed")
}

func (f *fixture) putEcho() *mock.Call {
	return f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
			return storage.ObjectInfo{Key: key, Size: opt.Size, ContentType: opt.ContentType}
		}, nil)
}

func echoRecord(ctx context.Context, m *model.MediaFile) *model.MediaFile { return m }

func sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func pngData(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

const notes = "line one\nline two\nline three\n"

func TestMediaService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("document with slug collision", func(t *testing.T) {
		f := newFixture(t, nil)
		f.store.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
			return strings.HasPrefix(key, "uploads/document/") && strings.HasSuffix(key, "_Meeting Notes.txt")
		}), mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
			return opt.Size == int64(len(notes)) &&
				opt.ContentType == "text/plain" &&
				opt.Metadata["checksum"] == sum(notes) &&
				opt.Metadata["original-filename"] == "Meeting Notes.txt"
		})).Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
			return storage.ObjectInfo{Key: key}
		}, nil)
		f.repo.On("SlugExists", mock.Anything, "meeting-notes").Return(true, nil)
		f.repo.On("SlugExists", mock.Anything, "meeting-notes-2").Return(false, nil)
		f.repo.On("Create", mock.Anything, mock.MatchedBy(func(m *model.MediaFile) bool {
			return m.Slug == "meeting-notes-2" &&
				m.Kind == model.KindDocument &&
				m.Checksum == sum(notes) &&
				m.Extension == "txt" &&
				m.PageCount != nil && *m.PageCount == 3 &&
				m.Width == nil && m.DurationSeconds == nil &&
				m.AltText == "" &&
				strings.HasPrefix(m.StoragePath, "uploads/document/"+m.CreatedAt.Format("2006/01")+"/"+m.ID+"_")
		})).Return(echoRecord, nil)

		got, err := f.svc.Upload(ctx, UploadInput{
			Reader:   strings.NewReader(notes),
			Filename: "Meeting Notes.txt",
			Size:     int64(len(notes)),
			Title:    "Weekly",
			AltText:  "ignored for documents",
			IsPublic: true,
		})

		require.NoError(t, err)
		assert.Equal(t, "Weekly", got.Title)
		assert.True(t, got.IsPublic)
		assert.Equal(t, "txt", got.Attributes["format"])
		assert.Empty(t, got.Artifacts)
		f.assertTempEmpty(t)
		f.store.AssertExpectations(t)
		f.repo.AssertExpectations(t)
	})

	t.Run("image stores thumbnail artifact", func(t *testing.T) {
		f := newFixture(t, nil)
		f.putEcho()
		f.repo.On("SlugExists", mock.Anything, "cat").Return(false, nil)
		f.repo.On("Create", mock.Anything, mock.Anything).Return(echoRecord, nil)

		got, err := f.svc.Upload(ctx, UploadInput{
			Reader:   bytes.NewReader(pngData(t, 40, 20)),
			Filename: "cat.png",
			Kind:     model.KindImage,
			Size:     -1,
			AltText:  "a cat",
		})

		require.NoError(t, err)
		require.NotNil(t, got.Width)
		assert.Equal(t, 40, *got.Width)
		assert.Equal(t, 20, *got.Height)
		assert.Equal(t, "a cat", got.AltText)
		assert.Equal(t, "image/png", got.ContentType)
		require.Len(t, got.Artifacts, 1)
		assert.Equal(t, "artifacts/image/"+got.ID+"/thumbnail.jpg", got.Artifacts[0].StoragePath)
		assert.Equal(t, "image/jpeg", got.Artifacts[0].ContentType)
		f.store.AssertNumberOfCalls(t, "Put", 2)
	})

	t.Run("failed artifact upload does not fail the upload", func(t *testing.T) {
		f := newFixture(t, nil)
		f.store.On("Put", mock.Anything, mock.MatchedBy(func(k string) bool {
			return strings.HasPrefix(k, "artifacts/")
		}), mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, errors.New("bucket full"))
		f.putEcho()
		f.repo.On("SlugExists", mock.Anything, "cat").Return(false, nil)
		f.repo.On("Create", mock.Anything, mock.Anything).Return(echoRecord, nil)

		got, err := f.svc.Upload(ctx, UploadInput{Reader: bytes.NewReader(pngData(t, 8, 8)), Filename: "cat.png", Size: -1})

		require.NoError(t, err)
		assert.Empty(t, got.Artifacts)
	})

	tests := []struct {
		name       string
		tune       func(*config.ProcessingConfig)
		in         UploadInput
		setupMocks func(f *fixture)
		wantErr    error
		wantErrMsg string
	}{
		{
			name:    "validation error - nil reader",
			in:      UploadInput{Filename: "a.txt"},
			wantErr: ErrReaderNil,
		},
		{
			name:    "validation error - missing filename",
			in:      UploadInput{Reader: strings.NewReader("x"), Filename: "  "},
			wantErr: validate.ErrFilenameRequired,
		},
		{
			name:    "unsupported extension",
			in:      UploadInput{Reader: strings.NewReader("x"), Filename: "setup.exe"},
			wantErr: validate.ErrUnsupportedExtension,
		},
		{
			name:    "extension not allowed for explicit kind",
			in:      UploadInput{Reader: strings.NewReader("x"), Filename: "notes.txt", Kind: model.KindImage},
			wantErr: validate.ErrUnsupportedExtension,
		},
		{
			name:    "invalid kind",
			in:      UploadInput{Reader: strings.NewReader("x"), Filename: "notes.txt", Kind: "spreadsheet"},
			wantErr: validate.ErrInvalidKind,
		},
		{
			name:    "declared size too large",
			tune:    func(c *config.ProcessingConfig) { c.MaxUploadBytes = 10 },
			in:      UploadInput{Reader: strings.NewReader("x"), Filename: "notes.txt", Size: 11},
			wantErr: validate.ErrFileTooLarge,
		},
		{
			name:    "streamed size too large",
			tune:    func(c *config.ProcessingConfig) { c.MaxUploadBytes = 10 },
			in:      UploadInput{Reader: strings.NewReader(notes), Filename: "notes.txt", Size: -1},
			wantErr: validate.ErrFileTooLarge,
		},
		{
			name:    "strict mime mismatch",
			tune:    func(c *config.ProcessingConfig) { c.StrictMIME = true },
			in:      UploadInput{Reader: strings.NewReader("plain words, not pixels"), Filename: "fake.png", Size: -1},
			wantErr: validate.ErrMIMEMismatch,
		},
		{
			name: "storage error",
			in:   UploadInput{Reader: strings.NewReader(notes), Filename: "notes.txt", Size: -1},
			setupMocks: func(f *fixture) {
				f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("storage fail"))
			},
			wantErrMsg: "upload to storage: storage fail",
		},
		{
			name: "repository error with successful rollback",
			in:   UploadInput{Reader: bytes.NewReader(pngData(t, 4, 4)), Filename: "cat.png", Size: -1},
			setupMocks: func(f *fixture) {
				f.putEcho()
				f.repo.On("SlugExists", mock.Anything, "cat").Return(false, nil)
				f.repo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db fail"))
				f.store.On("Delete", mock.Anything, mock.MatchedBy(func(k string) bool {
					return strings.HasPrefix(k, "uploads/image/")
				})).Return(nil).Once()
				f.store.On("Delete", mock.Anything, mock.MatchedBy(func(k string) bool {
					return strings.HasPrefix(k, "artifacts/image/") && strings.HasSuffix(k, "/thumbnail.jpg")
				})).Return(nil).Once()
			},
			wantErrMsg: "db save failed: db fail",
		},
		{
			name: "repository error with failed rollback",
			in:   UploadInput{Reader: strings.NewReader(notes), Filename: "notes.txt", Size: -1},
			setupMocks: func(f *fixture) {
				f.putEcho()
				f.repo.On("SlugExists", mock.Anything, "notes").Return(false, nil)
				f.repo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db fail"))
				f.store.On("Delete", mock.Anything, mock.Anything).Return(errors.New("delete fail"))
			},
			wantErrMsg: "rollback delete failed",
		},
		{
			name: "slug lookup error rolls back",
			in:   UploadInput{Reader: strings.NewReader(notes), Filename: "notes.txt", Size: -1},
			setupMocks: func(f *fixture) {
				f.putEcho()
				f.repo.On("SlugExists", mock.Anything, "notes").Return(false, errors.New("conn reset"))
				f.store.On("Delete", mock.Anything, mock.Anything).Return(nil)
			},
			wantErrMsg: "check slug: conn reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.tune)
			if tt.setupMocks != nil {
				tt.setupMocks(f)
			}

			got, err := f.svc.Upload(ctx, tt.in)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
			}
			assert.Nil(t, got)
			f.assertTempEmpty(t)
			f.store.AssertExpectations(t)
			f.repo.AssertExpectations(t)
		})
	}
}

func TestMediaService_UploadSlugTakenConcurrently(t *testing.T) {
	ctx := context.Background()

	t.Run("retries with the next suffix", func(t *testing.T) {
		f := newFixture(t, nil)
		f.putEcho()
		f.repo.On("SlugExists", mock.Anything, "notes").Return(false, nil).Once()
		f.repo.On("Create", mock.Anything, mock.MatchedBy(func(m *model.MediaFile) bool { return m.Slug == "notes" })).
			Return(nil, repository.ErrSlugTaken).Once()
		f.repo.On("SlugExists", mock.Anything, "notes-2").Return(false, nil).Once()
		f.repo.On("Create", mock.Anything, mock.MatchedBy(func(m *model.MediaFile) bool { return m.Slug == "notes-2" })).
			Return(echoRecord, nil).Once()

		got, err := f.svc.Upload(ctx, UploadInput{Reader: strings.NewReader(notes), Filename: "notes.txt", Size: -1})

		require.NoError(t, err)
		assert.Equal(t, "notes-2", got.Slug)
		f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		f.repo.AssertExpectations(t)
	})

	t.Run("gives up and rolls back", func(t *testing.T) {
		f := newFixture(t, nil)
		f.putEcho()
		f.repo.On("SlugExists", mock.Anything, mock.Anything).Return(false, nil)
		f.repo.On("Create", mock.Anything, mock.Anything).Return(nil, repository.ErrSlugTaken)
		f.store.On("Delete", mock.Anything, mock.Anything).Return(nil)

		_, err := f.svc.Upload(ctx, UploadInput{Reader: strings.NewReader(notes), Filename: "notes.txt", Size: -1})

		assert.ErrorIs(t, err, repository.ErrSlugTaken)
		f.repo.AssertNumberOfCalls(t, "Create", maxSlugAttempts)
		f.repo.AssertCalled(t, "SlugExists", mock.Anything, "notes-5")
		f.store.AssertNumberOfCalls(t, "Delete", 1)
	})
}

func TestMediaService_UploadLaxMIME(t *testing.T) {
	f := newFixture(t, nil)
	f.putEcho()
	f.repo.On("SlugExists", mock.Anything, "fake").Return(false, nil)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(echoRecord, nil)

	got, err := f.svc.Upload(context.Background(), UploadInput{
		Reader:   strings.NewReader("plain words, not pixels"),
		Filename: "fake.png",
		Size:     -1,
	})

	require.NoError(t, err)
	assert.Equal(t, model.KindImage, got.Kind)
	assert.Equal(t, "text/plain", got.ContentType)
	assert.Nil(t, got.Width)
	assert.Empty(t, got.Artifacts)
	f.store.AssertNumberOfCalls(t, "Put", 1)
}

func TestMediaService_UploadCachedAcrossFilenames(t *testing.T) {
	f := newFixture(t, nil)
	cfg := config.DefaultProcessing()
	cfg.TempDir = f.tmp
	f.svc = NewMediaService(f.store, f.repo,
		validate.New(cfg.AllowedExtensions, cfg.MaxUploadBytes, cfg.StrictMIME),
		pipeline.NewProcessor(cfg, f.runner, pipeline.NewCache(8, time.Hour), zap.NewNop()),
		f.runner, Options{TempDir: cfg.TempDir})
	f.putEcho()
	f.repo.On("SlugExists", mock.Anything, mock.Anything).Return(false, nil)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(echoRecord, nil)

	upload := func(name string) *model.MediaFile {
		got, err := f.svc.Upload(context.Background(), UploadInput{Reader: strings.NewReader(notes), Filename: name, Size: -1})
		require.NoError(t, err)
		return got
	}

	txt := upload("a.txt")
	rtf := upload("a.rtf")
	again := upload("b.txt")

	assert.Equal(t, txt.Checksum, rtf.Checksum)
	assert.Equal(t, "txt", txt.Attributes["format"])
	assert.Equal(t, "rtf", rtf.Extension)
	assert.Equal(t, "rtf", rtf.Attributes["format"])
	assert.Equal(t, "txt", again.Attributes["format"])
	require.NotNil(t, again.PageCount)
	assert.Equal(t, 3, *again.PageCount)
}

func TestMediaService_Replace(t *testing.T) {
	ctx := context.Background()
	const oldKey = "uploads/document/2024/01/m1_old.txt"

	oldRecord := func() *model.MediaFile {
		pages := 7
		return &model.MediaFile{
			ID:               "m1",
			Kind:             model.KindDocument,
			Title:            "Keep me",
			OriginalFilename: "old.txt",
			Extension:        "txt",
			Checksum:         "old-sum",
			Slug:             "old",
			StoragePath:      oldKey,
			PageCount:        &pages,
		}
	}

	t.Run("happy path", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.On("FindByID", mock.Anything, "m1").Return(oldRecord(), nil)
		f.putEcho()
		f.repo.On("Update", mock.Anything, mock.MatchedBy(func(m *model.MediaFile) bool {
			return m.Checksum == sum(notes) &&
				m.OriginalFilename == "new.txt" &&
				m.Slug == "old" &&
				m.Title == "Keep me" &&
				*m.PageCount == 3 &&
				m.StoragePath != oldKey &&
				strings.HasSuffix(m.StoragePath, "_new.txt")
		})).Return(echoRecord, nil)
		f.store.On("Delete", mock.Anything, oldKey).Return(nil).Once()

		got, err := f.svc.Replace(ctx, "m1", ReplaceInput{Reader: strings.NewReader(notes), Filename: "new.txt", Size: -1})

		require.NoError(t, err)
		assert.Equal(t, sum(notes), got.Checksum)
		f.assertTempEmpty(t)
		f.store.AssertExpectations(t)
		f.repo.AssertExpectations(t)
	})

	imageRecord := func() *model.MediaFile {
		return &model.MediaFile{
			ID:          "m2",
			Kind:        model.KindImage,
			StoragePath: "uploads/image/2024/01/m2_a.png",
			Artifacts:   []model.Artifact{{Kind: model.ArtifactThumbnail, StoragePath: "artifacts/image/m2/thumbnail.jpg"}},
		}
	}

	t.Run("new artifacts get a fresh prefix and old ones are removed", func(t *testing.T) {
		f := newFixture(t, nil)
		old := imageRecord()
		f.repo.On("FindByID", mock.Anything, "m2").Return(old, nil)
		f.putEcho()
		f.repo.On("Update", mock.Anything, mock.Anything).Return(echoRecord, nil)
		f.store.On("Delete", mock.Anything, old.StoragePath).Return(nil).Once()
		f.store.On("Delete", mock.Anything, old.Artifacts[0].StoragePath).Return(nil).Once()

		got, err := f.svc.Replace(ctx, "m2", ReplaceInput{Reader: bytes.NewReader(pngData(t, 6, 3)), Filename: "b.png", Size: -1})

		require.NoError(t, err)
		require.Len(t, got.Artifacts, 1)
		newThumb := got.Artifacts[0].StoragePath
		assert.True(t, strings.HasPrefix(newThumb, "artifacts/image/m2/"))
		assert.True(t, strings.HasSuffix(newThumb, "/thumbnail.jpg"))
		assert.NotEqual(t, old.Artifacts[0].StoragePath, newThumb)
		f.store.AssertNotCalled(t, "Put", mock.Anything, old.Artifacts[0].StoragePath, mock.Anything, mock.Anything)
		f.store.AssertExpectations(t)
	})

	t.Run("update failure leaves old artifacts intact", func(t *testing.T) {
		f := newFixture(t, nil)
		old := imageRecord()
		f.repo.On("FindByID", mock.Anything, "m2").Return(old, nil)
		f.putEcho()
		f.repo.On("Update", mock.Anything, mock.Anything).Return(nil, errors.New("db fail"))
		var deleted []string
		f.store.On("Delete", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			deleted = append(deleted, args.String(1))
		}).Return(nil)

		_, err := f.svc.Replace(ctx, "m2", ReplaceInput{Reader: bytes.NewReader(pngData(t, 6, 3)), Filename: "b.png", Size: -1})

		assert.ErrorContains(t, err, "db save failed: db fail")
		f.store.AssertNotCalled(t, "Put", mock.Anything, old.Artifacts[0].StoragePath, mock.Anything, mock.Anything)
		require.Len(t, deleted, 2, "new original and new thumbnail")
		assert.NotContains(t, deleted, old.StoragePath)
		assert.NotContains(t, deleted, old.Artifacts[0].StoragePath)
		for _, k := range deleted {
			if strings.HasPrefix(k, "artifacts/") {
				assert.True(t, strings.HasPrefix(k, "artifacts/image/m2/") && strings.HasSuffix(k, "/thumbnail.jpg"), k)
			}
		}
	})

	t.Run("update failure removes only new objects", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.On("FindByID", mock.Anything, "m1").Return(oldRecord(), nil)
		f.putEcho()
		f.repo.On("Update", mock.Anything, mock.Anything).Return(nil, errors.New("db fail"))
		f.store.On("Delete", mock.Anything, mock.MatchedBy(func(k string) bool { return k != oldKey })).Return(nil).Once()

		_, err := f.svc.Replace(ctx, "m1", ReplaceInput{Reader: strings.NewReader(notes), Filename: "new.txt", Size: -1})

		assert.ErrorContains(t, err, "db save failed: db fail")
		f.store.AssertNotCalled(t, "Delete", mock.Anything, oldKey)
		f.store.AssertExpectations(t)
	})

	t.Run("old object delete failure is not fatal", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.On("FindByID", mock.Anything, "m1").Return(oldRecord(), nil)
		f.putEcho()
		f.repo.On("Update", mock.Anything, mock.Anything).Return(echoRecord, nil)
		f.store.On("Delete", mock.Anything, oldKey).Return(errors.New("gone fishing"))

		_, err := f.svc.Replace(ctx, "m1", ReplaceInput{Reader: strings.NewReader(notes), Filename: "new.txt", Size: -1})
		assert.NoError(t, err)
	})

	tests := []struct {
		name       string
		id         string
		in         ReplaceInput
		setupMocks func(f *fixture)
		wantErr    error
	}{
		{name: "id required", in: ReplaceInput{Reader: strings.NewReader("x"), Filename: "a.txt"}, wantErr: ErrIDRequired},
		{name: "reader required", id: "m1", in: ReplaceInput{Filename: "a.txt"}, wantErr: ErrReaderNil},
		{
			name: "not found",
			id:   "nope",
			in:   ReplaceInput{Reader: strings.NewReader("x"), Filename: "a.txt"},
			setupMocks: func(f *fixture) {
				f.repo.On("FindByID", mock.Anything, "nope").Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "kind mismatch",
			id:   "m1",
			in:   ReplaceInput{Reader: strings.NewReader("x"), Filename: "photo.png"},
			setupMocks: func(f *fixture) {
				f.repo.On("FindByID", mock.Anything, "m1").Return(oldRecord(), nil)
			},
			wantErr: ErrKindMismatch,
		},
		{
			name: "unknown extension",
			id:   "m1",
			in:   ReplaceInput{Reader: strings.NewReader("x"), Filename: "run.sh"},
			setupMocks: func(f *fixture) {
				f.repo.On("FindByID", mock.Anything, "m1").Return(oldRecord(), nil)
			},
			wantErr: validate.ErrUnsupportedExtension,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.setupMocks != nil {
				tt.setupMocks(f)
			}
			_, err := f.svc.Replace(ctx, tt.id, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
			f.store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestMediaService_Get(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.repo.On("FindByID", ctx, "m1").Return(&model.MediaFile{ID: "m1"}, nil)
	f.repo.On("FindByID", ctx, "missing").Return(nil, sql.ErrNoRows)
	f.repo.On("FindByID", ctx, "broken").Return(nil, errors.New("db fail"))
	f.repo.On("FindBySlug", ctx, "cat").Return(&model.MediaFile{ID: "m1", Slug: "cat"}, nil)
	f.repo.On("FindBySlug", ctx, "dog").Return(nil, sql.ErrNoRows)

	m, err := f.svc.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)

	_, err = f.svc.Get(ctx, "")
	assert.ErrorIs(t, err, ErrIDRequired)

	_, err = f.svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Get(ctx, "broken")
	assert.EqualError(t, err, "db fail")

	m, err = f.svc.GetBySlug(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, "cat", m.Slug)

	_, err = f.svc.GetBySlug(ctx, "dog")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMediaService_List(t *testing.T) {
	ctx := context.Background()
	public := true

	tests := []struct {
		name       string
		in         ListInput
		setupMocks func(mRepo *repoMocks.MockMediaRepository)
		wantErr    error
		checkRes   func(t *testing.T, res *MediaListResult)
	}{
		{
			name: "happy path",
			in:   ListInput{Kind: model.KindAudio, Public: &public, Limit: 5, Offset: 5},
			setupMocks: func(mRepo *repoMocks.MockMediaRepository) {
				mRepo.On("List", ctx,
					repository.MediaFilter{Kind: model.KindAudio, Public: &public},
					repository.PageQuery{Limit: 5, Offset: 5}).
					Return(&repository.PageResult[model.MediaFile]{
						Items: []model.MediaFile{{ID: "1"}, {ID: "2"}},
						Total: 7,
					}, nil)
			},
			checkRes: func(t *testing.T, res *MediaListResult) {
				assert.Len(t, res.Items, 2)
				assert.Equal(t, 7, res.Total)
			},
		},
		{
			name: "pagination boundary - zero limit uses default",
			in:   ListInput{Limit: 0, Offset: -1},
			setupMocks: func(mRepo *repoMocks.MockMediaRepository) {
				mRepo.On("List", ctx, repository.MediaFilter{}, repository.PageQuery{Limit: 10, Offset: 0}).
					Return(&repository.PageResult[model.MediaFile]{Items: []model.MediaFile{}, Total: 0}, nil)
			},
		},
		{
			name: "keyset cursor ignores offset",
			in:   ListInput{Limit: 3, Offset: 30, After: &repository.Cursor{ID: "m9"}},
			setupMocks: func(mRepo *repoMocks.MockMediaRepository) {
				mRepo.On("List", ctx,
					repository.MediaFilter{After: &repository.Cursor{ID: "m9"}},
					repository.PageQuery{Limit: 3, Offset: 0}).
					Return(&repository.PageResult[model.MediaFile]{Items: []model.MediaFile{{ID: "m8"}}, Total: 1}, nil)
			},
		},
		{
			name:    "invalid kind",
			in:      ListInput{Kind: "hologram"},
			wantErr: validate.ErrInvalidKind,
		},
		{
			name: "repository error",
			in:   ListInput{Limit: 10},
			setupMocks: func(mRepo *repoMocks.MockMediaRepository) {
				mRepo.On("List", ctx, mock.Anything, mock.Anything).Return(nil, errors.New("db fail"))
			},
			wantErr: errors.New("db fail"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.setupMocks != nil {
				tt.setupMocks(f.repo)
			}

			res, err := f.svc.List(ctx, tt.in)

			if tt.wantErr != nil {
				assert.Error(t, err)
				if errors.Is(tt.wantErr, validate.ErrInvalidKind) {
					assert.ErrorIs(t, err, validate.ErrInvalidKind)
					f.repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
				}
			} else {
				assert.NoError(t, err)
				if tt.checkRes != nil {
					tt.checkRes(t, res)
				}
			}
			f.repo.AssertExpectations(t)
		})
	}
}

func TestMediaService_UpdateDetails(t *testing.T) {
	ctx := context.Background()
	title, alt := "New title", "alt"
	private := false

	t.Run("applies set fields only", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.On("FindByID", ctx, "m1").Return(&model.MediaFile{
			ID: "m1", Kind: model.KindDocument, Title: "Old", Description: "keep", IsPublic: true,
		}, nil)
		f.repo.On("Update", ctx, mock.MatchedBy(func(m *model.MediaFile) bool {
			return m.Title == title && m.Description == "keep" && !m.IsPublic && m.AltText == "" && !m.UpdatedAt.IsZero()
		})).Return(echoRecord, nil)

		got, err := f.svc.UpdateDetails(ctx, "m1", DetailsInput{Title: &title, AltText: &alt, IsPublic: &private})

		require.NoError(t, err)
		assert.Equal(t, title, got.Title)
		f.repo.AssertExpectations(t)
	})

	t.Run("image alt text", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.On("FindByID", ctx, "m2").Return(&model.MediaFile{ID: "m2", Kind: model.KindImage}, nil)
		f.repo.On("Update", ctx, mock.Anything).Return(echoRecord, nil)

		got, err := f.svc.UpdateDetails(ctx, "m2", DetailsInput{AltText: &alt})

		require.NoError(t, err)
		assert.Equal(t, alt, got.AltText)
	})

	t.Run("row vanished", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.On("FindByID", ctx, "m3").Return(&model.MediaFile{ID: "m3"}, nil)
		f.repo.On("Update", ctx, mock.Anything).Return(nil, sql.ErrNoRows)

		_, err := f.svc.UpdateDetails(ctx, "m3", DetailsInput{})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("id required", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.UpdateDetails(ctx, "", DetailsInput{})
		assert.ErrorIs(t, err, ErrIDRequired)
	})
}

func TestMediaService_Delete(t *testing.T) {
	ctx := context.Background()
	rec := &model.MediaFile{
		ID:          "m1",
		StoragePath: "uploads/audio/2024/01/m1_song.mp3",
		Artifacts: []model.Artifact{
			{Kind: model.ArtifactWaveform, StoragePath: "artifacts/audio/m1/waveform.json"},
			{Kind: model.ArtifactSpectrogram, StoragePath: "artifacts/audio/m1/spectrogram.png"},
		},
	}

	tests := []struct {
		name       string
		id         string
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockMediaRepository)
		wantErr    error
		wantErrMsg string
	}{
		{
			name: "happy path",
			id:   "m1",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockMediaRepository) {
				mRepo.On("FindByID", ctx, "m1").Return(rec, nil)
				mStore.On("Delete", ctx, rec.StoragePath).Return(nil)
				mStore.On("Delete", ctx, "artifacts/audio/m1/waveform.json").Return(nil)
				mStore.On("Delete", ctx, "artifacts/audio/m1/spectrogram.png").Return(nil)
				mRepo.On("Delete", ctx, "m1").Return(nil)
			},
		},
		{
			name:    "id required",
			wantErr: ErrIDRequired,
		},
		{
			name: "not found",
			id:   "nope",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockMediaRepository) {
				mRepo.On("FindByID", ctx, "nope").Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "storage error keeps the row",
			id:   "m1",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockMediaRepository) {
				mRepo.On("FindByID", ctx, "m1").Return(rec, nil)
				mStore.On("Delete", ctx, mock.Anything).Return(errors.New("s3 down"))
			},
			wantErrMsg: "delete storage:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.setupMocks != nil {
				tt.setupMocks(f.store, f.repo)
			}

			err := f.svc.Delete(ctx, tt.id)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrMsg != "":
				assert.ErrorContains(t, err, tt.wantErrMsg)
				f.repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
			default:
				assert.NoError(t, err)
			}
			f.store.AssertExpectations(t)
			f.repo.AssertExpectations(t)
		})
	}
}

func TestMediaService_Open(t *testing.T) {
	ctx := context.Background()
	rec := &model.MediaFile{
		ID:               "m1",
		OriginalFilename: "cat.png",
		ContentType:      "image/png",
		Size:             5,
		StoragePath:      "uploads/image/2024/01/m1_cat.png",
		Artifacts: []model.Artifact{
			{Kind: model.ArtifactThumbnail, StoragePath: "artifacts/image/m1/thumbnail.jpg", ContentType: "image/jpeg", Size: 3},
		},
	}

	f := newFixture(t, nil)
	f.repo.On("FindByID", ctx, "m1").Return(rec, nil)
	f.store.On("Get", ctx, rec.StoragePath).Return(io.NopCloser(strings.NewReader("pixel")), storage.ObjectInfo{}, nil)
	f.store.On("Get", ctx, "artifacts/image/m1/thumbnail.jpg").Return(io.NopCloser(strings.NewReader("jpg")), storage.ObjectInfo{Size: 3}, nil)

	obj, err := f.svc.Open(ctx, "m1")
	require.NoError(t, err)
	defer obj.Body.Close()
	body, _ := io.ReadAll(obj.Body)
	assert.Equal(t, "pixel", string(body))
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, int64(5), obj.Size)
	assert.Equal(t, "cat.png", obj.Filename)

	art, err := f.svc.OpenArtifact(ctx, "m1", model.ArtifactThumbnail)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", art.ContentType)
	assert.Equal(t, "thumbnail.jpg", art.Filename)

	_, err = f.svc.OpenArtifact(ctx, "m1", model.ArtifactWaveform)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestMediaService_OpenMissingObject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.repo.On("FindByID", ctx, "m1").Return(&model.MediaFile{ID: "m1", StoragePath: "k"}, nil)
	f.store.On("Get", ctx, "k").Return(nil, storage.ObjectInfo{}, storage.ErrNotFound)

	_, err := f.svc.Open(ctx, "m1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMediaService_PresignURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.repo.On("FindByID", ctx, "m1").Return(&model.MediaFile{ID: "m1", StoragePath: "k"}, nil)
	f.store.On("PresignGet", ctx, "k", 10*time.Minute).Return("https://minio/k?sig", nil).Once()
	f.store.On("PresignGet", ctx, "k", time.Hour).Return("", storage.ErrPresignUnsupported).Once()

	url, err := f.svc.PresignURL(ctx, "m1", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://minio/k?sig", url)

	_, err = f.svc.PresignURL(ctx, "m1", time.Hour)
	assert.ErrorIs(t, err, storage.ErrPresignUnsupported)
}

func TestMediaService_Verify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		object  func(f *fixture)
		wantOK  bool
		missing bool
	}{
		{
			name: "checksum matches",
			object: func(f *fixture) {
				f.store.On("Get", mock.Anything, "k").Return(io.NopCloser(strings.NewReader(notes)), storage.ObjectInfo{}, nil)
			},
			wantOK: true,
		},
		{
			name: "checksum differs",
			object: func(f *fixture) {
				f.store.On("Get", mock.Anything, "k").Return(io.NopCloser(strings.NewReader("tampered")), storage.ObjectInfo{}, nil)
			},
		},
		{
			name: "object missing",
			object: func(f *fixture) {
				f.store.On("Get", mock.Anything, "k").Return(nil, storage.ObjectInfo{}, storage.ErrNotFound)
			},
			missing: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.repo.On("FindByID", mock.Anything, "m1").Return(&model.MediaFile{ID: "m1", StoragePath: "k", Checksum: sum(notes)}, nil)
			tt.object(f)

			report, err := f.svc.Verify(ctx, "m1")

			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, report.OK)
			assert.Equal(t, tt.missing, report.Missing)
			assert.Equal(t, sum(notes), report.Expected)
			assert.False(t, report.CheckedAt.IsZero())
		})
	}

	t.Run("storage error", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.On("FindByID", mock.Anything, "m1").Return(&model.MediaFile{ID: "m1", StoragePath: "k"}, nil)
		f.store.On("Get", mock.Anything, "k").Return(nil, storage.ObjectInfo{}, errors.New("timeout"))

		_, err := f.svc.Verify(ctx, "m1")
		assert.ErrorContains(t, err, "open storage: timeout")
	})
}

func TestMediaService_Frame(t *testing.T) {
	ctx := context.Background()

	t.Run("extracts from staged copy", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.On("FindByID", ctx, "v1").Return(&model.MediaFile{ID: "v1", Kind: model.KindVideo, StoragePath: "k"}, nil)
		f.store.On("Get", ctx, "k").Return(io.NopCloser(strings.NewReader("not really mp4")), storage.ObjectInfo{}, nil)
		f.runner.On("Frame", ctx, mock.AnythingOfType("string"), 1.5, 0, 0).Return([]byte{0xff, 0xd8, 0xff}, nil)

		data, err := f.svc.Frame(ctx, "v1", 1.5)

		require.NoError(t, err)
		assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)
		f.assertTempEmpty(t)
		f.runner.AssertExpectations(t)
	})

	t.Run("negative timestamp starts at zero", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.On("FindByID", ctx, "v1").Return(&model.MediaFile{ID: "v1", Kind: model.KindVideo, StoragePath: "k"}, nil)
		f.store.On("Get", ctx, "k").Return(io.NopCloser(strings.NewReader("x")), storage.ObjectInfo{}, nil)
		f.runner.On("Frame", ctx, mock.Anything, 0.0, 0, 0).Return([]byte{1}, nil)

		_, err := f.svc.Frame(ctx, "v1", -3)
		require.NoError(t, err)
	})

	t.Run("not a video", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.On("FindByID", ctx, "a1").Return(&model.MediaFile{ID: "a1", Kind: model.KindAudio}, nil)

		_, err := f.svc.Frame(ctx, "a1", 0)
		assert.ErrorIs(t, err, ErrNotVideo)
		f.store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})
}

func TestMediaService_Inspect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.svc.Inspect(ctx, strings.NewReader(notes), "agenda.txt", "")

	require.NoError(t, err)
	assert.Equal(t, model.KindDocument, res.Kind)
	assert.Equal(t, "text/plain", res.ContentType)
	assert.True(t, res.MIMESniffed)
	assert.Equal(t, sum(notes), res.Checksum)
	assert.Equal(t, int64(len(notes)), res.Size)
	assert.Equal(t, "29 B", res.HumanSize)
	require.NotNil(t, res.PageCount)
	assert.Equal(t, 3, *res.PageCount)
	assert.Equal(t, "line one\nline two\nline three", res.Text)
	assert.Empty(t, res.Warnings)
	f.assertTempEmpty(t)
	f.store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	_, err = f.svc.Inspect(ctx, nil, "agenda.txt", "")
	assert.ErrorIs(t, err, ErrReaderNil)

	img, err := f.svc.Inspect(ctx, bytes.NewReader(pngData(t, 4, 4)), "dot.png", "")
	require.NoError(t, err)
	assert.Empty(t, img.Text, "only documents carry text")
}
