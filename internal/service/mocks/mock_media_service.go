package mocks

import (
	"context"
	"io"
	"time"

	"mediaapi/internal/model"
	"mediaapi/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockMediaService struct {
	mock.Mock
}

func (m *MockMediaService) Upload(ctx context.Context, in service.UploadInput) (*model.MediaFile, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaFile), args.Error(1)
}

func (m *MockMediaService) Replace(ctx context.Context, id string, in service.ReplaceInput) (*model.MediaFile, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaFile), args.Error(1)
}

func (m *MockMediaService) UpdateDetails(ctx context.Context, id string, in service.DetailsInput) (*model.MediaFile, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaFile), args.Error(1)
}

func (m *MockMediaService) Get(ctx context.Context, id string) (*model.MediaFile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaFile), args.Error(1)
}

func (m *MockMediaService) GetBySlug(ctx context.Context, slug string) (*model.MediaFile, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaFile), args.Error(1)
}

func (m *MockMediaService) List(ctx context.Context, in service.ListInput) (*service.MediaListResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.MediaListResult), args.Error(1)
}

func (m *MockMediaService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockMediaService) Open(ctx context.Context, id string) (*service.Object, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Object), args.Error(1)
}

func (m *MockMediaService) OpenArtifact(ctx context.Context, id string, kind model.ArtifactKind) (*service.Object, error) {
	args := m.Called(ctx, id, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Object), args.Error(1)
}

func (m *MockMediaService) PresignURL(ctx context.Context, id string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, id, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockMediaService) Verify(ctx context.Context, id string) (*service.IntegrityReport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IntegrityReport), args.Error(1)
}

func (m *MockMediaService) Frame(ctx context.Context, id string, at float64) ([]byte, error) {
	args := m.Called(ctx, id, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockMediaService) Inspect(ctx context.Context, r io.Reader, filename string, kind model.Kind) (*service.InspectResult, error) {
	args := m.Called(ctx, r, filename, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.InspectResult), args.Error(1)
}
