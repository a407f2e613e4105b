package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Probe(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

func (m *MockRunner) Frame(ctx context.Context, path string, at float64, width, height int) ([]byte, error) {
	args := m.Called(ctx, path, at, width, height)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockRunner) PCM(ctx context.Context, path string, sampleRate, maxSeconds int) ([]int16, error) {
	args := m.Called(ctx, path, sampleRate, maxSeconds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int16), args.Error(1)
}
