package mocks

import (
	"context"

	"github.com/rpggio/reelwatch/internal/domain/activity"
	"github.com/stretchr/testify/mock"
)

// ActivityRepository is a mock for repository.ActivityRepository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]activity.ActivityEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// FinalRepository is a mock for repository.FinalRepository.
type FinalRepository struct {
	mock.Mock
}

func (m *FinalRepository) MarkFinal(ctx context.Context, projectID, assetID, videoURL string) (bool, error) {
	args := m.Called(ctx, projectID, assetID, videoURL)
	return args.Bool(0), args.Error(1)
}

func (m *FinalRepository) Get(ctx context.Context, projectID string) (*activity.FinalTransition, error) {
	args := m.Called(ctx, projectID)
	if ft, ok := args.Get(0).(*activity.FinalTransition); ok {
		return ft, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *FinalRepository) List(ctx context.Context) ([]activity.FinalTransition, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]activity.FinalTransition); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}
