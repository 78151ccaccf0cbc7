package orchestrator

import (
	"context"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/service"
	"github.com/stretchr/testify/mock"
)

type mockContainerService struct{ mock.Mock }

func (m *mockContainerService) Available(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *mockContainerService) Build(ctx context.Context, req service.BuildRequest) (service.BuildResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.BuildResult), args.Error(1)
}
func (m *mockContainerService) Push(ctx context.Context, local, remote string) error {
	args := m.Called(ctx, local, remote)
	return args.Error(0)
}
func (m *mockContainerService) RemoveImages(ctx context.Context, images []string) error {
	args := m.Called(ctx, images)
	return args.Error(0)
}
func (m *mockContainerService) ListImages(ctx context.Context, repository string) ([]service.ImageInfo, error) {
	args := m.Called(ctx, repository)
	images, _ := args.Get(0).([]service.ImageInfo)
	return images, args.Error(1)
}

type mockToolInfoService struct{ mock.Mock }

func (m *mockToolInfoService) Info(ctx context.Context) service.ToolInfo {
	args := m.Called(ctx)
	return args.Get(0).(service.ToolInfo)
}
func (m *mockToolInfoService) Commit(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func toolCommit(commit string, err error) *mockToolInfoService {
	m := new(mockToolInfoService)
	m.On("Commit", mock.Anything).Return(commit, err)
	return m
}

type mockGithubRepository struct{ mock.Mock }

func (m *mockGithubRepository) ReleaseURL(ctx context.Context, tag string) (string, error) {
	args := m.Called(ctx, tag)
	return args.String(0), args.Error(1)
}
func (m *mockGithubRepository) CreateRelease(ctx context.Context, tag, name, body string) (string, error) {
	args := m.Called(ctx, tag, name, body)
	return args.String(0), args.Error(1)
}

type mockSessionStore struct{ mock.Mock }

func (m *mockSessionStore) Save(ctx context.Context, session *domain.ReleaseSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}
func (m *mockSessionStore) Load(ctx context.Context, sessionID string) (*domain.ReleaseSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReleaseSession), args.Error(1)
}
func (m *mockSessionStore) LoadLatest(ctx context.Context) (*domain.ReleaseSession, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReleaseSession), args.Error(1)
}
func (m *mockSessionStore) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}
