package usecase

import (
	"context"

	"github.com/compozy/mlserver/internal/service"
	"github.com/stretchr/testify/mock"
)

type mockToolInfoService struct {
	mock.Mock
}

func (m *mockToolInfoService) Info(ctx context.Context) service.ToolInfo {
	args := m.Called(ctx)
	return args.Get(0).(service.ToolInfo)
}

func (m *mockToolInfoService) Commit(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func newToolInfo(commit string, err error) *mockToolInfoService {
	m := new(mockToolInfoService)
	m.On("Commit", mock.Anything).Return(commit, err)
	return m
}
