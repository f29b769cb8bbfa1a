package handlers

import (
	"context"
	"io"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/pagination"
	"github.com/cloo-solutions/sheetrag/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockIndexService struct {
	mock.Mock
}

func (m *MockIndexService) State() service.IndexState {
	args := m.Called()
	return args.Get(0).(service.IndexState)
}

func (m *MockIndexService) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockRebuildQueue struct {
	mock.Mock
}

func (m *MockRebuildQueue) Enqueue(ctx context.Context, trigger domain.IndexTrigger) (*domain.IndexJob, error) {
	args := m.Called(ctx, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexJob), args.Error(1)
}

type MockReadinessChecker struct {
	mock.Mock
}

func (m *MockReadinessChecker) Ready(ctx context.Context) (*domain.IndexManifest, bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.IndexManifest), args.Bool(1), args.Error(2)
}

type MockWorkbookInfoProvider struct {
	mock.Mock
}

func (m *MockWorkbookInfoProvider) Path() string {
	return m.Called().String(0)
}

func (m *MockWorkbookInfoProvider) Info() (*service.WorkbookInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.WorkbookInfo), args.Error(1)
}

type MockJobHistory struct {
	mock.Mock
}

func (m *MockJobHistory) ListRecent(ctx context.Context, after *pagination.Cursor, limit int) ([]*domain.IndexJob, error) {
	args := m.Called(ctx, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IndexJob), args.Error(1)
}

func (m *MockJobHistory) GetByID(ctx context.Context, id string) (*domain.IndexJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexJob), args.Error(1)
}

type MockWorkbookService struct {
	mock.Mock
}

func (m *MockWorkbookService) Save(ctx context.Context, fileName string, r io.Reader) (*service.WorkbookInfo, error) {
	data, _ := io.ReadAll(r)
	args := m.Called(ctx, fileName, string(data))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.WorkbookInfo), args.Error(1)
}

func (m *MockWorkbookService) DownloadURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	args := m.Called(ctx, question)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Answer), args.Error(1)
}

func (m *MockQueryService) Search(ctx context.Context, query string, opts service.SearchOptions) (*service.SearchResult, error) {
	args := m.Called(ctx, query, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SearchResult), args.Error(1)
}

type MockChatFilter struct {
	mock.Mock
}

func (m *MockChatFilter) Inlet(ctx context.Context, body map[string]any) (map[string]any, bool) {
	args := m.Called(ctx, body)
	return args.Get(0).(map[string]any), args.Bool(1)
}
