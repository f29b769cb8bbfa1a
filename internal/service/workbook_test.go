package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockWorkbookArchive is a mock implementation of WorkbookArchive
type MockWorkbookArchive struct {
	mock.Mock
}

func (m *MockWorkbookArchive) PutWorkbook(ctx context.Context, key string, body io.Reader, size int64) error {
	_, _ = io.Copy(io.Discard, body)
	args := m.Called(ctx, key, size)
	return args.Error(0)
}

func (m *MockWorkbookArchive) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func salesBytes(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(testutil.SalesWorkbook(t, t.TempDir()))
	require.NoError(t, err)
	return data
}

func TestWorkbookService_Save(t *testing.T) {
	dir := t.TempDir()
	svc := NewWorkbookService(filepath.Join(dir, "data", "workbook.xlsx"), nil)
	assert.False(t, svc.Exists())

	data := salesBytes(t)
	info, err := svc.Save(context.Background(), "Sales.xlsx", bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data", "workbook.xlsx"), info.Path)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.Len(t, info.Fingerprint, 16)
	assert.Empty(t, info.ArchiveKey)
	assert.True(t, svc.Exists())

	stored, err := os.ReadFile(info.Path)
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	entries, err := os.ReadDir(filepath.Join(dir, "data"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestWorkbookService_Save_ReplacesOtherExtension(t *testing.T) {
	dir := t.TempDir()
	svc := NewWorkbookService(filepath.Join(dir, "workbook.xlsx"), nil)
	ctx := context.Background()

	_, err := svc.Save(ctx, "old.xlsx", bytes.NewReader(salesBytes(t)))
	require.NoError(t, err)

	info, err := svc.Save(ctx, "legacy.XLS", strings.NewReader("legacy bytes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "workbook.xls"), info.Path)
	assert.Equal(t, info.Path, svc.Path())

	_, err = os.Stat(filepath.Join(dir, "workbook.xlsx"))
	assert.True(t, os.IsNotExist(err))
}

func TestWorkbookService_Save_Rejects(t *testing.T) {
	dir := t.TempDir()
	svc := NewWorkbookService(filepath.Join(dir, "workbook.xlsx"), nil)
	ctx := context.Background()

	_, err := svc.Save(ctx, "notes.csv", strings.NewReader("a,b"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedWorkbook)

	_, err = svc.Save(ctx, "empty.xlsx", strings.NewReader(""))
	assert.ErrorIs(t, err, domain.ErrEmptyUpload)

	assert.False(t, svc.Exists())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWorkbookService_Save_Archives(t *testing.T) {
	dir := t.TempDir()
	archive := new(MockWorkbookArchive)
	svc := NewWorkbookService(filepath.Join(dir, "workbook.xlsx"), archive)
	data := salesBytes(t)

	archive.On("PutWorkbook", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "workbooks/") && strings.HasSuffix(key, ".xlsx")
	}), int64(len(data))).Return(nil).Once()

	info, err := svc.Save(context.Background(), "Sales.xlsx", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "workbooks/"+info.Fingerprint+".xlsx", info.ArchiveKey)
	archive.AssertExpectations(t)

	archive.On("GenerateDownloadURL", mock.Anything, info.ArchiveKey).Return("https://s3.example/workbook", nil).Once()
	url, err := svc.DownloadURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example/workbook", url)
}

func TestWorkbookService_Save_ArchiveFailureKeepsLocalCopy(t *testing.T) {
	dir := t.TempDir()
	archive := new(MockWorkbookArchive)
	archive.On("PutWorkbook", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
	svc := NewWorkbookService(filepath.Join(dir, "workbook.xlsx"), archive)

	info, err := svc.Save(context.Background(), "Sales.xlsx", bytes.NewReader(salesBytes(t)))
	require.NoError(t, err)
	assert.Empty(t, info.ArchiveKey)
	assert.True(t, svc.Exists())
}

func TestWorkbookService_DownloadURL_Errors(t *testing.T) {
	dir := t.TempDir()

	noArchive := NewWorkbookService(filepath.Join(dir, "workbook.xlsx"), nil)
	_, err := noArchive.DownloadURL(context.Background())
	assert.ErrorIs(t, err, domain.ErrArchiveNotConfigured)

	withArchive := NewWorkbookService(filepath.Join(dir, "workbook.xlsx"), new(MockWorkbookArchive))
	_, err = withArchive.DownloadURL(context.Background())
	assert.ErrorIs(t, err, domain.ErrWorkbookNotFound)
}

func TestWorkbookService_Info_NotFound(t *testing.T) {
	svc := NewWorkbookService(filepath.Join(t.TempDir(), "workbook.xlsx"), nil)
	_, err := svc.Info()
	assert.ErrorIs(t, err, domain.ErrWorkbookNotFound)
}
