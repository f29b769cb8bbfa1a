package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func multipartRequest(t *testing.T, target, field, fileName, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func savedInfo() *service.WorkbookInfo {
	return &service.WorkbookInfo{
		Path:        "data/workbook.xlsx",
		Size:        5,
		Fingerprint: "00000000000000aa",
		ModifiedAt:  createdAt,
	}
}

func TestWorkbookHandler_Upload(t *testing.T) {
	svc := new(MockWorkbookService)
	queue := new(MockRebuildQueue)
	svc.On("Save", mock.Anything, "Sales.xlsx", "bytes").Return(savedInfo(), nil).Once()

	h := NewWorkbookHandler(svc, queue)
	w := httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/workbook", "file", "Sales.xlsx", "bytes"))

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp UploadResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "data/workbook.xlsx", resp.Path)
	assert.Equal(t, "00000000000000aa", resp.Fingerprint)
	assert.Nil(t, resp.Job)
	svc.AssertExpectations(t)
	queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestWorkbookHandler_Upload_WithRebuild(t *testing.T) {
	svc := new(MockWorkbookService)
	queue := new(MockRebuildQueue)
	svc.On("Save", mock.Anything, "Sales.xlsx", "bytes").Return(savedInfo(), nil)
	queue.On("Enqueue", mock.Anything, domain.IndexTriggerUpload).
		Return(domain.NewIndexJob("job-1", domain.IndexTriggerUpload, createdAt), nil).Once()

	h := NewWorkbookHandler(svc, queue)
	w := httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/workbook?rebuild=true", "file", "Sales.xlsx", "bytes"))

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp UploadResponse
	decodeData(t, w, &resp)
	require.NotNil(t, resp.Job)
	assert.Equal(t, "job-1", resp.Job.ID)
	assert.Equal(t, "upload", resp.Job.Trigger)
	queue.AssertExpectations(t)
}

func TestWorkbookHandler_Upload_RebuildInProgress(t *testing.T) {
	svc := new(MockWorkbookService)
	queue := new(MockRebuildQueue)
	svc.On("Save", mock.Anything, "Sales.xlsx", "bytes").Return(savedInfo(), nil)
	queue.On("Enqueue", mock.Anything, domain.IndexTriggerUpload).Return(nil, domain.ErrIndexingInProgress)

	h := NewWorkbookHandler(svc, queue)
	w := httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/workbook?rebuild=1", "file", "Sales.xlsx", "bytes"))

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp UploadResponse
	decodeData(t, w, &resp)
	assert.Nil(t, resp.Job)
	assert.Contains(t, resp.RebuildError, "already running")
}

func TestWorkbookHandler_Upload_BadRequests(t *testing.T) {
	h := NewWorkbookHandler(new(MockWorkbookService), new(MockRebuildQueue))

	w := httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/workbook", "upload", "Sales.xlsx", "bytes"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/workbook?rebuild=maybe", "file", "Sales.xlsx", "bytes"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkbookHandler_Upload_Unsupported(t *testing.T) {
	svc := new(MockWorkbookService)
	svc.On("Save", mock.Anything, "notes.csv", "a,b").Return(nil, domain.Wrap(domain.ErrUnsupportedWorkbook, assert.AnError))

	h := NewWorkbookHandler(svc, new(MockRebuildQueue))
	w := httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/workbook", "file", "notes.csv", "a,b"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkbookHandler_DownloadURL(t *testing.T) {
	svc := new(MockWorkbookService)
	svc.On("DownloadURL", mock.Anything).Return("https://s3.example/wb", nil).Once()

	h := NewWorkbookHandler(svc, new(MockRebuildQueue))
	w := httptest.NewRecorder()
	h.DownloadURL(w, httptest.NewRequest(http.MethodGet, "/workbook/url", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	decodeData(t, w, &resp)
	assert.Equal(t, "https://s3.example/wb", resp["url"])

	svc2 := new(MockWorkbookService)
	svc2.On("DownloadURL", mock.Anything).Return("", domain.ErrArchiveNotConfigured)
	h = NewWorkbookHandler(svc2, new(MockRebuildQueue))
	w = httptest.NewRecorder()
	h.DownloadURL(w, httptest.NewRequest(http.MethodGet, "/workbook/url", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
