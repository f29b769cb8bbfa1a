package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/extract"
	"github.com/cloo-solutions/sheetrag/internal/fingerprint"
	"github.com/cloo-solutions/sheetrag/internal/storage"
	"github.com/google/uuid"
)

// WorkbookArchive keeps copies of uploaded workbooks
type WorkbookArchive interface {
	PutWorkbook(ctx context.Context, key string, body io.Reader, size int64) error
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

// WorkbookInfo describes the active workbook file
type WorkbookInfo struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	Fingerprint string    `json:"fingerprint"`
	ModifiedAt  time.Time `json:"modified_at"`
	ArchiveKey  string    `json:"archive_key,omitempty"`
}

// WorkbookService manages the single active workbook on disk. The configured
// path fixes the directory and base name; the extension follows the upload.
type WorkbookService struct {
	path    string
	archive WorkbookArchive
}

// NewWorkbookService creates a new WorkbookService instance
func NewWorkbookService(path string, archive WorkbookArchive) *WorkbookService {
	return &WorkbookService{path: path, archive: archive}
}

// Path returns the active workbook path. When no workbook exists it returns
// the configured path.
func (s *WorkbookService) Path() string {
	if _, err := os.Stat(s.path); err == nil {
		return s.path
	}
	for _, candidate := range s.candidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return s.path
}

// Info describes the active workbook, or fails with ErrWorkbookNotFound.
func (s *WorkbookService) Info() (*WorkbookInfo, error) {
	p := s.Path()
	st, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrWorkbookNotFound
		}
		return nil, fmt.Errorf("stat workbook: %w", err)
	}
	fp, err := fingerprint.File(p)
	if err != nil {
		return nil, fmt.Errorf("fingerprint workbook: %w", err)
	}
	return &WorkbookInfo{
		Path:        p,
		Size:        st.Size(),
		Fingerprint: fp,
		ModifiedAt:  st.ModTime().UTC(),
		ArchiveKey:  storage.WorkbookKey(fp, p),
	}, nil
}

// Exists reports whether an active workbook is present.
func (s *WorkbookService) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Save replaces the active workbook with the contents of r. The file is
// written to a temporary name and renamed, so readers never see a partial
// workbook.
func (s *WorkbookService) Save(ctx context.Context, fileName string, r io.Reader) (*WorkbookInfo, error) {
	if !extract.IsSupported(fileName) {
		return nil, domain.Wrap(domain.ErrUnsupportedWorkbook, fmt.Errorf("file %q", fileName))
	}

	dest := s.destination(fileName)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.Wrap(domain.ErrStorageOperationFail, err)
	}

	tmp := filepath.Join(dir, ".upload-"+uuid.NewString()+filepath.Ext(dest))
	size, err := writeFile(tmp, r)
	if err != nil {
		_ = os.Remove(tmp)
		return nil, domain.Wrap(domain.ErrStorageOperationFail, err)
	}
	if size == 0 {
		_ = os.Remove(tmp)
		return nil, domain.ErrEmptyUpload
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return nil, domain.Wrap(domain.ErrStorageOperationFail, err)
	}

	// drop the previous workbook if it had another extension
	for _, other := range s.candidates() {
		if other != dest {
			_ = os.Remove(other)
		}
	}

	info, err := s.Info()
	if err != nil {
		return nil, err
	}
	log.Printf("workbook: saved %s (%d bytes, fingerprint %s)", info.Path, info.Size, info.Fingerprint)

	if s.archive != nil {
		if err := s.archiveFile(ctx, info); err != nil {
			// the local copy is authoritative; archiving is best effort
			log.Printf("workbook: failed to archive %s: %v", info.Path, err)
			info.ArchiveKey = ""
		}
	} else {
		info.ArchiveKey = ""
	}
	return info, nil
}

// DownloadURL returns a presigned URL for the archived copy of the active
// workbook.
func (s *WorkbookService) DownloadURL(ctx context.Context) (string, error) {
	if s.archive == nil {
		return "", domain.ErrArchiveNotConfigured
	}
	info, err := s.Info()
	if err != nil {
		return "", err
	}
	url, err := s.archive.GenerateDownloadURL(ctx, info.ArchiveKey)
	if err != nil {
		return "", domain.Wrap(domain.ErrStorageOperationFail, err)
	}
	return url, nil
}

func (s *WorkbookService) archiveFile(ctx context.Context, info *WorkbookInfo) error {
	f, err := os.Open(info.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.archive.PutWorkbook(ctx, info.ArchiveKey, f, info.Size)
}

func (s *WorkbookService) destination(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return strings.TrimSuffix(s.path, filepath.Ext(s.path)) + ext
}

func (s *WorkbookService) candidates() []string {
	base := strings.TrimSuffix(s.path, filepath.Ext(s.path))
	out := make([]string, 0, len(extract.SupportedExtensions))
	for _, ext := range extract.SupportedExtensions {
		out = append(out, base+ext)
	}
	return out
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return n, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return n, err
	}
	return n, f.Close()
}
