package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxUploadSize = 10 << 20 // 10 MiB

var (
	ErrFileEmpty    = errors.New("uploaded file is empty")
	ErrFileTooLarge = errors.New("file size should be less than 10MB")
	ErrFileType     = errors.New("file type should be JPEG, PNG, or PDF")
)

var allowedUploadTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"application/pdf": {},
}

// StoredFile is the reference returned to the client. URL is the
// public-root-relative path usable later as an attachment marker.
type StoredFile struct {
	URL         string `json:"url"`
	Pathname    string `json:"pathname"`
	ContentType string `json:"content_type"`
}

// UploadService validates and stores attachment files. Validation trusts the
// declared content type within the allow-list; there is no content sniffing.
type UploadService struct {
	dir          string
	publicPrefix string
}

func NewUploadService(dir, publicPrefix string) *UploadService {
	return &UploadService{dir: dir, publicPrefix: strings.TrimRight(publicPrefix, "/")}
}

// Save writes the file under a collision-resistant name preserving the
// original extension.
func (s *UploadService) Save(originalName, contentType string, size int64, r io.Reader) (*StoredFile, error) {
	if size <= 0 {
		return nil, ErrFileEmpty
	}
	if size > maxUploadSize {
		return nil, ErrFileTooLarge
	}
	if _, ok := allowedUploadTypes[strings.ToLower(strings.TrimSpace(contentType))]; !ok {
		return nil, ErrFileType
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	filename := uuid.NewString() + ext

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir failed: %w", err)
	}

	dst, err := os.Create(filepath.Join(s.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("create upload file failed: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(r, maxUploadSize+1)); err != nil {
		return nil, fmt.Errorf("write upload file failed: %w", err)
	}

	return &StoredFile{
		URL:         path.Join(s.publicPrefix, filename),
		Pathname:    filename,
		ContentType: contentType,
	}, nil
}
