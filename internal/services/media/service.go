package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/glowcheck/backend/internal/domain/enums"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrUnsupportedContent = errors.New("unsupported photo content type")
)

const (
	defaultURLTTL = 15 * time.Minute

	// ScanPrefix is the key prefix of every stored scan photo.
	ScanPrefix = "scans/"
)

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/heic": ".heic",
	"image/webp": ".webp",
}

type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

type Service struct {
	storage ObjectStorage
	urlTTL  time.Duration
}

type ScanPhoto struct {
	ObjectKey string
	URL       string
}

type UploadInput struct {
	UserID      string
	Feature     enums.FeatureType
	AttemptID   string
	ContentType string
	Body        io.Reader
	Size        int64
}

func NewService(storage ObjectStorage, urlTTL time.Duration) *Service {
	if urlTTL <= 0 {
		urlTTL = defaultURLTTL
	}
	return &Service{
		storage: storage,
		urlTTL:  urlTTL,
	}
}

// UploadScanPhoto stores the photo of one analysis attempt and returns a
// presigned URL the vision API can fetch.
func (s *Service) UploadScanPhoto(ctx context.Context, in UploadInput) (ScanPhoto, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.AttemptID) == "" || in.Body == nil || in.Size <= 0 {
		return ScanPhoto{}, ErrValidation
	}
	if _, ok := enums.ParseFeatureType(string(in.Feature)); !ok {
		return ScanPhoto{}, ErrValidation
	}
	if s.storage == nil {
		return ScanPhoto{}, fmt.Errorf("media storage is not configured")
	}

	contentType := normalizeContentType(in.ContentType)
	ext, ok := photoExtensions[contentType]
	if !ok {
		return ScanPhoto{}, ErrUnsupportedContent
	}

	if err := s.storage.EnsureBucket(ctx); err != nil {
		return ScanPhoto{}, fmt.Errorf("ensure bucket: %w", err)
	}

	key := ScanObjectKey(in.UserID, in.Feature, in.AttemptID, ext)
	if err := s.storage.Put(ctx, key, in.Body, in.Size, contentType); err != nil {
		return ScanPhoto{}, fmt.Errorf("put object: %w", err)
	}

	url, err := s.storage.PresignGet(ctx, key, s.urlTTL)
	if err != nil {
		_ = s.storage.Delete(ctx, key)
		return ScanPhoto{}, fmt.Errorf("presign scan url: %w", err)
	}

	return ScanPhoto{ObjectKey: key, URL: url}, nil
}

func (s *Service) Delete(ctx context.Context, key string) error {
	if s.storage == nil {
		return nil
	}
	return s.storage.Delete(ctx, key)
}

func ScanObjectKey(userID string, feature enums.FeatureType, attemptID, ext string) string {
	return fmt.Sprintf("%s%s/%s/%s%s", ScanPrefix, userID, feature, attemptID, ext)
}

func normalizeContentType(raw string) string {
	ct := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}
