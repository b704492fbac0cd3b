package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vaultshare/fileshare-api/internal/crypto"
	"github.com/vaultshare/fileshare-api/internal/logging"
	"github.com/vaultshare/fileshare-api/internal/storage"
)

// MaxUploadSize caps a single upload at 10 MiB
const MaxUploadSize = 10 << 20

const (
	minMaxDownloads = 1
	maxMaxDownloads = 10
)

// How many times a download retries the compare-and-swap before giving up
const downloadRetries = 3

var (
	ErrNameRequired        = errors.New("file name is required")
	ErrPasswordRequired    = errors.New("password is required")
	ErrEmptyFile           = errors.New("file is empty")
	ErrFileTooLarge        = fmt.Errorf("file exceeds the maximum size of %d bytes", MaxUploadSize)
	ErrInvalidMaxDownloads = fmt.Errorf("max downloads must be between %d and %d", minMaxDownloads, maxMaxDownloads)
	ErrExpiryInPast        = errors.New("expiry must be in the future")
	ErrWrongPassword       = errors.New("wrong password")
	ErrFileExpired         = errors.New("file has expired")
	ErrQuotaExhausted      = errors.New("download limit reached")
)

// Service handles the file lifecycle: encrypted upload, password-gated
// download with quota accounting, and owner listings.
type Service struct {
	repo   Repository
	store  storage.BlobStore
	logger *logging.Logger
	now    func() time.Time
}

func NewService(repo Repository, store storage.BlobStore, logger *logging.Logger) *Service {
	return &Service{
		repo:   repo,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// UploadParams carries the validated-on-entry upload fields
type UploadParams struct {
	UserID       uuid.UUID
	Name         string
	MimeType     string
	Data         []byte
	Password     string
	ExpiresAt    time.Time
	MaxDownloads int
}

// Upload encrypts the payload with the given password and stores it. The
// metadata row is written before the storage put (status pending) and only
// marked active once the ciphertext is confirmed remote, so a crash between
// the two leaves a record the collector can purge instead of an orphan blob.
func (s *Service) Upload(ctx context.Context, params UploadParams) (*File, error) {
	if params.Name == "" {
		return nil, ErrNameRequired
	}
	if params.Password == "" {
		return nil, ErrPasswordRequired
	}
	if len(params.Data) == 0 {
		return nil, ErrEmptyFile
	}
	if len(params.Data) > MaxUploadSize {
		return nil, ErrFileTooLarge
	}
	if params.MaxDownloads < minMaxDownloads || params.MaxDownloads > maxMaxDownloads {
		return nil, ErrInvalidMaxDownloads
	}
	if !params.ExpiresAt.After(s.now()) {
		return nil, ErrExpiryInPast
	}

	hashedPassword, err := crypto.HashSecret(params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash file password: %w", err)
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	record := &File{
		UserID:         params.UserID,
		Name:           params.Name,
		Size:           int64(len(params.Data)),
		StorageKey:     uuid.NewString(),
		MimeType:       mimeType,
		HashedPassword: hashedPassword,
		ExpiresAt:      params.ExpiresAt,
		MaxDownloads:   params.MaxDownloads,
	}

	if err := s.repo.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	ciphertext, err := crypto.Encrypt(params.Data, params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt file: %w", err)
	}

	if err := s.store.Put(ctx, record.StorageKey, ciphertext); err != nil {
		// The pending record stays behind for the collector to purge
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	if err := s.repo.MarkActive(ctx, record.ID); err != nil {
		return nil, fmt.Errorf("failed to activate file record: %w", err)
	}
	record.Status = StatusActive

	s.logger.Info("file uploaded",
		"file_id", record.ID,
		"user_id", params.UserID,
		"size", record.Size,
	)

	return record, nil
}

// Download verifies the password, decrypts the blob, and records the
// download. The quota slot is only consumed after a successful decrypt, via
// compare-and-swap on the download count.
func (s *Service) Download(ctx context.Context, fileID uuid.UUID, password, ip, userAgent string) (*File, []byte, error) {
	record, err := s.authorizeDownload(ctx, fileID, password)
	if err != nil {
		return nil, nil, err
	}

	blob, err := s.store.Get(ctx, record.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch file blob: %w", err)
	}

	plaintext, err := crypto.Decrypt(blob, password)
	if err != nil {
		// The hash already matched, so a decrypt failure means the blob
		// is corrupt, not that the password is wrong
		return nil, nil, fmt.Errorf("failed to decrypt file: %w", err)
	}

	entry := DownloadEntry{
		DownloadedAt: s.now(),
		IP:           ip,
		UserAgent:    userAgent,
	}

	for attempt := 0; ; attempt++ {
		err = s.repo.RecordDownload(ctx, record.ID, record.DownloadCount, entry)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrConcurrentUpdate) {
			return nil, nil, fmt.Errorf("failed to record download: %w", err)
		}
		if attempt >= downloadRetries {
			return nil, nil, fmt.Errorf("failed to record download: %w", err)
		}

		// Someone else took a slot; re-read and re-check expiry and quota
		record, err = s.repo.GetByID(ctx, record.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil, ErrNotFound
			}
			return nil, nil, fmt.Errorf("failed to re-read file record: %w", err)
		}
		if record.Expired(s.now()) {
			return nil, nil, ErrFileExpired
		}
		if record.QuotaExhausted() {
			return nil, nil, ErrQuotaExhausted
		}
	}

	s.logger.Info("file downloaded",
		"file_id", record.ID,
		"ip", ip,
	)

	return record, plaintext, nil
}

// authorizeDownload runs the side-effect-free checks: existence, password,
// expiry, quota. Pending records are invisible to downloaders.
func (s *Service) authorizeDownload(ctx context.Context, fileID uuid.UUID, password string) (*File, error) {
	record, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	if record.Status != StatusActive {
		return nil, ErrNotFound
	}

	ok, err := crypto.VerifySecret(record.HashedPassword, password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify file password: %w", err)
	}
	if !ok {
		return nil, ErrWrongPassword
	}

	if record.Expired(s.now()) {
		return nil, ErrFileExpired
	}
	if record.QuotaExhausted() {
		return nil, ErrQuotaExhausted
	}

	return record, nil
}

// ListByOwner returns all of a user's file records, newest first
func (s *Service) ListByOwner(ctx context.Context, userID uuid.UUID) ([]*File, error) {
	files, err := s.repo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}
