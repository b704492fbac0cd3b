package file

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vaultshare/fileshare-api/internal/database"
)

var (
	ErrNotFound         = errors.New("file not found")
	ErrConcurrentUpdate = errors.New("download count changed concurrently")
)

// Repository defines the file persistence operations the service needs
type Repository interface {
	Insert(ctx context.Context, f *File) error
	MarkActive(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*File, error)
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]*File, error)
	RecordDownload(ctx context.Context, id uuid.UUID, expectedCount int, entry DownloadEntry) error
	ListPurgeable(ctx context.Context, now, pendingCutoff time.Time) ([]*File, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// BunRepository handles file metadata persistence in Postgres
type BunRepository struct {
	db *bun.DB
}

func NewBunRepository(db *bun.DB) *BunRepository {
	return &BunRepository{db: db}
}

// Insert writes a new pending file record and fills in generated columns
func (r *BunRepository) Insert(ctx context.Context, f *File) error {
	dbFile := &database.File{
		UserID:         f.UserID,
		Name:           f.Name,
		Size:           f.Size,
		StorageKey:     f.StorageKey,
		MimeType:       f.MimeType,
		HashedPassword: f.HashedPassword,
		Status:         StatusPending,
		ExpiresAt:      f.ExpiresAt,
		MaxDownloads:   f.MaxDownloads,
	}

	_, err := r.db.NewInsert().
		Model(dbFile).
		Returning("*").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	*f = *mapDBFileToModel(dbFile)
	return nil
}

// MarkActive flips a pending record to active once the blob is in storage
func (r *BunRepository) MarkActive(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.NewUpdate().
		Model((*database.File)(nil)).
		Set("status = ?", StatusActive).
		Where("id = ?", id).
		Where("status = ?", StatusPending).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to mark file active: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetByID retrieves a file record by ID
func (r *BunRepository) GetByID(ctx context.Context, id uuid.UUID) (*File, error) {
	dbFile := new(database.File)
	err := r.db.NewSelect().
		Model(dbFile).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file by id: %w", err)
	}

	return mapDBFileToModel(dbFile), nil
}

// ListByOwner retrieves all file records belonging to a user
func (r *BunRepository) ListByOwner(ctx context.Context, userID uuid.UUID) ([]*File, error) {
	var dbFiles []database.File
	err := r.db.NewSelect().
		Model(&dbFiles).
		Where("user_id = ?", userID).
		Order("uploaded_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list files by owner: %w", err)
	}

	files := make([]*File, 0, len(dbFiles))
	for i := range dbFiles {
		files = append(files, mapDBFileToModel(&dbFiles[i]))
	}
	return files, nil
}

// RecordDownload increments download_count and appends a history entry,
// guarded by a compare-and-swap on the expected count so two concurrent
// downloads can never both claim the last slot.
func (r *BunRepository) RecordDownload(ctx context.Context, id uuid.UUID, expectedCount int, entry DownloadEntry) error {
	result, err := r.db.NewUpdate().
		Model((*database.File)(nil)).
		Set("download_count = download_count + 1").
		Set("download_history = download_history || ?::jsonb", jsonbEntry(entry)).
		Where("id = ?", id).
		Where("download_count = ?", expectedCount).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	return nil
}

// ListPurgeable returns the records the collector should remove: active files
// past expiry or out of quota, and pending files older than the grace cutoff.
func (r *BunRepository) ListPurgeable(ctx context.Context, now, pendingCutoff time.Time) ([]*File, error) {
	var dbFiles []database.File
	err := r.db.NewSelect().
		Model(&dbFiles).
		Where(
			"(status = ? AND (expires_at <= ? OR download_count >= max_downloads)) OR (status = ? AND uploaded_at <= ?)",
			StatusActive, now, StatusPending, pendingCutoff,
		).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list purgeable files: %w", err)
	}

	files := make([]*File, 0, len(dbFiles))
	for i := range dbFiles {
		files = append(files, mapDBFileToModel(&dbFiles[i]))
	}
	return files, nil
}

// Delete removes a file record
func (r *BunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*database.File)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

func jsonbEntry(entry DownloadEntry) string {
	// Marshalling a flat struct of time/string fields cannot fail
	data, _ := json.Marshal([]DownloadEntry{entry})
	return string(data)
}

// mapDBFileToModel converts database model to domain model
func mapDBFileToModel(dbf *database.File) *File {
	history := make([]DownloadEntry, 0, len(dbf.DownloadHistory))
	for _, e := range dbf.DownloadHistory {
		history = append(history, DownloadEntry{
			DownloadedAt: e.DownloadedAt,
			IP:           e.IP,
			UserAgent:    e.UserAgent,
		})
	}

	return &File{
		ID:              dbf.ID,
		UserID:          dbf.UserID,
		Name:            dbf.Name,
		Size:            dbf.Size,
		StorageKey:      dbf.StorageKey,
		MimeType:        dbf.MimeType,
		HashedPassword:  dbf.HashedPassword,
		Status:          dbf.Status,
		UploadedAt:      dbf.UploadedAt,
		ExpiresAt:       dbf.ExpiresAt,
		MaxDownloads:    dbf.MaxDownloads,
		DownloadCount:   dbf.DownloadCount,
		DownloadHistory: history,
	}
}
