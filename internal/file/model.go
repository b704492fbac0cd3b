package file

import (
	"time"

	"github.com/google/uuid"
)

// Record status. Uploads are written ahead of the storage put as pending and
// flip to active once the ciphertext is confirmed in remote storage. Only
// active files are downloadable.
const (
	StatusPending = "pending"
	StatusActive  = "active"
)

// File is the domain model for an uploaded file
type File struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Name            string          `json:"name"`
	Size            int64           `json:"size"`
	StorageKey      string          `json:"-"`
	MimeType        string          `json:"mime_type"`
	HashedPassword  string          `json:"-"`
	Status          string          `json:"status"`
	UploadedAt      time.Time       `json:"uploaded_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	MaxDownloads    int             `json:"max_downloads"`
	DownloadCount   int             `json:"download_count"`
	DownloadHistory []DownloadEntry `json:"download_history"`
}

// DownloadEntry records one successful download
type DownloadEntry struct {
	DownloadedAt time.Time `json:"downloaded_at"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"user_agent"`
}

// Expired reports whether the file is at or past its expiry
func (f *File) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// QuotaExhausted reports whether the download quota is used up
func (f *File) QuotaExhausted() bool {
	return f.DownloadCount >= f.MaxDownloads
}
