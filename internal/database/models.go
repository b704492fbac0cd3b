package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the bun table model for registered accounts.
// Unique index on email.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID             uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Name           string    `bun:"name,notnull"`
	Email          string    `bun:"email,notnull,unique"`
	HashedPassword string    `bun:"hashed_password,notnull"`
	IsVerified     bool      `bun:"is_verified,notnull,default:false"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Token is the bun table model for single-use email tokens. At most one row
// exists per (user_id, token_type); hashed_token carries a unique index so a
// database read never yields a usable credential.
type Token struct {
	bun.BaseModel `bun:"table:tokens"`

	ID          uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	TokenType   string    `bun:"token_type,notnull"`
	HashedToken string    `bun:"hashed_token,notnull,unique"`
	UserID      uuid.UUID `bun:"user_id,notnull,type:uuid"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
}

// DownloadEntry is one element of File.DownloadHistory, stored as JSONB.
type DownloadEntry struct {
	DownloadedAt time.Time `json:"downloaded_at"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"user_agent"`
}

// File is the bun table model for uploaded file metadata. Rows start out
// pending (written before the storage upload) and flip to active once the
// ciphertext is confirmed in remote storage.
type File struct {
	bun.BaseModel `bun:"table:files"`

	ID              uuid.UUID       `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	UserID          uuid.UUID       `bun:"user_id,notnull,type:uuid"`
	Name            string          `bun:"name,notnull"`
	Size            int64           `bun:"size,notnull"`
	StorageKey      string          `bun:"storage_key,notnull"`
	MimeType        string          `bun:"mime_type,notnull"`
	HashedPassword  string          `bun:"hashed_password,notnull"`
	Status          string          `bun:"status,notnull,default:'pending'"`
	UploadedAt      time.Time       `bun:"uploaded_at,notnull,default:current_timestamp"`
	ExpiresAt       time.Time       `bun:"expires_at,notnull"`
	MaxDownloads    int             `bun:"max_downloads,notnull"`
	DownloadCount   int             `bun:"download_count,notnull,default:0"`
	DownloadHistory []DownloadEntry `bun:"download_history,type:jsonb,default:'[]'"`
}
