package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaultshare/fileshare-api/internal/auth"
	"github.com/vaultshare/fileshare-api/internal/httputil"
	"github.com/vaultshare/fileshare-api/internal/logging"
)

// Handler contains HTTP handlers for the /file endpoints
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// UploadResponse carries the ID of the new file
type UploadResponse struct {
	ID uuid.UUID `json:"id"`
}

// DownloadRequest represents the download request body
type DownloadRequest struct {
	FileID   uuid.UUID `json:"file_id"`
	Password string    `json:"password"`
}

// FileResponse represents a file in owner listings
type FileResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	MimeType      string    `json:"mime_type"`
	Status        string    `json:"status"`
	UploadedAt    time.Time `json:"uploaded_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	MaxDownloads  int       `json:"max_downloads"`
	DownloadCount int       `json:"download_count"`
}

// ListResponse wraps the owner's files
type ListResponse struct {
	Files []FileResponse `json:"files"`
}

// Upload handles the multipart file upload
// @Summary      Upload a file
// @Description  Encrypts and stores a file protected by a password
// @Tags         file
// @Accept       multipart/form-data
// @Produce      json
// @Param        file          formData file   true "File contents"
// @Param        file_name     formData string true "Display name"
// @Param        password      formData string true "Download password"
// @Param        expires_at    formData string true "Expiry (RFC3339)"
// @Param        max_downloads formData int    true "Download quota (1-10)"
// @Security     BearerAuth
// @Success      201 {object} UploadResponse
// @Failure      400 {object} httputil.ErrorResponse
// @Failure      401 {object} httputil.ErrorResponse
// @Router       /file/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, httputil.KindUnauthorized, "authentication required", http.StatusUnauthorized)
		return
	}

	// One extra MiB of headroom for the non-file form fields
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		logger.Warn("invalid multipart upload", "error", err.Error())
		httputil.RespondError(w, httputil.KindValidation, "invalid multipart form or file too large", http.StatusBadRequest)
		return
	}

	filePart, fileHeader, err := r.FormFile("file")
	if err != nil {
		logger.Warn("missing file part", "error", err.Error())
		httputil.RespondError(w, httputil.KindValidation, "file is required", http.StatusBadRequest)
		return
	}
	defer filePart.Close()

	data, err := io.ReadAll(io.LimitReader(filePart, MaxUploadSize+1))
	if err != nil {
		logger.Error("failed to read file part", "error", err.Error())
		httputil.RespondError(w, httputil.KindInternal, "failed to read file", http.StatusInternalServerError)
		return
	}

	expiresAt, err := time.Parse(time.RFC3339, r.FormValue("expires_at"))
	if err != nil {
		logger.Warn("invalid expires_at", "value", r.FormValue("expires_at"))
		httputil.RespondError(w, httputil.KindValidation, "expires_at must be a valid RFC3339 timestamp", http.StatusBadRequest)
		return
	}

	maxDownloads, err := strconv.Atoi(r.FormValue("max_downloads"))
	if err != nil {
		logger.Warn("invalid max_downloads", "value", r.FormValue("max_downloads"))
		httputil.RespondError(w, httputil.KindValidation, "max_downloads must be an integer", http.StatusBadRequest)
		return
	}

	uploaded, err := h.service.Upload(r.Context(), UploadParams{
		UserID:       userID,
		Name:         r.FormValue("file_name"),
		MimeType:     uploadContentType(fileHeader, data),
		Data:         data,
		Password:     r.FormValue("password"),
		ExpiresAt:    expiresAt,
		MaxDownloads: maxDownloads,
	})
	if err != nil {
		if isUploadValidationError(err) {
			logger.Warn("upload rejected", "error", err.Error())
			httputil.RespondError(w, httputil.KindValidation, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Error("upload failed", "error", err.Error())
		httputil.RespondError(w, httputil.KindInternal, "failed to upload file", http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, UploadResponse{ID: uploaded.ID}, http.StatusCreated)
}

// Download handles password-gated file downloads
// @Summary      Download a file
// @Description  Verifies the password, decrypts the file, and streams it back
// @Tags         file
// @Accept       json
// @Produce      octet-stream
// @Param        request body DownloadRequest true "File ID and password"
// @Success      200 {file} binary
// @Failure      400 {object} httputil.ErrorResponse "Not found, expired, quota, or wrong password"
// @Router       /file/download [post]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid download request body", "error", err.Error())
		httputil.RespondError(w, httputil.KindValidation, "invalid request body", http.StatusBadRequest)
		return
	}

	record, plaintext, err := h.service.Download(r.Context(), req.FileID, req.Password, getClientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			logger.Warn("download failed: file not found", "file_id", req.FileID)
			httputil.RespondError(w, httputil.KindBadRequest, "file not found", http.StatusBadRequest)
		case errors.Is(err, ErrWrongPassword):
			logger.Warn("download failed: wrong password", "file_id", req.FileID)
			httputil.RespondError(w, httputil.KindBadRequest, "wrong password", http.StatusBadRequest)
		case errors.Is(err, ErrFileExpired):
			logger.Warn("download failed: file expired", "file_id", req.FileID)
			httputil.RespondError(w, httputil.KindBadRequest, "file has expired", http.StatusBadRequest)
		case errors.Is(err, ErrQuotaExhausted):
			logger.Warn("download failed: quota exhausted", "file_id", req.FileID)
			httputil.RespondError(w, httputil.KindBadRequest, "download limit reached", http.StatusBadRequest)
		default:
			logger.Error("download failed: internal error", "file_id", req.FileID, "error", err.Error())
			httputil.RespondError(w, httputil.KindInternal, "failed to download file", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", record.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(plaintext)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(plaintext); err != nil {
		logger.Warn("failed to write download body", "file_id", req.FileID, "error", err.Error())
	}
}

// ListUserFiles returns the authenticated user's files
// @Summary      List own files
// @Tags         file
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} ListResponse
// @Failure      401 {object} httputil.ErrorResponse
// @Router       /file/user-files [get]
func (h *Handler) ListUserFiles(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, httputil.KindUnauthorized, "authentication required", http.StatusUnauthorized)
		return
	}

	files, err := h.service.ListByOwner(r.Context(), userID)
	if err != nil {
		logger.Error("failed to list user files", "user_id", userID, "error", err.Error())
		httputil.RespondError(w, httputil.KindInternal, "failed to list files", http.StatusInternalServerError)
		return
	}

	resp := ListResponse{Files: make([]FileResponse, 0, len(files))}
	for _, f := range files {
		resp.Files = append(resp.Files, FileResponse{
			ID:            f.ID,
			Name:          f.Name,
			Size:          f.Size,
			MimeType:      f.MimeType,
			Status:        f.Status,
			UploadedAt:    f.UploadedAt,
			ExpiresAt:     f.ExpiresAt,
			MaxDownloads:  f.MaxDownloads,
			DownloadCount: f.DownloadCount,
		})
	}

	httputil.RespondJSON(w, resp, http.StatusOK)
}

func isUploadValidationError(err error) bool {
	return errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrPasswordRequired) ||
		errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrInvalidMaxDownloads) ||
		errors.Is(err, ErrExpiryInPast)
}

// uploadContentType prefers the type the client declared on the multipart
// part, sniffing the content only when no type was sent.
func uploadContentType(header *multipart.FileHeader, data []byte) string {
	if declared := header.Header.Get("Content-Type"); declared != "" {
		return declared
	}
	return http.DetectContentType(data)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
