package handler

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EvidenceUploader hands out pre-signed upload URLs for evidence documents.
type EvidenceUploader interface {
	PresignEvidenceUpload(ctx context.Context, key, contentType string) (string, time.Time, error)
}

// EvidenceHandler issues upload URLs for receipts and step documents
type EvidenceHandler struct {
	BaseHandler
	uploader EvidenceUploader
}

// NewEvidenceHandler creates a new EvidenceHandler
func NewEvidenceHandler(uploader EvidenceUploader) *EvidenceHandler {
	return &EvidenceHandler{uploader: uploader}
}

// UploadURLRequest asks for an upload slot. Folder is a step key, or
// "receipts" for payment receipts.
type UploadURLRequest struct {
	ClientID    uuid.UUID `json:"client_id" binding:"required"`
	Folder      string    `json:"folder" binding:"required,max=100"`
	FileName    string    `json:"file_name" binding:"required,max=200"`
	ContentType string    `json:"content_type" binding:"required,max=100"`
}

// UploadURLResponse is where the client uploads the file and the key to
// submit afterwards as receipt_key or evidence reference.
type UploadURLResponse struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateUploadURL returns a pre-signed upload URL under a fresh key.
// POST /api/v1/evidence/upload-url
func (h *EvidenceHandler) CreateUploadURL(c *gin.Context) {
	if _, ok := h.requireActor(c); !ok {
		return
	}
	var req UploadURLRequest
	if !h.bindJSON(c, &req) {
		return
	}

	key := evidenceKey(req.ClientID, req.Folder, req.FileName)
	url, expiresAt, err := h.uploader.PresignEvidenceUpload(c.Request.Context(), key, req.ContentType)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, UploadURLResponse{Key: key, UploadURL: url, ExpiresAt: expiresAt})
}

// evidenceKey builds clients/<client>/<folder>/<uuid>-<file>. Path
// separators in the user-supplied parts are flattened.
func evidenceKey(clientID uuid.UUID, folder, fileName string) string {
	return path.Join("clients", clientID.String(), sanitizeSegment(folder), uuid.NewString()+"-"+sanitizeSegment(fileName))
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r < 0x20 || r == 0x7f:
			return '_'
		case r == ' ':
			return '-'
		}
		return r
	}, s)
	s = strings.Trim(s, ".")
	if s == "" {
		return "file"
	}
	return s
}
