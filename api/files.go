package api

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"chatllm/internal/conversation"
	"chatllm/internal/filestore"
	"chatllm/internal/ingest"
	"chatllm/internal/log"
	"chatllm/internal/provider"
	"chatllm/internal/store"
)

// Upload limits.
const (
	// MaxUploadBytes bounds one multipart upload request.
	MaxUploadBytes = 32 << 20

	// MaxFilesPerUpload bounds the number of files in one request.
	MaxFilesPerUpload = 10
)

// FileHandler handles document upload and ingestion.
type FileHandler struct {
	svc     *conversation.Service
	records FileRecords
	storage *filestore.Store
	ingest  DocumentIngestor
	logger  log.Logger
}

// NewFileHandler creates a file handler.
func NewFileHandler(svc *conversation.Service, records FileRecords, storage *filestore.Store, ingestor DocumentIngestor, logger log.Logger) *FileHandler {
	return &FileHandler{svc: svc, records: records, storage: storage, ingest: ingestor, logger: logger}
}

// RegisterRoutes registers file routes on the given mux.
func (h *FileHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/messages/{id}/files", h.list)
	mux.HandleFunc("POST /api/messages/{id}/files", h.upload)
}

func (h *FileHandler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "message id must be a UUID")
		return
	}
	if _, err := h.svc.Message(r.Context(), ownerFrom(r.Context()), id); err != nil {
		writeServiceError(w, h.logger, "load message", err)
		return
	}
	files, err := h.records.ListFiles(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "list files", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"total": len(files),
	})
}

// UploadResponse reports what an upload persisted. ChunksProcessed counts
// the chunks that were embedded and stored; a partially failed ingestion
// reports Status "partial" with the count of chunks that still landed.
type UploadResponse struct {
	Status          string               `json:"status"`
	Files           []*store.MessageFile `json:"files"`
	ChunksProcessed int                  `json:"chunks_processed"`
}

// upload accepts multipart form files under the "files" field, stores the
// raw bytes, records them against the message, then chunks and embeds the
// content for retrieval. Endpoint credentials for the embedding calls come
// from the form fields endpoint_base_url, endpoint_api_key and
// endpoint_model.
func (h *FileHandler) upload(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "message id must be a UUID")
		return
	}
	if _, err := h.svc.Message(r.Context(), ownerFrom(r.Context()), id); err != nil {
		writeServiceError(w, h.logger, "load message", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "request must be multipart form data within the size limit")
		return
	}
	uploads := r.MultipartForm.File["files"]
	if len(uploads) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_upload", "no files provided")
		return
	}
	if len(uploads) > MaxFilesPerUpload {
		writeError(w, http.StatusBadRequest, "invalid_upload", "too many files (max 10)")
		return
	}

	ep := provider.Endpoint{
		BaseURL: r.FormValue("endpoint_base_url"),
		APIKey:  r.FormValue("endpoint_api_key"),
		Model:   r.FormValue("endpoint_model"),
	}

	records := make([]*store.MessageFile, 0, len(uploads))
	docs := make([]ingest.Document, 0, len(uploads))
	for _, header := range uploads {
		record, text, err := h.saveUpload(r, id, header)
		if err != nil {
			h.logger.Error("saving upload failed", "message", id, "file", header.Filename, "error", err)
			writeError(w, http.StatusInternalServerError, "upload_failed", "could not store file")
			return
		}
		records = append(records, record)
		docs = append(docs, ingest.Document{
			FileID: record.ID,
			Source: record.FileName,
			Text:   text,
		})
	}

	processed, err := h.ingest.IngestAll(r.Context(), ep, docs)
	if err != nil {
		h.logger.Error("ingestion failed", "message", id, "chunks_processed", processed, "error", err)
		writeJSON(w, http.StatusInternalServerError, UploadResponse{
			Status:          "partial",
			Files:           records,
			ChunksProcessed: processed,
		})
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		Status:          "ok",
		Files:           records,
		ChunksProcessed: processed,
	})
}

// saveUpload stores one file's bytes and records it, returning the record
// and the text to ingest.
func (h *FileHandler) saveUpload(r *http.Request, messageID uuid.UUID, header *multipart.FileHeader) (*store.MessageFile, string, error) {
	f, err := header.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	text, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}

	rel, size, err := h.storage.Save(messageID, header.Filename, bytes.NewReader(text))
	if err != nil {
		return nil, "", err
	}

	fileType := header.Header.Get("Content-Type")
	if fileType == "" {
		fileType = strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	}
	record, err := h.records.CreateFile(r.Context(), messageID, header.Filename, rel, fileType, size)
	if err != nil {
		return nil, "", err
	}
	return record, string(text), nil
}
