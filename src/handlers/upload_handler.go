// backend/src/handlers/upload_handler.go
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/username/tradereview/backend/src/config"
	"github.com/username/tradereview/backend/src/logger"
	"github.com/username/tradereview/backend/src/parsers"
	"github.com/username/tradereview/backend/src/parsers/jpcsv"
	"github.com/username/tradereview/backend/src/processors"
	"github.com/username/tradereview/backend/src/security/validation"
	"github.com/username/tradereview/backend/src/services"
	"github.com/username/tradereview/backend/src/utils"
)

type UploadHandler struct {
	analysisService services.AnalysisService
	maxUploadSize   int64
	defaultSource   string
	defaultEncoding string
}

func NewUploadHandler(service services.AnalysisService, cfg *config.AppConfig) *UploadHandler {
	return &UploadHandler{
		analysisService: service,
		maxUploadSize:   cfg.MaxUploadSizeBytes,
		defaultSource:   cfg.DefaultSource,
		defaultEncoding: cfg.InputEncoding,
	}
}

func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	limitMB := h.maxUploadSize / (1024 * 1024)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1024*1024)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		log.Warn("Failed to parse multipart form or request too large", "error", err, "limit", h.maxUploadSize)
		utils.SendJSONError(w, fmt.Sprintf("Failed to read upload or file too large (max %d MB)", limitMB), http.StatusBadRequest)
		return
	}

	source := strings.ToLower(strings.TrimSpace(r.FormValue("source")))
	if source == "" {
		source = h.defaultSource
	}
	encoding := strings.TrimSpace(r.FormValue("encoding"))
	if encoding == "" {
		encoding = h.defaultEncoding
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		log.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > h.maxUploadSize {
		log.Warn("Uploaded file too large", "fileSize", fileHeader.Size, "limit", h.maxUploadSize)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", limitMB), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		log.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize))
	if err != nil {
		log.Error("Failed to read uploaded file", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, "Failed to read uploaded file", http.StatusInternalServerError)
		return
	}
	log.Info("Processing upload", "source", source, "encoding", encoding, "filename", fileHeader.Filename,
		"size", len(data), "detectedType", detectedContentType)

	report, err := h.analysisService.Analyze(r.Context(), data, services.AnalyzeOptions{
		Source:   source,
		Encoding: encoding,
		Filename: fileHeader.Filename,
		FileSize: fileHeader.Size,
	})
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, report, http.StatusOK)
}

// HandleListSources lists the broker layouts an upload may name.
func (h *UploadHandler) HandleListSources(w http.ResponseWriter, r *http.Request) {
	utils.SendJSON(w, map[string]any{
		"sources": parsers.Sources(),
		"default": h.defaultSource,
	}, http.StatusOK)
}

// sendServiceError maps service and pipeline errors to HTTP status codes.
func sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, services.ErrAnalysisNotFound), errors.Is(err, services.ErrInstrumentNotFound):
		utils.SendJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, parsers.ErrUnknownSource),
		errors.Is(err, jpcsv.ErrHeaderNotFound),
		errors.Is(err, services.ErrMissingQuantityColumn),
		errors.Is(err, services.ErrMissingPriceColumn):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, jpcsv.ErrDataParse), errors.Is(err, processors.ErrInvalidRecord),
		errors.Is(err, services.ErrParsingFailed), errors.Is(err, services.ErrProcessingFailed):
		utils.SendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		log.Info("Request abandoned by client", "error", err)
	default:
		log.Error("Unhandled service error", "error", err)
		utils.SendJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}
