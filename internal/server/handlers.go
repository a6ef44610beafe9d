package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kd2675/image-back-server/internal/storage"
)

var errUploadTooLarge = errors.New("file exceeds the upload size limit")

type batchUploadResult struct {
	OriginalFilename string `json:"original_filename"`
	URL              string `json:"url,omitempty"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"store": s.store.Stats(),
		"cache": s.cache.GetStats(),
	})
}

func (s *Server) handleUpload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "please select a file to upload"})
		return
	}

	data, err := s.readUpload(header)
	if err != nil {
		s.writeError(c, err)
		return
	}

	ref, err := s.store.StoreImage(data, header.Filename)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": ref})
}

// handleUploadBatch stores each file independently; one file failing does
// not abort the rest.
func (s *Server) handleUploadBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart request"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	results := make([]batchUploadResult, 0, len(files))
	for _, header := range files {
		result := batchUploadResult{OriginalFilename: header.Filename}

		data, readErr := s.readUpload(header)
		if readErr == nil {
			var ref string
			ref, readErr = s.store.StoreImage(data, header.Filename)
			result.URL = ref
		}
		if readErr != nil {
			result.Error = publicError(readErr)
			slog.Warn("batch upload entry failed", "filename", header.Filename, "error", readErr)
		} else {
			result.Success = true
		}
		results = append(results, result)
	}

	c.JSON(http.StatusOK, results)
}

func (s *Server) handleGetImage(c *gin.Context) {
	partition := c.Param("year") + "/" + c.Param("month") + "/" + c.Param("day")
	filename := c.Param("filename")
	width := intQuery(c, "width")
	height := intQuery(c, "height")

	data, name, err := s.store.LoadImage(partition, filename, width, height)
	if err != nil {
		s.writeError(c, err)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	c.Data(http.StatusOK, contentType, data)
}

func (s *Server) readUpload(header *multipart.FileHeader) ([]byte, error) {
	if header.Size == 0 {
		return nil, storage.ErrEmptyUpload
	}
	if header.Size > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w (%d bytes)", errUploadTooLarge, s.cfg.MaxUploadBytes)
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	defer file.Close()

	return io.ReadAll(file)
}

// writeError is the single mapping from the storage error kinds to HTTP
// status codes. Unclassified failures are logged in full and surfaced as a
// generic 500.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		slog.Warn("image not found", "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
	case errors.Is(err, storage.ErrEmptyUpload), errors.Is(err, storage.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": publicError(err)})
	case errors.Is(err, errUploadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": publicError(err)})
	default:
		slog.Error("storage failure", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "an unexpected error occurred"})
	}
}

// publicError returns a message safe to hand to clients: expected kinds
// keep their text, everything else is generic.
func publicError(err error) string {
	switch {
	case errors.Is(err, storage.ErrEmptyUpload),
		errors.Is(err, storage.ErrUnsupportedFormat),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, errUploadTooLarge):
		return err.Error()
	default:
		return "an unexpected error occurred"
	}
}

// intQuery parses a positive integer query parameter; absent or malformed
// values count as not supplied.
func intQuery(c *gin.Context, name string) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
