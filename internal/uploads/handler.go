// Package uploads serves resume file parsing for the paste-or-upload form.
package uploads

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-tailor/internal/extract"
	"resume-tailor/internal/shared/server/respond"
	"resume-tailor/internal/shared/telemetry"
	"resume-tailor/internal/shared/util"
)

// multipart framing on top of the file itself
const formOverheadBytes = 64 << 10

// ParseFunc extracts resume text from an uploaded file.
type ParseFunc func(ctx context.Context, data []byte, fileName string) (extract.Result, error)

// Handler wires the parse-resume endpoint.
type Handler struct {
	Parse ParseFunc
}

// NewHandler constructs a Handler backed by extract.ParseResume.
func NewHandler() *Handler {
	return &Handler{Parse: extract.ParseResume}
}

// RegisterRoutes attaches upload routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/parse-resume", h.parseResume)
}

func (h *Handler) parseResume(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, extract.MaxFileBytes+formOverheadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Flat(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File too large. Maximum size is 5MB.")
			return
		}
		respond.Flat(c, http.StatusBadRequest, "FILE_REQUIRED", "No file provided")
		return
	}
	if fileHeader.Size > extract.MaxFileBytes {
		respond.Flat(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File too large. Maximum size is 5MB.")
		return
	}

	name, err := util.SanitizeFileName(fileHeader.Filename)
	if err != nil {
		respond.Flat(c, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "File must have a .pdf or .docx extension.")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Flat(c, http.StatusBadRequest, "FILE_REQUIRED", "Unable to read file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, extract.MaxFileBytes+1))
	if err != nil {
		respond.Flat(c, http.StatusBadRequest, "FILE_REQUIRED", "Unable to read file")
		return
	}

	res, err := h.Parse(c.Request.Context(), data, name)
	if err != nil {
		writeParseError(c, name, err)
		return
	}

	telemetry.Info("uploads.parsed", map[string]any{
		"file_type":       res.FileType,
		"character_count": res.CharacterCount,
		"size_bytes":      len(data),
		"request_id":      c.GetString("requestId"),
	})
	respond.JSON(c, http.StatusOK, res)
}

func writeParseError(c *gin.Context, name string, err error) {
	switch {
	case errors.Is(err, extract.ErrEmptyFile):
		respond.Flat(c, http.StatusBadRequest, "FILE_EMPTY", "File is empty.")
	case errors.Is(err, extract.ErrTooLarge):
		respond.Flat(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File too large. Maximum size is 5MB.")
	case errors.Is(err, extract.ErrUnsupported):
		respond.Flat(c, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "Unsupported file format. Please use PDF or DOCX files.")
	case errors.Is(err, extract.ErrNoText):
		respond.Flat(c, http.StatusUnprocessableEntity, "NO_TEXT_EXTRACTED",
			"Could not extract any text from the file. Please try copy-pasting your resume text instead.")
	case errors.Is(err, extract.ErrTooShort):
		respond.Flat(c, http.StatusUnprocessableEntity, "TEXT_TOO_SHORT", err.Error())
	default:
		telemetry.Warn("uploads.parse_failed", map[string]any{
			"file_name":  name,
			"error":      err.Error(),
			"request_id": c.GetString("requestId"),
		})
		respond.Flat(c, http.StatusUnprocessableEntity, "PARSE_FAILED", "Failed to parse file. It may be corrupted or image-based.")
	}
}
