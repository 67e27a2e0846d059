package handler

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-insights-api/internal/models"
	"github.com/noah-isme/attendance-insights-api/internal/service"
	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
	"github.com/noah-isme/attendance-insights-api/pkg/response"
)

const uploadFormField = "files"

type sourceManager interface {
	Upload(ctx context.Context, files []service.UploadFile) ([]models.SourceMetadata, error)
	List(ctx context.Context) ([]models.SourceMetadata, error)
	Delete(ctx context.Context, name string) error
}

// SourceHandler manages the stored session files.
type SourceHandler struct {
	sources sourceManager
}

// NewSourceHandler constructs the handler.
func NewSourceHandler(sources sourceManager) *SourceHandler {
	return &SourceHandler{sources: sources}
}

// Upload godoc
// @Summary Upload session files
// @Tags Sources
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "One or more .csv or .xlsx files"
// @Success 201 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /attendance/sources [post]
func (h *SourceHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "multipart form required"))
		return
	}
	headers := form.File[uploadFormField]
	if len(headers) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "no files in field 'files'"))
		return
	}

	uploads := make([]service.UploadFile, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable upload"))
			return
		}
		opened = append(opened, file)
		uploads = append(uploads, service.UploadFile{Name: header.Filename, Size: header.Size, Content: file})
	}

	stored, err := h.sources.Upload(c.Request.Context(), uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, stored, map[string]interface{}{"total": len(stored)})
}

// List godoc
// @Summary List stored session files
// @Tags Sources
// @Produce json
// @Param group query string false "Set to 'batch' to group by batch and section"
// @Success 200 {object} response.Envelope
// @Router /attendance/sources [get]
func (h *SourceHandler) List(c *gin.Context) {
	sources, err := h.sources.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{"total": len(sources)}
	if c.Query("group") != "batch" {
		response.JSON(c, http.StatusOK, sources, meta)
		return
	}
	grouped := make(map[string]map[string][]models.SourceMetadata)
	for _, src := range sources {
		sections, ok := grouped[src.Batch]
		if !ok {
			sections = make(map[string][]models.SourceMetadata)
			grouped[src.Batch] = sections
		}
		sections[src.Section] = append(sections[src.Section], src)
	}
	response.JSON(c, http.StatusOK, grouped, meta)
}

// Delete godoc
// @Summary Delete a stored session file
// @Tags Sources
// @Param name path string true "File name"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /attendance/sources/{name} [delete]
func (h *SourceHandler) Delete(c *gin.Context) {
	if err := h.sources.Delete(c.Request.Context(), c.Param("name")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
