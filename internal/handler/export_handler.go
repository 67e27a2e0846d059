package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-insights-api/internal/dto"
	"github.com/noah-isme/attendance-insights-api/internal/service"
	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
	"github.com/noah-isme/attendance-insights-api/pkg/response"
)

type exportProvider interface {
	Create(ctx context.Context, req dto.ExportRequest) (*dto.ExportResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler renders report files and serves signed downloads.
type ExportHandler struct {
	exports exportProvider
}

// NewExportHandler constructs the handler.
func NewExportHandler(exports exportProvider) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Create godoc
// @Summary Render a report section to a file
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.ExportRequest true "Format and section"
// @Success 201 {object} response.Envelope
// @Router /attendance/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	result, err := h.exports.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a rendered export
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.exports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.Content.Close() //nolint:errcheck

	c.Header("Content-Type", download.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.FileName))
	c.Header("Cache-Control", "private, no-store")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, download.Content); err != nil {
		_ = c.Error(err)
	}
}
