package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/RishiKendai/labcheck/internal/config"
	"github.com/RishiKendai/labcheck/internal/ingest"
	"github.com/RishiKendai/labcheck/internal/models"
	"github.com/RishiKendai/labcheck/internal/plagiarism"
	"github.com/RishiKendai/labcheck/internal/repository"
	"github.com/RishiKendai/labcheck/internal/textstore"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// StatusReader serves cached check statuses.
type StatusReader interface {
	Status(ctx context.Context, checkID string) (models.CheckStatus, bool, error)
}

// Handler holds dependencies for handlers
type Handler struct {
	cfg       *config.Config
	store     repository.Store
	ingest    *ingest.Service
	processor *plagiarism.Processor
	queue     *plagiarism.Queue
	texts     textstore.Store
	status    StatusReader
}

// NewHandler creates a new handler. status may be nil.
func NewHandler(
	cfg *config.Config,
	store repository.Store,
	ingestSvc *ingest.Service,
	processor *plagiarism.Processor,
	queue *plagiarism.Queue,
	texts textstore.Store,
	status StatusReader,
) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		ingest:    ingestSvc,
		processor: processor,
		queue:     queue,
		texts:     texts,
		status:    status,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"queue": gin.H{
			"pending": h.queue.Pending(),
			"running": h.queue.Running(),
		},
	})
}

// UploadReport accepts a PDF or plain text file in the "file" form field.
func (h *Handler) UploadReport(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "File is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if file.Size > h.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "File is too large",
			Code:  "FILE_TOO_LARGE",
		})
		return
	}

	f, err := file.Open()
	if err != nil {
		log.Error().Err(err).Str("filename", file.Filename).Msg("Failed to open upload")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Failed to read file",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.cfg.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Failed to read file",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = file.Filename
	}

	report, check, err := h.ingest.IngestUpload(c.Request.Context(), name, file.Header.Get("Content-Type"), data)
	if err != nil {
		h.ingestError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, models.SubmitResponse{
		ReportID: report.ID,
		CheckID:  check.ID,
		Status:   check.Status,
	})
}

func (h *Handler) ListReports(c *gin.Context) {
	ctx := c.Request.Context()

	reports, err := h.store.ListReports(ctx)
	if err != nil {
		h.internalError(c, err, "Failed to list reports")
		return
	}

	items := make([]models.ReportListItem, 0, len(reports))
	for _, report := range reports {
		item := models.ReportListItem{
			ID:           report.ID,
			OriginalName: report.OriginalName,
			Eligible:     report.Eligible,
			CreatedAt:    report.CreatedAt,
		}
		latest, err := h.store.LatestCheckForReport(ctx, report.ID)
		switch {
		case err == nil:
			summary := latest.Summary()
			item.LatestCheck = &summary
		case !errors.Is(err, repository.ErrNotFound):
			h.internalError(c, err, "Failed to list reports")
			return
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{"reports": items})
}

func (h *Handler) GetReport(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	report, err := h.store.GetReport(ctx, id)
	if err != nil {
		h.lookupError(c, err, "Report not found")
		return
	}
	checks, err := h.store.ListChecksByReport(ctx, id)
	if err != nil {
		h.internalError(c, err, "Failed to load checks")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"report": report,
		"checks": checks,
	})
}

func (h *Handler) UpdateReport(c *gin.Context) {
	var req models.ReportUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if err := validateReportUpdate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	report, err := h.store.UpdateReport(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.lookupError(c, err, "Report not found")
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) DeleteReport(c *gin.Context) {
	if err := h.ingest.DeleteReport(c.Request.Context(), c.Param("id")); err != nil {
		h.lookupError(c, err, "Report not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteReports(c *gin.Context) {
	deleted, err := h.ingest.DeleteAll(c.Request.Context())
	if err != nil {
		h.internalError(c, err, "Failed to delete reports")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// RecheckReport queues a fresh check for an existing report.
func (h *Handler) RecheckReport(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.store.GetReport(ctx, id); err != nil {
		h.lookupError(c, err, "Report not found")
		return
	}

	check, err := h.processor.QueueCheck(ctx, id)
	if err != nil {
		h.internalError(c, err, "Failed to queue check")
		return
	}

	c.JSON(http.StatusAccepted, models.SubmitResponse{
		ReportID: id,
		CheckID:  check.ID,
		Status:   check.Status,
	})
}

func (h *Handler) GetCheck(c *gin.Context) {
	ctx := c.Request.Context()

	check, err := h.store.GetCheck(ctx, c.Param("id"))
	if err != nil {
		h.lookupError(c, err, "Check not found")
		return
	}

	result := models.CheckResult{Check: *check}
	report, err := h.store.GetReport(ctx, check.ReportID)
	switch {
	case err == nil:
		result.Report = report
	case !errors.Is(err, repository.ErrNotFound):
		h.internalError(c, err, "Failed to load report")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetCheckStatus answers status polls from the cache when possible.
func (h *Handler) GetCheckStatus(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if h.status != nil {
		status, ok, err := h.status.Status(ctx, id)
		if err != nil {
			log.Debug().Err(err).Str("checkId", id).Msg("Status cache unavailable")
		}
		if ok {
			c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
			return
		}
	}

	check, err := h.store.GetCheck(ctx, id)
	if err != nil {
		h.lookupError(c, err, "Check not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": check.Status})
}

// Diff compares two stored reports for side-by-side review.
func (h *Handler) Diff(c *gin.Context) {
	sourceID := c.Query("source")
	targetID := c.Query("target")
	if sourceID == "" || targetID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "source and target are required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	sourceText, ok := h.reportText(c, sourceID)
	if !ok {
		return
	}
	targetText, ok := h.reportText(c, targetID)
	if !ok {
		return
	}

	segments := plagiarism.BuildDiffSegments(sourceText, targetText)
	c.JSON(http.StatusOK, gin.H{
		"source":     sourceID,
		"target":     targetID,
		"similarity": plagiarism.ScorePercent(plagiarism.PlagiarismSimilarity(targetText, sourceText)),
		"preview":    plagiarism.BuildMatchPreview(segments),
		"segments":   segments,
	})
}

func (h *Handler) reportText(c *gin.Context, id string) (string, bool) {
	ctx := c.Request.Context()

	report, err := h.store.GetReport(ctx, id)
	if err != nil {
		h.lookupError(c, err, "Report not found")
		return "", false
	}
	text, err := h.texts.Load(ctx, report.TextKey)
	if errors.Is(err, textstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Report text not found",
			Code:  "NOT_FOUND",
		})
		return "", false
	}
	if err != nil {
		h.internalError(c, err, "Failed to load report text")
		return "", false
	}
	return text, true
}

func (h *Handler) ingestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ingest.ErrUnsupportedType):
		c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{
			Error: err.Error(),
			Code:  "UNSUPPORTED_FILE_TYPE",
		})
	case errors.Is(err, ingest.ErrEmptyText):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  "EMPTY_TEXT",
		})
	case errors.Is(err, ingest.ErrMissingName), errors.Is(err, ingest.ErrInvalidCloudLink):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
	default:
		h.internalError(c, err, "Failed to ingest report")
	}
}

func (h *Handler) lookupError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: notFound,
			Code:  "NOT_FOUND",
		})
		return
	}
	h.internalError(c, err, "Internal error")
}

func (h *Handler) internalError(c *gin.Context, err error, msg string) {
	log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: msg,
		Code:  "INTERNAL_ERROR",
	})
}

func validateReportUpdate(req *models.ReportUpdate) error {
	if req.OriginalName != nil {
		name := strings.TrimSpace(*req.OriginalName)
		if name == "" {
			return errors.New("originalName must not be empty")
		}
		req.OriginalName = &name
	}
	if req.CloudLink != nil && strings.TrimSpace(*req.CloudLink) != "" {
		link, err := ingest.NormalizeCloudLink(*req.CloudLink)
		if err != nil {
			return err
		}
		req.CloudLink = &link
	}
	if req.CloudLink != nil && strings.TrimSpace(*req.CloudLink) == "" {
		empty := ""
		req.CloudLink = &empty
	}
	return nil
}
