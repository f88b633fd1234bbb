package handlers

import (
	"context"
	"errors"
	"net/http"

	"inspection-chat/models"
	"inspection-chat/report"
	"inspection-chat/workflows"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReportStore is the archive of generated reports
type ReportStore interface {
	ListReports(ctx context.Context) ([]models.ArchivedReport, error)
	GetReport(ctx context.Context, id uuid.UUID) (models.ArchivedReport, error)
	DeleteReport(ctx context.Context, id uuid.UUID) (bool, error)
}

// ReportResponse is an archived report with its display blocks
type ReportResponse struct {
	models.ArchivedReport
	Blocks []report.Block `json:"blocks"`
}

// ReportHandler serves the report archive
type ReportHandler struct {
	store  ReportStore
	logger *log.Logger
}

// NewReportHandler creates a new report handler. A nil store answers 503
func NewReportHandler(store ReportStore, logger *log.Logger) *ReportHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &ReportHandler{store: store, logger: logger.With("component", "reports")}
}

// ListReports lists archived reports, newest first
func (h *ReportHandler) ListReports(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	reports, err := h.store.ListReports(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list reports", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, reports)
}

// GetReport returns one report with its parsed blocks
func (h *ReportHandler) GetReport(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report ID"})
		return
	}

	r, err := h.store.GetReport(c.Request.Context(), id)
	if errors.Is(err, workflows.ErrReportNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to get report", "report_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get report"})
		return
	}

	c.JSON(http.StatusOK, ReportResponse{ArchivedReport: r, Blocks: report.Parse(r.Body)})
}

// DeleteReport deletes an archived report using a DBOS workflow
func (h *ReportHandler) DeleteReport(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report ID"})
		return
	}

	deleted, err := h.store.DeleteReport(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete report", "report_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete report"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Report deleted"})
}

func (h *ReportHandler) enabled(c *gin.Context) bool {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Report archive is disabled"})
		return false
	}
	return true
}
