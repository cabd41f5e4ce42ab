package dto

import (
	"time"

	"github.com/camatch/camatch-api/internal/models"
)

// CreateExportRequest queues an asynchronous roster export.
type CreateExportRequest struct {
	Type      models.ExportType        `json:"type" validate:"omitempty,oneof=assignments_roster skipped_candidates"`
	Format    models.ExportFormat      `json:"format" validate:"required,oneof=csv pdf"`
	CourseIDs []string                 `json:"course_ids,omitempty" validate:"omitempty,dive,required"`
	Status    *models.AssignmentStatus `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed"`
}

// ExportJobResponse acknowledges a queued job.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Type     models.ExportType   `json:"type"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse reports job progress and, once finished, the signed
// result URL.
type ExportStatusResponse struct {
	ID         string              `json:"id"`
	Type       models.ExportType   `json:"type"`
	Status     models.ExportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	ResultURL  *string             `json:"result_url,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}
