package dto

import "github.com/estfbs/pfe-management-api/internal/models"

// CreatePlanningExportRequest starts an asynchronous planning export.
type CreatePlanningExportRequest struct {
	Format    models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
	DateFrom  *string             `json:"dateFrom,omitempty"`
	DateTo    *string             `json:"dateTo,omitempty"`
	FiliereID *string             `json:"filiereId,omitempty"`
}

// PlanningExportItem reports export job progress to the chef.
type PlanningExportItem struct {
	ID          string              `json:"id"`
	Status      models.ExportStatus `json:"status"`
	Format      models.ExportFormat `json:"format"`
	DownloadURL *string             `json:"downloadUrl,omitempty"`
	Error       *string             `json:"error,omitempty"`
}
