package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat enumerates supported planning export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus captures background export lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// PlanningExport is a persisted asynchronous planning export job.
type PlanningExport struct {
	ID           string               `db:"id" json:"id"`
	Params       PlanningExportParams `db:"params" json:"params"`
	Status       ExportStatus         `db:"status" json:"status"`
	FilePath     *string              `db:"file_path" json:"-"`
	CreatedBy    string               `db:"created_by" json:"created_by"`
	CreatedAt    time.Time            `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time           `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string              `db:"error_message" json:"error_message,omitempty"`
}

// PlanningExportParams stores request-scoped options persisted as JSONB.
type PlanningExportParams struct {
	Format    ExportFormat `json:"format"`
	DateFrom  *string      `json:"dateFrom,omitempty"`
	DateTo    *string      `json:"dateTo,omitempty"`
	FiliereID *string      `json:"filiereId,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p PlanningExportParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal planning export params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *PlanningExportParams) Scan(value interface{}) error {
	if value == nil {
		*p = PlanningExportParams{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported planning export params type %T", value)
	}
	if len(raw) == 0 {
		*p = PlanningExportParams{}
		return nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return fmt.Errorf("unmarshal planning export params: %w", err)
	}
	return nil
}
