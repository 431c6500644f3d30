package models

import "time"

// ExportRunStatus is the lifecycle state of one channel export
type ExportRunStatus string

const (
	ExportRunStatusRunning   ExportRunStatus = "running"
	ExportRunStatusCompleted ExportRunStatus = "completed"
	ExportRunStatusFailed    ExportRunStatus = "failed"
)

// ExportRun records one channel export and the size of the documents it produced
type ExportRun struct {
	ID               string          `json:"id" db:"id"`
	ChannelID        int             `json:"channel_id" db:"channel_id"`
	Full             bool            `json:"full" db:"full_export"`
	Status           ExportRunStatus `json:"status" db:"status"`
	NodeCount        int             `json:"node_count" db:"node_count"`
	EntryCount       int             `json:"entry_count" db:"entry_count"`
	RelationCount    int             `json:"relation_count" db:"relation_count"`
	AssociationCount int             `json:"association_count" db:"association_count"`
	ResourceCount    int             `json:"resource_count" db:"resource_count"`
	CatalogFile      string          `json:"catalog_file,omitempty" db:"catalog_file"`
	ResourceFile     string          `json:"resource_file,omitempty" db:"resource_file"`
	Error            *string         `json:"error,omitempty" db:"error"`
	StartedAt        time.Time       `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// ExportRequest asks for one channel to be exported
type ExportRequest struct {
	ChannelID  int  `json:"channel_id" validate:"required,gt=0"`
	Full       bool `json:"full"`
	SkipImport bool `json:"skip_import"`
}

// ExportRunListResponse is the API response for listing export runs
type ExportRunListResponse struct {
	Items      []ExportRun `json:"items"`
	TotalCount int         `json:"total_count"`
}
