package response

import (
	"encoding/json"
	"time"
)

type DocumentResponse struct {
	FileID     string    `json:"file_id"`
	Path       string    `json:"path"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	FileStatus string    `json:"file_status"`
	LastSeenAt time.Time `json:"last_seen_at"`

	// 最近一条处理记录的状态，尚未处理过时为空
	ProcessingStatus string `json:"processing_status,omitempty"`
	Summary          string `json:"summary,omitempty"`
}

type GetDocumentsResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

type ProcessingRecordResponse struct {
	ProcessedVersion string          `json:"processed_version"`
	Status           string          `json:"status"`
	Summary          string          `json:"summary,omitempty"`
	ActionItems      json.RawMessage `json:"action_items,omitempty"`
	IndexEntryID     string          `json:"index_entry_id,omitempty"`
	CreatedEventIDs  json.RawMessage `json:"created_event_ids,omitempty"`
	AttemptCount     int             `json:"attempt_count"`
	LastAttemptAt    time.Time       `json:"last_attempt_at"`
	LastError        string          `json:"last_error,omitempty"`
	Permanent        bool            `json:"permanent"`
}

type GetProcessingRecordsResponse struct {
	FileID  string                     `json:"file_id"`
	Records []ProcessingRecordResponse `json:"records"`
}

type FailedDocumentResponse struct {
	FileID           string    `json:"file_id"`
	ProcessedVersion string    `json:"processed_version"`
	AttemptCount     int       `json:"attempt_count"`
	LastAttemptAt    time.Time `json:"last_attempt_at"`
	LastError        string    `json:"last_error"`
	Permanent        bool      `json:"permanent"`
}

type GetFailedDocumentsResponse struct {
	Documents []FailedDocumentResponse `json:"documents"`
}
