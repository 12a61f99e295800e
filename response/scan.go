package response

import "time"

type TriggerScanResponse struct {
	RunID string `json:"run_id"`
}

type ScanRunResponse struct {
	RunID           string    `json:"run_id"`
	State           string    `json:"state"`
	Trigger         string    `json:"trigger"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Processed       int       `json:"processed"`
	Unchanged       int       `json:"unchanged"`
	Deleted         int       `json:"deleted"`
	FailedPermanent int       `json:"failed_permanent"`
	FailedRetryable int       `json:"failed_retryable"`
	LastError       string    `json:"last_error,omitempty"`
}

type GetScanRunsResponse struct {
	Runs []ScanRunResponse `json:"runs"`
}
