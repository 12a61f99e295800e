package model

import "time"

type ScanState string

const (
	ScanStateInit       ScanState = "INIT"
	ScanStateDetecting  ScanState = "DETECTING"
	ScanStateProcessing ScanState = "PROCESSING"
	ScanStateFinalized  ScanState = "FINALIZED"
)

// ScanRun 单次扫描的运行记录，用于观测与审计，不参与回滚
type ScanRun struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
	RunID      string    `gorm:"not null;uniqueIndex" json:"run_id"`
	State      ScanState `gorm:"not null;default:INIT" json:"state"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// 按结果分类的条目计数
	Processed       int `gorm:"not null;default:0" json:"processed"`
	Unchanged       int `gorm:"not null;default:0" json:"unchanged"`
	Deleted         int `gorm:"not null;default:0" json:"deleted"`
	FailedPermanent int `gorm:"not null;default:0" json:"failed_permanent"`
	FailedRetryable int `gorm:"not null;default:0" json:"failed_retryable"`

	LastError string `gorm:"type:text" json:"last_error"`
}

func (ScanRun) TableName() string {
	return "scan_run"
}

// ScanLock 单行互斥标记，防止同一监控目录的扫描并发执行
type ScanLock struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	Holder     string    `gorm:"not null;default:''" json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func (ScanLock) TableName() string {
	return "scan_lock"
}
