package model

import (
	"encoding/json"
	"time"
)

type ProcessingStatus string

const (
	// 已选入工作集，处理尚未完成
	StatusPending ProcessingStatus = "PENDING"

	// 内容已解析、洞察已提取、索引条目已写入
	StatusExtracted ProcessingStatus = "EXTRACTED"

	// 日历事件已创建（可能是部分创建，见 created_event_ids）
	StatusScheduled ProcessingStatus = "SCHEDULED"

	// 索引与日程均已持久化，记录不可再变更
	StatusComplete ProcessingStatus = "COMPLETE"

	// 处理失败；permanent 标记为真时不再自动重试
	StatusFailed ProcessingStatus = "FAILED"
)

// Terminal 终态记录不会被下一次扫描重新拾起
func (s ProcessingStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// ActionItem 洞察模型从文档中提取的行动项
type ActionItem struct {
	Description string `json:"description"`
	DueHint     string `json:"due_hint"`
	Priority    string `json:"priority"`
}

// ProcessingRecord 一条记录对应一个文档版本的一次完整处理
// 同一 file_id 同时至多存在一条非终态记录；新版本新建记录，不覆盖历史
type ProcessingRecord struct {
	ID               uint             `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"not null" json:"updated_at"`
	FileID           string           `gorm:"not null;index:idx_file_version" json:"file_id"`
	ProcessedVersion string           `gorm:"not null;index:idx_file_version" json:"processed_version"`
	Status           ProcessingStatus `gorm:"not null;default:PENDING" json:"status"`
	Summary          string           `gorm:"type:text" json:"summary"`
	ActionItems      json.RawMessage  `gorm:"type:json" json:"action_items"`
	IndexEntryID     string           `json:"index_entry_id"`
	CreatedEventIDs  json.RawMessage  `gorm:"type:json" json:"created_event_ids"`
	AttemptCount     int              `gorm:"not null;default:0" json:"attempt_count"`
	LastAttemptAt    time.Time        `json:"last_attempt_at"`
	LastError        string           `gorm:"type:text" json:"last_error"`
	Permanent        bool             `gorm:"not null;default:false" json:"permanent"`
}

func (ProcessingRecord) TableName() string {
	return "processing_record"
}

func (r *ProcessingRecord) DecodeActionItems() ([]ActionItem, error) {
	if len(r.ActionItems) == 0 {
		return nil, nil
	}

	var items []ActionItem
	if err := json.Unmarshal(r.ActionItems, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ProcessingRecord) SetActionItems(items []ActionItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	r.ActionItems = data
	return nil
}

func (r *ProcessingRecord) DecodeEventIDs() ([]string, error) {
	if len(r.CreatedEventIDs) == 0 {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal(r.CreatedEventIDs, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *ProcessingRecord) SetEventIDs(ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	r.CreatedEventIDs = data
	return nil
}
