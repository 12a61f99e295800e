package model

import "time"

// ScheduleEntry 将 (file_id, processed_version, action_index) 映射到已创建的日历事件
// 该三元组即幂等键：重试扫描时命中已有条目则复用，不再创建第二个事件
type ScheduleEntry struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
	FileID           string    `gorm:"not null;uniqueIndex:idx_schedule_key" json:"file_id"`
	ProcessedVersion string    `gorm:"not null;uniqueIndex:idx_schedule_key" json:"processed_version"`
	ActionIndex      int       `gorm:"not null;uniqueIndex:idx_schedule_key" json:"action_index"`
	EventID          string    `json:"event_id"`

	// 无可执行截止信号或事件被日历服务判定非法时置真，仅摘要不排期
	Skipped bool `gorm:"not null;default:false" json:"skipped"`
}

func (ScheduleEntry) TableName() string {
	return "schedule_entry"
}
