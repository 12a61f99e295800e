package model

import "time"

type FileStatus string

const (
	// 文件在最近一次扫描的列表中出现
	FileStatusActive FileStatus = "ACTIVE"

	// 文件已从监控目录消失，记录保留作为审计历史
	FileStatusMissing FileStatus = "MISSING"
)

// FileRecord 被监控文档的身份记录，file_id 全局唯一
// revision 与 content_hash 共同定义一个文档版本
type FileRecord struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
	FileID      string     `gorm:"not null;uniqueIndex" json:"file_id"`
	Path        string     `gorm:"not null" json:"path"`
	MimeType    string     `json:"mime_type"`
	Revision    string     `json:"revision"`
	ContentHash string     `json:"content_hash"`
	Size        int64      `json:"size"`
	ModifiedAt  time.Time  `json:"modified_at"`
	Status      FileStatus `gorm:"not null;default:ACTIVE" json:"status"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
}

func (FileRecord) TableName() string {
	return "file_record"
}
