package scan

import (
	"context"
	"time"

	"drive-agent-backend/model"
)

// FileMetadata 存储提供方列举目录时返回的文件元数据
type FileMetadata struct {
	FileID      string
	Path        string
	MimeType    string
	Revision    string
	Size        int64
	ModifiedAt  time.Time
	ContentHash string
}

// Insight 洞察模型对单个文档的结构化输出，仅在单次运行内有效
type Insight struct {
	Summary     string
	ActionItems []model.ActionItem
}

// IndexRequest 写入检索索引的一个文档版本
type IndexRequest struct {
	EntryID string
	FileID  string
	Version string
	Path    string
	Summary string
	Text    string
}

// EventSpec 待创建的日历事件
type EventSpec struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

type StorageProvider interface {
	List(ctx context.Context, folderRef string, recursive bool) ([]FileMetadata, error)

	// Fetch 返回文件内容与实际的mime类型（Workspace文档导出后类型会变化）
	Fetch(ctx context.Context, fileID string) ([]byte, string, error)
}

type DocumentParser interface {
	Parse(ctx context.Context, data []byte, mimeType string) (string, error)
}

type InsightExtractor interface {
	Extract(ctx context.Context, text string) (*Insight, error)
}

type DocumentIndexer interface {
	Index(ctx context.Context, req IndexRequest) error
}

type CalendarProvider interface {
	CreateEvent(ctx context.Context, spec EventSpec) (string, error)
}

// StateStore 幂等性的唯一事实来源；所有方法都是针对单条记录的原子操作
type StateStore interface {
	ListFileRecords(ctx context.Context) ([]model.FileRecord, error)
	UpsertFileRecord(ctx context.Context, rec *model.FileRecord) error
	MarkFileMissing(ctx context.Context, fileID string) error

	// LatestAttempt 返回该文件最近一条处理记录（任意状态），不存在时返回 nil
	LatestAttempt(ctx context.Context, fileID string) (*model.ProcessingRecord, error)

	// LatestComplete 返回该文件最近一条COMPLETE记录，不存在时返回 nil
	LatestComplete(ctx context.Context, fileID string) (*model.ProcessingRecord, error)

	CreateProcessingRecord(ctx context.Context, rec *model.ProcessingRecord) error
	UpdateProcessingRecord(ctx context.Context, rec *model.ProcessingRecord) error

	GetScheduleEntry(ctx context.Context, fileID, version string, index int) (*model.ScheduleEntry, error)
	CreateScheduleEntry(ctx context.Context, entry *model.ScheduleEntry) error

	AcquireScanLock(ctx context.Context, runID string) error
	ReleaseScanLock(ctx context.Context, runID string) error

	CreateScanRun(ctx context.Context, run *model.ScanRun) error
	UpdateScanRun(ctx context.Context, run *model.ScanRun) error
}

// WorkItem 一次扫描中选中待处理的一个文档
type WorkItem struct {
	Meta    FileMetadata
	Version string

	// 上一次运行遗留的未完成记录，恢复处理时复用
	Resume *model.ProcessingRecord
}

// WorkSet 变更检测的输出，四个分区互不相交
type WorkSet struct {
	New       []WorkItem
	Updated   []WorkItem
	Unchanged []string
	Deleted   []string
}

// Items 按 file_id 升序合并 New 与 Updated，保证处理顺序可复现
func (ws *WorkSet) Items() []WorkItem {
	items := make([]WorkItem, 0, len(ws.New)+len(ws.Updated))
	items = append(items, ws.New...)
	items = append(items, ws.Updated...)

	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Meta.FileID < items[j-1].Meta.FileID; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}

	return items
}
