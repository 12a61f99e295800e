package scan

import (
	"context"
	"fmt"
	"log/slog"

	"drive-agent-backend/model"

	"github.com/google/uuid"
)

// Extractor 对单个工作条目执行 获取 → 解析 → 洞察提取 → 写索引
// 成功时记录推进到EXTRACTED并带上index_entry_id，在返回之前持久化
type Extractor struct {
	Store   StateStore
	Storage StorageProvider
	Parser  DocumentParser
	Insight InsightExtractor
	Indexer DocumentIndexer
	Retry   RetryPolicy
}

// Extract 要求记录处于PENDING状态；已到达EXTRACTED及之后的记录直接跳过，
// 恢复运行时不会重复调用洞察模型，也不会重复写索引
func (e *Extractor) Extract(ctx context.Context, rec *model.ProcessingRecord, meta FileMetadata) error {
	if rec.Status != model.StatusPending {
		return nil
	}

	var (
		data []byte
		mime string
	)
	err := e.Retry.Do(ctx, "storage fetch", func(ctx context.Context) error {
		var ferr error
		data, mime, ferr = e.Storage.Fetch(ctx, rec.FileID)
		return ferr
	})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rec.FileID, err)
	}

	text, err := e.Parser.Parse(ctx, data, mime)
	if err != nil {
		return fmt.Errorf("parse %s: %w", rec.FileID, err)
	}

	var insight *Insight
	err = e.Retry.Do(ctx, "insight extraction", func(ctx context.Context) error {
		var ierr error
		insight, ierr = e.Insight.Extract(ctx, text)
		return ierr
	})
	if err != nil {
		return fmt.Errorf("extract insight for %s: %w", rec.FileID, err)
	}

	entryID := uuid.NewString()
	err = e.Retry.Do(ctx, "index insert", func(ctx context.Context) error {
		return e.Indexer.Index(ctx, IndexRequest{
			EntryID: entryID,
			FileID:  rec.FileID,
			Version: rec.ProcessedVersion,
			Path:    meta.Path,
			Summary: insight.Summary,
			Text:    text,
		})
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", rec.FileID, err)
	}

	rec.Summary = insight.Summary
	rec.IndexEntryID = entryID
	if err := rec.SetActionItems(insight.ActionItems); err != nil {
		return fmt.Errorf("encode action items for %s: %w", rec.FileID, err)
	}

	rec.Status = model.StatusExtracted
	if err := e.Store.UpdateProcessingRecord(ctx, rec); err != nil {
		return fmt.Errorf("persist extraction for %s: %w", rec.FileID, err)
	}

	slog.Info("Document extracted",
		"file_id", rec.FileID,
		"version", rec.ProcessedVersion,
		"action_items", len(insight.ActionItems),
		"index_entry_id", entryID,
	)

	return nil
}
