package scan

import (
	"context"
	"fmt"
	"sort"
	"time"

	"drive-agent-backend/model"
)

// Detector 将当前目录列表与状态存储对比，产出本次扫描的工作集
type Detector struct {
	Store StateStore

	// 便于测试注入固定时间
	Now func() time.Time
}

func (d *Detector) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Detect 产出 new/updated/unchanged/deleted 四个互斥分区
// 上次运行遗留的非终态记录无条件重新入列，保证崩溃后仍能向前推进；
// 下游幂等键保证重入不会产生重复副作用
func (d *Detector) Detect(ctx context.Context, listing []FileMetadata) (*WorkSet, error) {
	current := make(map[string]FileMetadata, len(listing))
	for _, meta := range listing {
		current[meta.FileID] = meta
	}

	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	known, err := d.Store.ListFileRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load file records: %w", err)
	}

	seen := make(map[string]bool, len(known))
	ws := &WorkSet{}

	// 从列表中消失的文件只做标记，记录保留作为审计历史
	for _, rec := range known {
		seen[rec.FileID] = true
		if _, ok := current[rec.FileID]; ok {
			continue
		}
		if rec.Status == model.FileStatusMissing {
			continue
		}
		if err := d.Store.MarkFileMissing(ctx, rec.FileID); err != nil {
			return nil, fmt.Errorf("failed to mark file %s missing: %w", rec.FileID, err)
		}
		ws.Deleted = append(ws.Deleted, rec.FileID)
	}
	sort.Strings(ws.Deleted)

	now := d.now()
	for _, id := range ids {
		meta := current[id]
		if err := d.upsertFileRecord(ctx, meta, now); err != nil {
			return nil, err
		}

		version := Fingerprint(meta)

		latest, err := d.Store.LatestAttempt(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load processing record for %s: %w", id, err)
		}

		if !seen[id] {
			ws.New = append(ws.New, WorkItem{Meta: meta, Version: version})
			continue
		}

		if latest == nil {
			// 此前的扫描在建立处理记录前中断
			ws.Updated = append(ws.Updated, WorkItem{Meta: meta, Version: version})
			continue
		}

		if !latest.Status.Terminal() {
			ws.Updated = append(ws.Updated, WorkItem{
				Meta:    meta,
				Version: latest.ProcessedVersion,
				Resume:  latest,
			})
			continue
		}

		if latest.Status == model.StatusFailed && latest.ProcessedVersion == version {
			if latest.Permanent {
				// 超过最大尝试次数，留待人工处理
				ws.Unchanged = append(ws.Unchanged, id)
				continue
			}
			ws.Updated = append(ws.Updated, WorkItem{
				Meta:    meta,
				Version: version,
				Resume:  latest,
			})
			continue
		}

		complete, err := d.Store.LatestComplete(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load complete record for %s: %w", id, err)
		}

		if complete != nil && complete.ProcessedVersion == version {
			ws.Unchanged = append(ws.Unchanged, id)
			continue
		}

		ws.Updated = append(ws.Updated, WorkItem{Meta: meta, Version: version})
	}

	return ws, nil
}

func (d *Detector) upsertFileRecord(ctx context.Context, meta FileMetadata, now time.Time) error {
	rec := &model.FileRecord{
		FileID:      meta.FileID,
		Path:        meta.Path,
		MimeType:    meta.MimeType,
		Revision:    meta.Revision,
		ContentHash: meta.ContentHash,
		Size:        meta.Size,
		ModifiedAt:  meta.ModifiedAt,
		Status:      model.FileStatusActive,
		LastSeenAt:  now,
	}
	if err := d.Store.UpsertFileRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to upsert file record %s: %w", meta.FileID, err)
	}
	return nil
}
