package scan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"drive-agent-backend/model"
)

const defaultEventDuration = time.Hour

// 显式日期的可接受格式
var dueHintLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// Scheduler 将行动项映射为日历事件
// 幂等键为 (file_id, processed_version, action_index)：
// 重试的运行只会补齐缺失的事件，不会重复已创建的
type Scheduler struct {
	Store    StateStore
	Calendar CalendarProvider
	Retry    RetryPolicy

	// 模糊截止提示相对扫描时间的默认偏移
	DefaultDueOffset time.Duration

	// 便于测试注入固定时间
	Now func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Schedule 为EXTRACTED或SCHEDULED(部分完成)的记录创建缺失的日历事件
// 所有行动项处理完后记录推进到SCHEDULED，随即COMPLETE；
// 中途失败保持SCHEDULED并保留已创建的事件ID，等待下次扫描续做
func (s *Scheduler) Schedule(ctx context.Context, rec *model.ProcessingRecord, meta FileMetadata) error {
	if rec.Status != model.StatusExtracted && rec.Status != model.StatusScheduled {
		return nil
	}

	items, err := rec.DecodeActionItems()
	if err != nil {
		return fmt.Errorf("decode action items for %s: %w", rec.FileID, err)
	}

	var (
		eventIDs []string
		pending  error
	)

	for i, item := range items {
		entry, err := s.Store.GetScheduleEntry(ctx, rec.FileID, rec.ProcessedVersion, i)
		if err != nil {
			return fmt.Errorf("load schedule entry for %s[%d]: %w", rec.FileID, i, err)
		}

		if entry != nil {
			if entry.EventID != "" {
				eventIDs = append(eventIDs, entry.EventID)
			}
			continue
		}

		due, ok := s.resolveDue(item.DueHint)
		if !ok {
			// 无可执行的截止信号，仅摘要不排期
			if err := s.recordSkip(ctx, rec, i); err != nil {
				return err
			}
			continue
		}

		spec := EventSpec{
			Title:       "Action: " + item.Description,
			Description: fmt.Sprintf("Source: %s\nPriority: %s", meta.Path, item.Priority),
			Start:       due,
			End:         due.Add(defaultEventDuration),
		}

		var eventID string
		err = s.Retry.Do(ctx, "create calendar event", func(ctx context.Context) error {
			var cerr error
			eventID, cerr = s.Calendar.CreateEvent(ctx, spec)
			return cerr
		})
		if err != nil {
			if IsPermanent(err) {
				slog.Warn("Calendar rejected action item, skipping",
					"file_id", rec.FileID,
					"action_index", i,
					"err", err,
				)
				if err := s.recordSkip(ctx, rec, i); err != nil {
					return err
				}
				continue
			}

			// 瞬时错误耗尽重试：停止排期，保留部分进度
			pending = fmt.Errorf("create event for %s[%d]: %w", rec.FileID, i, err)
			break
		}

		// 事件ID先于后续任何创建动作落盘，崩溃后不会重复创建
		if err := s.Store.CreateScheduleEntry(ctx, &model.ScheduleEntry{
			FileID:           rec.FileID,
			ProcessedVersion: rec.ProcessedVersion,
			ActionIndex:      i,
			EventID:          eventID,
		}); err != nil {
			return fmt.Errorf("persist schedule entry for %s[%d]: %w", rec.FileID, i, err)
		}

		eventIDs = append(eventIDs, eventID)
	}

	if err := rec.SetEventIDs(eventIDs); err != nil {
		return fmt.Errorf("encode event ids for %s: %w", rec.FileID, err)
	}

	rec.Status = model.StatusScheduled
	if err := s.Store.UpdateProcessingRecord(ctx, rec); err != nil {
		return fmt.Errorf("persist schedule for %s: %w", rec.FileID, err)
	}

	if pending != nil {
		return pending
	}

	rec.Status = model.StatusComplete
	if err := s.Store.UpdateProcessingRecord(ctx, rec); err != nil {
		return fmt.Errorf("complete record for %s: %w", rec.FileID, err)
	}

	slog.Info("Document scheduling complete",
		"file_id", rec.FileID,
		"version", rec.ProcessedVersion,
		"events_created", len(eventIDs),
	)

	return nil
}

func (s *Scheduler) recordSkip(ctx context.Context, rec *model.ProcessingRecord, index int) error {
	err := s.Store.CreateScheduleEntry(ctx, &model.ScheduleEntry{
		FileID:           rec.FileID,
		ProcessedVersion: rec.ProcessedVersion,
		ActionIndex:      index,
		Skipped:          true,
	})
	if err != nil {
		return fmt.Errorf("persist skip entry for %s[%d]: %w", rec.FileID, index, err)
	}
	return nil
}

// resolveDue 解析截止提示：显式日期原样使用，模糊提示取默认偏移，
// 空提示视为不可排期
func (s *Scheduler) resolveDue(hint string) (time.Time, bool) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return time.Time{}, false
	}

	for _, layout := range dueHintLayouts {
		if t, err := time.Parse(layout, hint); err == nil {
			// 纯日期默认为当天上午9点
			if layout == "2006-01-02" || layout == "2006/01/02" {
				t = t.Add(9 * time.Hour)
			}
			return t, true
		}
	}

	offset := s.DefaultDueOffset
	if offset == 0 {
		offset = 24 * time.Hour
	}
	return s.now().Add(offset), true
}
