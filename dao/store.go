package dao

import (
	"context"
	"errors"
	"time"

	"drive-agent-backend/model"
	"drive-agent-backend/service/scan"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 扫描锁固定使用单行
const scanLockID = 1

// Store 扫描流水线的MySQL状态存储
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) ListFileRecords(ctx context.Context) ([]model.FileRecord, error) {
	var records []model.FileRecord
	if err := DB.WithContext(ctx).
		Order("file_id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) UpsertFileRecord(ctx context.Context, rec *model.FileRecord) error {
	return DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "file_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"path", "mime_type", "revision", "content_hash",
			"size", "modified_at", "status", "last_seen_at", "updated_at",
		}),
	}).Create(rec).Error
}

func (s *Store) MarkFileMissing(ctx context.Context, fileID string) error {
	return DB.WithContext(ctx).Model(&model.FileRecord{}).
		Where("file_id = ?", fileID).
		Update("status", model.FileStatusMissing).Error
}

func (s *Store) LatestAttempt(ctx context.Context, fileID string) (*model.ProcessingRecord, error) {
	var rec model.ProcessingRecord
	err := DB.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("id DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) LatestComplete(ctx context.Context, fileID string) (*model.ProcessingRecord, error) {
	var rec model.ProcessingRecord
	err := DB.WithContext(ctx).
		Where("file_id = ? AND status = ?", fileID, model.StatusComplete).
		Order("id DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) CreateProcessingRecord(ctx context.Context, rec *model.ProcessingRecord) error {
	return DB.WithContext(ctx).Create(rec).Error
}

func (s *Store) UpdateProcessingRecord(ctx context.Context, rec *model.ProcessingRecord) error {
	return DB.WithContext(ctx).Save(rec).Error
}

func (s *Store) GetScheduleEntry(ctx context.Context, fileID, version string, index int) (*model.ScheduleEntry, error) {
	var entry model.ScheduleEntry
	err := DB.WithContext(ctx).
		Where("file_id = ? AND processed_version = ? AND action_index = ?", fileID, version, index).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) CreateScheduleEntry(ctx context.Context, entry *model.ScheduleEntry) error {
	return DB.WithContext(ctx).Create(entry).Error
}

// AcquireScanLock 通过条件更新抢占单行锁，holder为空表示锁空闲
// 锁行不存在时插入，插入冲突说明锁刚被其他实例建立并持有
func (s *Store) AcquireScanLock(ctx context.Context, runID string) error {
	now := time.Now()

	res := DB.WithContext(ctx).Model(&model.ScanLock{}).
		Where("id = ? AND holder = ''", scanLockID).
		Updates(map[string]interface{}{
			"holder":      runID,
			"acquired_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := DB.WithContext(ctx).Model(&model.ScanLock{}).
		Where("id = ?", scanLockID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return scan.ErrScanLockHeld
	}

	err := DB.WithContext(ctx).Create(&model.ScanLock{
		ID:         scanLockID,
		Holder:     runID,
		AcquiredAt: now,
	}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return scan.ErrScanLockHeld
		}
		return err
	}
	return nil
}

// ReleaseScanLock 只释放自己持有的锁，重复释放是无害的
func (s *Store) ReleaseScanLock(ctx context.Context, runID string) error {
	return DB.WithContext(ctx).Model(&model.ScanLock{}).
		Where("id = ? AND holder = ?", scanLockID, runID).
		Update("holder", "").Error
}

func (s *Store) CreateScanRun(ctx context.Context, run *model.ScanRun) error {
	return DB.WithContext(ctx).Create(run).Error
}

func (s *Store) UpdateScanRun(ctx context.Context, run *model.ScanRun) error {
	return DB.WithContext(ctx).Save(run).Error
}
