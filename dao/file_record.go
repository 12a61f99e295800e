package dao

import (
	"sort"

	"drive-agent-backend/model"
)

func GetFileRecords() ([]model.FileRecord, error) {
	var records []model.FileRecord
	if err := DB.Order("path ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func GetFileRecordByFileID(fileID string) (*model.FileRecord, error) {
	var record model.FileRecord
	if err := DB.Where("file_id = ?", fileID).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func GetProcessingRecordsByFileID(fileID string) ([]model.ProcessingRecord, error) {
	var records []model.ProcessingRecord
	if err := DB.Where("file_id = ?", fileID).
		Order("id DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// GetLatestProcessingRecords 返回每个文件最近一条处理记录
func GetLatestProcessingRecords() (map[string]model.ProcessingRecord, error) {
	var records []model.ProcessingRecord
	if err := DB.Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	latest := make(map[string]model.ProcessingRecord, len(records))
	for _, rec := range records {
		latest[rec.FileID] = rec
	}
	return latest, nil
}

// GetFailedProcessingRecords 返回停在FAILED状态的最近记录，便于人工排查
func GetFailedProcessingRecords() ([]model.ProcessingRecord, error) {
	latest, err := GetLatestProcessingRecords()
	if err != nil {
		return nil, err
	}

	var failed []model.ProcessingRecord
	for _, rec := range latest {
		if rec.Status == model.StatusFailed {
			failed = append(failed, rec)
		}
	}
	sort.Slice(failed, func(i, j int) bool {
		return failed[i].FileID < failed[j].FileID
	})
	return failed, nil
}
