package dao

import (
	"errors"

	"drive-agent-backend/model"

	"gorm.io/gorm"
)

func GetScanRuns(limit int) ([]model.ScanRun, error) {
	var runs []model.ScanRun
	if err := DB.Order("id DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func GetScanRunByRunID(runID string) (*model.ScanRun, error) {
	var run model.ScanRun
	if err := DB.Where("run_id = ?", runID).
		First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}
