package dao

import (
	"drive-agent-backend/config"
	"drive-agent-backend/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init() error {
	// 依赖 gorm.ErrDuplicatedKey 识别扫描锁行的创建竞争
	db, err := gorm.Open(mysql.Open(config.Cfg.MySQL.DSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(
		&model.FileRecord{},
		&model.ProcessingRecord{},
		&model.ScheduleEntry{},
		&model.ScanRun{},
		&model.ScanLock{},
		&model.User{},
		&model.Session{},
		&model.Message{},
	); err != nil {
		return err
	}

	DB = db
	return nil
}
