package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drive-agent-backend/config"
	"drive-agent-backend/dao"
	"drive-agent-backend/router"
	"drive-agent-backend/service/calendar"
	"drive-agent-backend/service/index"
	"drive-agent-backend/service/insight"
	"drive-agent-backend/service/mq"
	"drive-agent-backend/service/parser"
	"drive-agent-backend/service/scan"
	"drive-agent-backend/service/storage"
)

func main() {
	if err := dao.Init(); err != nil {
		panic(fmt.Sprintf("Failed to init database: %v", err))
	}

	orchestrator, err := buildOrchestrator()
	if err != nil {
		panic(fmt.Sprintf("Failed to build scan orchestrator: %v", err))
	}
	scan.OrchestratorInstance = orchestrator

	mqEnabled := len(config.Cfg.MQ.NameServer) > 0
	if mqEnabled {
		if err := mq.Init(); err != nil {
			panic(fmt.Sprintf("Failed to init mq: %v", err))
		}
		if err := mq.Run(); err != nil {
			panic(fmt.Sprintf("Failed to start mq: %v", err))
		}
		defer mq.Shutdown()
	}

	stopTicker := startScanTicker()
	defer stopTicker()

	r := router.Register()

	go func() {
		addr := config.Cfg.Server.Host + ":" + config.Cfg.Server.Port
		if err := r.Run(addr); err != nil {
			panic(fmt.Sprintf("Failed to run server: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server")
}

func buildOrchestrator() (*scan.Orchestrator, error) {
	ctx := context.Background()

	provider, folderRef, recursive, err := buildStorageProvider(ctx)
	if err != nil {
		return nil, err
	}

	insightExtractor, err := insight.NewExtractor()
	if err != nil {
		return nil, err
	}

	indexer, err := index.NewIndexer(ctx)
	if err != nil {
		return nil, err
	}

	calendarProvider, err := calendar.NewGoogleProvider(ctx)
	if err != nil {
		return nil, err
	}

	retryPolicy := scan.DefaultRetryPolicy()
	if config.Cfg.Scan.RetryAttempts > 0 {
		retryPolicy.Attempts = uint(config.Cfg.Scan.RetryAttempts)
	}
	if config.Cfg.Scan.RequestTimeoutSeconds > 0 {
		retryPolicy.Timeout = time.Duration(config.Cfg.Scan.RequestTimeoutSeconds) * time.Second
	}

	return scan.NewOrchestrator(scan.Options{
		Store:            dao.NewStore(),
		Storage:          provider,
		Parser:           parser.NewRegistry(),
		Insight:          insightExtractor,
		Indexer:          indexer,
		Calendar:         calendarProvider,
		FolderRef:        folderRef,
		Recursive:        recursive,
		WorkerNum:        config.Cfg.Scan.WorkerNum,
		MaxAttempts:      config.Cfg.Scan.MaxAttempts,
		Retry:            retryPolicy,
		DefaultDueOffset: time.Duration(config.Cfg.Scan.DefaultDueOffsetHours) * time.Hour,
		OnReport:         publishReport,
	}), nil
}

func buildStorageProvider(ctx context.Context) (scan.StorageProvider, string, bool, error) {
	switch config.Cfg.Storage.Provider {
	case "oss":
		return storage.NewOSSProvider(), config.Cfg.Storage.OSS.Prefix, true, nil
	case "drive", "":
		provider, err := storage.NewDriveProvider(ctx, config.Cfg.Storage.Drive.CredentialsFile)
		if err != nil {
			return nil, "", false, err
		}
		return provider, config.Cfg.Storage.Drive.FolderID, config.Cfg.Storage.Drive.IncludeSubfolders, nil
	default:
		return nil, "", false, fmt.Errorf("unknown storage provider: %s", config.Cfg.Storage.Provider)
	}
}

// publishReport 扫描结束后把报告投递到MQ，未启用MQ时只打日志
func publishReport(report *scan.Report) {
	if len(config.Cfg.MQ.NameServer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mq.PublishReport(ctx, report); err != nil {
		slog.Error("Failed to publish scan report", "run_id", report.RunID, "err", err)
	}
}

// startScanTicker 按配置的间隔周期触发扫描；上一轮未结束时本轮跳过
func startScanTicker() func() {
	interval := time.Duration(config.Cfg.Scan.IntervalMinutes) * time.Minute
	if interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if _, err := scan.OrchestratorInstance.RunAsync("interval"); err != nil {
					slog.Info("Skipping scheduled scan", "reason", err)
				}
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}
