package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"drive-agent-backend/model"

	"github.com/google/uuid"
)

// OrchestratorInstance 进程内单例，由main在启动时装配
var OrchestratorInstance *Orchestrator

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeFailedRetryable
	outcomeFailedPermanent
)

type itemResult struct {
	fileID  string
	outcome outcome
	err     error
}

// ItemFailure 扫描报告中的单条失败明细
type ItemFailure struct {
	FileID    string `json:"file_id"`
	Error     string `json:"error"`
	Permanent bool   `json:"permanent"`
}

// Report 一次扫描的结果汇总
type Report struct {
	RunID           string        `json:"run_id"`
	Trigger         string        `json:"trigger"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	Processed       int           `json:"processed"`
	Unchanged       int           `json:"unchanged"`
	Deleted         int           `json:"deleted"`
	FailedPermanent int           `json:"failed_permanent"`
	FailedRetryable int           `json:"failed_retryable"`
	Failures        []ItemFailure `json:"failures,omitempty"`
}

type Options struct {
	Store    StateStore
	Storage  StorageProvider
	Parser   DocumentParser
	Insight  InsightExtractor
	Indexer  DocumentIndexer
	Calendar CalendarProvider

	FolderRef string
	Recursive bool

	WorkerNum        int
	MaxAttempts      int
	Retry            RetryPolicy
	DefaultDueOffset time.Duration

	// 每次扫描结束后回调，用于对外发布扫描报告
	OnReport func(*Report)
}

// Orchestrator 驱动一次端到端扫描：检测 → 提取 → 排期 → 提交状态
// 每个条目处理完立即持久化，中途崩溃最多丢失在途条目的进度
type Orchestrator struct {
	store     StateStore
	storage   StorageProvider
	detector  *Detector
	extractor *Extractor
	scheduler *Scheduler

	folderRef   string
	recursive   bool
	workerNum   int
	maxAttempts int
	retry       RetryPolicy
	onReport    func(*Report)

	Progress *ProgressHub

	running atomic.Bool
}

func NewOrchestrator(opts Options) *Orchestrator {
	workerNum := opts.WorkerNum
	if workerNum < 1 {
		workerNum = 1
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}

	return &Orchestrator{
		store:   opts.Store,
		storage: opts.Storage,
		detector: &Detector{
			Store: opts.Store,
		},
		extractor: &Extractor{
			Store:   opts.Store,
			Storage: opts.Storage,
			Parser:  opts.Parser,
			Insight: opts.Insight,
			Indexer: opts.Indexer,
			Retry:   opts.Retry,
		},
		scheduler: &Scheduler{
			Store:            opts.Store,
			Calendar:         opts.Calendar,
			Retry:            opts.Retry,
			DefaultDueOffset: opts.DefaultDueOffset,
		},
		folderRef:   opts.FolderRef,
		recursive:   opts.Recursive,
		workerNum:   workerNum,
		maxAttempts: maxAttempts,
		retry:       opts.Retry,
		onReport:    opts.OnReport,
		Progress:    NewProgressHub(),
	}
}

func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// RunAsync 后台触发一次扫描；已有扫描在运行时返回 ErrScanLockHeld
func (o *Orchestrator) RunAsync(trigger string) (string, error) {
	if !o.running.CompareAndSwap(false, true) {
		return "", ErrScanLockHeld
	}

	runID := uuid.NewString()
	go func() {
		defer o.running.Store(false)
		if _, err := o.run(context.Background(), runID, trigger); err != nil {
			slog.Error("Scan run failed", "run_id", runID, "err", err)
		}
	}()

	return runID, nil
}

func (o *Orchestrator) Run(ctx context.Context, trigger string) (*Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrScanLockHeld
	}
	defer o.running.Store(false)

	return o.run(ctx, uuid.NewString(), trigger)
}

func (o *Orchestrator) run(ctx context.Context, runID, trigger string) (*Report, error) {
	started := time.Now()
	run := &model.ScanRun{
		RunID:     runID,
		State:     model.ScanStateInit,
		Trigger:   trigger,
		StartedAt: started,
	}

	if err := o.store.CreateScanRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create scan run: %w", err)
	}

	// 互斥标记拿不到属于致命错误，整轮放弃，不提交任何在途状态
	if err := o.store.AcquireScanLock(ctx, runID); err != nil {
		o.finalize(run, err)
		return nil, fmt.Errorf("acquire scan lock: %w", err)
	}
	defer func() {
		if err := o.store.ReleaseScanLock(context.Background(), runID); err != nil {
			slog.Error("Failed to release scan lock", "run_id", runID, "err", err)
		}
	}()

	slog.Info("Scan started", "run_id", runID, "trigger", trigger)

	run.State = model.ScanStateDetecting
	if err := o.store.UpdateScanRun(ctx, run); err != nil {
		return nil, fmt.Errorf("update scan run: %w", err)
	}
	o.Progress.Publish(ProgressEvent{RunID: runID, Stage: "detecting"})

	var listing []FileMetadata
	err := o.retry.Do(ctx, "storage list", func(ctx context.Context) error {
		var lerr error
		listing, lerr = o.storage.List(ctx, o.folderRef, o.recursive)
		return lerr
	})
	if err != nil {
		o.finalize(run, err)
		return nil, fmt.Errorf("list folder %s: %w", o.folderRef, err)
	}

	ws, err := o.detector.Detect(ctx, listing)
	if err != nil {
		o.finalize(run, err)
		return nil, fmt.Errorf("detect changes: %w", err)
	}

	items := ws.Items()
	slog.Info("Change detection finished",
		"run_id", runID,
		"new", len(ws.New),
		"updated", len(ws.Updated),
		"unchanged", len(ws.Unchanged),
		"deleted", len(ws.Deleted),
	)

	run.State = model.ScanStateProcessing
	if err := o.store.UpdateScanRun(ctx, run); err != nil {
		return nil, fmt.Errorf("update scan run: %w", err)
	}
	o.Progress.Publish(ProgressEvent{RunID: runID, Stage: "processing"})

	report := &Report{
		RunID:     runID,
		Trigger:   trigger,
		StartedAt: started,
		Unchanged: len(ws.Unchanged),
		Deleted:   len(ws.Deleted),
	}

	for _, res := range o.processAll(ctx, runID, items) {
		switch res.outcome {
		case outcomeProcessed:
			report.Processed++
		case outcomeFailedPermanent:
			report.FailedPermanent++
			report.Failures = append(report.Failures, ItemFailure{
				FileID:    res.fileID,
				Error:     res.err.Error(),
				Permanent: true,
			})
		case outcomeFailedRetryable:
			report.FailedRetryable++
			report.Failures = append(report.Failures, ItemFailure{
				FileID: res.fileID,
				Error:  res.err.Error(),
			})
		}
	}

	report.FinishedAt = time.Now()

	run.State = model.ScanStateFinalized
	run.FinishedAt = report.FinishedAt
	run.Processed = report.Processed
	run.Unchanged = report.Unchanged
	run.Deleted = report.Deleted
	run.FailedPermanent = report.FailedPermanent
	run.FailedRetryable = report.FailedRetryable
	// 扫描被取消时ctx已失效，终态落盘用独立context提交
	if err := o.store.UpdateScanRun(context.Background(), run); err != nil {
		return nil, fmt.Errorf("finalize scan run: %w", err)
	}
	o.Progress.Publish(ProgressEvent{RunID: runID, Stage: "finalized"})

	slog.Info("Scan finished",
		"run_id", runID,
		"processed", report.Processed,
		"unchanged", report.Unchanged,
		"deleted", report.Deleted,
		"failed_permanent", report.FailedPermanent,
		"failed_retryable", report.FailedRetryable,
	)

	if o.onReport != nil {
		o.onReport(report)
	}

	return report, nil
}

// finalize 记录扫描级错误；已提交的条目状态保持原样
// 触发finalize的错误可能正是ctx取消，落盘用独立context
func (o *Orchestrator) finalize(run *model.ScanRun, cause error) {
	run.State = model.ScanStateFinalized
	run.FinishedAt = time.Now()
	run.LastError = cause.Error()
	if err := o.store.UpdateScanRun(context.Background(), run); err != nil {
		slog.Error("Failed to finalize scan run", "run_id", run.RunID, "err", err)
	}
	o.Progress.Publish(ProgressEvent{RunID: run.RunID, Stage: "finalized", Error: cause.Error()})
}

// processAll 有界并行处理工作集；条目间相互独立（file_id各不相同），
// 派发顺序保持 file_id 升序
func (o *Orchestrator) processAll(ctx context.Context, runID string, items []WorkItem) []itemResult {
	if len(items) == 0 {
		return nil
	}

	workerNum := o.workerNum
	if workerNum > len(items) {
		workerNum = len(items)
	}

	jobs := make(chan WorkItem)
	results := make(chan itemResult, len(items))

	var wg sync.WaitGroup
	for i := 0; i < workerNum; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				res := o.processItem(ctx, item)
				o.publishItemResult(runID, res)
				results <- res
			}
		}()
	}

	// 取消时立即停止派发新条目，已派发条目的进度已在各自步骤内落盘
	dispatched := 0
dispatch:
	for _, item := range items {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- item:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	collected := make([]itemResult, 0, dispatched)
	for res := range results {
		collected = append(collected, res)
	}
	return collected
}

func (o *Orchestrator) processItem(ctx context.Context, item WorkItem) itemResult {
	rec, err := o.ensureRecord(ctx, &item)
	if err != nil {
		return itemResult{fileID: item.Meta.FileID, outcome: outcomeFailedRetryable, err: err}
	}

	rec.AttemptCount++
	rec.LastAttemptAt = time.Now()
	rec.LastError = ""
	if err := o.store.UpdateProcessingRecord(ctx, rec); err != nil {
		return itemResult{fileID: item.Meta.FileID, outcome: outcomeFailedRetryable, err: err}
	}

	err = o.extractor.Extract(ctx, rec, item.Meta)
	if err == nil {
		err = o.scheduler.Schedule(ctx, rec, item.Meta)
	}
	if err == nil {
		return itemResult{fileID: item.Meta.FileID, outcome: outcomeProcessed}
	}

	return o.recordFailure(ctx, rec, err)
}

// ensureRecord 恢复遗留记录或为新版本建立PENDING记录
// 同一文件同时至多一条非终态记录；在途记录完成前不会切换到更新的版本
func (o *Orchestrator) ensureRecord(ctx context.Context, item *WorkItem) (*model.ProcessingRecord, error) {
	if item.Resume != nil {
		rec := item.Resume
		if rec.Status == model.StatusFailed {
			rec.Status = model.StatusPending
			rec.Permanent = false
		}
		return rec, nil
	}

	rec := &model.ProcessingRecord{
		FileID:           item.Meta.FileID,
		ProcessedVersion: item.Version,
		Status:           model.StatusPending,
	}
	if err := o.store.CreateProcessingRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("create processing record for %s: %w", item.Meta.FileID, err)
	}
	return rec, nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, rec *model.ProcessingRecord, cause error) itemResult {
	exhausted := rec.AttemptCount >= o.maxAttempts
	permanent := IsPermanent(cause)

	rec.LastError = cause.Error()

	// 提取阶段失败回到FAILED；已过EXTRACTED的记录保持原状态，
	// 下次扫描只续做缺失的排期，不重跑提取
	if rec.Status == model.StatusPending || permanent || exhausted {
		rec.Status = model.StatusFailed
		rec.Permanent = permanent || exhausted
	}

	if err := o.store.UpdateProcessingRecord(ctx, rec); err != nil {
		slog.Error("Failed to persist item failure",
			"file_id", rec.FileID,
			"err", err,
		)
	}

	slog.Warn("Work item failed",
		"file_id", rec.FileID,
		"version", rec.ProcessedVersion,
		"attempt", rec.AttemptCount,
		"permanent", rec.Permanent,
		"err", cause,
	)

	if rec.Status == model.StatusFailed && rec.Permanent {
		return itemResult{fileID: rec.FileID, outcome: outcomeFailedPermanent, err: cause}
	}
	return itemResult{fileID: rec.FileID, outcome: outcomeFailedRetryable, err: cause}
}

func (o *Orchestrator) publishItemResult(runID string, res itemResult) {
	ev := ProgressEvent{
		RunID:  runID,
		Stage:  "item",
		FileID: res.fileID,
	}
	switch res.outcome {
	case outcomeProcessed:
		ev.Outcome = "processed"
	case outcomeFailedPermanent:
		ev.Outcome = "failed_permanent"
	case outcomeFailedRetryable:
		ev.Outcome = "failed_retryable"
	}
	if res.err != nil {
		ev.Error = res.err.Error()
	}
	o.Progress.Publish(ev)
}
