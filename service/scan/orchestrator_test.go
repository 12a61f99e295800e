package scan

import (
	"context"
	"errors"
	"testing"

	"drive-agent-backend/model"
)

func newTestOrchestrator(store *memStore, st *fakeStorage, ins *fakeInsight, ix *fakeIndexer, cal *fakeCalendar) *Orchestrator {
	return NewOrchestrator(Options{
		Store:       store,
		Storage:     st,
		Parser:      fakeParser{},
		Insight:     ins,
		Indexer:     ix,
		Calendar:    cal,
		FolderRef:   "folder-1",
		Recursive:   true,
		WorkerNum:   2,
		MaxAttempts: 3,
		Retry:       testRetryPolicy(),
	})
}

func TestRunProcessesNewDocumentEndToEnd(t *testing.T) {
	store := newMemStore()
	st := newFakeStorage(meta("doc-a", "h1"))
	ins := &fakeInsight{items: []model.ActionItem{
		{Description: "submit report", DueHint: "2026-03-10", Priority: "high"},
	}}
	ix := &fakeIndexer{}
	cal := &fakeCalendar{}

	o := newTestOrchestrator(store, st, ins, ix, cal)

	report, err := o.Run(context.Background(), "test")
	if err != nil {
		t.Fatal(err)
	}

	if report.Processed != 1 || report.FailedPermanent != 0 || report.FailedRetryable != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rec := store.latestProc("doc-a")
	if rec == nil || rec.Status != model.StatusComplete {
		t.Fatalf("expected COMPLETE record, got %+v", rec)
	}
	if rec.IndexEntryID == "" {
		t.Fatal("index entry id not recorded")
	}
	if rec.Summary == "" {
		t.Fatal("summary not recorded")
	}

	if ix.count() != 1 {
		t.Fatalf("expected 1 index insert, got %d", ix.count())
	}
	if len(ix.reqs) == 1 && ix.reqs[0].EntryID != rec.IndexEntryID {
		t.Fatal("index entry id mismatch")
	}
	if cal.callCount() != 1 {
		t.Fatalf("expected 1 calendar event, got %d", cal.callCount())
	}

	run := store.runs[report.RunID]
	if run == nil || run.State != model.ScanStateFinalized {
		t.Fatalf("scan run not finalized: %+v", run)
	}
	if run.Processed != 1 {
		t.Fatalf("unexpected run counters: %+v", run)
	}
}

func TestRerunIsIdempotent(t *testing.T) {
	store := newMemStore()
	st := newFakeStorage(meta("doc-a", "h1"))
	ins := &fakeInsight{items: []model.ActionItem{
		{Description: "submit report", DueHint: "2026-03-10", Priority: "high"},
	}}
	ix := &fakeIndexer{}
	cal := &fakeCalendar{}

	o := newTestOrchestrator(store, st, ins, ix, cal)

	if _, err := o.Run(context.Background(), "first"); err != nil {
		t.Fatal(err)
	}
	report, err := o.Run(context.Background(), "second")
	if err != nil {
		t.Fatal(err)
	}

	if report.Processed != 0 || report.Unchanged != 1 {
		t.Fatalf("second run must see unchanged document: %+v", report)
	}

	if ins.calls != 1 {
		t.Fatalf("insight called %d times, want 1", ins.calls)
	}
	if ix.count() != 1 {
		t.Fatalf("index inserted %d times, want 1", ix.count())
	}
	if cal.callCount() != 1 {
		t.Fatalf("calendar called %d times, want 1", cal.callCount())
	}
	if store.procCount("doc-a") != 1 {
		t.Fatalf("expected 1 processing record, got %d", store.procCount("doc-a"))
	}
}

func TestResumeAfterExtractionSkipsReextraction(t *testing.T) {
	store := newMemStore()
	m := meta("doc-a", "h1")
	st := newFakeStorage(m)
	ins := &fakeInsight{}
	ix := &fakeIndexer{}
	cal := &fakeCalendar{}

	// 模拟上次运行在EXTRACTED后崩溃：文件已登记，记录带着行动项停在EXTRACTED
	ctx := context.Background()
	store.UpsertFileRecord(ctx, &model.FileRecord{FileID: "doc-a", Path: m.Path, Status: model.FileStatusActive})
	rec := &model.ProcessingRecord{
		FileID:           "doc-a",
		ProcessedVersion: Fingerprint(m),
		Status:           model.StatusExtracted,
		Summary:          "summary",
		IndexEntryID:     "entry-1",
		AttemptCount:     1,
	}
	if err := rec.SetActionItems([]model.ActionItem{
		{Description: "submit report", DueHint: "2026-03-10", Priority: "high"},
	}); err != nil {
		t.Fatal(err)
	}
	store.CreateProcessingRecord(ctx, rec)

	o := newTestOrchestrator(store, st, ins, ix, cal)
	report, err := o.Run(ctx, "resume")
	if err != nil {
		t.Fatal(err)
	}

	if report.Processed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	// 提取阶段不得重跑
	if ins.calls != 0 {
		t.Fatalf("insight re-invoked on resume: %d calls", ins.calls)
	}
	if ix.count() != 0 {
		t.Fatalf("index re-inserted on resume: %d", ix.count())
	}
	if st.fetches["doc-a"] != 0 {
		t.Fatalf("content re-fetched on resume: %d", st.fetches["doc-a"])
	}

	if cal.callCount() != 1 {
		t.Fatalf("expected 1 calendar event, got %d", cal.callCount())
	}

	final := store.latestProc("doc-a")
	if final.Status != model.StatusComplete {
		t.Fatalf("expected COMPLETE, got %s", final.Status)
	}
	if final.IndexEntryID != "entry-1" {
		t.Fatal("index entry id lost on resume")
	}
}

func TestPermanentFailureStopsRetries(t *testing.T) {
	store := newMemStore()
	st := newFakeStorage(meta("doc-a", "h1"))
	ins := &fakeInsight{err: Permanent(errors.New("malformed model output"))}
	ix := &fakeIndexer{}
	cal := &fakeCalendar{}

	o := newTestOrchestrator(store, st, ins, ix, cal)

	report, err := o.Run(context.Background(), "test")
	if err != nil {
		t.Fatal(err)
	}

	if report.FailedPermanent != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rec := store.latestProc("doc-a")
	if rec.Status != model.StatusFailed || !rec.Permanent {
		t.Fatalf("expected permanent FAILED record, got %+v", rec)
	}

	// 同版本不再重试
	report, err = o.Run(context.Background(), "again")
	if err != nil {
		t.Fatal(err)
	}
	if report.Unchanged != 1 || report.FailedPermanent != 0 {
		t.Fatalf("permanently failed document resurfaced: %+v", report)
	}
	if ins.calls != 1 {
		t.Fatalf("insight called %d times, want 1", ins.calls)
	}
}

func TestTransientFailureRetriesNextRun(t *testing.T) {
	store := newMemStore()
	st := newFakeStorage(meta("doc-a", "h1"))
	ins := &fakeInsight{err: Transient(errors.New("llm unavailable"))}
	ix := &fakeIndexer{}
	cal := &fakeCalendar{}

	o := newTestOrchestrator(store, st, ins, ix, cal)

	report, err := o.Run(context.Background(), "test")
	if err != nil {
		t.Fatal(err)
	}
	if report.FailedRetryable != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rec := store.latestProc("doc-a")
	if rec.Status != model.StatusFailed || rec.Permanent {
		t.Fatalf("expected retryable FAILED record, got %+v", rec)
	}

	// 下次扫描恢复正常后处理成功，且不会新建第二条记录
	ins.mu.Lock()
	ins.err = nil
	ins.mu.Unlock()

	report, err = o.Run(context.Background(), "again")
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if store.procCount("doc-a") != 1 {
		t.Fatalf("expected 1 processing record, got %d", store.procCount("doc-a"))
	}
	if store.latestProc("doc-a").Status != model.StatusComplete {
		t.Fatal("record not completed after retry")
	}
}

func TestAttemptExhaustionBecomesPermanent(t *testing.T) {
	store := newMemStore()
	st := newFakeStorage(meta("doc-a", "h1"))
	ins := &fakeInsight{err: Transient(errors.New("llm unavailable"))}
	ix := &fakeIndexer{}
	cal := &fakeCalendar{}

	o := NewOrchestrator(Options{
		Store:       store,
		Storage:     st,
		Parser:      fakeParser{},
		Insight:     ins,
		Indexer:     ix,
		Calendar:    cal,
		WorkerNum:   1,
		MaxAttempts: 2,
		Retry:       testRetryPolicy(),
	})

	ctx := context.Background()
	if _, err := o.Run(ctx, "first"); err != nil {
		t.Fatal(err)
	}

	report, err := o.Run(ctx, "second")
	if err != nil {
		t.Fatal(err)
	}
	if report.FailedPermanent != 1 {
		t.Fatalf("second failed attempt must be permanent: %+v", report)
	}

	rec := store.latestProc("doc-a")
	if !rec.Permanent || rec.AttemptCount != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	// 耗尽后不再入列
	report, err = o.Run(ctx, "third")
	if err != nil {
		t.Fatal(err)
	}
	if report.Unchanged != 1 {
		t.Fatalf("exhausted document resurfaced: %+v", report)
	}
}

func TestRunFailsWhenLockHeld(t *testing.T) {
	store := newMemStore()
	st := newFakeStorage(meta("doc-a", "h1"))
	o := newTestOrchestrator(store, st, &fakeInsight{}, &fakeIndexer{}, &fakeCalendar{})

	ctx := context.Background()
	if err := store.AcquireScanLock(ctx, "other-run"); err != nil {
		t.Fatal(err)
	}

	_, err := o.Run(ctx, "test")
	if !errors.Is(err, ErrScanLockHeld) {
		t.Fatalf("expected ErrScanLockHeld, got %v", err)
	}

	// 锁不属于本次运行，不得被释放
	if store.lockHolder != "other-run" {
		t.Fatalf("foreign lock released: %q", store.lockHolder)
	}
}

func TestRunAsyncRejectsConcurrentTrigger(t *testing.T) {
	store := newMemStore()
	st := newFakeStorage()
	o := newTestOrchestrator(store, st, &fakeInsight{}, &fakeIndexer{}, &fakeCalendar{})

	o.running.Store(true)
	if _, err := o.RunAsync("test"); !errors.Is(err, ErrScanLockHeld) {
		t.Fatalf("expected ErrScanLockHeld, got %v", err)
	}
	o.running.Store(false)
}

// ctxAwareStore 模拟真实gorm存储对ctx取消的响应
type ctxAwareStore struct {
	*memStore
}

func (s *ctxAwareStore) UpdateScanRun(ctx context.Context, run *model.ScanRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memStore.UpdateScanRun(ctx, run)
}

// cancellingInsight 在处理过程中触发外部取消
type cancellingInsight struct {
	cancel context.CancelFunc
	inner  *fakeInsight
}

func (c *cancellingInsight) Extract(ctx context.Context, text string) (*Insight, error) {
	c.cancel()
	return c.inner.Extract(ctx, text)
}

func TestCancelledRunStillFinalizes(t *testing.T) {
	store := newMemStore()
	st := newFakeStorage(meta("doc-a", "h1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ins := &cancellingInsight{cancel: cancel, inner: &fakeInsight{}}

	o := NewOrchestrator(Options{
		Store:       &ctxAwareStore{store},
		Storage:     st,
		Parser:      fakeParser{},
		Insight:     ins,
		Indexer:     &fakeIndexer{},
		Calendar:    &fakeCalendar{},
		WorkerNum:   1,
		MaxAttempts: 3,
		Retry:       testRetryPolicy(),
	})

	report, err := o.Run(ctx, "test")
	if err != nil {
		t.Fatalf("cancelled run must still finalize, got %v", err)
	}

	run := store.runs[report.RunID]
	if run == nil || run.State != model.ScanStateFinalized {
		t.Fatalf("scan run not finalized after cancellation: %+v", run)
	}
	if run.Processed != 1 {
		t.Fatalf("durable progress lost: %+v", run)
	}
	if store.lockHolder != "" {
		t.Fatalf("scan lock not released: %q", store.lockHolder)
	}
}

func TestDeletedDocumentCountsInReport(t *testing.T) {
	store := newMemStore()
	st := newFakeStorage(meta("doc-a", "h1"), meta("doc-b", "h2"))
	ins := &fakeInsight{}
	o := newTestOrchestrator(store, st, ins, &fakeIndexer{}, &fakeCalendar{})

	ctx := context.Background()
	if _, err := o.Run(ctx, "first"); err != nil {
		t.Fatal(err)
	}

	st.mu.Lock()
	st.listing = []FileMetadata{meta("doc-b", "h2")}
	st.mu.Unlock()

	report, err := o.Run(ctx, "second")
	if err != nil {
		t.Fatal(err)
	}

	if report.Deleted != 1 || report.Unchanged != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}
