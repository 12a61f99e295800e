package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"drive-agent-backend/model"
)

func extractedRecord(t *testing.T, store *memStore, items []model.ActionItem) *model.ProcessingRecord {
	t.Helper()

	rec := &model.ProcessingRecord{
		FileID:           "doc-a",
		ProcessedVersion: "hash:h1",
		Status:           model.StatusExtracted,
		Summary:          "summary",
	}
	if err := rec.SetActionItems(items); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateProcessingRecord(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	return rec
}

func newScheduler(store *memStore, cal *fakeCalendar) *Scheduler {
	return &Scheduler{
		Store:    store,
		Calendar: cal,
		Retry:    testRetryPolicy(),
		Now:      func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestScheduleCreatesEventsAndCompletes(t *testing.T) {
	store := newMemStore()
	cal := &fakeCalendar{}
	s := newScheduler(store, cal)

	rec := extractedRecord(t, store, []model.ActionItem{
		{Description: "submit report", DueHint: "2026-03-10", Priority: "high"},
		{Description: "review budget", DueHint: "2026-03-12 15:00", Priority: "medium"},
	})

	err := s.Schedule(context.Background(), rec, FileMetadata{FileID: "doc-a", Path: "reports/q1.txt"})
	if err != nil {
		t.Fatal(err)
	}

	if rec.Status != model.StatusComplete {
		t.Fatalf("expected COMPLETE, got %s", rec.Status)
	}

	if len(cal.created) != 2 {
		t.Fatalf("expected 2 events, got %d", len(cal.created))
	}

	first := cal.created[0]
	if first.Title != "Action: submit report" {
		t.Fatalf("unexpected title: %s", first.Title)
	}
	if first.Description != "Source: reports/q1.txt\nPriority: high" {
		t.Fatalf("unexpected description: %q", first.Description)
	}
	// 纯日期默认当天9点，事件时长1小时
	if first.Start != time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) {
		t.Fatalf("unexpected start: %v", first.Start)
	}
	if first.End.Sub(first.Start) != time.Hour {
		t.Fatalf("unexpected duration: %v", first.End.Sub(first.Start))
	}

	ids, err := rec.DecodeEventIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 event ids, got %v", ids)
	}
}

func TestScheduleIsIdempotent(t *testing.T) {
	store := newMemStore()
	cal := &fakeCalendar{}
	s := newScheduler(store, cal)

	rec := extractedRecord(t, store, []model.ActionItem{
		{Description: "submit report", DueHint: "2026-03-10", Priority: "high"},
	})

	if err := s.Schedule(context.Background(), rec, FileMetadata{FileID: "doc-a"}); err != nil {
		t.Fatal(err)
	}

	// 同一记录重跑不会创建第二个事件
	rec.Status = model.StatusScheduled
	if err := s.Schedule(context.Background(), rec, FileMetadata{FileID: "doc-a"}); err != nil {
		t.Fatal(err)
	}

	if cal.callCount() != 1 {
		t.Fatalf("expected 1 calendar call, got %d", cal.callCount())
	}
	if store.entryCount() != 1 {
		t.Fatalf("expected 1 schedule entry, got %d", store.entryCount())
	}
}

func TestScheduleSkipsItemsWithoutDueSignal(t *testing.T) {
	store := newMemStore()
	cal := &fakeCalendar{}
	s := newScheduler(store, cal)

	rec := extractedRecord(t, store, []model.ActionItem{
		{Description: "think about strategy", DueHint: "", Priority: "low"},
		{Description: "submit report", DueHint: "2026-03-10", Priority: "high"},
	})

	if err := s.Schedule(context.Background(), rec, FileMetadata{FileID: "doc-a"}); err != nil {
		t.Fatal(err)
	}

	if cal.callCount() != 1 {
		t.Fatalf("expected 1 event, got %d calls", cal.callCount())
	}

	entry, err := store.GetScheduleEntry(context.Background(), "doc-a", "hash:h1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || !entry.Skipped {
		t.Fatalf("item without due signal must get a skip entry, got %+v", entry)
	}

	if rec.Status != model.StatusComplete {
		t.Fatalf("expected COMPLETE, got %s", rec.Status)
	}
}

func TestScheduleVagueHintUsesDefaultOffset(t *testing.T) {
	store := newMemStore()
	cal := &fakeCalendar{}
	s := newScheduler(store, cal)
	s.DefaultDueOffset = 48 * time.Hour

	rec := extractedRecord(t, store, []model.ActionItem{
		{Description: "follow up", DueHint: "next week", Priority: "medium"},
	})

	if err := s.Schedule(context.Background(), rec, FileMetadata{FileID: "doc-a"}); err != nil {
		t.Fatal(err)
	}

	want := s.Now().Add(48 * time.Hour)
	if cal.created[0].Start != want {
		t.Fatalf("expected start %v, got %v", want, cal.created[0].Start)
	}
}

func TestSchedulePartialFailureResumes(t *testing.T) {
	store := newMemStore()
	cal := &fakeCalendar{
		// 第一个事件成功，第二个瞬时失败（重试两次都失败）
		errs: []error{nil, Transient(errors.New("rate limited")), Transient(errors.New("rate limited"))},
	}
	s := newScheduler(store, cal)

	rec := extractedRecord(t, store, []model.ActionItem{
		{Description: "task one", DueHint: "2026-03-10", Priority: "high"},
		{Description: "task two", DueHint: "2026-03-11", Priority: "high"},
	})

	err := s.Schedule(context.Background(), rec, FileMetadata{FileID: "doc-a"})
	if err == nil {
		t.Fatal("expected error from failed event creation")
	}

	if rec.Status != model.StatusScheduled {
		t.Fatalf("partial progress must stay SCHEDULED, got %s", rec.Status)
	}
	if store.entryCount() != 1 {
		t.Fatalf("expected 1 persisted entry, got %d", store.entryCount())
	}

	// 续做只补缺失的事件
	if err := s.Schedule(context.Background(), rec, FileMetadata{FileID: "doc-a"}); err != nil {
		t.Fatal(err)
	}

	if rec.Status != model.StatusComplete {
		t.Fatalf("expected COMPLETE after resume, got %s", rec.Status)
	}
	if len(cal.created) != 2 {
		t.Fatalf("expected 2 events total, got %d", len(cal.created))
	}

	ids, _ := rec.DecodeEventIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 event ids after resume, got %v", ids)
	}
}

func TestSchedulePermanentEventErrorSkipsItem(t *testing.T) {
	store := newMemStore()
	cal := &fakeCalendar{
		errs: []error{Permanent(errors.New("invalid event"))},
	}
	s := newScheduler(store, cal)

	rec := extractedRecord(t, store, []model.ActionItem{
		{Description: "bad item", DueHint: "2026-03-10", Priority: "high"},
		{Description: "good item", DueHint: "2026-03-11", Priority: "high"},
	})

	if err := s.Schedule(context.Background(), rec, FileMetadata{FileID: "doc-a"}); err != nil {
		t.Fatal(err)
	}

	if rec.Status != model.StatusComplete {
		t.Fatalf("expected COMPLETE, got %s", rec.Status)
	}

	entry, _ := store.GetScheduleEntry(context.Background(), "doc-a", "hash:h1", 0)
	if entry == nil || !entry.Skipped {
		t.Fatalf("rejected item must get a skip entry, got %+v", entry)
	}

	if len(cal.created) != 1 {
		t.Fatalf("expected 1 created event, got %d", len(cal.created))
	}
}

func TestScheduleNoOpForPendingRecord(t *testing.T) {
	store := newMemStore()
	cal := &fakeCalendar{}
	s := newScheduler(store, cal)

	rec := &model.ProcessingRecord{Status: model.StatusPending}
	if err := s.Schedule(context.Background(), rec, FileMetadata{}); err != nil {
		t.Fatal(err)
	}
	if cal.callCount() != 0 {
		t.Fatal("pending record must not be scheduled")
	}
}
