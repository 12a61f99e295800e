package scan

import (
	"context"
	"fmt"
	"sync"

	"drive-agent-backend/model"
)

// memStore 测试用的内存状态存储，语义与MySQL实现保持一致
type memStore struct {
	mu sync.Mutex

	files   map[string]*model.FileRecord
	procs   []*model.ProcessingRecord
	entries map[string]*model.ScheduleEntry
	runs    map[string]*model.ScanRun

	lockHolder string
	nextID     uint
}

func newMemStore() *memStore {
	return &memStore{
		files:   make(map[string]*model.FileRecord),
		entries: make(map[string]*model.ScheduleEntry),
		runs:    make(map[string]*model.ScanRun),
	}
}

func entryKey(fileID, version string, index int) string {
	return fmt.Sprintf("%s|%s|%d", fileID, version, index)
}

func (s *memStore) ListFileRecords(ctx context.Context) ([]model.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []model.FileRecord
	for _, rec := range s.files {
		records = append(records, *rec)
	}
	return records, nil
}

func (s *memStore) UpsertFileRecord(ctx context.Context, rec *model.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	if existing, ok := s.files[rec.FileID]; ok {
		cp.ID = existing.ID
	} else {
		s.nextID++
		cp.ID = s.nextID
	}
	s.files[rec.FileID] = &cp
	return nil
}

func (s *memStore) MarkFileMissing(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.files[fileID]; ok {
		rec.Status = model.FileStatusMissing
	}
	return nil
}

func (s *memStore) LatestAttempt(ctx context.Context, fileID string) (*model.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.procs) - 1; i >= 0; i-- {
		if s.procs[i].FileID == fileID {
			cp := *s.procs[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) LatestComplete(ctx context.Context, fileID string) (*model.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.procs) - 1; i >= 0; i-- {
		if s.procs[i].FileID == fileID && s.procs[i].Status == model.StatusComplete {
			cp := *s.procs[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateProcessingRecord(ctx context.Context, rec *model.ProcessingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec.ID = s.nextID
	cp := *rec
	s.procs = append(s.procs, &cp)
	return nil
}

func (s *memStore) UpdateProcessingRecord(ctx context.Context, rec *model.ProcessingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.procs {
		if existing.ID == rec.ID {
			cp := *rec
			s.procs[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("processing record %d not found", rec.ID)
}

func (s *memStore) GetScheduleEntry(ctx context.Context, fileID, version string, index int) (*model.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[entryKey(fileID, version, index)]; ok {
		cp := *entry
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) CreateScheduleEntry(ctx context.Context, entry *model.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey(entry.FileID, entry.ProcessedVersion, entry.ActionIndex)
	if _, ok := s.entries[key]; ok {
		return fmt.Errorf("duplicate schedule entry %s", key)
	}
	cp := *entry
	s.entries[key] = &cp
	return nil
}

func (s *memStore) AcquireScanLock(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lockHolder != "" {
		return ErrScanLockHeld
	}
	s.lockHolder = runID
	return nil
}

func (s *memStore) ReleaseScanLock(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lockHolder == runID {
		s.lockHolder = ""
	}
	return nil
}

func (s *memStore) CreateScanRun(ctx context.Context, run *model.ScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	run.ID = s.nextID
	cp := *run
	s.runs[run.RunID] = &cp
	return nil
}

func (s *memStore) UpdateScanRun(ctx context.Context, run *model.ScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *run
	s.runs[run.RunID] = &cp
	return nil
}

func (s *memStore) latestProc(fileID string) *model.ProcessingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.procs) - 1; i >= 0; i-- {
		if s.procs[i].FileID == fileID {
			cp := *s.procs[i]
			return &cp
		}
	}
	return nil
}

func (s *memStore) procCount(fileID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, rec := range s.procs {
		if rec.FileID == fileID {
			count++
		}
	}
	return count
}

func (s *memStore) entryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// fakeStorage 返回固定列表与内容
type fakeStorage struct {
	mu       sync.Mutex
	listing  []FileMetadata
	contents map[string]string
	fetchErr map[string]error
	fetches  map[string]int
}

func newFakeStorage(listing ...FileMetadata) *fakeStorage {
	contents := make(map[string]string)
	for _, meta := range listing {
		contents[meta.FileID] = "content of " + meta.FileID
	}
	return &fakeStorage{
		listing:  listing,
		contents: contents,
		fetchErr: make(map[string]error),
		fetches:  make(map[string]int),
	}
}

func (f *fakeStorage) List(ctx context.Context, folderRef string, recursive bool) ([]FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FileMetadata(nil), f.listing...), nil
}

func (f *fakeStorage) Fetch(ctx context.Context, fileID string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches[fileID]++
	if err := f.fetchErr[fileID]; err != nil {
		return nil, "", err
	}
	content, ok := f.contents[fileID]
	if !ok {
		return nil, "", Permanent(fmt.Errorf("file %s not found", fileID))
	}
	return []byte(content), "text/plain", nil
}

// fakeParser 原样返回内容
type fakeParser struct{}

func (fakeParser) Parse(ctx context.Context, data []byte, mimeType string) (string, error) {
	return string(data), nil
}

// fakeInsight 每个文档返回固定的洞察结果
type fakeInsight struct {
	mu      sync.Mutex
	items   []model.ActionItem
	err     error
	errOnce bool
	calls   int
}

func (f *fakeInsight) Extract(ctx context.Context, text string) (*Insight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		err := f.err
		if f.errOnce {
			f.err = nil
		}
		return nil, err
	}

	return &Insight{
		Summary:     "summary: " + text,
		ActionItems: f.items,
	}, nil
}

// fakeIndexer 记录全部索引写入
type fakeIndexer struct {
	mu   sync.Mutex
	reqs []IndexRequest
	err  error
}

func (f *fakeIndexer) Index(ctx context.Context, req IndexRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.reqs = append(f.reqs, req)
	return nil
}

func (f *fakeIndexer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

// fakeCalendar 自增事件ID；errs按调用顺序注入错误
type fakeCalendar struct {
	mu      sync.Mutex
	created []EventSpec
	errs    []error
	calls   int
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, spec EventSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}

	f.created = append(f.created, spec)
	return fmt.Sprintf("event-%d", len(f.created)), nil
}

func (f *fakeCalendar) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 2, Delay: 1}
}
