package scan

import "sync"

const progressBufferSize = 64

// ProgressEvent 扫描过程中推送给订阅者的进度事件
type ProgressEvent struct {
	RunID   string `json:"run_id"`
	Stage   string `json:"stage"`
	FileID  string `json:"file_id,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ProgressHub 进度事件的发布订阅中枢；慢订阅者的事件会被丢弃而不是阻塞扫描
type ProgressHub struct {
	mu   sync.Mutex
	subs map[chan ProgressEvent]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		subs: make(map[chan ProgressEvent]struct{}),
	}
}

func (h *ProgressHub) Subscribe() (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, progressBufferSize)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

func (h *ProgressHub) Publish(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
