package driver

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultLogCapacity caps how many performance entries are retained.
const DefaultLogCapacity = 50000

// LogEntry is one performance log record. Message is a JSON document of the form
// {"message":{"method":...,"params":{...}},"webview":"<target id>"}.
type LogEntry struct {
	Level     string `json:"level"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

type logMessage struct {
	Message struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	} `json:"message"`
	Webview string `json:"webview"`
}

// NewLogEntry encodes an event into the performance log shape.
func NewLogEntry(at time.Time, webview, method string, params json.RawMessage) LogEntry {
	if !json.Valid(params) {
		params = json.RawMessage(`{}`)
	}

	var m logMessage
	m.Message.Method = method
	m.Message.Params = params
	m.Webview = webview

	// Cannot fail: strings plus already-validated raw JSON.
	data, _ := json.Marshal(m)
	return LogEntry{Level: "INFO", Timestamp: at.UnixMilli(), Message: string(data)}
}

// PerfLog is a thread-safe ring of performance entries. Events arrive on a
// transport goroutine while the run reads it once at the end.
type PerfLog struct {
	mu      sync.Mutex
	items   []LogEntry
	head    int
	count   int
	dropped int
}

// NewPerfLog creates a log holding at most capacity entries.
func NewPerfLog(capacity int) *PerfLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &PerfLog{items: make([]LogEntry, capacity)}
}

// Record appends an entry, overwriting the oldest one when full.
func (l *PerfLog) Record(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items[l.head] = e
	l.head = (l.head + 1) % len(l.items)
	if l.count < len(l.items) {
		l.count++
	} else {
		l.dropped++
	}
}

// Drain returns every retained entry oldest first and empties the log.
func (l *PerfLog) Drain() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return nil
	}

	out := make([]LogEntry, l.count)
	start := 0
	if l.count == len(l.items) {
		start = l.head
	}
	for i := range out {
		out[i] = l.items[(start+i)%len(l.items)]
	}

	clear(l.items)
	l.head = 0
	l.count = 0
	return out
}

// Len returns the number of retained entries.
func (l *PerfLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Dropped returns how many entries were overwritten since creation.
func (l *PerfLog) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
