package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for HTTP traffic and the gateway
// event stream.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	dispatchCount map[string]int64
	reconnects    int64
	repliesSent   int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		dispatchCount: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordDispatch increments the counter for one gateway event type.
func (m *Metrics) RecordDispatch(eventType string) {
	if m == nil || eventType == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatchCount[eventType]++
}

// RecordReconnect increments the gateway reconnect counter.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects++
}

// RecordReplySent increments the auto-reply delivery counter.
func (m *Metrics) RecordReplySent() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repliesSent++
}

// Snapshot returns a copy of all counters for the stats endpoint.
func (m *Metrics) Snapshot() (dispatch map[string]int64, reconnects, repliesSent int64) {
	if m == nil {
		return map[string]int64{}, 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dispatch = make(map[string]int64, len(m.dispatchCount))
	for k, v := range m.dispatchCount {
		dispatch[k] = v
	}
	return dispatch, m.reconnects, m.repliesSent
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
