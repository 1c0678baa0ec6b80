package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ProcessStats is the last sample of the coordinator process itself.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	Status     string  `json:"status"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// MonitoringStats aggregates the live metrics served next to the room listing.
type MonitoringStats struct {
	Connections     int64             `json:"connections"`
	FramesReceived  uint64            `json:"frames_received"`
	FramesSent      uint64            `json:"frames_sent"`
	RejectedActions uint64            `json:"rejected_actions"`
	Process         ProcessStats      `json:"process"`
	AllocMemMb      uint64            `json:"alloc_mem_mb"`
	NumGC           uint32            `json:"num_gc"`
	NumGoroutine    int               `json:"num_goroutine"`
	TechnicalEvents map[string]uint64 `json:"technical_events"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// MonitoringManager collects transport counters and periodic process samples.
// Counters are atomic so the connection pumps never contend on a lock.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
	technical   func() map[string]uint64

	connections     int64
	framesReceived  uint64
	framesSent      uint64
	rejectedActions uint64
}

// NewMonitoringManager takes the source of technical event totals, usually a Counter snapshot.
func NewMonitoringManager(log *slog.Logger, technical func() map[string]uint64) *MonitoringManager {
	if technical == nil {
		technical = func() map[string]uint64 { return map[string]uint64{} }
	}
	return &MonitoringManager{log: log, technical: technical}
}

func (mm *MonitoringManager) IncrConnections() {
	atomic.AddInt64(&mm.connections, 1)
}

func (mm *MonitoringManager) DecrConnections() {
	atomic.AddInt64(&mm.connections, -1)
}

func (mm *MonitoringManager) IncrFramesReceived() {
	atomic.AddUint64(&mm.framesReceived, 1)
}

func (mm *MonitoringManager) IncrFramesSent() {
	atomic.AddUint64(&mm.framesSent, 1)
}

func (mm *MonitoringManager) IncrRejectedActions() {
	atomic.AddUint64(&mm.rejectedActions, 1)
}

// UpdateProcess stores the latest process sample and refreshes the runtime metrics.
func (mm *MonitoringManager) UpdateProcess(p ProcessStats) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.Process = p
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC
	mm.latestStats.NumGoroutine = runtime.NumGoroutine()
	mm.latestStats.UpdatedAt = time.Now().UTC()

	mm.log.Debug("Stats updated",
		"cpu_percent", p.CPUPercent,
		"rss_bytes", p.RSSBytes,
		"mem_mb", mm.latestStats.AllocMemMb,
		"connections", atomic.LoadInt64(&mm.connections),
	)
}

// GetLatest returns the last process sample merged with the current counters.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	stats := mm.latestStats
	mm.mu.RUnlock()

	stats.Connections = atomic.LoadInt64(&mm.connections)
	stats.FramesReceived = atomic.LoadUint64(&mm.framesReceived)
	stats.FramesSent = atomic.LoadUint64(&mm.framesSent)
	stats.RejectedActions = atomic.LoadUint64(&mm.rejectedActions)
	stats.TechnicalEvents = mm.technical()
	return stats
}
