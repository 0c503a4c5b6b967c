package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/quickstage/internal/repository"
	"github.com/iconidentify/quickstage/internal/service"
)

var startTime = time.Now()

// QueueStatser reports batch queue statistics.
type QueueStatser interface {
	Stats(ctx context.Context) (*repository.QueueStats, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	queue    QueueStatser
	cacheDir string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(queue QueueStatser, cacheDir string) *HealthHandler {
	return &HealthHandler{
		queue:    queue,
		cacheDir: cacheDir,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
	Queue     *repository.QueueStats `json:"queue,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe. The cache directory must be
// writable and the queue must answer.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)

	if err := service.CheckWritable(h.cacheDir); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: now,
			Error:     "cache directory not writable",
		})
		return
	}

	stats, err := h.queue.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: now,
			Error:     "queue unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: now,
		Queue:     stats,
	})
}

// SystemStats contains process and cache statistics.
type SystemStats struct {
	Uptime         int64                  `json:"uptime_seconds"`
	UptimeHuman    string                 `json:"uptime_human"`
	MemAllocMB     int64                  `json:"mem_alloc_mb"`
	MemSysMB       int64                  `json:"mem_sys_mb"`
	NumGoroutines  int                    `json:"num_goroutines"`
	NumCPU         int                    `json:"num_cpu"`
	CacheDir       string                 `json:"cache_dir"`
	DiskFreeBytes  int64                  `json:"disk_free_bytes"`
	DiskTotalBytes int64                  `json:"disk_total_bytes"`
	DiskUsedPct    float64                `json:"disk_used_pct"`
	Queue          *repository.QueueStats `json:"queue,omitempty"`
}

// Stats handles GET /api/v1/stats.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CacheDir:      h.cacheDir,
	}

	if usage, err := service.DiskSpace(h.cacheDir); err == nil {
		stats.DiskFreeBytes = usage.Free
		stats.DiskTotalBytes = usage.Total
		if usage.Total > 0 {
			stats.DiskUsedPct = float64(usage.Total-usage.Free) / float64(usage.Total) * 100
		}
	}

	if q, err := h.queue.Stats(r.Context()); err == nil {
		stats.Queue = q
	}

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
