package utils

import (
	"context"
	"log"
	"runtime"
	"time"
)

// ResourceStats is one sample of process resource usage.
type ResourceStats struct {
	Goroutines  int
	HeapAllocKB float64
	HeapObjects uint64
}

func ReadResourceStats() ResourceStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return ResourceStats{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocKB: float64(memStats.HeapAlloc) / 1024,
		HeapObjects: memStats.HeapObjects,
	}
}

// MonitorResources logs resource usage (goroutines and memory) every
// interval until ctx is done.
func MonitorResources(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s := ReadResourceStats()
		log.Printf("[Resource Monitor] Goroutines: %d | HeapAlloc: %.2f KB | HeapObjects: %d",
			s.Goroutines, s.HeapAllocKB, s.HeapObjects)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
