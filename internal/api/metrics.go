package api

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats — состояние процесса сервера для /api/server
type ProcessStats struct {
	Uptime     string  `json:"uptime"`
	RSSMB      float64 `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	HeapMB     float64 `json:"heap_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
}

// ServerMetrics снимает ProcessStats через gopsutil
type ServerMetrics struct {
	started time.Time

	once sync.Once
	proc *process.Process
}

func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{started: time.Now()}
}

const mb = 1 << 20

// Snapshot собирает метрики. Если gopsutil не видит процесс, RSS берётся из
// рантайма Go, а CPU из общей загрузки системы.
func (sm *ServerMetrics) Snapshot() ProcessStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	st := ProcessStats{
		Uptime:     time.Since(sm.started).Round(time.Second).String(),
		RSSMB:      float64(ms.Sys) / mb,
		HeapMB:     float64(ms.HeapAlloc) / mb,
		NumGC:      ms.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}

	p := sm.process()
	if p != nil {
		if info, err := p.MemoryInfo(); err == nil {
			st.RSSMB = float64(info.RSS) / mb
		}
		if pct, err := p.CPUPercent(); err == nil {
			st.CPUPercent = pct
			return st
		}
	}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		st.CPUPercent = pcts[0]
	}
	return st
}

func (sm *ServerMetrics) process() *process.Process {
	sm.once.Do(func() {
		if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
			sm.proc = p
		}
	})
	return sm.proc
}
