package pipeline

import (
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats holds CPU and memory usage for one running transcoder
// process, grounded on internal/daemon/transcode.go's processStats.
type ProcessStats struct {
	CPUPercent float64
	MemoryMB   float64
}

// Stats samples CPU and memory usage for the transcoder's ffmpeg
// process via gopsutil. Returns nil if the process is not running or
// cannot be sampled.
func (t *Transcoder) Stats() *ProcessStats {
	pid := t.PID()
	if pid <= 0 {
		return nil
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	stats := &ProcessStats{}
	if cpuPercent, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpuPercent
	}
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		stats.MemoryMB = float64(memInfo.RSS) / (1024 * 1024)
	}
	return stats
}
