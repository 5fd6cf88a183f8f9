package supervisor

import (
	"log/slog"

	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
	"github.com/shirou/gopsutil/v4/process"
)

// processStats samples CPU and memory usage of pid. It returns nil when the
// process cannot be inspected, for example because it has just exited.
func processStats(pid int) *types.ProcessStats {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		slog.Debug("process not inspectable", "pid", pid, "error", err)
		return nil
	}

	stats := &types.ProcessStats{}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	return stats
}
