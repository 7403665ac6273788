package executor

import (
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/zarrbench/zarrbench/pkg/models"
)

var (
	hostInfoOnce   sync.Once
	cachedHostInfo models.HostInfo
)

// CollectHostInfo captures the execution environment once per process.
// Detection failures degrade to partial info rather than failing a job.
func CollectHostInfo() models.HostInfo {
	hostInfoOnce.Do(func() {
		info := models.HostInfo{
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			CPUThreads: runtime.NumCPU(),
		}

		if hostname, err := os.Hostname(); err == nil {
			info.Hostname = hostname
		}
		if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
			info.CPUModel = cpus[0].ModelName
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			info.RAMTotalMB = float64(vm.Total) / (1024 * 1024)
		}

		cachedHostInfo = info
	})
	return cachedHostInfo
}
