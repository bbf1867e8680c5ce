package agent

import (
	"context"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"os"
	"runtime"
	"strings"
)

// HostSystem 通过gopsutil读取本机信息
type HostSystem struct{}

var _ SystemReader = HostSystem{}

func (HostSystem) ReadSystem(ctx context.Context, root string) (*SystemStats, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "读取内存信息出错")
	}
	usage, err := disk.UsageWithContext(ctx, root)
	if err != nil {
		return nil, errors.Wrapf(err, "读取%s的存储信息出错", root)
	}

	stats := &SystemStats{
		MemTotal:     vm.Total,
		MemUsed:      vm.Used,
		MemAvailable: vm.Available,
		DiskTotal:    usage.Total,
		DiskUsed:     usage.Used,
		DiskFree:     usage.Free,
	}

	// 以下信息读取失败时保留零值
	if info, err := host.InfoWithContext(ctx); err == nil {
		stats.Hostname = info.Hostname
		stats.OS = joinNonEmpty(info.OS, info.KernelVersion, info.Platform, info.PlatformVersion)
		stats.Processor = info.KernelArch
	}
	if stats.Hostname == "" {
		stats.Hostname, _ = os.Hostname()
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].ModelName != "" {
		stats.Processor = infos[0].ModelName
	}
	if cores, err := cpu.CountsWithContext(ctx, false); err == nil {
		stats.Cores = cores
	}
	if threads, err := cpu.CountsWithContext(ctx, true); err == nil && threads > 0 {
		stats.Threads = threads
	} else {
		stats.Threads = runtime.NumCPU()
	}

	return stats, nil
}

func joinNonEmpty(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.Join(nonEmpty, " ")
}

func defaultStorageRoot() string {
	if runtime.GOOS == "windows" {
		if drive := os.Getenv("SystemDrive"); drive != "" {
			return drive + "\\"
		}
		return "C:\\"
	}
	return "/"
}

// HostProcesses 通过gopsutil枚举本机进程
type HostProcesses struct{}

var _ ProcessLister = HostProcesses{}

func (HostProcesses) Processes(ctx context.Context) ([]ProcessHandle, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "枚举进程出错")
	}

	handles := make([]ProcessHandle, len(procs))
	for i, p := range procs {
		handles[i] = &hostProcess{p: p}
	}
	return handles, nil
}

// 同一个句柄在两次读取间复用，gopsutil在其中保存CPU时间基线
type hostProcess struct {
	p *process.Process
}

func (h *hostProcess) Pid() int32 {
	return h.p.Pid
}

func (h *hostProcess) CPUPercent(ctx context.Context) (float64, error) {
	return h.p.PercentWithContext(ctx, 0)
}

func (h *hostProcess) Name(ctx context.Context) (string, error) {
	return h.p.NameWithContext(ctx)
}

func (h *hostProcess) Ppid(ctx context.Context) (int32, error) {
	return h.p.PpidWithContext(ctx)
}

func (h *hostProcess) RSS(ctx context.Context) (uint64, error) {
	info, err := h.p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

func (h *hostProcess) Zombie(ctx context.Context) (bool, error) {
	status, err := h.p.StatusWithContext(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range status {
		if s == process.Zombie {
			return true, nil
		}
	}
	return false, nil
}
