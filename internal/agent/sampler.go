package agent

import (
	"context"
	"github.com/packagewjx/procmon/pkg/monitor"
	"log"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	bytesPerMB = 1 << 20
	bytesPerGB = 1 << 30
)

// 一次读取到的主机状态，单位为字节
type SystemStats struct {
	Hostname     string
	OS           string
	Processor    string
	Cores        int // 物理核心数
	Threads      int // 逻辑核心数
	MemTotal     uint64
	MemUsed      uint64
	MemAvailable uint64
	DiskTotal    uint64
	DiskUsed     uint64
	DiskFree     uint64
}

type SystemReader interface {
	// root为统计存储空间的挂载点
	ReadSystem(ctx context.Context, root string) (*SystemStats, error)
}

// 一个进程的句柄。CPUPercent返回距上次调用以来占单个核心的百分比，首次调用返回0并记录基线
type ProcessHandle interface {
	Pid() int32
	CPUPercent(ctx context.Context) (float64, error)
	Name(ctx context.Context) (string, error)
	Ppid(ctx context.Context) (int32, error)
	RSS(ctx context.Context) (uint64, error)
	Zombie(ctx context.Context) (bool, error)
}

type ProcessLister interface {
	Processes(ctx context.Context) ([]ProcessHandle, error)
}

type Sampler struct {
	system SystemReader
	procs  ProcessLister
	root   string
	warmup time.Duration
	sleep  func(time.Duration)
	logger *log.Logger
}

func NewSampler(system SystemReader, procs ProcessLister, warmup time.Duration, logger *log.Logger) *Sampler {
	if warmup <= 0 {
		warmup = DefaultWarmup
	}
	return &Sampler{
		system: system,
		procs:  procs,
		root:   defaultStorageRoot(),
		warmup: warmup,
		sleep:  time.Sleep,
		logger: logger,
	}
}

// Collect 读取主机信息与进程表。进程CPU需要两次读取：第一次记录基线，等待warmup后再读取增量。
// 只有主机信息或进程列表整体不可读时返回CollectionError
func (s *Sampler) Collect(ctx context.Context) (*monitor.SystemInfo, []monitor.ProcessSample, error) {
	stats, err := s.system.ReadSystem(ctx, s.root)
	if err != nil {
		return nil, nil, &CollectionError{Op: "读取系统信息", Err: err}
	}

	handles, err := s.procs.Processes(ctx)
	if err != nil {
		return nil, nil, &CollectionError{Op: "读取进程列表", Err: err}
	}

	for _, h := range handles {
		_, _ = h.CPUPercent(ctx)
	}

	s.sleep(s.warmup)

	cores := stats.Threads
	if cores <= 0 {
		cores = 1
	}
	samples := make([]monitor.ProcessSample, 0, len(handles))
	skipped := 0
	for _, h := range handles {
		sample, ok := sampleProcess(ctx, h, cores)
		if !ok {
			skipped++
			continue
		}
		samples = append(samples, sample)
	}
	if skipped > 0 && s.logger != nil {
		s.logger.Printf("共%d个进程，跳过%d个\n", len(handles), skipped)
	}

	return systemInfo(stats), samples, nil
}

// 进程在两次读取之间退出、无权访问或为僵尸进程时跳过
func sampleProcess(ctx context.Context, h ProcessHandle, cores int) (monitor.ProcessSample, bool) {
	pid := h.Pid()
	if pid == 0 {
		return monitor.ProcessSample{}, false
	}

	if zombie, err := h.Zombie(ctx); err == nil && zombie {
		return monitor.ProcessSample{}, false
	}

	cpu, err := h.CPUPercent(ctx)
	if err != nil {
		return monitor.ProcessSample{}, false
	}
	rss, err := h.RSS(ctx)
	if err != nil {
		return monitor.ProcessSample{}, false
	}

	name, err := h.Name(ctx)
	if err != nil || name == "" {
		name = strconv.Itoa(int(pid))
	} else if strings.Contains(strings.ToLower(name), "idle") {
		return monitor.ProcessSample{}, false
	}

	sample := monitor.ProcessSample{
		Pid:        pid,
		Name:       name,
		MemoryMB:   round2(float64(rss) / bytesPerMB),
		CPUPercent: round2(clamp(cpu/float64(cores), 0, 100)),
	}
	if ppid, err := h.Ppid(ctx); err == nil {
		sample.Ppid = &ppid
	}
	return sample, true
}

func systemInfo(stats *SystemStats) *monitor.SystemInfo {
	return &monitor.SystemInfo{
		Name:           stats.Hostname,
		OS:             stats.OS,
		Processor:      stats.Processor,
		Cores:          stats.Cores,
		Threads:        stats.Threads,
		RAMGB:          roundGB(stats.MemTotal),
		UsedRAMGB:      roundGB(stats.MemUsed),
		AvailableRAMGB: roundGB(stats.MemAvailable),
		StorageFreeGB:  roundGB(stats.DiskFree),
		StorageTotalGB: roundGB(stats.DiskTotal),
		StorageUsedGB:  roundGB(stats.DiskUsed),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundGB(bytes uint64) int64 {
	return int64(math.Round(float64(bytes) / bytesPerGB))
}

func clamp(v, min, max float64) float64 {
	if math.IsNaN(v) || v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
