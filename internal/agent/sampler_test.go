package agent

import (
	"context"
	"github.com/packagewjx/procmon/pkg/monitor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io/ioutil"
	"log"
	"os"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSystem struct {
	stats *SystemStats
	err   error
	root  string
}

func (f *fakeSystem) ReadSystem(_ context.Context, root string) (*SystemStats, error) {
	f.root = root
	return f.stats, f.err
}

// 第一次调用CPUPercent返回0，之后返回cpu
type fakeProcess struct {
	pid      int32
	name     string
	nameErr  error
	ppid     int32
	ppidErr  error
	rss      uint64
	cpu      float64
	cpuErr   error
	zombie   bool
	primed   bool
	cpuCalls int
}

func (f *fakeProcess) Pid() int32 {
	return f.pid
}

func (f *fakeProcess) CPUPercent(context.Context) (float64, error) {
	f.cpuCalls++
	if f.cpuErr != nil && f.primed {
		return 0, f.cpuErr
	}
	if !f.primed {
		f.primed = true
		return 0, nil
	}
	return f.cpu, nil
}

func (f *fakeProcess) Name(context.Context) (string, error) {
	return f.name, f.nameErr
}

func (f *fakeProcess) Ppid(context.Context) (int32, error) {
	return f.ppid, f.ppidErr
}

func (f *fakeProcess) RSS(context.Context) (uint64, error) {
	return f.rss, nil
}

func (f *fakeProcess) Zombie(context.Context) (bool, error) {
	return f.zombie, nil
}

type fakeLister struct {
	handles []ProcessHandle
	err     error
	calls   int
}

func (f *fakeLister) Processes(context.Context) ([]ProcessHandle, error) {
	f.calls++
	return f.handles, f.err
}

func newTestSampler(system SystemReader, procs ProcessLister) (*Sampler, *[]time.Duration) {
	slept := make([]time.Duration, 0)
	s := NewSampler(system, procs, 0, log.New(ioutil.Discard, "", 0))
	s.sleep = func(d time.Duration) {
		slept = append(slept, d)
	}
	return s, &slept
}

func testStats() *SystemStats {
	return &SystemStats{
		Hostname:     "h1",
		OS:           "Linux 6.1",
		Processor:    "x86_64",
		Cores:        2,
		Threads:      4,
		MemTotal:     16 * bytesPerGB,
		MemUsed:      uint64(5.5 * bytesPerGB),
		MemAvailable: 10*bytesPerGB + bytesPerGB/3,
		DiskTotal:    512 * bytesPerGB,
		DiskUsed:     200 * bytesPerGB,
		DiskFree:     312 * bytesPerGB,
	}
}

func TestSampler_Collect(t *testing.T) {
	worker := &fakeProcess{pid: 10, name: "worker", ppid: 1, rss: 100 * bytesPerMB, cpu: 50}
	busy := &fakeProcess{pid: 11, name: "busy", ppid: 1, rss: bytesPerMB + bytesPerMB/3, cpu: 410}
	lister := &fakeLister{handles: []ProcessHandle{
		worker,
		busy,
		&fakeProcess{pid: 0, name: "swapper"},
		&fakeProcess{pid: 4, name: "System Idle Process"},
		&fakeProcess{pid: 5, name: "defunct", zombie: true},
		&fakeProcess{pid: 6, name: "gone", cpuErr: errors.New("process not found")},
		&fakeProcess{pid: 7, nameErr: errors.New("access denied"), ppidErr: errors.New("access denied"), cpu: 1},
	}}
	s, slept := newTestSampler(&fakeSystem{stats: testStats()}, lister)

	info, processes, err := s.Collect(context.Background())
	if !assert.NoError(t, err) {
		assert.FailNow(t, "采集失败")
	}

	// 两次读取共用一次枚举，中间等待warmup
	assert.Equal(t, 1, lister.calls)
	assert.Equal(t, []time.Duration{DefaultWarmup}, *slept)
	assert.Equal(t, 2, worker.cpuCalls)

	assert.Equal(t, &monitor.SystemInfo{
		Name:           "h1",
		OS:             "Linux 6.1",
		Processor:      "x86_64",
		Cores:          2,
		Threads:        4,
		RAMGB:          16,
		UsedRAMGB:      6,
		AvailableRAMGB: 10,
		StorageFreeGB:  312,
		StorageTotalGB: 512,
		StorageUsedGB:  200,
	}, info)

	if assert.Len(t, processes, 3) {
		assert.Equal(t, int32(10), processes[0].Pid)
		assert.Equal(t, "worker", processes[0].Name)
		assert.Equal(t, int32(1), *processes[0].Ppid)
		assert.Equal(t, 100.0, processes[0].MemoryMB)
		// 单核百分比除以逻辑核心数
		assert.Equal(t, 12.5, processes[0].CPUPercent)

		assert.Equal(t, int32(11), processes[1].Pid)
		assert.Equal(t, 1.33, processes[1].MemoryMB)
		assert.Equal(t, 100.0, processes[1].CPUPercent)

		assert.Equal(t, int32(7), processes[2].Pid)
		assert.Equal(t, "7", processes[2].Name)
		assert.Nil(t, processes[2].Ppid)
		assert.Equal(t, 0.25, processes[2].CPUPercent)
	}
}

func TestSampler_CollectErrors(t *testing.T) {
	s, _ := newTestSampler(&fakeSystem{err: errors.New("no /proc")}, &fakeLister{})
	info, processes, err := s.Collect(context.Background())
	assert.True(t, errors.Is(err, ErrCollection))
	assert.Nil(t, info)
	assert.Nil(t, processes)

	s, slept := newTestSampler(&fakeSystem{stats: testStats()}, &fakeLister{err: errors.New("permission denied")})
	info, processes, err = s.Collect(context.Background())
	assert.True(t, errors.Is(err, ErrCollection))
	assert.Nil(t, info)
	assert.Nil(t, processes)
	assert.Empty(t, *slept)
}

func TestSampler_CollectNoProcesses(t *testing.T) {
	s, _ := newTestSampler(&fakeSystem{stats: testStats()}, &fakeLister{})
	info, processes, err := s.Collect(context.Background())
	assert.NoError(t, err)
	assert.NotNil(t, info)
	assert.NotNil(t, processes)
	assert.Empty(t, processes)
}

func TestRounding(t *testing.T) {
	assert.Equal(t, 0.13, round2(0.125))
	assert.Equal(t, -0.13, round2(-0.125))
	assert.Equal(t, 1.0, round2(0.999))
	assert.Equal(t, int64(2), roundGB(bytesPerGB*3/2))
	assert.Equal(t, int64(1), roundGB(bytesPerGB*3/2-1))
	assert.Equal(t, 0.0, clamp(-1, 0, 100))
}

func TestSampler_CollectHost(t *testing.T) {
	if testing.Short() {
		t.Skip("读取本机进程表，short模式下跳过")
	}

	// 让当前进程在采样期间持续占用CPU
	var stop int32
	for i := 0; i < runtime.NumCPU(); i++ {
		go func() {
			for atomic.LoadInt32(&stop) == 0 {
			}
		}()
	}
	defer atomic.StoreInt32(&stop, 1)

	s := NewSampler(HostSystem{}, HostProcesses{}, DefaultWarmup, log.New(ioutil.Discard, "", 0))
	info, processes, err := s.Collect(context.Background())
	if !assert.NoError(t, err) {
		assert.FailNow(t, "采集本机信息失败")
	}
	assert.True(t, info.Threads > 0)
	assert.True(t, info.RAMGB >= 0)

	var self *monitor.ProcessSample
	for i := range processes {
		p := processes[i]
		assert.NotEqual(t, int32(0), p.Pid)
		assert.True(t, p.CPUPercent >= 0 && p.CPUPercent <= 100)
		assert.True(t, p.MemoryMB >= 0)
		if p.Pid == int32(os.Getpid()) {
			self = &p
		}
	}
	require.NotNil(t, self)
	assert.True(t, self.CPUPercent > 0)
	assert.True(t, self.MemoryMB > 0)
}
