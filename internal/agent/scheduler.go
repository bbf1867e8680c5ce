package agent

import (
	"context"
	"github.com/packagewjx/procmon/pkg/client"
	"github.com/packagewjx/procmon/pkg/monitor"
	"log"
	"os"
	"time"
)

type Collector interface {
	Collect(ctx context.Context) (*monitor.SystemInfo, []monitor.ProcessSample, error)
}

type Sender interface {
	Send(ctx context.Context, hostname string, reportedAt time.Time,
		info *monitor.SystemInfo, processes []monitor.ProcessSample) error
}

type Scheduler struct {
	hostname  string
	interval  time.Duration
	collector Collector
	sender    Sender
	logger    *log.Logger
	now       func() time.Time
}

func NewScheduler(hostname string, interval time.Duration, collector Collector, sender Sender, logger *log.Logger) *Scheduler {
	return &Scheduler{
		hostname:  hostname,
		interval:  interval,
		collector: collector,
		sender:    sender,
		logger:    logger,
		now:       time.Now,
	}
}

// NewAgent 使用本机的gopsutil采集器与HTTP上报构建Scheduler
func NewAgent(config Config) *Scheduler {
	logger := log.New(os.Stdout, "agent: ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix)
	sampler := NewSampler(HostSystem{}, HostProcesses{}, config.Warmup, logger)
	api := client.NewApiClient(config.Endpoint, config.APIKey, config.Timeout)
	transmitter := NewTransmitter(api, config.Endpoint, logger)
	return NewScheduler(config.Hostname, config.Interval, sampler, transmitter, logger)
}

// Run interval小于等于0时只执行一轮；否则每轮结束后等待interval再开始下一轮，直到ctx被取消。
// 单轮中的失败只记录日志，不会使Run返回错误
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		_ = s.RunOnce()
		return nil
	}

	s.logger.Printf("以%v为间隔周期上报\n", s.interval)
	for ctx.Err() == nil {
		_ = s.RunOnce()

		select {
		case <-ctx.Done():
		case <-time.After(s.interval):
		}
	}

	s.logger.Println("收到退出信号，停止上报")
	return nil
}

// RunOnce 执行一轮采集与上报。一轮开始后不响应取消
func (s *Scheduler) RunOnce() error {
	s.logger.Println("开始采集系统信息与进程列表")
	info, processes, err := s.collector.Collect(context.Background())
	if err != nil {
		s.logger.Printf("采集失败，跳过本轮上报：%v\n", err)
		return err
	}

	err = s.sender.Send(context.Background(), s.hostname, s.now(), info, processes)
	if err != nil {
		s.logger.Printf("上报失败，丢弃本次采样：%v\n", err)
		return err
	}
	return nil
}
