package agent

import (
	"context"
	"encoding/json"
	"github.com/packagewjx/procmon/pkg/monitor"
	"github.com/pkg/errors"
	"log"
	"time"
)

// Transmitter 将一次采样上报到collector，不重试也不缓存
type Transmitter struct {
	api      monitor.API
	endpoint string
	logger   *log.Logger
}

func NewTransmitter(api monitor.API, endpoint string, logger *log.Logger) *Transmitter {
	return &Transmitter{
		api:      api,
		endpoint: endpoint,
		logger:   logger,
	}
}

func (t *Transmitter) Send(ctx context.Context, hostname string, reportedAt time.Time,
	info *monitor.SystemInfo, processes []monitor.ProcessSample) error {
	req := &monitor.IngestRequest{
		Hostname:   hostname,
		ReportedAt: reportedAt.UTC().Format(time.RFC3339),
		Processes:  processes,
	}
	if info != nil {
		raw, err := json.Marshal(info)
		if err != nil {
			return &TransportError{Endpoint: t.endpoint, Err: errors.Wrap(err, "序列化系统信息出错")}
		}
		req.SystemInfo = raw
	}

	resp, err := t.api.Ingest(ctx, req)
	if err != nil {
		return &TransportError{Endpoint: t.endpoint, Err: err}
	}

	t.logger.Printf("上报成功，Snapshot ID为%d，共%d条Process\n", resp.SnapshotID, len(processes))
	return nil
}
