package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/pkg/errors"
	"time"
)

// agent与collector之间传递共享密钥的请求头
const HeaderAPIKey = "X-API-Key"

// 一次采样的主机数据。内存与存储的单位为GB，取整
type SystemInfo struct {
	Name           string `json:"name"`
	OS             string `json:"os"`
	Processor      string `json:"processor"`
	Cores          int    `json:"cores"`
	Threads        int    `json:"threads"`
	RAMGB          int64  `json:"ram_gb"`
	UsedRAMGB      int64  `json:"used_ram_gb"`
	AvailableRAMGB int64  `json:"available_ram_gb"`
	StorageFreeGB  int64  `json:"storage_free_gb"`
	StorageTotalGB int64  `json:"storage_total_gb"`
	StorageUsedGB  int64  `json:"storage_used_gb"`
}

// 进程表中的一行。CPUPercent为占整个系统算力的百分比，MemoryMB为常驻内存大小
type ProcessSample struct {
	Pid        int32   `json:"pid" binding:"gte=0"`
	Ppid       *int32  `json:"ppid"`
	Name       string  `json:"name"`
	MemoryMB   float64 `json:"memory_mb" binding:"gte=0"`
	CPUPercent float64 `json:"cpu_percent" binding:"gte=0"`
}

// POST /api/ingest的请求体
type IngestRequest struct {
	Hostname   string          `json:"hostname" binding:"required"`
	ReportedAt string          `json:"reported_at,omitempty"`
	SystemInfo json.RawMessage `json:"system_info,omitempty"`
	Processes  ProcessList     `json:"processes" binding:"dive"`
}

// 上报中的进程列表。字段缺失视为空列表，显式的null不是列表，解码失败
type ProcessList []ProcessSample

func (l ProcessList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]ProcessSample(l))
}

func (l *ProcessList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return errors.New("processes must be a list")
	}
	items := make([]ProcessSample, 0)
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

type IngestResponse struct {
	Status     string    `json:"status"`
	SnapshotID uint      `json:"snapshot_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type SnapshotRef struct {
	ID        uint
	CreatedAt time.Time
}

type Host struct {
	ID       uint   `json:"id"`
	Hostname string `json:"hostname"`
}

type HostList struct {
	Hosts []Host `json:"hosts"`
}

type SnapshotView struct {
	ID        uint            `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Processes []ProcessSample `json:"processes"`
}

// GET /api/latest的响应体
type LatestSnapshot struct {
	Hostname   string          `json:"hostname"`
	SystemInfo json.RawMessage `json:"system_info"`
	Snapshot   SnapshotView    `json:"snapshot"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type API interface {
	Ingest(ctx context.Context, req *IngestRequest) (*IngestResponse, error)

	ListHosts(ctx context.Context) ([]Host, error)

	LatestSnapshot(ctx context.Context, hostname string) (*LatestSnapshot, error)
}
