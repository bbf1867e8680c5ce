package server

import (
	"bytes"
	"github.com/packagewjx/procmon/pkg/monitor"
	"github.com/pkg/errors"
)

const maxHostnameLength = 255

var jsonNull = []byte("null")

// Ingest 保存一次上报。调用前请求已通过APIKeyAuth认证
func (s *serverImpl) Ingest(req *monitor.IngestRequest) (*monitor.IngestResponse, error) {
	if err := validateIngestRequest(req); err != nil {
		return nil, err
	}

	systemInfo := []byte(req.SystemInfo)
	if len(bytes.TrimSpace(systemInfo)) == 0 || bytes.Equal(bytes.TrimSpace(systemInfo), jsonNull) {
		systemInfo = nil
	}

	ref, err := s.dao.SaveSnapshot(req.Hostname, systemInfo, req.Processes)
	if err != nil {
		s.logger.Printf("保存主机%s的上报失败，原因为：%v\n", req.Hostname, err)
		return nil, err
	}

	return &monitor.IngestResponse{
		Status:     "ok",
		SnapshotID: ref.ID,
		CreatedAt:  ref.CreatedAt,
	}, nil
}

func validateIngestRequest(req *monitor.IngestRequest) error {
	if req == nil {
		return monitor.ErrBadRequest
	}
	if req.Hostname == "" {
		return monitor.ErrBadRequest
	}
	if len(req.Hostname) > maxHostnameLength {
		return errors.Wrapf(monitor.ErrBadRequest, "hostname longer than %d", maxHostnameLength)
	}
	for _, p := range req.Processes {
		if p.Pid < 0 || p.CPUPercent < 0 || p.MemoryMB < 0 {
			return errors.Wrapf(monitor.ErrBadRequest, "process %d has negative values", p.Pid)
		}
	}
	return nil
}

func (s *serverImpl) ListHosts() ([]monitor.Host, error) {
	hosts, err := s.dao.QueryAllHosts()
	if err != nil {
		s.logger.Printf("查询主机列表失败，原因为：%v\n", err)
		return nil, err
	}
	return hosts, nil
}

func (s *serverImpl) LatestSnapshot(hostname string) (*monitor.LatestSnapshot, error) {
	latest, err := s.dao.QueryLatestSnapshot(hostname)
	if errors.Is(err, monitor.ErrHostNotFound) || errors.Is(err, monitor.ErrNoSnapshots) {
		return nil, err
	} else if err != nil {
		s.logger.Printf("查询主机%s的最新Snapshot失败，原因为：%v\n", hostname, err)
		return nil, err
	}
	return latest, nil
}

func (s *serverImpl) RemoveHost(hostname string) error {
	err := s.dao.RemoveHost(hostname)
	if err != nil && !errors.Is(err, monitor.ErrHostNotFound) {
		s.logger.Printf("删除主机%s失败，原因为：%v\n", hostname, err)
	}
	return err
}
