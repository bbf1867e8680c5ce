package server

import (
	"github.com/gin-gonic/gin"
	"github.com/packagewjx/procmon/pkg/monitor"
	"github.com/pkg/errors"
	"net/http"
)

func (s *serverImpl) handleIngest(c *gin.Context) {
	req := &monitor.IngestRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, monitor.ErrorResponse{Detail: errors.Wrap(monitor.ErrBadRequest, err.Error()).Error()})
		return
	}

	resp, err := s.Ingest(req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *serverImpl) handleListHosts(c *gin.Context) {
	hosts, err := s.ListHosts()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, monitor.HostList{Hosts: hosts})
}

func (s *serverImpl) handleLatestSnapshot(c *gin.Context) {
	hostname := c.Query("hostname")
	if hostname == "" {
		c.JSON(http.StatusBadRequest, monitor.ErrorResponse{Detail: "hostname query param required"})
		return
	}

	latest, err := s.LatestSnapshot(hostname)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (s *serverImpl) handleRemoveHost(c *gin.Context) {
	err := s.RemoveHost(c.Param("hostname"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, monitor.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, monitor.ErrBadRequest):
		code = http.StatusBadRequest
	case errors.Is(err, monitor.ErrHostNotFound), errors.Is(err, monitor.ErrNoSnapshots):
		code = http.StatusNotFound
	}

	detail := err.Error()
	switch code {
	case http.StatusNotFound:
		detail = errors.Cause(err).Error()
	case http.StatusInternalServerError:
		// 存储层错误只记录在日志中
		detail = "internal server error"
	}
	c.JSON(code, monitor.ErrorResponse{Detail: detail})
}
