package agent

import "github.com/pkg/errors"

var ErrCollection = errors.New("collection failed")

var ErrTransport = errors.New("transport failed")

// 采集系统信息或进程表失败，本轮不上报
type CollectionError struct {
	Op  string
	Err error
}

func (e *CollectionError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

func (e *CollectionError) Is(target error) bool {
	return target == ErrCollection
}

// 上报请求失败（超时、连接失败或非2xx响应），本次采样丢弃
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return "上报到" + e.Endpoint + "失败: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
