package monitor

import "github.com/pkg/errors"

var ErrUnauthorized = errors.New("unauthorized")

var ErrBadRequest = errors.New("hostname and processes[] required")

var ErrHostNotFound = errors.New("host not found")

var ErrNoSnapshots = errors.New("no snapshots")

// 存储操作失败。该操作写入的数据已全部回滚
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Cause() error {
	return e.Err
}
