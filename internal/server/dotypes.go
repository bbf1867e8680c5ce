package server

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// CreatedAt字段均由存储层在写入事务内赋值，不使用agent上报的时间

type HostDO struct {
	ID        uint         `gorm:"primarykey"`
	Hostname  string       `gorm:"uniqueIndex;type:VARCHAR(255);not null"`
	CreatedAt time.Time    `gorm:"not null"`
	Snapshots []SnapshotDO `gorm:"foreignKey:HostID;constraint:OnDelete:CASCADE"`
}

type SnapshotDO struct {
	ID         uint        `gorm:"primarykey"`
	HostID     uint        `gorm:"not null;index:idx_host_created"`
	SystemInfo JSONColumn  `gorm:"type:json"` // 原样保存的system_info，可为NULL
	CreatedAt  time.Time   `gorm:"not null;index:idx_host_created"`
	Processes  []ProcessDO `gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE"`
}

type ProcessDO struct {
	ID         uint      `gorm:"primarykey"`
	SnapshotID uint      `gorm:"not null;index:idx_snapshot_pid;index:idx_snapshot_ppid"`
	Pid        int32     `gorm:"not null;index:idx_snapshot_pid"`
	Ppid       *int32    `gorm:"index:idx_snapshot_ppid"`
	Name       string    `gorm:"type:VARCHAR(255);not null"`
	CPUPercent float64   `gorm:"column:cpu_percent"`
	MemoryMB   float64   `gorm:"column:memory_mb"`
	CreatedAt  time.Time `gorm:"not null"`
}

// JSON列。以字符串写入，避免MySQL拒绝binary字符集的JSON值；空值写为NULL
type JSONColumn []byte

func (j JSONColumn) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSONColumn) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append(JSONColumn(nil), v...)
	case string:
		*j = JSONColumn(v)
	default:
		return fmt.Errorf("无法将%T转换为JSON列", src)
	}
	return nil
}
