package server

import (
	"fmt"
	"github.com/packagewjx/procmon/pkg/monitor"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"log"
	"os"
	"strconv"
	"time"
)

type UpdateDao interface {
	// 在同一个事务中查询或创建Host，创建Snapshot，并批量写入全部Process。失败时不留下任何记录
	SaveSnapshot(hostname string, systemInfo []byte, processes []monitor.ProcessSample) (*monitor.SnapshotRef, error)
	// 删除Host及其所有Snapshot与Process
	RemoveHost(hostname string) error
}

type QueryDao interface {
	QueryAllHosts() ([]monitor.Host, error)
	QueryLatestSnapshot(hostname string) (*monitor.LatestSnapshot, error)
}

type Dao interface {
	DB() *gorm.DB
	UpdateDao
	QueryDao
}

type daoImpl struct {
	db        *gorm.DB
	batchSize int
	logger    *log.Logger
}

var _ Dao = &daoImpl{}

func NewDao(dialector gorm.Dialector, batchSize int) (Dao, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "gorm: ", log.LstdFlags), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "连接数据库错误")
	}

	return newDaoWithDB(db, batchSize)
}

func newDaoWithDB(db *gorm.DB, batchSize int) (*daoImpl, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	// sqlite同一时刻只允许一个写者，连接池只保留一个连接
	if db.Dialector.Name() == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "获取数据库连接池错误")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	// 创建表格等
	err := db.AutoMigrate(&HostDO{}, &SnapshotDO{}, &ProcessDO{})
	if err != nil {
		return nil, errors.Wrap(err, "创建表格时出现异常")
	}

	return &daoImpl{
		db:        db,
		batchSize: batchSize,
		logger:    log.New(os.Stdout, "Dao: ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix),
	}, nil
}

func (d *daoImpl) SaveSnapshot(hostname string, systemInfo []byte, processes []monitor.ProcessSample) (*monitor.SnapshotRef, error) {
	snapshot := &SnapshotDO{SystemInfo: systemInfo}

	err := d.db.Transaction(func(tx *gorm.DB) error {
		host, err := getOrCreateHost(tx, hostname)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("查询或创建主机%s出错", hostname))
		}

		snapshot.HostID = host.ID
		err = tx.Create(snapshot).Error
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("创建主机%s的Snapshot出错", hostname))
		}

		if len(processes) == 0 {
			return nil
		}

		rows := make([]*ProcessDO, len(processes))
		for i, p := range processes {
			name := p.Name
			if name == "" {
				name = strconv.Itoa(int(p.Pid))
			}
			rows[i] = &ProcessDO{
				SnapshotID: snapshot.ID,
				Pid:        p.Pid,
				Ppid:       p.Ppid,
				Name:       name,
				CPUPercent: p.CPUPercent,
				MemoryMB:   p.MemoryMB,
			}
		}

		err = tx.CreateInBatches(rows, d.batchSize).Error
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("写入Snapshot %d的%d条Process出错", snapshot.ID, len(rows)))
		}
		return nil
	})
	if err != nil {
		return nil, &monitor.StorageError{Op: "save snapshot", Err: err}
	}

	d.logger.Printf("主机%s新增Snapshot %d，共%d条Process", hostname, snapshot.ID, len(processes))

	return &monitor.SnapshotRef{
		ID:        snapshot.ID,
		CreatedAt: snapshot.CreatedAt,
	}, nil
}

// 根据hostname查询Host，若不存在，则创建一条记录。并发创建同一hostname时依赖唯一索引，冲突的一方读取对方提交的记录
func getOrCreateHost(tx *gorm.DB, hostname string) (*HostDO, error) {
	host := &HostDO{}
	err := tx.Where(&HostDO{Hostname: hostname}).First(host).Error
	if err == nil {
		return host, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&HostDO{Hostname: hostname}).Error
	if err != nil {
		return nil, err
	}

	// 加锁读取，保证在可重复读隔离级别下也能读到其他事务刚提交的记录
	host = &HostDO{}
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(&HostDO{Hostname: hostname}).First(host).Error
	if err != nil {
		return nil, err
	}
	return host, nil
}

func (d *daoImpl) RemoveHost(hostname string) error {
	err := d.db.Transaction(func(tx *gorm.DB) error {
		host := &HostDO{}
		err := tx.Where(&HostDO{Hostname: hostname}).First(host).Error
		if err != nil {
			return err
		}

		snapshotIds := tx.Model(&SnapshotDO{}).Select("id").Where("host_id = ?", host.ID)
		err = tx.Where("snapshot_id IN (?)", snapshotIds).Delete(&ProcessDO{}).Error
		if err != nil {
			return err
		}
		err = tx.Where("host_id = ?", host.ID).Delete(&SnapshotDO{}).Error
		if err != nil {
			return err
		}
		return tx.Delete(host).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return monitor.ErrHostNotFound
	} else if err != nil {
		return &monitor.StorageError{Op: "remove host", Err: err}
	}

	d.logger.Printf("已删除主机%s及其所有Snapshot", hostname)
	return nil
}

func (d *daoImpl) QueryAllHosts() ([]monitor.Host, error) {
	records := make([]*HostDO, 0)
	err := d.db.Order("hostname ASC").Find(&records).Error
	if err != nil {
		return nil, &monitor.StorageError{Op: "query hosts", Err: err}
	}

	result := make([]monitor.Host, len(records))
	for i, record := range records {
		result[i] = monitor.Host{
			ID:       record.ID,
			Hostname: record.Hostname,
		}
	}
	return result, nil
}

func (d *daoImpl) QueryLatestSnapshot(hostname string) (*monitor.LatestSnapshot, error) {
	host := &HostDO{}
	err := d.db.Where(&HostDO{Hostname: hostname}).First(host).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, monitor.ErrHostNotFound
	} else if err != nil {
		return nil, &monitor.StorageError{Op: "query host", Err: err}
	}

	// 以创建时间确定最新的Snapshot，时间相同时取ID较大者
	snapshot := &SnapshotDO{}
	err = d.db.Where("host_id = ?", host.ID).Order("created_at DESC").Order("id DESC").Limit(1).Find(snapshot).Error
	if err != nil {
		return nil, &monitor.StorageError{Op: "query snapshot", Err: err}
	}
	if snapshot.ID == 0 {
		return nil, monitor.ErrNoSnapshots
	}

	records := make([]*ProcessDO, 0)
	err = d.db.Where("snapshot_id = ?", snapshot.ID).Order("cpu_percent DESC").Order("id ASC").Find(&records).Error
	if err != nil {
		return nil, &monitor.StorageError{Op: "query processes", Err: err}
	}

	processes := make([]monitor.ProcessSample, len(records))
	for i, record := range records {
		processes[i] = monitor.ProcessSample{
			Pid:        record.Pid,
			Ppid:       record.Ppid,
			Name:       record.Name,
			MemoryMB:   record.MemoryMB,
			CPUPercent: record.CPUPercent,
		}
	}

	return &monitor.LatestSnapshot{
		Hostname:   host.Hostname,
		SystemInfo: []byte(snapshot.SystemInfo),
		Snapshot: monitor.SnapshotView{
			ID:        snapshot.ID,
			CreatedAt: snapshot.CreatedAt,
			Processes: processes,
		},
	}, nil
}

func (d *daoImpl) DB() *gorm.DB {
	return d.db
}
