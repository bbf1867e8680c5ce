package server

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

const (
	DefaultPort      = 8000
	DefaultDriver    = DriverMySQL
	DefaultBatchSize = 500
	DefaultDatabase  = "procmon"
)

const shutdownTimeout = 10 * time.Second

type ServerConfig struct {
	Port      uint16 // 本服务器监听端口
	APIKey    string // agent上报时必须携带的共享密钥
	DBDriver  string // mysql或sqlite
	DSN       string // 数据库连接串。mysql驱动下若为空，则由MysqlHost拼接
	MysqlHost string // 格式为host:port。若为空，则读取环境变量MYSQL_SERVICE_HOST与MYSQL_SERVICE_PORT取得
	BatchSize int    // 批量写入Process时每条语句的行数
}

func (s ServerConfig) String() string {
	masked := s
	if masked.APIKey != "" {
		masked.APIKey = "******"
	}
	marshal, _ := json.Marshal(masked)
	return string(marshal)
}

type Server interface {
	Start() error
}

func NewServer(config *ServerConfig) (Server, error) {
	if err := config.Complete(); err != nil {
		return nil, err
	}

	dao, err := NewDao(config.Dialector(), config.BatchSize)
	if err != nil {
		return nil, err
	}

	return &serverImpl{
		config: config,
		dao:    dao,
		logger: log.New(os.Stdout, "collector: ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix),
	}, nil
}

type serverImpl struct {
	config *ServerConfig
	dao    Dao
	logger *log.Logger
}

func (config *ServerConfig) Complete() error {
	if config.Port < 1024 {
		return fmt.Errorf("端口号应该在1024到65535之间，现在为%d", config.Port)
	}

	if strings.TrimSpace(config.APIKey) == "" {
		return fmt.Errorf("APIKey不能为空")
	}

	if config.BatchSize == 0 {
		config.BatchSize = DefaultBatchSize
	} else if config.BatchSize < 0 {
		return fmt.Errorf("BatchSize不能为负数，现在为%d", config.BatchSize)
	}

	switch config.DBDriver {
	case "":
		config.DBDriver = DefaultDriver
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("不支持的数据库驱动%s", config.DBDriver)
	}

	if config.DBDriver == DriverSQLite && config.DSN == "" {
		return fmt.Errorf("使用sqlite时必须指定DSN")
	}

	if config.DBDriver == DriverMySQL && config.DSN == "" {
		if config.MysqlHost == "" {
			config.MysqlHost = fmt.Sprintf("%s:%s",
				os.Getenv("MYSQL_SERVICE_HOST"), os.Getenv("MYSQL_SERVICE_PORT"))
		}
		config.DSN = fmt.Sprintf("root:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			os.Getenv("MYSQL_ROOT_PASSWORD"), config.MysqlHost, DefaultDatabase)
	}

	return nil
}

func (config *ServerConfig) Dialector() gorm.Dialector {
	if config.DBDriver == DriverSQLite {
		return sqlite.Open(config.DSN)
	}
	return mysql.Open(config.DSN)
}

func (s *serverImpl) Start() error {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.logger.Printf("服务器启动。配置：%v\n", s.config)

	server := s.buildServer()
	errCh := make(chan error, 1)
	go s.serve(server, errCh)

	// 注册信号接收器
	termSigChan := make(chan os.Signal, 1)
	signal.Notify(termSigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-termSigChan:
		shutdownCtx, shutdownCancel := context.WithTimeout(rootCtx, shutdownTimeout)
		defer shutdownCancel()
		err := server.Shutdown(shutdownCtx)
		if err != nil {
			return errors.Wrap(err, "关闭HTTP服务器失败")
		}
	case err := <-errCh:
		// 服务器未收到信号便退出，通常是端口被占用
		if err != nil {
			return errors.Wrap(err, "HTTP服务器异常退出")
		}
		return nil
	}

	// 等待HTTP服务器结束
	err := <-errCh
	if err != nil {
		return errors.Wrap(err, "HTTP关闭出现错误")
	}

	return nil
}

func (s *serverImpl) buildServer() *http.Server {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router(),
	}
	return srv
}

func (s *serverImpl) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(s.logger.Writer()), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")
	api.POST("/ingest", APIKeyAuth(s.config.APIKey), s.handleIngest)
	api.GET("/latest", s.handleLatestSnapshot)
	api.GET("/hosts", s.handleListHosts)
	api.DELETE("/hosts/:hostname", APIKeyAuth(s.config.APIKey), s.handleRemoveHost)

	return r
}

func (s *serverImpl) serve(server *http.Server, errCh chan<- error) {
	s.logger.Printf("API服务器启动，监听%s", server.Addr)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		errCh <- err
		return
	}

	s.logger.Printf("API服务器结束")
	errCh <- nil
}
