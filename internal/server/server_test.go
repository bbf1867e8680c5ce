package server

import (
	"github.com/stretchr/testify/assert"
	"os"
	"strings"
	"testing"
)

func TestNewServer(t *testing.T) {
	config := ServerConfig{
		Port:     2000,
		APIKey:   "secret",
		DBDriver: DriverSQLite,
		DSN:      "file:new_server_test?mode=memory&cache=shared",
	}
	configCopy := config
	s, err := NewServer(&configCopy)
	if !assert.NoError(t, err) {
		assert.FailNow(t, "创建服务器失败")
	}
	assert.NotNil(t, s)
	assert.Equal(t, DefaultBatchSize, configCopy.BatchSize)

	configCopy = config
	configCopy.Port = 0
	_, err = NewServer(&configCopy)
	assert.Error(t, err)

	configCopy = config
	configCopy.APIKey = "  "
	_, err = NewServer(&configCopy)
	assert.Error(t, err)

	configCopy = config
	configCopy.DBDriver = "postgres"
	_, err = NewServer(&configCopy)
	assert.Error(t, err)

	configCopy = config
	configCopy.DSN = ""
	_, err = NewServer(&configCopy)
	assert.Error(t, err)

	configCopy = config
	configCopy.BatchSize = -1
	_, err = NewServer(&configCopy)
	assert.Error(t, err)
}

func TestServerConfig_CompleteMysql(t *testing.T) {
	_ = os.Setenv("MYSQL_ROOT_PASSWORD", "pw")
	defer func() {
		_ = os.Unsetenv("MYSQL_ROOT_PASSWORD")
	}()

	config := &ServerConfig{
		Port:      DefaultPort,
		APIKey:    "secret",
		MysqlHost: "db:3306",
		BatchSize: 100,
	}
	assert.NoError(t, config.Complete())
	assert.Equal(t, DriverMySQL, config.DBDriver)
	assert.Equal(t, 100, config.BatchSize)
	assert.Equal(t, "root:pw@tcp(db:3306)/procmon?charset=utf8mb4&parseTime=True&loc=UTC", config.DSN)

	// 已指定DSN时不再拼接
	config = &ServerConfig{
		Port:   DefaultPort,
		APIKey: "secret",
		DSN:    "user:pass@tcp(other:3306)/x",
	}
	assert.NoError(t, config.Complete())
	assert.Equal(t, "user:pass@tcp(other:3306)/x", config.DSN)
}

func TestServerConfig_StringMasksAPIKey(t *testing.T) {
	config := ServerConfig{Port: DefaultPort, APIKey: "topsecret"}
	str := config.String()
	assert.False(t, strings.Contains(str, "topsecret"))
	assert.True(t, strings.Contains(str, "******"))
}
