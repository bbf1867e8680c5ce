package agent

import (
	"bytes"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// 命令行参数名称
const (
	FlagEndpoint = "endpoint"
	FlagAPIKey   = "api-key"
	FlagHostname = "hostname"
	FlagInterval = "interval"
)

// 环境变量名称
const (
	EnvEndpoint = "ENDPOINT"
	EnvAPIKey   = "API_KEY"
	EnvHostname = "HOSTNAME"
	EnvInterval = "INTERVAL"
)

// 配置文件中[agent]段的键
const (
	sectionAgent   = "agent"
	keyBackendURL  = "backend_url"
	keyAPIKey      = "api_key"
	keyHostname    = "hostname"
	keyIntervalSec = "interval_seconds"
)

const (
	DefaultEndpoint     = "http://127.0.0.1:8000/api"
	DefaultAPIKey       = "mysecretkey"
	DefaultWarmup       = 500 * time.Millisecond
	DefaultTimeout      = 20 * time.Second
	DefaultFileInterval = 30 * time.Second
	DefaultConfigPath   = "~/.procmon/agent.ini"
)

type Config struct {
	Endpoint string        `validate:"required,url"` // collector的API根路径
	APIKey   string        `validate:"required"`
	Hostname string        `validate:"required"`
	Interval time.Duration // 小于等于0时只运行一次
	Timeout  time.Duration `validate:"gt=0"` // 单次上报的超时时间
	Warmup   time.Duration `validate:"gt=0"` // 两次读取进程CPU之间的间隔
}

func DefaultConfig() Config {
	hostname, _ := os.Hostname()
	return Config{
		Endpoint: DefaultEndpoint,
		APIKey:   DefaultAPIKey,
		Hostname: hostname,
		Timeout:  DefaultTimeout,
		Warmup:   DefaultWarmup,
	}
}

var validate = validator.New()

// ResolveConfig 按 命令行参数 > 环境变量 > 配置文件 > defaults 的优先级合并配置。
// flags中只有被显式设置的参数生效，env与fileContents由调用者读取，本函数不访问进程环境
func ResolveConfig(flags *pflag.FlagSet, env map[string]string, fileContents []byte, defaults Config) (Config, error) {
	v := viper.New()
	v.SetDefault(configKey(keyBackendURL), defaults.Endpoint)
	v.SetDefault(configKey(keyAPIKey), defaults.APIKey)
	v.SetDefault(configKey(keyHostname), defaults.Hostname)
	v.SetDefault(configKey(keyIntervalSec), int(defaults.Interval/time.Second))

	if len(bytes.TrimSpace(fileContents)) > 0 {
		v.SetConfigType("ini")
		if err := v.ReadConfig(bytes.NewReader(fileContents)); err != nil {
			return Config{}, errors.Wrap(err, "解析配置文件出错")
		}
	}

	// 环境变量覆盖配置文件中的值
	envLayer := make(map[string]interface{})
	for envName, key := range map[string]string{
		EnvEndpoint: keyBackendURL,
		EnvAPIKey:   keyAPIKey,
		EnvHostname: keyHostname,
		EnvInterval: keyIntervalSec,
	} {
		if value, ok := env[envName]; ok && value != "" {
			envLayer[key] = value
		}
	}
	if len(envLayer) > 0 {
		if err := v.MergeConfigMap(map[string]interface{}{sectionAgent: envLayer}); err != nil {
			return Config{}, errors.Wrap(err, "合并环境变量出错")
		}
	}

	if flags != nil {
		for flagName, key := range map[string]string{
			FlagEndpoint: keyBackendURL,
			FlagAPIKey:   keyAPIKey,
			FlagHostname: keyHostname,
			FlagInterval: keyIntervalSec,
		} {
			if flag := flags.Lookup(flagName); flag != nil {
				if err := v.BindPFlag(configKey(key), flag); err != nil {
					return Config{}, errors.Wrapf(err, "绑定参数%s出错", flagName)
				}
			}
		}
	}

	intervalSec, err := cast.ToIntE(strings.TrimSpace(v.GetString(configKey(keyIntervalSec))))
	if err != nil {
		return Config{}, errors.Wrap(err, "interval必须为整数秒")
	}

	config := Config{
		Endpoint: NormalizeEndpoint(v.GetString(configKey(keyBackendURL))),
		APIKey:   strings.TrimSpace(v.GetString(configKey(keyAPIKey))),
		Hostname: strings.TrimSpace(v.GetString(configKey(keyHostname))),
		Interval: time.Duration(intervalSec) * time.Second,
		Timeout:  defaults.Timeout,
		Warmup:   defaults.Warmup,
	}
	if err := validate.Struct(config); err != nil {
		return Config{}, errors.Wrap(err, "agent配置不合法")
	}
	return config, nil
}

func configKey(key string) string {
	return sectionAgent + "." + key
}

// NormalizeEndpoint 去除结尾的/以及/ingest，兼容直接填写上报地址的旧配置
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	return strings.TrimSuffix(endpoint, "/ingest")
}

func EnvFromOS() map[string]string {
	env := make(map[string]string)
	for _, name := range []string{EnvEndpoint, EnvAPIKey, EnvHostname, EnvInterval} {
		if value, ok := os.LookupEnv(name); ok {
			env[name] = value
		}
	}
	return env
}

func DefaultConfigFile() (string, error) {
	return homedir.Expand(DefaultConfigPath)
}

// ReadConfigFile 读取配置文件内容。文件不存在时返回nil
func ReadConfigFile(path string) ([]byte, error) {
	contents, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "读取配置文件%s出错", path)
	}
	return contents, nil
}

// WriteDefaultConfig 在path不存在时写入配置文件，返回是否新建了文件。hostname不写入文件，每次运行时读取
func WriteDefaultConfig(path string, config Config) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, errors.Wrap(err, "创建配置目录出错")
	}

	v := viper.New()
	v.Set(configKey(keyBackendURL), config.Endpoint)
	v.Set(configKey(keyAPIKey), config.APIKey)
	v.Set(configKey(keyIntervalSec), int(config.Interval/time.Second))

	err := v.SafeWriteConfigAs(path)
	if _, ok := err.(viper.ConfigFileAlreadyExistsError); ok {
		return false, nil
	} else if err != nil {
		return false, errors.Wrapf(err, "写入配置文件%s出错", path)
	}
	return true, nil
}
