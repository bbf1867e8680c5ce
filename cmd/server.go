/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"github.com/packagewjx/procmon/internal/agent"
	"github.com/packagewjx/procmon/internal/server"
	"github.com/spf13/cobra"
	"os"
)

const (
	FlagPort      = "port"
	FlagDBDriver  = "db-driver"
	FlagDSN       = "dsn"
	FlagMysqlHost = "mysql-host"
	FlagBatchSize = "batch-size"
)

const EnvBackendAPIKey = "BACKEND_API_KEY"

var (
	port      uint16
	dbDriver  string
	dsn       string
	mysqlHost string
	batchSize int
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "进程快照收集服务器",
	Long: "本服务器接收agent上报的系统信息与进程列表，每次上报在一个事务中保存为一个Snapshot。\n" +
		"上报与删除主机需要在X-API-Key请求头中携带共享密钥（通过api-key参数或环境变量BACKEND_API_KEY设置）。\n" +
		"用户可以通过本服务器提供的接口查询主机列表以及某主机最新的Snapshot。\n",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 服务器不使用agent的默认密钥，未显式指定时读取环境变量
		apiKey := os.Getenv(EnvBackendAPIKey)
		if cmd.Flags().Changed(agent.FlagAPIKey) {
			apiKey, _ = cmd.Flags().GetString(agent.FlagAPIKey)
		}

		server, err := server.NewServer(&server.ServerConfig{
			Port:      port,
			APIKey:    apiKey,
			DBDriver:  dbDriver,
			DSN:       dsn,
			MysqlHost: mysqlHost,
			BatchSize: batchSize,
		})
		if err != nil {
			return err
		}

		return server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().Uint16VarP(&port, FlagPort, "p", server.DefaultPort,
		"服务端口号")
	serverCmd.Flags().StringVar(&dbDriver, FlagDBDriver, server.DefaultDriver,
		"数据库驱动，mysql或sqlite")
	serverCmd.Flags().StringVar(&dsn, FlagDSN, "",
		"数据库连接串。使用sqlite时必须指定，如file:procmon.db")
	serverCmd.Flags().StringVar(&mysqlHost, FlagMysqlHost, "",
		"Mysql服务器主机端口，格式为：host:port。若为空，则读取环境变量MYSQL_SERVICE_HOST与MYSQL_SERVICE_PORT取得")
	serverCmd.Flags().IntVar(&batchSize, FlagBatchSize, server.DefaultBatchSize,
		"批量写入进程记录时每条语句的行数")
}
