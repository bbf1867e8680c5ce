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
	"context"
	"fmt"
	"github.com/packagewjx/procmon/internal/agent"
	"github.com/spf13/cobra"
	"os"
	"os/signal"
	"syscall"
)

// agentCmd represents the agent command
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "采集本机系统信息与进程列表并上报",
	Long: "每轮采集一次本机系统信息与全部进程的CPU、内存占用，并上报到collector。\n" +
		"interval为0时只运行一轮；大于0时每轮结束后等待interval秒再开始下一轮，直到收到SIGINT或SIGTERM。\n" +
		"配置优先级：命令行参数 > 环境变量（ENDPOINT、API_KEY、HOSTNAME、INTERVAL） > 配置文件 > 默认值。\n",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadAgentConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return agent.NewAgent(config).Run(ctx)
	},
}

var agentInitConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "写入默认的agent配置文件",
	Long:  "配置文件不存在时写入默认配置，已存在时不做修改。\n",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _, err := configFilePath()
		if err != nil {
			return err
		}

		defaults := agent.DefaultConfig()
		defaults.Interval = agent.DefaultFileInterval
		created, err := agent.WriteDefaultConfig(path, defaults)
		if err != nil {
			return err
		}
		if created {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "已写入配置文件%s\n", path)
		} else {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "配置文件%s已存在\n", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.AddCommand(agentInitConfigCmd)

	hostname, _ := os.Hostname()
	agentCmd.Flags().String(agent.FlagHostname, hostname,
		"上报使用的主机名")
	agentCmd.Flags().IntP(agent.FlagInterval, "i", 0,
		"两轮上报之间的秒数，为0时只上报一次")
}
