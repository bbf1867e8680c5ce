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
	"fmt"
	"github.com/packagewjx/procmon/internal/agent"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"os"
)

const FlagConfig = "config"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "procmon",
	Short: "主机进程监控",
	Long: "procmon由两部分组成：agent在被监控的主机上采集系统信息与进程列表，并上报到collector；\n" +
		"collector（server子命令）将每次上报保存为一个Snapshot，并提供查询最新Snapshot的接口。\n",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, FlagConfig, "",
		fmt.Sprintf("agent配置文件（默认为%s）", agent.DefaultConfigPath))
	rootCmd.PersistentFlags().String(agent.FlagEndpoint, agent.DefaultEndpoint,
		"collector的API根路径")
	rootCmd.PersistentFlags().String(agent.FlagAPIKey, agent.DefaultAPIKey,
		"上报时携带的共享密钥")
}

// 返回配置文件路径，以及是否由用户显式指定
func configFilePath() (string, bool, error) {
	if cfgFile != "" {
		return cfgFile, true, nil
	}
	path, err := agent.DefaultConfigFile()
	if err != nil {
		return "", false, errors.Wrap(err, "无法确定用户主目录")
	}
	return path, false, nil
}

// 按照 参数 > 环境变量 > 配置文件 > 默认值 解析agent配置
func loadAgentConfig(cmd *cobra.Command) (agent.Config, error) {
	path, explicit, err := configFilePath()
	if err != nil {
		return agent.Config{}, err
	}
	contents, err := agent.ReadConfigFile(path)
	if err != nil {
		return agent.Config{}, err
	}
	if contents == nil && explicit {
		return agent.Config{}, fmt.Errorf("配置文件%s不存在", path)
	}

	return agent.ResolveConfig(cmd.Flags(), agent.EnvFromOS(), contents, agent.DefaultConfig())
}
