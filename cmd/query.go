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
	"encoding/json"
	"fmt"
	"github.com/packagewjx/procmon/pkg/client"
	"github.com/packagewjx/procmon/pkg/monitor"
	"github.com/spf13/cobra"
	"io"
	"strconv"
	"text/tabwriter"
	"time"
)

const (
	FlagTop    = "top"
	DefaultTop = 20
)

var top int

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "列出所有上报过的主机",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newQueryClient(cmd)
		if err != nil {
			return err
		}

		hosts, err := api.ListHosts(cmd.Context())
		if err != nil {
			return err
		}
		return printHosts(cmd.OutOrStdout(), hosts)
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest hostname",
	Short: "查看主机最新的Snapshot",
	Long:  "输出主机最新一次上报的系统信息，以及按CPU占用从高到低排列的进程列表。top为0时输出全部进程。\n",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newQueryClient(cmd)
		if err != nil {
			return err
		}

		latest, err := api.LatestSnapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printLatest(cmd.OutOrStdout(), latest, top)
	},
}

func init() {
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(latestCmd)

	latestCmd.Flags().IntVarP(&top, FlagTop, "n", DefaultTop, "最多输出的进程数量")
}

func newQueryClient(cmd *cobra.Command) (monitor.API, error) {
	config, err := loadAgentConfig(cmd)
	if err != nil {
		return nil, err
	}
	return client.NewApiClient(config.Endpoint, config.APIKey, config.Timeout), nil
}

func printHosts(out io.Writer, hosts []monitor.Host) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tHOSTNAME")
	for _, host := range hosts {
		_, _ = fmt.Fprintf(w, "%d\t%s\n", host.ID, host.Hostname)
	}
	return w.Flush()
}

func printLatest(out io.Writer, latest *monitor.LatestSnapshot, top int) error {
	_, _ = fmt.Fprintf(out, "主机：%s\nSnapshot：%d（%s）\n", latest.Hostname, latest.Snapshot.ID,
		latest.Snapshot.CreatedAt.Local().Format(time.RFC3339))

	info := &monitor.SystemInfo{}
	if len(latest.SystemInfo) > 0 && json.Unmarshal(latest.SystemInfo, info) == nil && info.Threads > 0 {
		_, _ = fmt.Fprintf(out, "系统：%s，%s，%d核%d线程\n", info.OS, info.Processor, info.Cores, info.Threads)
		_, _ = fmt.Fprintf(out, "内存：已用%dGB / 共%dGB，存储：已用%dGB / 共%dGB\n",
			info.UsedRAMGB, info.RAMGB, info.StorageUsedGB, info.StorageTotalGB)
	}
	_, _ = fmt.Fprintln(out)

	processes := latest.Snapshot.Processes
	if top > 0 && len(processes) > top {
		processes = processes[:top]
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PID\tPPID\tNAME\tCPU%\tMEM(MB)")
	for _, p := range processes {
		ppid := "-"
		if p.Ppid != nil {
			ppid = strconv.Itoa(int(*p.Ppid))
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.2f\n", p.Pid, ppid, p.Name, p.CPUPercent, p.MemoryMB)
	}
	return w.Flush()
}
