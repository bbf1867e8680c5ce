package cmd

import (
	"bytes"
	"github.com/packagewjx/procmon/pkg/monitor"
	"github.com/stretchr/testify/assert"
	"strings"
	"testing"
	"time"
)

func TestPrintHosts(t *testing.T) {
	buf := &bytes.Buffer{}
	err := printHosts(buf, []monitor.Host{{ID: 2, Hostname: "alpha"}, {ID: 1, Hostname: "zeta"}})
	assert.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if assert.Len(t, lines, 3) {
		assert.Equal(t, []string{"ID", "HOSTNAME"}, strings.Fields(lines[0]))
		assert.Equal(t, []string{"2", "alpha"}, strings.Fields(lines[1]))
		assert.Equal(t, []string{"1", "zeta"}, strings.Fields(lines[2]))
	}
}

func TestPrintLatest(t *testing.T) {
	ppid := int32(1)
	latest := &monitor.LatestSnapshot{
		Hostname:   "h1",
		SystemInfo: []byte(`{"os":"Linux","processor":"x86_64","cores":2,"threads":4,"ram_gb":16,"used_ram_gb":6}`),
		Snapshot: monitor.SnapshotView{
			ID:        3,
			CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			Processes: []monitor.ProcessSample{
				{Pid: 11, Ppid: &ppid, Name: "b", CPUPercent: 50, MemoryMB: 50},
				{Pid: 10, Name: "a", CPUPercent: 5, MemoryMB: 100.5},
			},
		},
	}

	buf := &bytes.Buffer{}
	assert.NoError(t, printLatest(buf, latest, 1))
	out := buf.String()
	assert.Contains(t, out, "h1")
	assert.Contains(t, out, "2核4线程")
	assert.Contains(t, out, "50.00")
	// 只输出CPU占用最高的一个进程
	assert.NotContains(t, out, "100.50")

	buf.Reset()
	latest.SystemInfo = nil
	assert.NoError(t, printLatest(buf, latest, 0))
	out = buf.String()
	assert.NotContains(t, out, "线程")
	assert.Contains(t, out, "100.50")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{"10", "-", "a", "5.00", "100.50"}, strings.Fields(lines[len(lines)-1]))
}
