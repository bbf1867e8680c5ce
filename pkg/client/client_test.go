package client

import (
	"context"
	"encoding/json"
	"github.com/packagewjx/procmon/pkg/monitor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestApiClient_Ingest(t *testing.T) {
	var received *monitor.IngestRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ingest", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if r.Header.Get(monitor.HeaderAPIKey) != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Unauthorized"}`))
			return
		}

		body, _ := ioutil.ReadAll(r.Body)
		received = &monitor.IngestRequest{}
		assert.NoError(t, json.Unmarshal(body, received))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"ok","snapshot_id":7,"created_at":"2024-05-01T10:00:00Z"}`))
	}))
	defer server.Close()

	req := &monitor.IngestRequest{
		Hostname:  "h1",
		Processes: []monitor.ProcessSample{{Pid: 1, Name: "init", CPUPercent: 1.5}},
	}

	// 结尾的斜杠会被去除
	c := NewApiClient(server.URL+"/api/", "secret", time.Second)
	resp, err := c.Ingest(context.Background(), req)
	if !assert.NoError(t, err) {
		assert.FailNow(t, "上报失败")
	}
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, uint(7), resp.SnapshotID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), resp.CreatedAt.UTC())
	if assert.NotNil(t, received) {
		assert.Equal(t, "h1", received.Hostname)
		assert.Equal(t, req.Processes, received.Processes)
	}

	c = NewApiClient(server.URL+"/api", "wrong", time.Second)
	_, err = c.Ingest(context.Background(), req)
	assert.Equal(t, monitor.ErrUnauthorized, err)
}

func TestApiClient_Queries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/hosts":
			_, _ = w.Write([]byte(`{"hosts":[{"id":2,"hostname":"alpha"},{"id":1,"hostname":"zeta"}]}`))
		case "/api/latest":
			switch r.URL.Query().Get("hostname") {
			case "a b":
				_, _ = w.Write([]byte(`{"hostname":"a b","system_info":null,"snapshot":{"id":3,"created_at":"2024-05-01T10:00:00Z","processes":[{"pid":11,"ppid":1,"name":"b","memory_mb":50,"cpu_percent":50}]}}`))
			case "empty":
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"detail":"no snapshots"}`))
			default:
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"detail":"host not found"}`))
			}
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"internal server error"}`))
		}
	}))
	defer server.Close()

	c := NewApiClient(server.URL+"/api", "", 0)
	hosts, err := c.ListHosts(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []monitor.Host{{ID: 2, Hostname: "alpha"}, {ID: 1, Hostname: "zeta"}}, hosts)

	latest, err := c.LatestSnapshot(context.Background(), "a b")
	if assert.NoError(t, err) {
		assert.Equal(t, uint(3), latest.Snapshot.ID)
		if assert.Len(t, latest.Snapshot.Processes, 1) {
			assert.Equal(t, int32(11), latest.Snapshot.Processes[0].Pid)
		}
	}

	_, err = c.LatestSnapshot(context.Background(), "unknown")
	assert.Equal(t, monitor.ErrHostNotFound, err)

	_, err = c.LatestSnapshot(context.Background(), "empty")
	assert.Equal(t, monitor.ErrNoSnapshots, err)

	c = NewApiClient(server.URL+"/broken", "", 0)
	_, err = c.ListHosts(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestApiClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := NewApiClient(server.URL, "secret", 50*time.Millisecond)
	_, err := c.Ingest(context.Background(), &monitor.IngestRequest{Hostname: "h1"})
	assert.Error(t, err)
}

func TestStatusError(t *testing.T) {
	err := statusError(http.StatusBadRequest, []byte(`{"detail":"bad shape"}`))
	assert.True(t, errors.Is(err, monitor.ErrBadRequest))
	assert.Contains(t, err.Error(), "bad shape")

	err = statusError(http.StatusNotFound, []byte(`not json`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, monitor.ErrHostNotFound))
	assert.Contains(t, err.Error(), "not json")
}
