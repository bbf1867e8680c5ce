package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/packagewjx/procmon/pkg/monitor"
	"github.com/pkg/errors"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTimeout = 20 * time.Second

// baseUrl为collector的API根路径，如http://127.0.0.1:8000/api
func NewApiClient(baseUrl, apiKey string, timeout time.Duration) monitor.API {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &apiClient{
		baseUrl: strings.TrimRight(baseUrl, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

var _ monitor.API = &apiClient{}

type apiClient struct {
	baseUrl string
	apiKey  string
	http    *http.Client
}

func (a *apiClient) Ingest(ctx context.Context, req *monitor.IngestRequest) (*monitor.IngestResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "序列化请求出错")
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseUrl+"/ingest", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "创建请求出错")
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(monitor.HeaderAPIKey, a.apiKey)

	dest := &monitor.IngestResponse{}
	if err := a.do(request, http.StatusCreated, dest); err != nil {
		return nil, err
	}
	return dest, nil
}

func (a *apiClient) ListHosts(ctx context.Context) ([]monitor.Host, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseUrl+"/hosts", nil)
	if err != nil {
		return nil, errors.Wrap(err, "创建请求出错")
	}

	dest := &monitor.HostList{}
	if err := a.do(request, http.StatusOK, dest); err != nil {
		return nil, err
	}
	return dest.Hosts, nil
}

func (a *apiClient) LatestSnapshot(ctx context.Context, hostname string) (*monitor.LatestSnapshot, error) {
	u := a.baseUrl + "/latest?hostname=" + url.QueryEscape(hostname)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "创建请求出错")
	}

	dest := &monitor.LatestSnapshot{}
	if err := a.do(request, http.StatusOK, dest); err != nil {
		return nil, err
	}
	return dest, nil
}

func (a *apiClient) do(request *http.Request, expected int, dest interface{}) error {
	response, err := a.http.Do(request)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("请求%s时出现异常", request.URL.Path))
	}
	defer response.Body.Close()

	body, err := ioutil.ReadAll(response.Body)
	if err != nil {
		return errors.Wrap(err, "读取时出现异常")
	}

	if response.StatusCode != expected {
		return statusError(response.StatusCode, body)
	}

	err = json.Unmarshal(body, dest)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("解析json异常，json为\n%s", string(body)))
	}
	return nil
}

// 将非成功的响应转换回collector的错误值
func statusError(code int, body []byte) error {
	detail := &monitor.ErrorResponse{}
	if json.Unmarshal(body, detail) != nil || detail.Detail == "" {
		detail.Detail = strings.TrimSpace(string(body))
	}

	switch code {
	case http.StatusUnauthorized:
		return monitor.ErrUnauthorized
	case http.StatusBadRequest:
		return errors.Wrap(monitor.ErrBadRequest, detail.Detail)
	case http.StatusNotFound:
		switch detail.Detail {
		case monitor.ErrHostNotFound.Error():
			return monitor.ErrHostNotFound
		case monitor.ErrNoSnapshots.Error():
			return monitor.ErrNoSnapshots
		}
	}
	return fmt.Errorf("服务器返回状态码%d：%s", code, detail.Detail)
}
