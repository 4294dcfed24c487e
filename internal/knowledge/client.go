package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	xerrors "Sailor-Bot/internal/errors"
)

// DefaultBaseURL 是 DigitalOcean GenAI API 的根地址。
const DefaultBaseURL = "https://api.digitalocean.com/v2/gen-ai"

// DefaultHTTPTimeout 用于未提供 http.Client 的客户端。
const DefaultHTTPTimeout = 30 * time.Second

// IndexingJob 对应索引接口返回的任务对象。
type IndexingJob struct {
	UUID                 string     `json:"uuid"`
	KnowledgeBaseUUID    string     `json:"knowledge_base_uuid"`
	DataSourceUUIDs      []string   `json:"data_source_uuids,omitempty"`
	Phase                string     `json:"phase,omitempty"`
	Status               string     `json:"status,omitempty"`
	TotalDataSources     int        `json:"total_datasources,omitempty"`
	CompletedDataSources int        `json:"completed_datasources,omitempty"`
	Tokens               int        `json:"tokens,omitempty"`
	CreatedAt            *time.Time `json:"created_at,omitempty"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
}

// Summary 把任务状态渲染成一行文本。
func (j IndexingJob) Summary() string {
	parts := make([]string, 0, 4)
	if j.Phase != "" {
		parts = append(parts, "phase "+j.Phase)
	}
	if j.Status != "" {
		parts = append(parts, "status "+j.Status)
	}
	if j.TotalDataSources > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d data sources done", j.CompletedDataSources, j.TotalDataSources))
	}
	if j.Tokens > 0 {
		parts = append(parts, fmt.Sprintf("%d tokens", j.Tokens))
	}
	if len(parts) == 0 {
		return "no progress reported yet"
	}
	return strings.Join(parts, ", ")
}

// APIError 表示 API 返回了非 2xx 响应。
type APIError struct {
	StatusCode int
	ID         string `json:"id"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.ID != "" {
		return fmt.Sprintf("genai api error (%d): %s - %s", e.StatusCode, e.ID, e.Message)
	}
	return fmt.Sprintf("genai api error (%d): %s", e.StatusCode, e.Message)
}

// Config 描述 Client 的配置。
type Config struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

// Client 访问知识库索引接口。
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建客户端。缺少 token 时在每次调用时报错，未配置索引也能启动。
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{token: strings.TrimSpace(cfg.Token), baseURL: base, httpClient: httpClient}
}

// Configured 判断是否配置了 API token。
func (c *Client) Configured() bool {
	return c != nil && c.token != ""
}

type startRequest struct {
	KnowledgeBaseUUID string   `json:"knowledge_base_uuid"`
	DataSourceUUIDs   []string `json:"data_source_uuids"`
}

type jobEnvelope struct {
	Job IndexingJob `json:"job"`
}

// StartIndexingJob 请求重新索引指定的数据源。
func (c *Client) StartIndexingJob(ctx context.Context, kbID string, dataSourceIDs []string) (IndexingJob, error) {
	var out jobEnvelope
	payload := startRequest{KnowledgeBaseUUID: kbID, DataSourceUUIDs: dataSourceIDs}
	if err := c.do(ctx, http.MethodPost, "/indexing_jobs", payload, &out); err != nil {
		return IndexingJob{}, err
	}
	return out.Job, nil
}

// GetIndexingJob 查询任务的当前状态。
func (c *Client) GetIndexingJob(ctx context.Context, jobID string) (IndexingJob, error) {
	if strings.TrimSpace(jobID) == "" {
		return IndexingJob{}, xerrors.New(xerrors.CodeInvalidArgument, "job id is required")
	}
	var out jobEnvelope
	if err := c.do(ctx, http.MethodGet, "/indexing_jobs/"+url.PathEscape(jobID), nil, &out); err != nil {
		return IndexingJob{}, err
	}
	return out.Job, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if !c.Configured() {
		return xerrors.New(xerrors.CodeConfiguration, "DigitalOcean API token is not set",
			xerrors.WithMetadata("reason", "set DO_API_TOKEN in the environment"))
	}

	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
