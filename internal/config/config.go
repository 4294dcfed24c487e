package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"Sailor-Bot/pkg/logger"
)

// Config 描述了 Sailor 在启动阶段需要加载的全部配置。
type Config struct {
	Slack     SlackConfig     `json:"slack" yaml:"slack"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Agent     AgentConfig     `json:"agent" yaml:"agent"`
	Providers ProvidersConfig `json:"providers" yaml:"providers"`
	State     StateConfig     `json:"state" yaml:"state"`
	Knowledge KnowledgeConfig `json:"knowledge" yaml:"knowledge"`
	Events    EventsConfig    `json:"events" yaml:"events"`
	Alerting  AlertingConfig  `json:"alerting" yaml:"alerting"`
	Log       logger.Config   `json:"log" yaml:"log"`
}

// SlackConfig 保存 socket mode 所需的两个 token。
type SlackConfig struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`
	AppToken string `json:"app_token" yaml:"app_token"`
	Debug    bool   `json:"debug" yaml:"debug"`
}

// ServerConfig 控制健康检查服务的监听地址。
type ServerConfig struct {
	Address string `json:"address" yaml:"address"`
}

// AgentConfig 控制回复生成流程的默认值。
type AgentConfig struct {
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
	DefaultModel    string `json:"default_model" yaml:"default_model"`
	SystemContent   string `json:"system_content" yaml:"system_content"`
	HistoryLimit    int    `json:"history_limit" yaml:"history_limit"`
}

// ProvidersConfig 汇总所有大模型后端的凭据。凭据为空表示该后端未启用。
type ProvidersConfig struct {
	Anthropic ProviderCredentials `json:"anthropic" yaml:"anthropic"`
	OpenAI    ProviderCredentials `json:"openai" yaml:"openai"`
	GenAI     ProviderCredentials `json:"genai" yaml:"genai"`
	VertexAI  VertexAIConfig      `json:"vertexai" yaml:"vertexai"`
	// TimeoutSeconds 为 0 时沿用 HTTP 客户端默认值。
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// ProviderCredentials 是基于 API Key 的后端的通用配置。
type ProviderCredentials struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// VertexAIConfig 描述 Vertex AI 的项目与鉴权信息。
type VertexAIConfig struct {
	ProjectID   string `json:"project_id" yaml:"project_id"`
	Location    string `json:"location" yaml:"location"`
	AccessToken string `json:"access_token" yaml:"access_token"`
	BaseURL     string `json:"base_url" yaml:"base_url"`
}

// StateConfig 选择用户状态存储的实现。
type StateConfig struct {
	Driver    string      `json:"driver" yaml:"driver"`
	KeyPrefix string      `json:"key_prefix" yaml:"key_prefix"`
	Redis     RedisConfig `json:"redis" yaml:"redis"`
	FileDir   string      `json:"file_dir" yaml:"file_dir"`
	DSN       string      `json:"dsn" yaml:"dsn"`
}

// RedisConfig 同时支持 URL 与分字段两种写法，URL 优先。
type RedisConfig struct {
	URL      string `json:"url" yaml:"url"`
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// Configured 判断是否提供了任何 Redis 连接信息。
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// KnowledgeConfig 描述知识库索引任务的远端 API 及任务 ID 的保存方式。
type KnowledgeConfig struct {
	APIToken        string `json:"api_token" yaml:"api_token"`
	BaseURL         string `json:"base_url" yaml:"base_url"`
	KnowledgeBaseID string `json:"knowledge_base_id" yaml:"knowledge_base_id"`
	DataSourceID    string `json:"data_source_id" yaml:"data_source_id"`
	JobStore        string `json:"job_store" yaml:"job_store"`
	JobDir          string `json:"job_dir" yaml:"job_dir"`
}

// EventsConfig 控制领域事件的投递。
type EventsConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// AlertingConfig 控制严重错误的通知渠道；未配置 webhook 时只写日志。
type AlertingConfig struct {
	SlackWebhookURL string `json:"slack_webhook_url" yaml:"slack_webhook_url"`
}

// RabbitMQConfig 描述 RabbitMQ 的连接参数。
type RabbitMQConfig struct {
	URL   string `json:"url" yaml:"url"`
	Queue string `json:"queue" yaml:"queue"`
}

// ProviderTimeout 返回后端 HTTP 调用的超时时间。
func (p ProvidersConfig) ProviderTimeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Load 依次读取配置文件（可选）、环境变量覆盖并补全默认值。
// path 为空时只使用环境变量。
func Load(path string) (*Config, error) {
	var cfg Config
	baseDir := "."
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := decode(path, content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
		baseDir = filepath.Dir(path)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults(baseDir)
	return &cfg, nil
}

func decode(path string, content []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(content, cfg)
	default:
		return json.Unmarshal(content, cfg)
	}
}

type lookupFunc func(string) (string, bool)

// applyEnv 使用与原有部署一致的环境变量名覆盖配置文件中的值。
func (c *Config) applyEnv(lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("SLACK_BOT_TOKEN", &c.Slack.BotToken)
	str("SLACK_APP_TOKEN", &c.Slack.AppToken)

	if port, ok := lookup("HEALTH_PORT"); ok && strings.TrimSpace(port) != "" {
		c.Server.Address = ":" + strings.TrimSpace(port)
	}

	str("SAILOR_DEFAULT_PROVIDER", &c.Agent.DefaultProvider)
	str("SAILOR_DEFAULT_MODEL", &c.Agent.DefaultModel)

	str("ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	str("ANTHROPIC_BASE_URL", &c.Providers.Anthropic.BaseURL)
	str("OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &c.Providers.OpenAI.BaseURL)
	str("GENAI_API_KEY", &c.Providers.GenAI.APIKey)
	str("GENAI_API_URL", &c.Providers.GenAI.BaseURL)
	str("VERTEX_AI_PROJECT_ID", &c.Providers.VertexAI.ProjectID)
	str("VERTEX_AI_LOCATION", &c.Providers.VertexAI.Location)
	str("VERTEX_AI_ACCESS_TOKEN", &c.Providers.VertexAI.AccessToken)
	str("VERTEX_AI_BASE_URL", &c.Providers.VertexAI.BaseURL)
	if raw, ok := lookup("PROVIDER_TIMEOUT_SECONDS"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			c.Providers.TimeoutSeconds = n
		}
	}

	str("STATE_STORE_DRIVER", &c.State.Driver)
	str("REDIS_URL", &c.State.Redis.URL)
	str("STATE_FILE_DIR", &c.State.FileDir)
	str("STATE_STORE_DSN", &c.State.DSN)

	str("DO_API_TOKEN", &c.Knowledge.APIToken)
	str("DO_KB_ID", &c.Knowledge.KnowledgeBaseID)
	str("DO_DATA_SOURCE_ID", &c.Knowledge.DataSourceID)

	str("RABBITMQ_URL", &c.Events.RabbitMQ.URL)
	str("ALERT_SLACK_WEBHOOK_URL", &c.Alerting.SlackWebhookURL)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Agent.DefaultProvider == "" {
		c.Agent.DefaultProvider = "genai"
	}
	if c.Agent.DefaultModel == "" {
		c.Agent.DefaultModel = "genai-agent"
	}
	if c.Agent.HistoryLimit <= 0 {
		c.Agent.HistoryLimit = 100
	}

	if c.Providers.VertexAI.Location == "" {
		c.Providers.VertexAI.Location = "us-central1"
	}

	if c.State.Driver == "" {
		c.State.Driver = "redis"
	}
	c.State.Driver = strings.ToLower(c.State.Driver)
	if c.State.KeyPrefix == "" {
		c.State.KeyPrefix = "chatbot:"
	}
	c.State.FileDir = resolveDir(baseDir, c.State.FileDir, "data/state")

	if c.Knowledge.JobStore == "" {
		c.Knowledge.JobStore = "file"
	}
	c.Knowledge.JobStore = strings.ToLower(c.Knowledge.JobStore)
	c.Knowledge.JobDir = resolveDir(baseDir, c.Knowledge.JobDir, "data/jobs")

	if c.Events.Driver == "" {
		if c.Events.RabbitMQ.URL != "" {
			c.Events.Driver = "rabbitmq"
		} else {
			c.Events.Driver = "none"
		}
	}
	if c.Events.RabbitMQ.Queue == "" {
		c.Events.RabbitMQ.Queue = "sailor.events"
	}
}

func resolveDir(baseDir, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}
