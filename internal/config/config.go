package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用程序配置
type Config struct {
	TelegramToken        string        // Telegram Bot API Token
	AuthorizedIDs        []int64       // 允许使用 Bot 的用户 ID 列表
	MongoURI             string        // MongoDB连接URI
	MongoDBName          string        // MongoDB数据库名称
	MessageRetentionDays int           // 队列消息保留天数（过期自动删除）
	BatchInterval        time.Duration // 批处理轮询间隔
	SinkTimeout          time.Duration // 发布目标 HTTP 超时
	AI                   AIConfig
}

// AIConfig 分类模型配置
type AIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// fileConfig CONFIG_FILE 指向的 YAML 配置文件结构，环境变量优先于文件
type fileConfig struct {
	TelegramToken        string `yaml:"telegram_token"`
	AuthorizedIDs        string `yaml:"authorized_ids"`
	MongoURI             string `yaml:"mongo_uri"`
	MongoDBName          string `yaml:"mongo_db_name"`
	MessageRetentionDays int    `yaml:"message_retention_days"`
	BatchIntervalSeconds int    `yaml:"batch_interval_seconds"`
	SinkTimeoutSeconds   int    `yaml:"sink_timeout_seconds"`
	AI                   struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"ai"`
}

// Load 加载配置：默认值 → CONFIG_FILE（可选 YAML 文件）→ 环境变量
func Load() (*Config, error) {
	cfg := &Config{
		MongoDBName:          "blog_bot",
		MessageRetentionDays: 7,
		BatchInterval:        30 * time.Second,
		SinkTimeout:          15 * time.Second,
		AI: AIConfig{
			Timeout: 30 * time.Second,
		},
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFile 将 YAML 文件中的非空值合并进配置
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.TelegramToken != "" {
		cfg.TelegramToken = fc.TelegramToken
	}
	if fc.AuthorizedIDs != "" {
		ids, err := parseAuthorizedIDs(fc.AuthorizedIDs)
		if err != nil {
			return fmt.Errorf("invalid authorized_ids in config file: %w", err)
		}
		cfg.AuthorizedIDs = ids
	}
	if fc.MongoURI != "" {
		cfg.MongoURI = fc.MongoURI
	}
	if fc.MongoDBName != "" {
		cfg.MongoDBName = fc.MongoDBName
	}
	if fc.MessageRetentionDays > 0 {
		cfg.MessageRetentionDays = fc.MessageRetentionDays
	}
	if fc.BatchIntervalSeconds > 0 {
		cfg.BatchInterval = time.Duration(fc.BatchIntervalSeconds) * time.Second
	}
	if fc.SinkTimeoutSeconds > 0 {
		cfg.SinkTimeout = time.Duration(fc.SinkTimeoutSeconds) * time.Second
	}
	if fc.AI.BaseURL != "" {
		cfg.AI.BaseURL = fc.AI.BaseURL
	}
	if fc.AI.APIKey != "" {
		cfg.AI.APIKey = fc.AI.APIKey
	}
	if fc.AI.Model != "" {
		cfg.AI.Model = fc.AI.Model
	}
	if fc.AI.TimeoutSeconds > 0 {
		cfg.AI.Timeout = time.Duration(fc.AI.TimeoutSeconds) * time.Second
	}

	return nil
}

// applyEnv 用环境变量覆盖配置
func applyEnv(cfg *Config) error {
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		cfg.TelegramToken = token
	}
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		cfg.MongoURI = uri
	}
	if name := os.Getenv("MONGO_DB_NAME"); name != "" {
		cfg.MongoDBName = name
	}

	// 解析AUTHORIZED_IDS
	if idsStr := os.Getenv("AUTHORIZED_IDS"); idsStr != "" {
		ids, err := parseAuthorizedIDs(idsStr)
		if err != nil {
			return fmt.Errorf("failed to parse AUTHORIZED_IDS: %w", err)
		}
		cfg.AuthorizedIDs = ids
	}

	// 解析MESSAGE_RETENTION_DAYS
	if retentionDaysStr := os.Getenv("MESSAGE_RETENTION_DAYS"); retentionDaysStr != "" {
		days, err := strconv.Atoi(retentionDaysStr)
		if err != nil {
			return fmt.Errorf("failed to parse MESSAGE_RETENTION_DAYS: %w", err)
		}
		if days < 1 {
			return fmt.Errorf("MESSAGE_RETENTION_DAYS must be >= 1, got %d", days)
		}
		cfg.MessageRetentionDays = days
	}

	// 解析BATCH_INTERVAL_SECONDS
	if intervalStr := os.Getenv("BATCH_INTERVAL_SECONDS"); intervalStr != "" {
		seconds, err := strconv.Atoi(intervalStr)
		if err != nil || seconds < 1 {
			return fmt.Errorf("invalid BATCH_INTERVAL_SECONDS: %s", intervalStr)
		}
		cfg.BatchInterval = time.Duration(seconds) * time.Second
	}

	// 解析SINK_TIMEOUT_SECONDS
	if timeoutStr := os.Getenv("SINK_TIMEOUT_SECONDS"); timeoutStr != "" {
		seconds, err := strconv.Atoi(timeoutStr)
		if err != nil || seconds < 1 {
			return fmt.Errorf("invalid SINK_TIMEOUT_SECONDS: %s", timeoutStr)
		}
		cfg.SinkTimeout = time.Duration(seconds) * time.Second
	}

	// AI 配置
	if baseURL := os.Getenv("AI_BASE_URL"); baseURL != "" {
		cfg.AI.BaseURL = baseURL
	}
	if apiKey := os.Getenv("AI_API_KEY"); apiKey != "" {
		cfg.AI.APIKey = apiKey
	}
	if model := os.Getenv("AI_MODEL"); model != "" {
		cfg.AI.Model = model
	}
	if timeoutStr := os.Getenv("AI_TIMEOUT_SECONDS"); timeoutStr != "" {
		seconds, err := strconv.Atoi(timeoutStr)
		if err != nil || seconds < 1 {
			return fmt.Errorf("invalid AI_TIMEOUT_SECONDS: %s", timeoutStr)
		}
		cfg.AI.Timeout = time.Duration(seconds) * time.Second
	}

	return nil
}

// parseAuthorizedIDs 解析逗号分隔的用户ID字符串
// 支持格式: "123456789" 或 "123456789,987654321"
func parseAuthorizedIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}
