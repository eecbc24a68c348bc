package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "TELEGRAM_TOKEN", "MONGO_URI", "MONGO_DB_NAME",
		"AUTHORIZED_IDS", "MESSAGE_RETENTION_DAYS", "BATCH_INTERVAL_SECONDS",
		"SINK_TIMEOUT_SECONDS", "AI_BASE_URL", "AI_API_KEY", "AI_MODEL", "AI_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MongoDBName != "blog_bot" {
		t.Fatalf("unexpected db name: %q", cfg.MongoDBName)
	}
	if cfg.MessageRetentionDays != 7 {
		t.Fatalf("unexpected retention days: %d", cfg.MessageRetentionDays)
	}
	if cfg.BatchInterval != 30*time.Second {
		t.Fatalf("unexpected batch interval: %v", cfg.BatchInterval)
	}
	if cfg.SinkTimeout != 15*time.Second {
		t.Fatalf("unexpected sink timeout: %v", cfg.SinkTimeout)
	}
	if cfg.AI.Timeout != 30*time.Second {
		t.Fatalf("unexpected ai timeout: %v", cfg.AI.Timeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "token-123")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("AUTHORIZED_IDS", "100, 200,300")
	t.Setenv("MESSAGE_RETENTION_DAYS", "14")
	t.Setenv("BATCH_INTERVAL_SECONDS", "60")
	t.Setenv("AI_API_KEY", "key")
	t.Setenv("AI_MODEL", "grok-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.TelegramToken != "token-123" {
		t.Fatalf("unexpected token: %q", cfg.TelegramToken)
	}
	if len(cfg.AuthorizedIDs) != 3 || cfg.AuthorizedIDs[0] != 100 || cfg.AuthorizedIDs[2] != 300 {
		t.Fatalf("unexpected authorized ids: %v", cfg.AuthorizedIDs)
	}
	if cfg.MessageRetentionDays != 14 {
		t.Fatalf("unexpected retention days: %d", cfg.MessageRetentionDays)
	}
	if cfg.BatchInterval != time.Minute {
		t.Fatalf("unexpected batch interval: %v", cfg.BatchInterval)
	}
	if cfg.AI.APIKey != "key" || cfg.AI.Model != "grok-test" {
		t.Fatalf("unexpected ai config: %+v", cfg.AI)
	}
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `telegram_token: file-token
authorized_ids: "1,2"
mongo_db_name: file_db
batch_interval_seconds: 45
ai:
  api_key: file-key
  model: file-model
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	// 环境变量优先于文件
	t.Setenv("TELEGRAM_TOKEN", "env-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.TelegramToken != "env-token" {
		t.Fatalf("env should override file, got %q", cfg.TelegramToken)
	}
	if cfg.MongoDBName != "file_db" {
		t.Fatalf("unexpected db name: %q", cfg.MongoDBName)
	}
	if len(cfg.AuthorizedIDs) != 2 {
		t.Fatalf("unexpected authorized ids: %v", cfg.AuthorizedIDs)
	}
	if cfg.BatchInterval != 45*time.Second {
		t.Fatalf("unexpected batch interval: %v", cfg.BatchInterval)
	}
	if cfg.AI.APIKey != "file-key" || cfg.AI.Model != "file-model" {
		t.Fatalf("unexpected ai config: %+v", cfg.AI)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("AUTHORIZED_IDS", "100,abc")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid AUTHORIZED_IDS")
	}

	clearConfigEnv(t)
	t.Setenv("MESSAGE_RETENTION_DAYS", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero retention days")
	}

	clearConfigEnv(t)
	t.Setenv("BATCH_INTERVAL_SECONDS", "-5")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for negative batch interval")
	}
}

func TestParseAuthorizedIDs(t *testing.T) {
	ids, err := parseAuthorizedIDs(" 1 ,, 2 ")
	if err != nil {
		t.Fatalf("parseAuthorizedIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
