package service

import (
	"context"
	"time"

	"blog_bot/internal/ai/grok"
	"blog_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PreferenceService 用户偏好业务逻辑接口
type PreferenceService interface {
	// EnsurePreferences 获取用户偏好，首次交互时创建默认值
	EnsurePreferences(ctx context.Context, ownerID int64) (*models.UserPreferences, error)

	// SetAutoPublish 设置自动发布开关
	SetAutoPublish(ctx context.Context, ownerID int64, enabled bool) error

	// SetWindowMinutes 设置批处理时间窗口（包含范围校验）
	SetWindowMinutes(ctx context.Context, ownerID int64, minutes int) error

	// ConfigureNotion 设置 Notion 发布配置
	ConfigureNotion(ctx context.Context, ownerID int64, token, databaseID string) error

	// ConfigureTelegraph 设置 Telegraph 发布配置
	ConfigureTelegraph(ctx context.Context, ownerID int64, accessToken string) error

	// BeginPendingAction 进入会话等待状态
	BeginPendingAction(ctx context.Context, ownerID int64, action string, draftID primitive.ObjectID) error

	// ClearPendingAction 清除会话等待状态
	ClearPendingAction(ctx context.Context, ownerID int64) error
}

// SourceService 监控源业务逻辑接口
type SourceService interface {
	// Subscribe 订阅监控源
	Subscribe(ctx context.Context, info *SubscribeInfo) error

	// Unsubscribe 退订监控源（停用，不删除）
	Unsubscribe(ctx context.Context, ownerID, chatID int64, threadID int) error

	// ListSources 列出用户的活跃监控源
	ListSources(ctx context.Context, ownerID int64) ([]*models.Source, error)
}

// DraftService 草稿业务逻辑接口
type DraftService interface {
	// ListDrafts 列出用户的草稿
	ListDrafts(ctx context.Context, ownerID int64, limit int64) ([]*models.Draft, error)

	// GetDraft 获取用户自己的草稿
	GetDraft(ctx context.Context, ownerID int64, draftID string) (*models.Draft, error)

	// Approve 批准草稿并触发发布
	Approve(ctx context.Context, ownerID int64, draftID string) error

	// Reject 拒绝草稿（删除）
	Reject(ctx context.Context, ownerID int64, draftID string) error

	// UpdateBody 仅更新草稿正文，状态不变
	UpdateBody(ctx context.Context, ownerID int64, draftID, body string) error

	// Stats 按状态统计用户的草稿数量
	Stats(ctx context.Context, ownerID int64) (map[string]int64, error)
}

// BatchProcessor 批处理业务逻辑接口
type BatchProcessor interface {
	// ProcessTick 执行一轮批处理：逐个用户拉取未处理消息、分类并生成草稿
	ProcessTick(ctx context.Context)

	// ProcessOwner 处理单个用户的未处理消息
	ProcessOwner(ctx context.Context, ownerID int64) error
}

// IngestService 消息入队业务逻辑接口
type IngestService interface {
	// HandleInbound 将入站消息写入所有命中监控源的队列
	HandleInbound(ctx context.Context, msg *InboundMessage) error
}

// Classifier 批次分类器接口
type Classifier interface {
	ClassifyBatch(ctx context.Context, batch []grok.Message) (*grok.Decision, error)
}

// MediaResolver 将 Telegram 文件 ID 解析为可持久访问的 URL
type MediaResolver interface {
	Resolve(ctx context.Context, fileID string) (string, error)
}

// SubscribeInfo 订阅请求 DTO
type SubscribeInfo struct {
	OwnerID  int64
	ChatID   int64
	ThreadID int
	Title    string
	Kind     string
}

// InboundMessage 入站消息 DTO（已由传输层归一化为统一形状）
type InboundMessage struct {
	MessageID    int64
	ChatID       int64
	ThreadID     int
	Kind         string
	Text         string
	Caption      string
	Sender       string
	SentAt       time.Time
	MediaFileIDs []string
}
