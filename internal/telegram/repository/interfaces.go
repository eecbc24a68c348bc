package repository

import (
	"context"
	"time"

	"blog_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// QueuedMessageRepository 消息队列数据访问接口
type QueuedMessageRepository interface {
	// InsertIfAbsent 插入队列消息，(source_id, message_id) 冲突时静默忽略
	InsertIfAbsent(ctx context.Context, message *models.QueuedMessage) error

	// ListUnprocessedBySources 列出指定监控源的未处理消息（按发送时间升序）
	ListUnprocessedBySources(ctx context.Context, sourceIDs []primitive.ObjectID) ([]*models.QueuedMessage, error)

	// MarkProcessed 批量标记消息为已处理
	MarkProcessed(ctx context.Context, ids []primitive.ObjectID) error

	// CountUnprocessed 统计未处理消息数量
	CountUnprocessed(ctx context.Context) (int64, error)

	// EnsureIndexes 确保索引存在（retentionSeconds 为已处理消息的 TTL）
	EnsureIndexes(ctx context.Context, retentionSeconds int32) error
}

// SourceRepository 监控源数据访问接口
type SourceRepository interface {
	// CreateOrActivate 创建监控源，已存在时重新激活并刷新标题
	CreateOrActivate(ctx context.Context, source *models.Source) error

	// Deactivate 停用监控源（不删除）
	Deactivate(ctx context.Context, ownerID, chatID int64, threadID int) error

	// ListActiveByOwner 列出用户的所有活跃监控源
	ListActiveByOwner(ctx context.Context, ownerID int64) ([]*models.Source, error)

	// ListActiveByChat 列出命中指定聊天的活跃监控源
	ListActiveByChat(ctx context.Context, chatID int64) ([]*models.Source, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// DraftRepository 草稿数据访问接口
type DraftRepository interface {
	// Insert 插入草稿
	Insert(ctx context.Context, draft *models.Draft) error

	// GetByID 根据 ID 获取草稿
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Draft, error)

	// ListByOwner 列出用户的草稿（按创建时间倒序）
	ListByOwner(ctx context.Context, ownerID int64, limit int64) ([]*models.Draft, error)

	// UpdateStatus 更新草稿状态
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error

	// SetNotionPageID 回填 Notion 页面 ID
	SetNotionPageID(ctx context.Context, id primitive.ObjectID, pageID string) error

	// SetTelegraphURL 回填 Telegraph 页面 URL
	SetTelegraphURL(ctx context.Context, id primitive.ObjectID, url string) error

	// MarkPublished 标记草稿已发布
	MarkPublished(ctx context.Context, id primitive.ObjectID, publishedAt time.Time) error

	// UpdateBody 仅更新草稿正文
	UpdateBody(ctx context.Context, id primitive.ObjectID, body string) error

	// Delete 删除草稿（人工拒绝）
	Delete(ctx context.Context, id primitive.ObjectID) error

	// CountByStatus 按状态统计草稿数量
	CountByStatus(ctx context.Context, ownerID int64) (map[string]int64, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// PreferencesRepository 用户偏好数据访问接口
type PreferencesRepository interface {
	// EnsureDefaults 确保用户偏好存在，不存在时写入默认值并返回
	EnsureDefaults(ctx context.Context, ownerID int64) (*models.UserPreferences, error)

	// GetByOwner 获取用户偏好
	GetByOwner(ctx context.Context, ownerID int64) (*models.UserPreferences, error)

	// ListOwnerIDs 列出所有已有偏好记录的用户 ID
	ListOwnerIDs(ctx context.Context) ([]int64, error)

	// SetAutoPublish 设置自动发布开关
	SetAutoPublish(ctx context.Context, ownerID int64, enabled bool) error

	// SetWindowMinutes 设置批处理时间窗口
	SetWindowMinutes(ctx context.Context, ownerID int64, minutes int) error

	// SetNotionConfig 设置 Notion 发布配置
	SetNotionConfig(ctx context.Context, ownerID int64, cfg *models.NotionConfig) error

	// SetTelegraphConfig 设置 Telegraph 发布配置
	SetTelegraphConfig(ctx context.Context, ownerID int64, cfg *models.TelegraphConfig) error

	// SetPendingAction 设置会话等待状态
	SetPendingAction(ctx context.Context, ownerID int64, action string, draftID primitive.ObjectID) error

	// ClearPendingAction 清除会话等待状态
	ClearPendingAction(ctx context.Context, ownerID int64) error

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}
