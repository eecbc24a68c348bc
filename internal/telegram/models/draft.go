package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 草稿状态常量
const (
	DraftStatusPending    = "pending"    // 等待人工审核
	DraftStatusPublishing = "publishing" // 发布中
	DraftStatusPublished  = "published"  // 已发布到全部已配置的目标
	DraftStatusFailed     = "failed"     // 发布失败，等待人工重试
)

// Draft 博客文章草稿模型
// 由批处理器在判定"有信息量"时创建，发布器负责状态流转与外部 ID 回填
type Draft struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID int64              `bson:"owner_id"` // 拥有者 Telegram 用户 ID

	// 内容
	Title     string   `bson:"title"`
	Body      string   `bson:"body"`
	MediaRefs []string `bson:"media_refs,omitempty"` // 媒体文件 URL

	// 来源追踪
	SourceMessageIDs []primitive.ObjectID `bson:"source_message_ids,omitempty"` // 组成草稿的队列消息 ID

	// 各发布目标的外部 ID（发布成功后回填，非空即视为该目标已发布）
	NotionPageID string `bson:"notion_page_id,omitempty"` // Notion 页面 ID
	TelegraphURL string `bson:"telegraph_url,omitempty"`  // Telegraph 页面 URL

	Status string `bson:"status"` // 状态：pending/publishing/published/failed

	CreatedAt   time.Time  `bson:"created_at"`
	PublishedAt *time.Time `bson:"published_at,omitempty"`
}

// IsTerminal 是否处于终态
func (d *Draft) IsTerminal() bool {
	return d.Status == DraftStatusPublished || d.Status == DraftStatusFailed
}
