package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 会话等待状态常量
// 用户执行需要后续输入的命令后进入对应状态，下一条匹配输入消费并清除该状态
const (
	PendingNone            = ""                 // 无等待输入
	PendingEditBody        = "edit_body"        // 等待新的草稿正文
	PendingNotionConfig    = "notion_config"    // 等待 Notion 配置
	PendingTelegraphConfig = "telegraph_config" // 等待 Telegraph 配置
)

// 窗口时长默认值与边界（分钟）
const (
	DefaultWindowMinutes = 10
	MinWindowMinutes     = 1
	MaxWindowMinutes     = 1440
)

// NotionConfig Notion 发布目标配置
type NotionConfig struct {
	Token      string `bson:"token"`       // Notion integration token
	DatabaseID string `bson:"database_id"` // 目标数据库 ID
}

// TelegraphConfig Telegraph 发布目标配置
type TelegraphConfig struct {
	AccessToken string `bson:"access_token"` // Telegraph 账户 access token
}

// UserPreferences 用户偏好模型
// 每个用户一条记录，首次交互时惰性创建默认值
type UserPreferences struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID int64              `bson:"owner_id"` // Telegram 用户 ID（唯一）

	AutoPublish   bool `bson:"auto_publish"`   // 是否跳过审核直接发布
	WindowMinutes int  `bson:"window_minutes"` // 批处理时间窗口（分钟）

	Notion    *NotionConfig    `bson:"notion,omitempty"`    // Notion 配置（可选）
	Telegraph *TelegraphConfig `bson:"telegraph,omitempty"` // Telegraph 配置（可选）

	// 会话等待状态（显式有限状态，替代进程级等待映射）
	PendingAction  string             `bson:"pending_action,omitempty"`
	PendingDraftID primitive.ObjectID `bson:"pending_draft_id,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// HasNotion 是否已配置 Notion 目标
func (p *UserPreferences) HasNotion() bool {
	return p.Notion != nil && p.Notion.Token != "" && p.Notion.DatabaseID != ""
}

// HasTelegraph 是否已配置 Telegraph 目标
func (p *UserPreferences) HasTelegraph() bool {
	return p.Telegraph != nil && p.Telegraph.AccessToken != ""
}

// Window 时间窗口时长（非法配置回退到默认值）
func (p *UserPreferences) Window() time.Duration {
	minutes := p.WindowMinutes
	if minutes < MinWindowMinutes || minutes > MaxWindowMinutes {
		minutes = DefaultWindowMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// IsAwaitingInput 是否处于等待后续输入的状态
func (p *UserPreferences) IsAwaitingInput() bool {
	return p.PendingAction != PendingNone
}
