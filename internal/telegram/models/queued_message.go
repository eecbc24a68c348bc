package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 消息类型常量
const (
	MessageKindText      = "text"
	MessageKindPhoto     = "photo"
	MessageKindVideo     = "video"
	MessageKindDocument  = "document"
	MessageKindAnimation = "animation"
	MessageKindAudio     = "audio"
)

// QueuedMessage 待处理消息队列模型
// 唯一键为 (source_id, message_id)，重复投递同一条消息不会产生重复记录
type QueuedMessage struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	SourceID  primitive.ObjectID `bson:"source_id"`  // 所属监控源 ID
	MessageID int64              `bson:"message_id"` // Telegram 消息 ID
	ChatID    int64              `bson:"chat_id"`    // 来源聊天 ID

	// 消息内容
	Kind      string   `bson:"kind"`                 // 消息类型
	Text      string   `bson:"text,omitempty"`       // 文本内容
	Caption   string   `bson:"caption,omitempty"`    // 媒体说明文字
	MediaRefs []string `bson:"media_refs,omitempty"` // 已解析的媒体文件 URL
	Sender    string   `bson:"sender,omitempty"`     // 发送者显示名

	// 处理状态
	Processed bool `bson:"processed"` // 是否已被批处理消费

	// 时间信息
	SentAt    time.Time `bson:"sent_at"`    // 发送时间
	CreatedAt time.Time `bson:"created_at"` // 记录创建时间
}

// ExtractText 提取消息的纯文本内容（媒体消息回退到 caption）
func (m *QueuedMessage) ExtractText() string {
	if text := strings.TrimSpace(m.Text); text != "" {
		return text
	}
	return strings.TrimSpace(m.Caption)
}

// HasContent 消息是否携带可用内容（文本或媒体）
func (m *QueuedMessage) HasContent() bool {
	return m.ExtractText() != "" || len(m.MediaRefs) > 0
}

// IsMediaMessage 是否为媒体消息
func (m *QueuedMessage) IsMediaMessage() bool {
	switch m.Kind {
	case MessageKindPhoto, MessageKindVideo, MessageKindDocument,
		MessageKindAnimation, MessageKindAudio:
		return true
	default:
		return false
	}
}
