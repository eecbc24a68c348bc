package telegram

import (
	"context"
	"strings"
	"time"

	"blog_bot/internal/logger"
	"blog_bot/internal/telegram/models"
	"blog_bot/internal/telegram/service"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// handleDefault 处理所有未命中命令的更新
// 群组/频道消息进入待处理队列；私聊消息作为会话输入消费
func (b *Bot) handleDefault(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return
	}

	if msg.Chat.Type == "private" {
		b.handlePrivateInput(ctx, msg)
		return
	}

	inbound := buildInboundMessage(msg)
	if inbound == nil {
		return
	}

	if err := b.ingestService.HandleInbound(ctx, inbound); err != nil {
		logger.L().Errorf("Failed to ingest message: chat_id=%d, message_id=%d, err=%v",
			inbound.ChatID, inbound.MessageID, err)
	}
}

// handlePrivateInput 消费私聊会话输入（草稿正文编辑、发布目标凭据）
func (b *Bot) handlePrivateInput(ctx context.Context, msg *botModels.Message) {
	if msg.From == nil || !b.isAuthorized(msg.From.ID) {
		return
	}
	ownerID := msg.From.ID

	prefs, err := b.prefService.EnsurePreferences(ctx, ownerID)
	if err != nil {
		logger.L().Errorf("Failed to load preferences: owner_id=%d, err=%v", ownerID, err)
		return
	}
	if !prefs.IsAwaitingInput() {
		return
	}

	switch prefs.PendingAction {
	case models.PendingEditBody:
		if err := b.draftService.UpdateBody(ctx, ownerID, prefs.PendingDraftID.Hex(), msg.Text); err != nil {
			b.sendErrorMessage(ctx, msg.Chat.ID, err.Error())
			return
		}
		b.clearPending(ctx, ownerID)
		b.sendSuccessMessage(ctx, msg.Chat.ID, "草稿正文已更新")

	case models.PendingNotionConfig:
		parts := strings.Fields(msg.Text)
		if len(parts) < 2 {
			b.sendErrorMessage(ctx, msg.Chat.ID, "格式错误，请发送: <token> <database_id>")
			return
		}
		if err := b.prefService.ConfigureNotion(ctx, ownerID, parts[0], parts[1]); err != nil {
			b.sendErrorMessage(ctx, msg.Chat.ID, err.Error())
			return
		}
		b.clearPending(ctx, ownerID)
		b.sendSuccessMessage(ctx, msg.Chat.ID, "Notion 配置已保存")

	case models.PendingTelegraphConfig:
		token := strings.TrimSpace(msg.Text)
		if err := b.prefService.ConfigureTelegraph(ctx, ownerID, token); err != nil {
			b.sendErrorMessage(ctx, msg.Chat.ID, err.Error())
			return
		}
		b.clearPending(ctx, ownerID)
		b.sendSuccessMessage(ctx, msg.Chat.ID, "Telegraph 配置已保存")

	default:
		b.clearPending(ctx, ownerID)
	}
}

func (b *Bot) clearPending(ctx context.Context, ownerID int64) {
	if err := b.prefService.ClearPendingAction(ctx, ownerID); err != nil {
		logger.L().Warnf("Failed to clear pending action: owner_id=%d, err=%v", ownerID, err)
	}
}

// buildInboundMessage 将 Telegram 消息归一化为入站 DTO
// 返回 nil 表示消息不含可入队内容
func buildInboundMessage(msg *botModels.Message) *service.InboundMessage {
	inbound := &service.InboundMessage{
		MessageID: int64(msg.ID),
		ChatID:    msg.Chat.ID,
		ThreadID:  msg.MessageThreadID,
		Kind:      models.MessageKindText,
		Text:      msg.Text,
		Caption:   msg.Caption,
		Sender:    senderName(msg),
		SentAt:    time.Unix(int64(msg.Date), 0),
	}

	switch {
	case len(msg.Photo) > 0:
		inbound.Kind = models.MessageKindPhoto
		// Telegram 按尺寸升序返回，取最大尺寸
		inbound.MediaFileIDs = append(inbound.MediaFileIDs, msg.Photo[len(msg.Photo)-1].FileID)
	case msg.Video != nil:
		inbound.Kind = models.MessageKindVideo
		inbound.MediaFileIDs = append(inbound.MediaFileIDs, msg.Video.FileID)
	case msg.Animation != nil:
		inbound.Kind = models.MessageKindAnimation
		inbound.MediaFileIDs = append(inbound.MediaFileIDs, msg.Animation.FileID)
	case msg.Document != nil:
		inbound.Kind = models.MessageKindDocument
		inbound.MediaFileIDs = append(inbound.MediaFileIDs, msg.Document.FileID)
	case msg.Audio != nil:
		inbound.Kind = models.MessageKindAudio
		inbound.MediaFileIDs = append(inbound.MediaFileIDs, msg.Audio.FileID)
	}

	if strings.TrimSpace(inbound.Text) == "" &&
		strings.TrimSpace(inbound.Caption) == "" &&
		len(inbound.MediaFileIDs) == 0 {
		return nil
	}

	return inbound
}

// senderName 获取发送者的展示名称，频道消息回退到频道标题
func senderName(msg *botModels.Message) string {
	if msg.From != nil {
		name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		if name != "" {
			return name
		}
		if msg.From.Username != "" {
			return msg.From.Username
		}
	}
	if msg.Chat.Title != "" {
		return msg.Chat.Title
	}
	return "unknown"
}
