package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"blog_bot/internal/logger"
	"blog_bot/internal/telegram/models"
	"blog_bot/internal/telegram/service"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// registerHandlers 注册所有命令处理器（异步执行，全部需要授权）
func (b *Bot) registerHandlers() {
	exact := func(cmd string, h bot.HandlerFunc) {
		b.bot.RegisterHandler(bot.HandlerTypeMessageText, cmd, bot.MatchTypeExact,
			b.asyncHandler(b.RequireAuthorized(h)))
	}
	prefix := func(cmd string, h bot.HandlerFunc) {
		b.bot.RegisterHandler(bot.HandlerTypeMessageText, cmd, bot.MatchTypePrefix,
			b.asyncHandler(b.RequireAuthorized(h)))
	}

	exact("/start", b.handleStart)
	exact("/ping", b.handlePing)
	exact("/sources", b.handleListSources)
	exact("/drafts", b.handleListDrafts)
	exact("/status", b.handleStatus)

	prefix("/subscribe", b.handleSubscribe)
	prefix("/unsubscribe", b.handleUnsubscribe)
	prefix("/approve", b.handleApprove)
	prefix("/reject", b.handleReject)
	prefix("/edit", b.handleEdit)
	prefix("/autopublish", b.handleAutoPublish)
	prefix("/window", b.handleWindow)
	prefix("/notion", b.handleNotion)
	prefix("/telegraph", b.handleTelegraph)

	logger.L().Debug("All handlers registered with async execution")
}

// handleStart 处理 /start 命令
func (b *Bot) handleStart(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	// 首次交互时创建默认偏好
	if _, err := b.prefService.EnsurePreferences(ctx, update.Message.From.ID); err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "初始化失败，请稍后重试")
		return
	}

	welcomeText := fmt.Sprintf(
		"👋 你好, %s!\n\n"+
			"我会监控你订阅的群组/频道消息，定期整理成博客草稿。\n\n"+
			"可用命令:\n"+
			"/subscribe - 订阅当前群组（或 /subscribe <chat_id>）\n"+
			"/unsubscribe - 退订当前群组（或 /unsubscribe <chat_id>）\n"+
			"/sources - 查看订阅列表\n"+
			"/drafts - 查看草稿列表\n"+
			"/approve <draft_id> - 批准并发布草稿\n"+
			"/reject <draft_id> - 拒绝并删除草稿\n"+
			"/edit <draft_id> - 修改草稿正文\n"+
			"/autopublish on|off - 自动发布开关\n"+
			"/window <minutes> - 设置批处理时间窗口\n"+
			"/notion <token> <database_id> - 配置 Notion\n"+
			"/telegraph <access_token> - 配置 Telegraph\n"+
			"/status - 查看运行状态\n"+
			"/ping - 测试连接",
		update.Message.From.FirstName,
	)

	b.sendMessage(ctx, update.Message.Chat.ID, welcomeText)
}

// handlePing 处理 /ping 命令
func (b *Bot) handlePing(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID, b.buildPingMessage(ctx))
}

// handleSubscribe 处理 /subscribe 命令
// 在群组内执行订阅当前群组；私聊中需要显式指定 chat ID
func (b *Bot) handleSubscribe(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message

	info := &service.SubscribeInfo{
		OwnerID: msg.From.ID,
	}

	switch msg.Chat.Type {
	case "group", "supergroup":
		info.ChatID = msg.Chat.ID
		info.ThreadID = msg.MessageThreadID
		info.Title = msg.Chat.Title
		info.Kind = models.SourceKindGroup
		if msg.Chat.Type == "supergroup" {
			info.Kind = models.SourceKindSupergroup
		}
	default:
		parts := strings.Fields(msg.Text)
		if len(parts) < 2 {
			b.sendErrorMessage(ctx, msg.Chat.ID,
				"用法: 在目标群组内发送 /subscribe，或私聊发送 /subscribe <chat_id>")
			return
		}
		chatID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			b.sendErrorMessage(ctx, msg.Chat.ID, "无效的聊天 ID")
			return
		}
		info.ChatID = chatID
		info.Kind = models.SourceKindChannel
	}

	if err := b.sourceService.Subscribe(ctx, info); err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, err.Error())
		return
	}

	b.sendSuccessMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("已订阅 %d，新消息将进入待处理队列", info.ChatID))
}

// handleUnsubscribe 处理 /unsubscribe 命令
func (b *Bot) handleUnsubscribe(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message

	chatID := msg.Chat.ID
	threadID := msg.MessageThreadID

	if msg.Chat.Type != "group" && msg.Chat.Type != "supergroup" {
		parts := strings.Fields(msg.Text)
		if len(parts) < 2 {
			b.sendErrorMessage(ctx, msg.Chat.ID,
				"用法: 在目标群组内发送 /unsubscribe，或私聊发送 /unsubscribe <chat_id>")
			return
		}
		parsed, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			b.sendErrorMessage(ctx, msg.Chat.ID, "无效的聊天 ID")
			return
		}
		chatID = parsed
		threadID = 0
	}

	if err := b.sourceService.Unsubscribe(ctx, msg.From.ID, chatID, threadID); err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, err.Error())
		return
	}

	b.sendSuccessMessage(ctx, msg.Chat.ID, fmt.Sprintf("已退订 %d", chatID))
}

// handleListSources 处理 /sources 命令
func (b *Bot) handleListSources(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	sources, err := b.sourceService.ListSources(ctx, update.Message.From.ID)
	if err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "查询失败")
		return
	}

	if len(sources) == 0 {
		b.sendMessage(ctx, update.Message.Chat.ID, "📝 暂无订阅，可在目标群组内发送 /subscribe")
		return
	}

	var text strings.Builder
	text.WriteString("📡 订阅列表:\n\n")
	for i, source := range sources {
		title := source.Title
		if title == "" {
			title = "(未命名)"
		}
		line := fmt.Sprintf("%d. %s - ID: %d", i+1, title, source.ChatID)
		if source.ThreadID != 0 {
			line += fmt.Sprintf(" (话题 %d)", source.ThreadID)
		}
		text.WriteString(line + "\n")
	}

	b.sendMessage(ctx, update.Message.Chat.ID, text.String())
}

// handleListDrafts 处理 /drafts 命令
func (b *Bot) handleListDrafts(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	drafts, err := b.draftService.ListDrafts(ctx, update.Message.From.ID, 10)
	if err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "查询失败")
		return
	}

	if len(drafts) == 0 {
		b.sendMessage(ctx, update.Message.Chat.ID, "📝 暂无草稿")
		return
	}

	var text strings.Builder
	text.WriteString("📄 草稿列表（最近 10 条）:\n\n")
	for i, draft := range drafts {
		text.WriteString(fmt.Sprintf("%d. %s 《%s》\nID: <code>%s</code>\n",
			i+1, draftStatusEmoji(draft.Status), draft.Title, draft.ID.Hex()))
		if draft.TelegraphURL != "" {
			text.WriteString(draft.TelegraphURL + "\n")
		}
		text.WriteString("\n")
	}

	b.sendMessage(ctx, update.Message.Chat.ID, text.String())
}

// handleApprove 处理 /approve 命令（批准草稿并触发发布）
func (b *Bot) handleApprove(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	parts := strings.Fields(update.Message.Text)
	if len(parts) < 2 {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "用法: /approve <draft_id>")
		return
	}

	if err := b.draftService.Approve(ctx, update.Message.From.ID, parts[1]); err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, err.Error())
		return
	}
}

// handleReject 处理 /reject 命令（拒绝并删除草稿）
func (b *Bot) handleReject(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	parts := strings.Fields(update.Message.Text)
	if len(parts) < 2 {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "用法: /reject <draft_id>")
		return
	}

	if err := b.draftService.Reject(ctx, update.Message.From.ID, parts[1]); err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, err.Error())
		return
	}

	b.sendSuccessMessage(ctx, update.Message.Chat.ID, "草稿已删除")
}

// handleEdit 处理 /edit 命令：进入正文编辑会话，下一条私聊消息作为新正文
func (b *Bot) handleEdit(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	ownerID := update.Message.From.ID

	parts := strings.Fields(update.Message.Text)
	if len(parts) < 2 {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "用法: /edit <draft_id>")
		return
	}

	draft, err := b.draftService.GetDraft(ctx, ownerID, parts[1])
	if err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, err.Error())
		return
	}

	if err := b.prefService.BeginPendingAction(ctx, ownerID, models.PendingEditBody, draft.ID); err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "进入编辑模式失败，请稍后重试")
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID,
		fmt.Sprintf("✏️ 正在编辑《%s》\n当前正文:\n\n%s\n\n请直接发送新的正文内容", draft.Title, draft.Body))
}

// handleAutoPublish 处理 /autopublish 命令
func (b *Bot) handleAutoPublish(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	parts := strings.Fields(update.Message.Text)
	if len(parts) < 2 || (parts[1] != "on" && parts[1] != "off") {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "用法: /autopublish on 或 /autopublish off")
		return
	}
	enabled := parts[1] == "on"

	if err := b.prefService.SetAutoPublish(ctx, update.Message.From.ID, enabled); err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "设置失败，请稍后重试")
		return
	}

	if enabled {
		b.sendSuccessMessage(ctx, update.Message.Chat.ID, "已开启自动发布，新草稿将直接发布")
	} else {
		b.sendSuccessMessage(ctx, update.Message.Chat.ID, "已关闭自动发布，新草稿将等待审核")
	}
}

// handleWindow 处理 /window 命令（设置批处理时间窗口）
func (b *Bot) handleWindow(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	parts := strings.Fields(update.Message.Text)
	if len(parts) < 2 {
		b.sendErrorMessage(ctx, update.Message.Chat.ID,
			fmt.Sprintf("用法: /window <minutes>（%d-%d，默认 %d）",
				models.MinWindowMinutes, models.MaxWindowMinutes, models.DefaultWindowMinutes))
		return
	}

	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "无效的分钟数")
		return
	}

	if err := b.prefService.SetWindowMinutes(ctx, update.Message.From.ID, minutes); err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, err.Error())
		return
	}

	b.sendSuccessMessage(ctx, update.Message.Chat.ID,
		fmt.Sprintf("时间窗口已设置为 %d 分钟", minutes))
}

// handleNotion 处理 /notion 命令（配置 Notion 发布目标）
// 带参数直接配置；不带参数进入会话等待，下一条私聊消息提供凭据
func (b *Bot) handleNotion(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	ownerID := update.Message.From.ID

	parts := strings.Fields(update.Message.Text)
	if len(parts) >= 3 {
		if err := b.prefService.ConfigureNotion(ctx, ownerID, parts[1], parts[2]); err != nil {
			b.sendErrorMessage(ctx, update.Message.Chat.ID, err.Error())
			return
		}
		b.sendSuccessMessage(ctx, update.Message.Chat.ID, "Notion 配置已保存")
		return
	}

	if err := b.prefService.BeginPendingAction(ctx, ownerID, models.PendingNotionConfig, primitive.NilObjectID); err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "操作失败，请稍后重试")
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID,
		"🔑 请发送 Notion 凭据，格式:\n<token> <database_id>")
}

// handleTelegraph 处理 /telegraph 命令（配置 Telegraph 发布目标）
func (b *Bot) handleTelegraph(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	ownerID := update.Message.From.ID

	parts := strings.Fields(update.Message.Text)
	if len(parts) >= 2 {
		if err := b.prefService.ConfigureTelegraph(ctx, ownerID, parts[1]); err != nil {
			b.sendErrorMessage(ctx, update.Message.Chat.ID, err.Error())
			return
		}
		b.sendSuccessMessage(ctx, update.Message.Chat.ID, "Telegraph 配置已保存")
		return
	}

	if err := b.prefService.BeginPendingAction(ctx, ownerID, models.PendingTelegraphConfig, primitive.NilObjectID); err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "操作失败，请稍后重试")
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID,
		"🔑 请发送 Telegraph access token")
}

// handleStatus 处理 /status 命令
func (b *Bot) handleStatus(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID, b.buildStatusMessage(ctx, update.Message.From.ID))
}

// draftStatusEmoji 草稿状态对应的展示符号
func draftStatusEmoji(status string) string {
	switch status {
	case models.DraftStatusPending:
		return "📝"
	case models.DraftStatusPublishing:
		return "⏳"
	case models.DraftStatusPublished:
		return "✅"
	case models.DraftStatusFailed:
		return "❌"
	default:
		return "❔"
	}
}
