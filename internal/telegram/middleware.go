package telegram

import (
	"context"

	"blog_bot/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// RequireAuthorized 中间件：仅允许授权列表中的用户执行
// 授权是简单的名单查询，未授权用户收到拒绝提示且不产生任何状态变更
func (b *Bot) RequireAuthorized(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		if update.Message == nil || update.Message.From == nil {
			return
		}

		if !b.isAuthorized(update.Message.From.ID) {
			logger.L().Warnf("Unauthorized user %d attempted command: %q",
				update.Message.From.ID, update.Message.Text)
			b.sendErrorMessage(ctx, update.Message.Chat.ID, "你没有使用此 Bot 的权限")
			return
		}

		next(ctx, botInstance, update)
	}
}
