package service

import (
	"context"
	"fmt"
	"strings"

	"blog_bot/internal/logger"
	"blog_bot/internal/telegram/models"
	"blog_bot/internal/telegram/repository"
)

// IngestServiceImpl 消息入队服务实现
type IngestServiceImpl struct {
	sourceRepo repository.SourceRepository
	queueRepo  repository.QueuedMessageRepository
	resolver   MediaResolver
}

// NewIngestService 创建消息入队服务
func NewIngestService(
	sourceRepo repository.SourceRepository,
	queueRepo repository.QueuedMessageRepository,
	resolver MediaResolver,
) IngestService {
	return &IngestServiceImpl{
		sourceRepo: sourceRepo,
		queueRepo:  queueRepo,
		resolver:   resolver,
	}
}

// HandleInbound 将入站消息写入所有命中监控源的队列
// 既无文本也无媒体的消息静默丢弃；重复投递同一条消息不产生重复记录
func (s *IngestServiceImpl) HandleInbound(ctx context.Context, msg *InboundMessage) error {
	if strings.TrimSpace(msg.Text) == "" && strings.TrimSpace(msg.Caption) == "" && len(msg.MediaFileIDs) == 0 {
		return nil
	}

	sources, err := s.sourceRepo.ListActiveByChat(ctx, msg.ChatID)
	if err != nil {
		return fmt.Errorf("failed to load sources for chat %d: %w", msg.ChatID, err)
	}

	matches := make([]*models.Source, 0, len(sources))
	for _, source := range sources {
		if source.Matches(msg.ChatID, msg.ThreadID) {
			matches = append(matches, source)
		}
	}

	if len(matches) == 0 {
		return nil
	}

	// 媒体解析在监控源之间共享，单个附件失败仅告警并跳过
	mediaRefs := s.resolveMedia(ctx, msg)

	for _, source := range matches {
		queued := &models.QueuedMessage{
			SourceID:  source.ID,
			MessageID: msg.MessageID,
			ChatID:    msg.ChatID,
			Kind:      msg.Kind,
			Text:      msg.Text,
			Caption:   msg.Caption,
			MediaRefs: mediaRefs,
			Sender:    msg.Sender,
			SentAt:    msg.SentAt,
		}

		if err := s.queueRepo.InsertIfAbsent(ctx, queued); err != nil {
			logger.L().Errorf("Failed to enqueue message: chat_id=%d, message_id=%d, source_id=%s, err=%v",
				msg.ChatID, msg.MessageID, source.ID.Hex(), err)
			continue
		}
	}

	logger.L().Debugf("Inbound message enqueued: chat_id=%d, message_id=%d, sources=%d, media=%d",
		msg.ChatID, msg.MessageID, len(matches), len(mediaRefs))
	return nil
}

// resolveMedia 将消息附件解析为可持久访问的 URL
func (s *IngestServiceImpl) resolveMedia(ctx context.Context, msg *InboundMessage) []string {
	if len(msg.MediaFileIDs) == 0 || s.resolver == nil {
		return nil
	}

	refs := make([]string, 0, len(msg.MediaFileIDs))
	for _, fileID := range msg.MediaFileIDs {
		url, err := s.resolver.Resolve(ctx, fileID)
		if err != nil {
			logger.L().Warnf("Failed to resolve media: chat_id=%d, message_id=%d, file_id=%s, err=%v",
				msg.ChatID, msg.MessageID, fileID, err)
			continue
		}
		refs = append(refs, url)
	}

	return refs
}
