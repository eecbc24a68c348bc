package service

import (
	"context"
	"fmt"

	"blog_bot/internal/logger"
	"blog_bot/internal/telegram/models"
	"blog_bot/internal/telegram/repository"
)

// SourceServiceImpl 监控源服务实现
type SourceServiceImpl struct {
	sourceRepo repository.SourceRepository
}

// NewSourceService 创建监控源服务
func NewSourceService(sourceRepo repository.SourceRepository) SourceService {
	return &SourceServiceImpl{
		sourceRepo: sourceRepo,
	}
}

// Subscribe 订阅监控源（重复订阅等价于重新激活）
func (s *SourceServiceImpl) Subscribe(ctx context.Context, info *SubscribeInfo) error {
	if info.ChatID == 0 {
		return fmt.Errorf("无效的聊天 ID")
	}

	source := &models.Source{
		OwnerID:  info.OwnerID,
		ChatID:   info.ChatID,
		ThreadID: info.ThreadID,
		Title:    info.Title,
		Kind:     info.Kind,
	}

	if err := s.sourceRepo.CreateOrActivate(ctx, source); err != nil {
		logger.L().Errorf("Failed to subscribe: owner_id=%d, chat_id=%d, err=%v",
			info.OwnerID, info.ChatID, err)
		return fmt.Errorf("订阅失败，请稍后重试")
	}

	logger.L().Infof("Source subscribed: owner_id=%d, chat_id=%d, thread_id=%d, title=%q",
		info.OwnerID, info.ChatID, info.ThreadID, info.Title)
	return nil
}

// Unsubscribe 退订监控源（停用，不删除，历史队列记录保留）
func (s *SourceServiceImpl) Unsubscribe(ctx context.Context, ownerID, chatID int64, threadID int) error {
	if err := s.sourceRepo.Deactivate(ctx, ownerID, chatID, threadID); err != nil {
		logger.L().Warnf("Failed to unsubscribe: owner_id=%d, chat_id=%d, err=%v", ownerID, chatID, err)
		return fmt.Errorf("退订失败：未找到对应的订阅")
	}

	logger.L().Infof("Source unsubscribed: owner_id=%d, chat_id=%d, thread_id=%d", ownerID, chatID, threadID)
	return nil
}

// ListSources 列出用户的活跃监控源
func (s *SourceServiceImpl) ListSources(ctx context.Context, ownerID int64) ([]*models.Source, error) {
	sources, err := s.sourceRepo.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		logger.L().Errorf("Failed to list sources for %d: %v", ownerID, err)
		return nil, fmt.Errorf("查询订阅列表失败")
	}
	return sources, nil
}
