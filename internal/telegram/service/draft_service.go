package service

import (
	"context"
	"fmt"
	"strings"

	"blog_bot/internal/logger"
	publishservice "blog_bot/internal/publish/service"
	"blog_bot/internal/telegram/models"
	"blog_bot/internal/telegram/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DraftServiceImpl 草稿服务实现
type DraftServiceImpl struct {
	draftRepo repository.DraftRepository
	publisher publishservice.Publisher
}

// NewDraftService 创建草稿服务
func NewDraftService(draftRepo repository.DraftRepository, publisher publishservice.Publisher) DraftService {
	return &DraftServiceImpl{
		draftRepo: draftRepo,
		publisher: publisher,
	}
}

// ListDrafts 列出用户的草稿
func (s *DraftServiceImpl) ListDrafts(ctx context.Context, ownerID int64, limit int64) ([]*models.Draft, error) {
	drafts, err := s.draftRepo.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		logger.L().Errorf("Failed to list drafts for %d: %v", ownerID, err)
		return nil, fmt.Errorf("查询草稿列表失败")
	}
	return drafts, nil
}

// GetDraft 获取用户自己的草稿（包含归属校验）
func (s *DraftServiceImpl) GetDraft(ctx context.Context, ownerID int64, draftID string) (*models.Draft, error) {
	id, err := parseDraftID(draftID)
	if err != nil {
		return nil, err
	}

	draft, err := s.draftRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("草稿不存在")
	}

	if draft.OwnerID != ownerID {
		logger.L().Warnf("Draft owner mismatch: draft_id=%s, owner_id=%d, caller=%d",
			draftID, draft.OwnerID, ownerID)
		return nil, fmt.Errorf("草稿不存在")
	}

	return draft, nil
}

// Approve 批准草稿并触发发布
// 重复批准是安全的：已记录外部 ID 的目标会被发布器跳过
func (s *DraftServiceImpl) Approve(ctx context.Context, ownerID int64, draftID string) error {
	draft, err := s.GetDraft(ctx, ownerID, draftID)
	if err != nil {
		return err
	}

	if draft.Status == models.DraftStatusPublished {
		return fmt.Errorf("草稿已发布，无需重复操作")
	}

	if err := s.publisher.Publish(ctx, draft.ID, ownerID); err != nil {
		logger.L().Errorf("Approve publish failed: draft_id=%s, err=%v", draftID, err)
		return fmt.Errorf("发布失败，可稍后重试（已成功的目标不会重复发布）")
	}

	return nil
}

// Reject 拒绝草稿（删除记录，队列消息保持已处理状态）
func (s *DraftServiceImpl) Reject(ctx context.Context, ownerID int64, draftID string) error {
	draft, err := s.GetDraft(ctx, ownerID, draftID)
	if err != nil {
		return err
	}

	if err := s.draftRepo.Delete(ctx, draft.ID); err != nil {
		logger.L().Errorf("Failed to reject draft: draft_id=%s, err=%v", draftID, err)
		return fmt.Errorf("删除草稿失败")
	}

	logger.L().Infof("Draft rejected: draft_id=%s, owner_id=%d", draftID, ownerID)
	return nil
}

// UpdateBody 仅更新草稿正文，状态保持不变
func (s *DraftServiceImpl) UpdateBody(ctx context.Context, ownerID int64, draftID, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Errorf("正文不能为空")
	}

	draft, err := s.GetDraft(ctx, ownerID, draftID)
	if err != nil {
		return err
	}

	if err := s.draftRepo.UpdateBody(ctx, draft.ID, body); err != nil {
		logger.L().Errorf("Failed to update draft body: draft_id=%s, err=%v", draftID, err)
		return fmt.Errorf("更新草稿失败")
	}

	logger.L().Infof("Draft body updated: draft_id=%s, owner_id=%d", draftID, ownerID)
	return nil
}

// Stats 按状态统计用户的草稿数量
func (s *DraftServiceImpl) Stats(ctx context.Context, ownerID int64) (map[string]int64, error) {
	counts, err := s.draftRepo.CountByStatus(ctx, ownerID)
	if err != nil {
		logger.L().Errorf("Failed to count drafts for %d: %v", ownerID, err)
		return nil, fmt.Errorf("统计草稿失败")
	}
	return counts, nil
}

// parseDraftID 解析草稿 ID（十六进制 ObjectID）
func parseDraftID(draftID string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(draftID))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("无效的草稿 ID")
	}
	return id, nil
}
