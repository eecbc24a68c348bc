package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blog_bot/internal/logger"
	"blog_bot/internal/publish/notion"
	"blog_bot/internal/publish/telegraph"
	"blog_bot/internal/telegram/models"
	"blog_bot/internal/telegram/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotionSink Notion 发布目标接口
type NotionSink interface {
	CreatePage(ctx context.Context, creds notion.Credentials, page notion.Page) (string, error)
}

// TelegraphSink Telegraph 发布目标接口
type TelegraphSink interface {
	CreatePage(ctx context.Context, accessToken string, page telegraph.Page) (string, error)
}

// Notifier 向用户回送通知的接口（尽力而为，不保证送达）
type Notifier interface {
	Notify(ctx context.Context, ownerID int64, text string)
}

// Publisher 定义草稿发布操作
type Publisher interface {
	// Publish 将草稿发布到所有已配置的目标，按目标幂等
	Publish(ctx context.Context, draftID primitive.ObjectID, ownerID int64) error
}

// PublisherImpl 发布编排器实现
// 每个目标独立调用并立即回填外部 ID，部分成功可被保留；
// 重新发布时跳过已记录外部 ID 的目标，只重试失败的目标
type PublisherImpl struct {
	draftRepo repository.DraftRepository
	prefsRepo repository.PreferencesRepository
	notion    NotionSink
	telegraph TelegraphSink
	notifier  Notifier
}

// NewPublisher 创建发布编排器
func NewPublisher(
	draftRepo repository.DraftRepository,
	prefsRepo repository.PreferencesRepository,
	notionSink NotionSink,
	telegraphSink TelegraphSink,
	notifier Notifier,
) Publisher {
	return &PublisherImpl{
		draftRepo: draftRepo,
		prefsRepo: prefsRepo,
		notion:    notionSink,
		telegraph: telegraphSink,
		notifier:  notifier,
	}
}

// Publish 将草稿发布到所有已配置的目标
func (p *PublisherImpl) Publish(ctx context.Context, draftID primitive.ObjectID, ownerID int64) error {
	draft, err := p.draftRepo.GetByID(ctx, draftID)
	if err != nil {
		// 草稿缺失属于调用方竞态，按无操作处理
		logger.L().Warnf("Publish skipped, draft not found: draft_id=%s, err=%v", draftID.Hex(), err)
		return nil
	}

	if draft.OwnerID != ownerID {
		logger.L().Warnf("Publish skipped, owner mismatch: draft_id=%s, owner_id=%d, caller=%d",
			draftID.Hex(), draft.OwnerID, ownerID)
		return nil
	}

	prefs, err := p.prefsRepo.GetByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	if !prefs.HasNotion() && !prefs.HasTelegraph() {
		logger.L().Warnf("No sink configured, draft will be marked published without output: owner_id=%d", ownerID)
	}

	if err := p.draftRepo.UpdateStatus(ctx, draftID, models.DraftStatusPublishing); err != nil {
		return fmt.Errorf("failed to mark draft publishing: %w", err)
	}

	var summary []string
	var failures []string

	if prefs.HasNotion() {
		if draft.NotionPageID != "" {
			// 该目标已发布过，跳过以避免重复内容
			summary = append(summary, "Notion: 已发布（跳过）")
		} else {
			pageID, err := p.notion.CreatePage(ctx, notion.Credentials{
				Token:      prefs.Notion.Token,
				DatabaseID: prefs.Notion.DatabaseID,
			}, notion.Page{
				Title:     draft.Title,
				Body:      draft.Body,
				MediaURLs: draft.MediaRefs,
			})
			if err != nil {
				logger.L().Errorf("Notion publish failed: draft_id=%s, err=%v", draftID.Hex(), err)
				failures = append(failures, fmt.Sprintf("Notion: %v", err))
			} else {
				if err := p.draftRepo.SetNotionPageID(ctx, draftID, pageID); err != nil {
					logger.L().Errorf("Failed to record notion page id: draft_id=%s, err=%v", draftID.Hex(), err)
					failures = append(failures, fmt.Sprintf("Notion: %v", err))
				} else {
					draft.NotionPageID = pageID
					summary = append(summary, "Notion: 发布成功")
				}
			}
		}
	}

	if prefs.HasTelegraph() {
		if draft.TelegraphURL != "" {
			summary = append(summary, "Telegraph: 已发布（跳过）")
		} else {
			pageURL, err := p.telegraph.CreatePage(ctx, prefs.Telegraph.AccessToken, telegraph.Page{
				Title:     draft.Title,
				Body:      draft.Body,
				MediaURLs: draft.MediaRefs,
			})
			if err != nil {
				logger.L().Errorf("Telegraph publish failed: draft_id=%s, err=%v", draftID.Hex(), err)
				failures = append(failures, fmt.Sprintf("Telegraph: %v", err))
			} else {
				if err := p.draftRepo.SetTelegraphURL(ctx, draftID, pageURL); err != nil {
					logger.L().Errorf("Failed to record telegraph url: draft_id=%s, err=%v", draftID.Hex(), err)
					failures = append(failures, fmt.Sprintf("Telegraph: %v", err))
				} else {
					draft.TelegraphURL = pageURL
					summary = append(summary, "Telegraph: 发布成功 "+pageURL)
				}
			}
		}
	}

	if len(failures) > 0 {
		if err := p.draftRepo.UpdateStatus(ctx, draftID, models.DraftStatusFailed); err != nil {
			logger.L().Errorf("Failed to mark draft failed: draft_id=%s, err=%v", draftID.Hex(), err)
		}
		p.notifier.Notify(ctx, ownerID, fmt.Sprintf(
			"❌ 草稿《%s》发布失败，可使用 /approve %s 重试：\n%s",
			draft.Title, draftID.Hex(), strings.Join(failures, "\n")))
		return fmt.Errorf("publish draft %s failed: %s", draftID.Hex(), strings.Join(failures, "; "))
	}

	if err := p.draftRepo.MarkPublished(ctx, draftID, time.Now()); err != nil {
		return fmt.Errorf("failed to mark draft published: %w", err)
	}

	if len(summary) == 0 {
		summary = append(summary, "（未配置发布目标，内容仅保留在草稿记录中）")
	}

	logger.L().Infof("Draft published: draft_id=%s, owner_id=%d", draftID.Hex(), ownerID)
	p.notifier.Notify(ctx, ownerID, fmt.Sprintf(
		"✅ 草稿《%s》发布成功：\n%s", draft.Title, strings.Join(summary, "\n")))

	return nil
}
