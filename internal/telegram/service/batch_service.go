package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"blog_bot/internal/ai/grok"
	"blog_bot/internal/logger"
	publishservice "blog_bot/internal/publish/service"
	"blog_bot/internal/telegram/models"
	"blog_bot/internal/telegram/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// maxClassifyFailures 同一用户连续格式错误的放弃阈值
// 达到阈值后该批消息被标记已处理且不生成草稿，避免对永久畸形批次无限重试
const maxClassifyFailures = 3

// BatchServiceImpl 批处理服务实现
// 单个调度协程顺序驱动；in-flight 防护避免外部触发与定时批次对同一用户重入
type BatchServiceImpl struct {
	prefsRepo  repository.PreferencesRepository
	sourceRepo repository.SourceRepository
	queueRepo  repository.QueuedMessageRepository
	draftRepo  repository.DraftRepository
	classifier Classifier
	publisher  publishservice.Publisher
	notifier   publishservice.Notifier

	nowFunc func() time.Time

	mu           sync.Mutex
	inFlight     map[int64]bool
	failureCount map[int64]int
}

// BatchOption 自定义批处理服务行为
type BatchOption func(*BatchServiceImpl)

// WithNowFunc 自定义时间函数（用于测试）
func WithNowFunc(now func() time.Time) BatchOption {
	return func(s *BatchServiceImpl) {
		if now != nil {
			s.nowFunc = now
		}
	}
}

// NewBatchService 创建批处理服务
func NewBatchService(
	prefsRepo repository.PreferencesRepository,
	sourceRepo repository.SourceRepository,
	queueRepo repository.QueuedMessageRepository,
	draftRepo repository.DraftRepository,
	classifier Classifier,
	publisher publishservice.Publisher,
	notifier publishservice.Notifier,
	opts ...BatchOption,
) *BatchServiceImpl {
	service := &BatchServiceImpl{
		prefsRepo:    prefsRepo,
		sourceRepo:   sourceRepo,
		queueRepo:    queueRepo,
		draftRepo:    draftRepo,
		classifier:   classifier,
		publisher:    publisher,
		notifier:     notifier,
		nowFunc:      time.Now,
		inFlight:     make(map[int64]bool),
		failureCount: make(map[int64]int),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// ProcessTick 执行一轮批处理
// 用户之间相互隔离：单个用户失败只记录日志，不影响其余用户
func (s *BatchServiceImpl) ProcessTick(ctx context.Context) {
	tickID := uuid.New().String()

	owners, err := s.prefsRepo.ListOwnerIDs(ctx)
	if err != nil {
		logger.L().Errorf("Batch tick failed to list owners: tick_id=%s, err=%v", tickID, err)
		return
	}

	if len(owners) == 0 {
		return
	}

	logger.L().Debugf("Batch tick started: tick_id=%s, owners=%d", tickID, len(owners))

	for _, ownerID := range owners {
		if ctx.Err() != nil {
			logger.L().Warnf("Batch tick aborted: tick_id=%s, err=%v", tickID, ctx.Err())
			return
		}

		if err := s.ProcessOwner(ctx, ownerID); err != nil {
			logger.L().Warnf("Batch tick owner failed: tick_id=%s, owner_id=%d, err=%v", tickID, ownerID, err)
		}
	}
}

// ProcessOwner 处理单个用户的未处理消息
func (s *BatchServiceImpl) ProcessOwner(ctx context.Context, ownerID int64) error {
	if !s.tryAcquire(ownerID) {
		logger.L().Debugf("Owner batch already in flight, skipping: owner_id=%d", ownerID)
		return nil
	}
	defer s.release(ownerID)

	prefs, err := s.prefsRepo.GetByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	sources, err := s.sourceRepo.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	if len(sources) == 0 {
		return nil
	}

	sourceIDs := make([]primitive.ObjectID, 0, len(sources))
	for _, source := range sources {
		sourceIDs = append(sourceIDs, source.ID)
	}

	rows, err := s.queueRepo.ListUnprocessedBySources(ctx, sourceIDs)
	if err != nil {
		return fmt.Errorf("failed to load unprocessed messages: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	// 窗口过滤：仅保留 cutoff 之后的消息；被过滤掉的保持未处理，等待后续轮次
	cutoff := s.nowFunc().Add(-prefs.Window())
	kept := make([]*models.QueuedMessage, 0, len(rows))
	for _, row := range rows {
		if !row.SentAt.Before(cutoff) {
			kept = append(kept, row)
		}
	}
	if len(kept) == 0 {
		return nil
	}

	decision, err := s.classifier.ClassifyBatch(ctx, buildClassifierBatch(kept))
	if err != nil {
		return s.handleClassifyError(ctx, ownerID, kept, err)
	}
	s.resetFailures(ownerID)

	keptIDs := messageIDs(kept)

	if !decision.IsInformational {
		if err := s.queueRepo.MarkProcessed(ctx, keptIDs); err != nil {
			return fmt.Errorf("failed to mark messages processed: %w", err)
		}
		logger.L().Infof("Batch not informational, discarded: owner_id=%d, messages=%d", ownerID, len(kept))
		return nil
	}

	draft := s.buildDraft(ownerID, kept, decision, prefs.AutoPublish)

	// 先写草稿再标记已处理：二者之间崩溃时下一轮重试，代价至多是一次多余的分类调用
	if err := s.draftRepo.Insert(ctx, draft); err != nil {
		return fmt.Errorf("failed to insert draft: %w", err)
	}

	if err := s.queueRepo.MarkProcessed(ctx, keptIDs); err != nil {
		return fmt.Errorf("failed to mark messages processed: %w", err)
	}

	logger.L().Infof("Draft created: draft_id=%s, owner_id=%d, messages=%d, auto_publish=%v",
		draft.ID.Hex(), ownerID, len(kept), prefs.AutoPublish)

	if prefs.AutoPublish {
		if err := s.publisher.Publish(ctx, draft.ID, ownerID); err != nil {
			// 发布失败不回滚草稿，人工可通过 /approve 重试
			logger.L().Errorf("Auto publish failed: draft_id=%s, err=%v", draft.ID.Hex(), err)
		}
	} else {
		s.notifier.Notify(ctx, ownerID, fmt.Sprintf(
			"📝 新草稿《%s》已生成，等待审核\n查看：/drafts\n发布：/approve %s\n拒绝：/reject %s",
			draft.Title, draft.ID.Hex(), draft.ID.Hex()))
	}

	return nil
}

// handleClassifyError 处理分类失败
// 格式错误计入连续失败次数，达到阈值后放弃该批消息；其余错误保持消息未处理
func (s *BatchServiceImpl) handleClassifyError(ctx context.Context, ownerID int64, kept []*models.QueuedMessage, err error) error {
	var formatErr *grok.FormatError
	if !errors.As(err, &formatErr) {
		return fmt.Errorf("classification failed: %w", err)
	}

	failures := s.recordFailure(ownerID)
	if failures < maxClassifyFailures {
		return fmt.Errorf("classification failed (attempt %d/%d): %w", failures, maxClassifyFailures, err)
	}

	// 连续格式错误达到阈值，放弃该批消息
	s.resetFailures(ownerID)
	if markErr := s.queueRepo.MarkProcessed(ctx, messageIDs(kept)); markErr != nil {
		return fmt.Errorf("failed to discard malformed batch: %w", markErr)
	}

	logger.L().Warnf("Batch discarded after repeated classification failures: owner_id=%d, messages=%d",
		ownerID, len(kept))
	s.notifier.Notify(ctx, ownerID, fmt.Sprintf(
		"⚠️ 一批消息（%d 条）连续 %d 次分类失败，已跳过", len(kept), maxClassifyFailures))
	return nil
}

// buildDraft 根据分类结论构建草稿，空字段回退到确定性拼接
func (s *BatchServiceImpl) buildDraft(ownerID int64, kept []*models.QueuedMessage, decision *grok.Decision, autoPublish bool) *models.Draft {
	title := decision.SuggestedTitle
	if title == "" {
		title = FallbackTitle(kept)
	}

	body := decision.CombinedContent
	if body == "" {
		body = FallbackBody(kept)
	}

	status := models.DraftStatusPending
	if autoPublish {
		status = models.DraftStatusPublishing
	}

	return &models.Draft{
		OwnerID:          ownerID,
		Title:            title,
		Body:             body,
		MediaRefs:        unionMediaRefs(kept),
		SourceMessageIDs: messageIDs(kept),
		Status:           status,
	}
}

// FallbackTitle 分类器未给出标题时的确定性回退标题
func FallbackTitle(kept []*models.QueuedMessage) string {
	return kept[0].SentAt.Format("2006-01-02") + " 消息整理"
}

// FallbackBody 分类器未给出正文时的确定性回退正文：逐条拼接发送者、时间与文本
func FallbackBody(kept []*models.QueuedMessage) string {
	lines := make([]string, 0, len(kept))
	for _, msg := range kept {
		sender := msg.Sender
		if sender == "" {
			sender = "unknown"
		}
		lines = append(lines, fmt.Sprintf("%s (%s): %s",
			sender, msg.SentAt.Format("2006-01-02 15:04:05"), msg.ExtractText()))
	}
	return strings.Join(lines, "\n")
}

// buildClassifierBatch 将队列消息转换为分类器输入
func buildClassifierBatch(kept []*models.QueuedMessage) []grok.Message {
	batch := make([]grok.Message, 0, len(kept))
	for _, msg := range kept {
		batch = append(batch, grok.Message{
			Sender: msg.Sender,
			SentAt: msg.SentAt,
			Text:   msg.ExtractText(),
		})
	}
	return batch
}

// unionMediaRefs 合并批次内全部媒体 URL 并去重（保持出现顺序）
func unionMediaRefs(kept []*models.QueuedMessage) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, msg := range kept {
		for _, ref := range msg.MediaRefs {
			if ref == "" || seen[ref] {
				continue
			}
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

func messageIDs(kept []*models.QueuedMessage) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(kept))
	for _, msg := range kept {
		ids = append(ids, msg.ID)
	}
	return ids
}

func (s *BatchServiceImpl) tryAcquire(ownerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[ownerID] {
		return false
	}
	s.inFlight[ownerID] = true
	return true
}

func (s *BatchServiceImpl) release(ownerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, ownerID)
}

func (s *BatchServiceImpl) recordFailure(ownerID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount[ownerID]++
	return s.failureCount[ownerID]
}

func (s *BatchServiceImpl) resetFailures(ownerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failureCount, ownerID)
}
