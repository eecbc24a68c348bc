package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"blog_bot/internal/ai/grok"
	"blog_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeQueueRepo struct {
	rows      []*models.QueuedMessage
	processed map[primitive.ObjectID]bool
	markErr   error
}

func newFakeQueueRepo(rows ...*models.QueuedMessage) *fakeQueueRepo {
	return &fakeQueueRepo{rows: rows, processed: make(map[primitive.ObjectID]bool)}
}

func (r *fakeQueueRepo) InsertIfAbsent(ctx context.Context, message *models.QueuedMessage) error {
	r.rows = append(r.rows, message)
	return nil
}

func (r *fakeQueueRepo) ListUnprocessedBySources(ctx context.Context, sourceIDs []primitive.ObjectID) ([]*models.QueuedMessage, error) {
	wanted := make(map[primitive.ObjectID]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		wanted[id] = true
	}
	var out []*models.QueuedMessage
	for _, row := range r.rows {
		if !r.processed[row.ID] && wanted[row.SourceID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeQueueRepo) MarkProcessed(ctx context.Context, ids []primitive.ObjectID) error {
	if r.markErr != nil {
		return r.markErr
	}
	for _, id := range ids {
		r.processed[id] = true
	}
	return nil
}

func (r *fakeQueueRepo) CountUnprocessed(ctx context.Context) (int64, error) {
	var n int64
	for _, row := range r.rows {
		if !r.processed[row.ID] {
			n++
		}
	}
	return n, nil
}

func (r *fakeQueueRepo) EnsureIndexes(ctx context.Context, retentionSeconds int32) error { return nil }

type fakeSourceRepo struct {
	sources []*models.Source
}

func (r *fakeSourceRepo) CreateOrActivate(ctx context.Context, source *models.Source) error {
	r.sources = append(r.sources, source)
	return nil
}

func (r *fakeSourceRepo) Deactivate(ctx context.Context, ownerID, chatID int64, threadID int) error {
	return nil
}

func (r *fakeSourceRepo) ListActiveByOwner(ctx context.Context, ownerID int64) ([]*models.Source, error) {
	var out []*models.Source
	for _, s := range r.sources {
		if s.OwnerID == ownerID && s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSourceRepo) ListActiveByChat(ctx context.Context, chatID int64) ([]*models.Source, error) {
	var out []*models.Source
	for _, s := range r.sources {
		if s.ChatID == chatID && s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSourceRepo) EnsureIndexes(ctx context.Context) error { return nil }

type fakeDraftStore struct {
	inserted []*models.Draft
}

func (r *fakeDraftStore) Insert(ctx context.Context, draft *models.Draft) error {
	draft.ID = primitive.NewObjectID()
	r.inserted = append(r.inserted, draft)
	return nil
}

func (r *fakeDraftStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Draft, error) {
	for _, d := range r.inserted {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("draft not found")
}

func (r *fakeDraftStore) ListByOwner(ctx context.Context, ownerID int64, limit int64) ([]*models.Draft, error) {
	return r.inserted, nil
}

func (r *fakeDraftStore) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	return nil
}

func (r *fakeDraftStore) SetNotionPageID(ctx context.Context, id primitive.ObjectID, pageID string) error {
	return nil
}

func (r *fakeDraftStore) SetTelegraphURL(ctx context.Context, id primitive.ObjectID, url string) error {
	return nil
}

func (r *fakeDraftStore) MarkPublished(ctx context.Context, id primitive.ObjectID, publishedAt time.Time) error {
	return nil
}

func (r *fakeDraftStore) UpdateBody(ctx context.Context, id primitive.ObjectID, body string) error {
	return nil
}

func (r *fakeDraftStore) Delete(ctx context.Context, id primitive.ObjectID) error { return nil }

func (r *fakeDraftStore) CountByStatus(ctx context.Context, ownerID int64) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (r *fakeDraftStore) EnsureIndexes(ctx context.Context) error { return nil }

type fakePrefsStore struct {
	prefs map[int64]*models.UserPreferences
}

func newFakePrefsStore(prefs ...*models.UserPreferences) *fakePrefsStore {
	store := &fakePrefsStore{prefs: make(map[int64]*models.UserPreferences)}
	for _, p := range prefs {
		store.prefs[p.OwnerID] = p
	}
	return store
}

func (r *fakePrefsStore) EnsureDefaults(ctx context.Context, ownerID int64) (*models.UserPreferences, error) {
	if p, ok := r.prefs[ownerID]; ok {
		return p, nil
	}
	p := &models.UserPreferences{OwnerID: ownerID, WindowMinutes: models.DefaultWindowMinutes}
	r.prefs[ownerID] = p
	return p, nil
}

func (r *fakePrefsStore) GetByOwner(ctx context.Context, ownerID int64) (*models.UserPreferences, error) {
	p, ok := r.prefs[ownerID]
	if !ok {
		return nil, fmt.Errorf("preferences not found")
	}
	return p, nil
}

func (r *fakePrefsStore) ListOwnerIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id := range r.prefs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakePrefsStore) SetAutoPublish(ctx context.Context, ownerID int64, enabled bool) error {
	return nil
}

func (r *fakePrefsStore) SetWindowMinutes(ctx context.Context, ownerID int64, minutes int) error {
	return nil
}

func (r *fakePrefsStore) SetNotionConfig(ctx context.Context, ownerID int64, cfg *models.NotionConfig) error {
	return nil
}

func (r *fakePrefsStore) SetTelegraphConfig(ctx context.Context, ownerID int64, cfg *models.TelegraphConfig) error {
	return nil
}

func (r *fakePrefsStore) SetPendingAction(ctx context.Context, ownerID int64, action string, draftID primitive.ObjectID) error {
	return nil
}

func (r *fakePrefsStore) ClearPendingAction(ctx context.Context, ownerID int64) error { return nil }

func (r *fakePrefsStore) EnsureIndexes(ctx context.Context) error { return nil }

type fakeClassifier struct {
	decision *grok.Decision
	err      error
	batches  [][]grok.Message
}

func (c *fakeClassifier) ClassifyBatch(ctx context.Context, batch []grok.Message) (*grok.Decision, error) {
	c.batches = append(c.batches, batch)
	if c.err != nil {
		return nil, c.err
	}
	return c.decision, nil
}

type fakePublisher struct {
	calls []primitive.ObjectID
	err   error
}

func (p *fakePublisher) Publish(ctx context.Context, draftID primitive.ObjectID, ownerID int64) error {
	p.calls = append(p.calls, draftID)
	return p.err
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, ownerID int64, text string) {
	n.messages = append(n.messages, text)
}

type batchFixture struct {
	service   *BatchServiceImpl
	queue     *fakeQueueRepo
	sources   *fakeSourceRepo
	drafts    *fakeDraftStore
	prefs     *fakePrefsStore
	classify  *fakeClassifier
	publisher *fakePublisher
	notifier  *recordingNotifier
	now       time.Time
	sourceID  primitive.ObjectID
}

func newBatchFixture(prefs *models.UserPreferences, rows ...*models.QueuedMessage) *batchFixture {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sourceID := primitive.NewObjectID()
	for _, row := range rows {
		row.SourceID = sourceID
	}

	f := &batchFixture{
		queue: newFakeQueueRepo(rows...),
		sources: &fakeSourceRepo{sources: []*models.Source{
			{ID: sourceID, OwnerID: prefs.OwnerID, ChatID: -100, Active: true},
		}},
		drafts: &fakeDraftStore{},
		prefs:  newFakePrefsStore(prefs),
		classify: &fakeClassifier{decision: &grok.Decision{
			IsInformational: true,
			ShouldCombine:   true,
			SuggestedTitle:  "建议标题",
			CombinedContent: "整理后的正文",
		}},
		publisher: &fakePublisher{},
		notifier:  &recordingNotifier{},
		now:       now,
		sourceID:  sourceID,
	}

	f.service = NewBatchService(f.prefs, f.sources, f.queue, f.drafts,
		f.classify, f.publisher, f.notifier,
		WithNowFunc(func() time.Time { return f.now }))
	return f
}

func queuedAt(id primitive.ObjectID, sentAt time.Time, text string) *models.QueuedMessage {
	return &models.QueuedMessage{
		ID:     id,
		Kind:   models.MessageKindText,
		Sender: "Alice",
		Text:   text,
		SentAt: sentAt,
	}
}

func TestProcessOwnerWindowFilter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := queuedAt(primitive.NewObjectID(), now.Add(-time.Minute), "fresh")
	stale1 := queuedAt(primitive.NewObjectID(), now.Add(-6*time.Minute), "stale1")
	stale2 := queuedAt(primitive.NewObjectID(), now.Add(-10*time.Minute), "stale2")

	f := newBatchFixture(&models.UserPreferences{OwnerID: 1, WindowMinutes: 5}, fresh, stale1, stale2)

	if err := f.service.ProcessOwner(context.Background(), 1); err != nil {
		t.Fatalf("ProcessOwner failed: %v", err)
	}

	if len(f.classify.batches) != 1 {
		t.Fatalf("expected one classification call, got %d", len(f.classify.batches))
	}
	if len(f.classify.batches[0]) != 1 || f.classify.batches[0][0].Text != "fresh" {
		t.Fatalf("window filter passed wrong batch: %+v", f.classify.batches[0])
	}

	// 窗口外的消息保持未处理，等待后续轮次
	if f.queue.processed[stale1.ID] || f.queue.processed[stale2.ID] {
		t.Fatalf("stale messages must stay unprocessed")
	}
	if !f.queue.processed[fresh.ID] {
		t.Fatalf("fresh message should be marked processed")
	}
}

func TestProcessOwnerNotInformational(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	row := queuedAt(primitive.NewObjectID(), now.Add(-time.Minute), "嗯嗯")

	f := newBatchFixture(&models.UserPreferences{OwnerID: 1, WindowMinutes: 10}, row)
	f.classify.decision = &grok.Decision{IsInformational: false, ShouldCombine: false}

	if err := f.service.ProcessOwner(context.Background(), 1); err != nil {
		t.Fatalf("ProcessOwner failed: %v", err)
	}

	if len(f.drafts.inserted) != 0 {
		t.Fatalf("no draft should be created for non-informational batch")
	}
	if !f.queue.processed[row.ID] {
		t.Fatalf("non-informational messages should still be marked processed")
	}
	if len(f.publisher.calls) != 0 {
		t.Fatalf("publisher must not be called")
	}
}

func TestProcessOwnerCreatesPendingDraft(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	row := queuedAt(primitive.NewObjectID(), now.Add(-time.Minute), "今天发布了新版本")
	row.MediaRefs = []string{"https://example.com/a.jpg"}

	f := newBatchFixture(&models.UserPreferences{OwnerID: 1, WindowMinutes: 10, AutoPublish: false}, row)

	if err := f.service.ProcessOwner(context.Background(), 1); err != nil {
		t.Fatalf("ProcessOwner failed: %v", err)
	}

	if len(f.drafts.inserted) != 1 {
		t.Fatalf("expected one draft, got %d", len(f.drafts.inserted))
	}
	draft := f.drafts.inserted[0]
	if draft.Title != "建议标题" || draft.Body != "整理后的正文" {
		t.Fatalf("draft should use classifier output: %+v", draft)
	}
	if draft.Status != models.DraftStatusPending {
		t.Fatalf("draft should await review, got status %q", draft.Status)
	}
	if len(draft.MediaRefs) != 1 || len(draft.SourceMessageIDs) != 1 {
		t.Fatalf("draft should carry media refs and source ids: %+v", draft)
	}
	if len(f.publisher.calls) != 0 {
		t.Fatalf("publisher must not be called when auto publish is off")
	}
	if len(f.notifier.messages) != 1 || !strings.Contains(f.notifier.messages[0], "新草稿") {
		t.Fatalf("owner should be notified about the new draft: %v", f.notifier.messages)
	}
}

func TestProcessOwnerAutoPublish(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	row := queuedAt(primitive.NewObjectID(), now.Add(-time.Minute), "发布公告")

	f := newBatchFixture(&models.UserPreferences{OwnerID: 1, WindowMinutes: 10, AutoPublish: true}, row)

	if err := f.service.ProcessOwner(context.Background(), 1); err != nil {
		t.Fatalf("ProcessOwner failed: %v", err)
	}

	if len(f.drafts.inserted) != 1 {
		t.Fatalf("expected one draft, got %d", len(f.drafts.inserted))
	}
	if f.drafts.inserted[0].Status != models.DraftStatusPublishing {
		t.Fatalf("auto publish draft should start as publishing, got %q", f.drafts.inserted[0].Status)
	}
	if len(f.publisher.calls) != 1 || f.publisher.calls[0] != f.drafts.inserted[0].ID {
		t.Fatalf("publisher should be called with the new draft: %v", f.publisher.calls)
	}
}

func TestProcessOwnerAutoPublishFailureKeepsDraft(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	row := queuedAt(primitive.NewObjectID(), now.Add(-time.Minute), "发布公告")

	f := newBatchFixture(&models.UserPreferences{OwnerID: 1, WindowMinutes: 10, AutoPublish: true}, row)
	f.publisher.err = fmt.Errorf("sink unavailable")

	// 发布失败不应让整轮处理报错，草稿与已处理标记保持不变
	if err := f.service.ProcessOwner(context.Background(), 1); err != nil {
		t.Fatalf("publish failure must not fail the batch: %v", err)
	}
	if len(f.drafts.inserted) != 1 {
		t.Fatalf("draft should survive publish failure")
	}
	if !f.queue.processed[row.ID] {
		t.Fatalf("messages should stay processed after publish failure")
	}
}

func TestProcessOwnerFallbackTitleAndBody(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	row := queuedAt(primitive.NewObjectID(), now.Add(-time.Minute), "内容")

	f := newBatchFixture(&models.UserPreferences{OwnerID: 1, WindowMinutes: 10}, row)
	f.classify.decision = &grok.Decision{IsInformational: true, ShouldCombine: true}

	if err := f.service.ProcessOwner(context.Background(), 1); err != nil {
		t.Fatalf("ProcessOwner failed: %v", err)
	}

	draft := f.drafts.inserted[0]
	if draft.Title != "2025-03-01 消息整理" {
		t.Fatalf("unexpected fallback title: %q", draft.Title)
	}
	if draft.Body != "Alice (2025-03-01 11:59:00): 内容" {
		t.Fatalf("unexpected fallback body: %q", draft.Body)
	}
}

func TestProcessOwnerFormatErrorRetriesThenGivesUp(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	row := queuedAt(primitive.NewObjectID(), now.Add(-time.Minute), "内容")

	f := newBatchFixture(&models.UserPreferences{OwnerID: 1, WindowMinutes: 10}, row)
	f.classify.err = &grok.FormatError{Reason: "no JSON object found in response"}

	// 前两次失败：返回错误且消息保持未处理
	for attempt := 1; attempt < maxClassifyFailures; attempt++ {
		if err := f.service.ProcessOwner(context.Background(), 1); err == nil {
			t.Fatalf("attempt %d should return an error", attempt)
		}
		if f.queue.processed[row.ID] {
			t.Fatalf("messages must stay unprocessed before the failure threshold")
		}
	}

	// 第三次失败：放弃该批消息并通知用户
	if err := f.service.ProcessOwner(context.Background(), 1); err != nil {
		t.Fatalf("final attempt should give up without error: %v", err)
	}
	if !f.queue.processed[row.ID] {
		t.Fatalf("messages should be discarded after repeated failures")
	}
	if len(f.drafts.inserted) != 0 {
		t.Fatalf("no draft should be created for a discarded batch")
	}
	if len(f.notifier.messages) != 1 || !strings.Contains(f.notifier.messages[0], "分类失败") {
		t.Fatalf("owner should be notified about the discarded batch: %v", f.notifier.messages)
	}
}

func TestProcessOwnerTransientErrorKeepsMessages(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	row := queuedAt(primitive.NewObjectID(), now.Add(-time.Minute), "内容")

	f := newBatchFixture(&models.UserPreferences{OwnerID: 1, WindowMinutes: 10}, row)
	f.classify.err = fmt.Errorf("ai http error: status=500")

	// 传输层错误不计入格式失败次数，消息无限期保持未处理
	for i := 0; i < maxClassifyFailures+1; i++ {
		if err := f.service.ProcessOwner(context.Background(), 1); err == nil {
			t.Fatalf("transient error should be surfaced")
		}
	}
	if f.queue.processed[row.ID] {
		t.Fatalf("messages must stay unprocessed on transient errors")
	}
	if len(f.notifier.messages) != 0 {
		t.Fatalf("no notification expected for transient errors")
	}
}

func TestProcessOwnerNoSources(t *testing.T) {
	f := newBatchFixture(&models.UserPreferences{OwnerID: 1, WindowMinutes: 10})
	f.sources.sources = nil

	if err := f.service.ProcessOwner(context.Background(), 1); err != nil {
		t.Fatalf("ProcessOwner failed: %v", err)
	}
	if len(f.classify.batches) != 0 {
		t.Fatalf("classifier must not be called without sources")
	}
}

func TestProcessTickIsolatesOwnerFailures(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rowA := queuedAt(primitive.NewObjectID(), now.Add(-time.Minute), "a")
	f := newBatchFixture(&models.UserPreferences{OwnerID: 1, WindowMinutes: 10}, rowA)

	// 第二个用户没有偏好之外的数据，加载时不应影响第一个用户
	f.prefs.prefs[2] = &models.UserPreferences{OwnerID: 2, WindowMinutes: 10}

	f.service.ProcessTick(context.Background())

	if len(f.drafts.inserted) != 1 {
		t.Fatalf("owner 1 batch should complete, drafts=%d", len(f.drafts.inserted))
	}
}

func TestUnionMediaRefs(t *testing.T) {
	rows := []*models.QueuedMessage{
		{MediaRefs: []string{"a", "b"}},
		{MediaRefs: []string{"b", "", "c"}},
	}

	refs := unionMediaRefs(rows)
	if len(refs) != 3 || refs[0] != "a" || refs[1] != "b" || refs[2] != "c" {
		t.Fatalf("unexpected refs: %v", refs)
	}
}
