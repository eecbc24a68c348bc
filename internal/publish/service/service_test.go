package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"blog_bot/internal/publish/notion"
	"blog_bot/internal/publish/telegraph"
	"blog_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeDraftRepo struct {
	drafts map[primitive.ObjectID]*models.Draft
}

func newFakeDraftRepo(drafts ...*models.Draft) *fakeDraftRepo {
	repo := &fakeDraftRepo{drafts: make(map[primitive.ObjectID]*models.Draft)}
	for _, d := range drafts {
		repo.drafts[d.ID] = d
	}
	return repo
}

func (r *fakeDraftRepo) Insert(ctx context.Context, draft *models.Draft) error {
	if draft.ID.IsZero() {
		draft.ID = primitive.NewObjectID()
	}
	r.drafts[draft.ID] = draft
	return nil
}

func (r *fakeDraftRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Draft, error) {
	draft, ok := r.drafts[id]
	if !ok {
		return nil, fmt.Errorf("draft not found")
	}
	copied := *draft
	return &copied, nil
}

func (r *fakeDraftRepo) ListByOwner(ctx context.Context, ownerID int64, limit int64) ([]*models.Draft, error) {
	var out []*models.Draft
	for _, d := range r.drafts {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDraftRepo) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	r.drafts[id].Status = status
	return nil
}

func (r *fakeDraftRepo) SetNotionPageID(ctx context.Context, id primitive.ObjectID, pageID string) error {
	r.drafts[id].NotionPageID = pageID
	return nil
}

func (r *fakeDraftRepo) SetTelegraphURL(ctx context.Context, id primitive.ObjectID, url string) error {
	r.drafts[id].TelegraphURL = url
	return nil
}

func (r *fakeDraftRepo) MarkPublished(ctx context.Context, id primitive.ObjectID, publishedAt time.Time) error {
	r.drafts[id].Status = models.DraftStatusPublished
	r.drafts[id].PublishedAt = &publishedAt
	return nil
}

func (r *fakeDraftRepo) UpdateBody(ctx context.Context, id primitive.ObjectID, body string) error {
	r.drafts[id].Body = body
	return nil
}

func (r *fakeDraftRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	delete(r.drafts, id)
	return nil
}

func (r *fakeDraftRepo) CountByStatus(ctx context.Context, ownerID int64) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, d := range r.drafts {
		if d.OwnerID == ownerID {
			counts[d.Status]++
		}
	}
	return counts, nil
}

func (r *fakeDraftRepo) EnsureIndexes(ctx context.Context) error { return nil }

type fakePrefsRepo struct {
	prefs map[int64]*models.UserPreferences
}

func newFakePrefsRepo(prefs ...*models.UserPreferences) *fakePrefsRepo {
	repo := &fakePrefsRepo{prefs: make(map[int64]*models.UserPreferences)}
	for _, p := range prefs {
		repo.prefs[p.OwnerID] = p
	}
	return repo
}

func (r *fakePrefsRepo) EnsureDefaults(ctx context.Context, ownerID int64) (*models.UserPreferences, error) {
	if p, ok := r.prefs[ownerID]; ok {
		return p, nil
	}
	p := &models.UserPreferences{OwnerID: ownerID, WindowMinutes: models.DefaultWindowMinutes}
	r.prefs[ownerID] = p
	return p, nil
}

func (r *fakePrefsRepo) GetByOwner(ctx context.Context, ownerID int64) (*models.UserPreferences, error) {
	p, ok := r.prefs[ownerID]
	if !ok {
		return nil, fmt.Errorf("preferences not found")
	}
	return p, nil
}

func (r *fakePrefsRepo) ListOwnerIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id := range r.prefs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakePrefsRepo) SetAutoPublish(ctx context.Context, ownerID int64, enabled bool) error {
	r.prefs[ownerID].AutoPublish = enabled
	return nil
}

func (r *fakePrefsRepo) SetWindowMinutes(ctx context.Context, ownerID int64, minutes int) error {
	r.prefs[ownerID].WindowMinutes = minutes
	return nil
}

func (r *fakePrefsRepo) SetNotionConfig(ctx context.Context, ownerID int64, cfg *models.NotionConfig) error {
	r.prefs[ownerID].Notion = cfg
	return nil
}

func (r *fakePrefsRepo) SetTelegraphConfig(ctx context.Context, ownerID int64, cfg *models.TelegraphConfig) error {
	r.prefs[ownerID].Telegraph = cfg
	return nil
}

func (r *fakePrefsRepo) SetPendingAction(ctx context.Context, ownerID int64, action string, draftID primitive.ObjectID) error {
	r.prefs[ownerID].PendingAction = action
	r.prefs[ownerID].PendingDraftID = draftID
	return nil
}

func (r *fakePrefsRepo) ClearPendingAction(ctx context.Context, ownerID int64) error {
	r.prefs[ownerID].PendingAction = models.PendingNone
	r.prefs[ownerID].PendingDraftID = primitive.NilObjectID
	return nil
}

func (r *fakePrefsRepo) EnsureIndexes(ctx context.Context) error { return nil }

type fakeNotionSink struct {
	calls  int
	pageID string
	err    error
}

func (s *fakeNotionSink) CreatePage(ctx context.Context, creds notion.Credentials, page notion.Page) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.pageID, nil
}

type fakeTelegraphSink struct {
	calls int
	url   string
	err   error
}

func (s *fakeTelegraphSink) CreatePage(ctx context.Context, accessToken string, page telegraph.Page) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Notify(ctx context.Context, ownerID int64, text string) {
	n.messages = append(n.messages, text)
}

func bothSinksPrefs(ownerID int64) *models.UserPreferences {
	return &models.UserPreferences{
		OwnerID:   ownerID,
		Notion:    &models.NotionConfig{Token: "t", DatabaseID: "db"},
		Telegraph: &models.TelegraphConfig{AccessToken: "at"},
	}
}

func TestPublishBothSinksSucceed(t *testing.T) {
	draft := &models.Draft{
		ID:      primitive.NewObjectID(),
		OwnerID: 100,
		Title:   "标题",
		Body:    "正文",
		Status:  models.DraftStatusPending,
	}
	draftRepo := newFakeDraftRepo(draft)
	notionSink := &fakeNotionSink{pageID: "page-1"}
	telegraphSink := &fakeTelegraphSink{url: "https://telegra.ph/p"}
	notifier := &fakeNotifier{}

	publisher := NewPublisher(draftRepo, newFakePrefsRepo(bothSinksPrefs(100)), notionSink, telegraphSink, notifier)

	if err := publisher.Publish(context.Background(), draft.ID, 100); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	stored := draftRepo.drafts[draft.ID]
	if stored.Status != models.DraftStatusPublished {
		t.Fatalf("unexpected status: %q", stored.Status)
	}
	if stored.NotionPageID != "page-1" || stored.TelegraphURL != "https://telegra.ph/p" {
		t.Fatalf("external ids not recorded: %+v", stored)
	}
	if stored.PublishedAt == nil {
		t.Fatalf("published_at not set")
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "发布成功") {
		t.Fatalf("unexpected notifications: %v", notifier.messages)
	}
}

func TestPublishPartialFailureThenRetry(t *testing.T) {
	draft := &models.Draft{
		ID:      primitive.NewObjectID(),
		OwnerID: 100,
		Title:   "标题",
		Body:    "正文",
		Status:  models.DraftStatusPending,
	}
	draftRepo := newFakeDraftRepo(draft)
	notionSink := &fakeNotionSink{pageID: "page-1"}
	telegraphSink := &fakeTelegraphSink{err: fmt.Errorf("flood wait")}
	notifier := &fakeNotifier{}

	publisher := NewPublisher(draftRepo, newFakePrefsRepo(bothSinksPrefs(100)), notionSink, telegraphSink, notifier)

	if err := publisher.Publish(context.Background(), draft.ID, 100); err == nil {
		t.Fatalf("expected error on partial failure")
	}

	stored := draftRepo.drafts[draft.ID]
	if stored.Status != models.DraftStatusFailed {
		t.Fatalf("unexpected status after partial failure: %q", stored.Status)
	}
	// 已成功的目标保留外部 ID
	if stored.NotionPageID != "page-1" {
		t.Fatalf("notion page id was not preserved: %+v", stored)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "发布失败") {
		t.Fatalf("unexpected notifications: %v", notifier.messages)
	}

	// 重试：已发布的目标必须跳过，只重试失败的目标
	telegraphSink.err = nil
	telegraphSink.url = "https://telegra.ph/p"

	if err := publisher.Publish(context.Background(), draft.ID, 100); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if notionSink.calls != 1 {
		t.Fatalf("notion must not be called again, calls=%d", notionSink.calls)
	}
	if telegraphSink.calls != 2 {
		t.Fatalf("telegraph should be retried, calls=%d", telegraphSink.calls)
	}

	stored = draftRepo.drafts[draft.ID]
	if stored.Status != models.DraftStatusPublished || stored.TelegraphURL == "" {
		t.Fatalf("retry did not complete publish: %+v", stored)
	}
}

func TestPublishDraftNotFound(t *testing.T) {
	notionSink := &fakeNotionSink{pageID: "p"}
	publisher := NewPublisher(newFakeDraftRepo(), newFakePrefsRepo(bothSinksPrefs(100)),
		notionSink, &fakeTelegraphSink{url: "u"}, &fakeNotifier{})

	// 草稿缺失按无操作处理
	if err := publisher.Publish(context.Background(), primitive.NewObjectID(), 100); err != nil {
		t.Fatalf("missing draft should be a no-op, got: %v", err)
	}
	if notionSink.calls != 0 {
		t.Fatalf("no sink should be called for missing draft")
	}
}

func TestPublishOwnerMismatch(t *testing.T) {
	draft := &models.Draft{ID: primitive.NewObjectID(), OwnerID: 100, Status: models.DraftStatusPending}
	draftRepo := newFakeDraftRepo(draft)
	notionSink := &fakeNotionSink{pageID: "p"}

	publisher := NewPublisher(draftRepo, newFakePrefsRepo(bothSinksPrefs(200)),
		notionSink, &fakeTelegraphSink{url: "u"}, &fakeNotifier{})

	if err := publisher.Publish(context.Background(), draft.ID, 200); err != nil {
		t.Fatalf("owner mismatch should be a no-op, got: %v", err)
	}
	if notionSink.calls != 0 {
		t.Fatalf("no sink should be called on owner mismatch")
	}
	if draftRepo.drafts[draft.ID].Status != models.DraftStatusPending {
		t.Fatalf("status must not change on owner mismatch")
	}
}

func TestPublishNoSinksConfigured(t *testing.T) {
	draft := &models.Draft{ID: primitive.NewObjectID(), OwnerID: 100, Title: "t", Status: models.DraftStatusPending}
	draftRepo := newFakeDraftRepo(draft)
	notifier := &fakeNotifier{}

	publisher := NewPublisher(draftRepo,
		newFakePrefsRepo(&models.UserPreferences{OwnerID: 100}),
		&fakeNotionSink{}, &fakeTelegraphSink{}, notifier)

	if err := publisher.Publish(context.Background(), draft.ID, 100); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// 未配置任何目标仍视为发布完成
	if draftRepo.drafts[draft.ID].Status != models.DraftStatusPublished {
		t.Fatalf("unexpected status: %q", draftRepo.drafts[draft.ID].Status)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "未配置发布目标") {
		t.Fatalf("unexpected notifications: %v", notifier.messages)
	}
}
