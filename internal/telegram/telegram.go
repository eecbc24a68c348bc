package telegram

import (
	"context"
	"fmt"
	"time"

	"blog_bot/internal/ai/grok"
	"blog_bot/internal/config"
	"blog_bot/internal/logger"
	"blog_bot/internal/publish/notion"
	publishservice "blog_bot/internal/publish/service"
	"blog_bot/internal/publish/telegraph"
	"blog_bot/internal/telegram/repository"
	"blog_bot/internal/telegram/service"

	"github.com/go-telegram/bot"
	"go.mongodb.org/mongo-driver/mongo"
)

// Config Telegram Bot 配置
type Config struct {
	Token                string        // Bot Token
	AuthorizedIDs        []int64       // 授权用户 IDs
	BatchInterval        time.Duration // 批处理轮询间隔
	MessageRetentionDays int           // 队列消息保留天数
	Debug                bool          // 是否开启调试模式
}

// Bot Telegram Bot 服务
type Bot struct {
	bot        *bot.Bot
	db         *mongo.Database
	authorized map[int64]bool
	startTime  time.Time

	queueRepo  repository.QueuedMessageRepository
	sourceRepo repository.SourceRepository
	draftRepo  repository.DraftRepository
	prefsRepo  repository.PreferencesRepository

	prefService   service.PreferenceService
	sourceService service.SourceService
	draftService  service.DraftService
	ingestService service.IngestService
	batchService  service.BatchProcessor
	publisher     publishservice.Publisher

	workerPool *WorkerPool
	scheduler  *batchScheduler

	retentionDays int
}

// New 创建 Telegram Bot 实例
func New(cfg Config, db *mongo.Database, classifier service.Classifier, notionSink publishservice.NotionSink, telegraphSink publishservice.TelegraphSink) (*Bot, error) {
	// 验证配置
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}
	if len(cfg.AuthorizedIDs) == 0 {
		return nil, fmt.Errorf("authorized user list cannot be empty")
	}

	// 创建 repositories
	queueRepo := repository.NewMongoQueuedMessageRepository(db)
	sourceRepo := repository.NewMongoSourceRepository(db)
	draftRepo := repository.NewMongoDraftRepository(db)
	prefsRepo := repository.NewMongoPreferencesRepository(db)

	authorized := make(map[int64]bool, len(cfg.AuthorizedIDs))
	for _, id := range cfg.AuthorizedIDs {
		authorized[id] = true
	}

	telegramBot := &Bot{
		db:            db,
		authorized:    authorized,
		startTime:     time.Now(),
		queueRepo:     queueRepo,
		sourceRepo:    sourceRepo,
		draftRepo:     draftRepo,
		prefsRepo:     prefsRepo,
		retentionDays: cfg.MessageRetentionDays,
	}

	// 创建 bot 实例：未命中命令的更新全部进入入队处理器
	opts := []bot.Option{
		bot.WithDefaultHandler(telegramBot.handleDefault),
	}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	telegramBot.bot = b

	// 创建 services（发布通知与媒体解析由 Bot 自身实现）
	telegramBot.publisher = publishservice.NewPublisher(draftRepo, prefsRepo, notionSink, telegraphSink, telegramBot)
	telegramBot.prefService = service.NewPreferenceService(prefsRepo)
	telegramBot.sourceService = service.NewSourceService(sourceRepo)
	telegramBot.draftService = service.NewDraftService(draftRepo, telegramBot.publisher)
	telegramBot.ingestService = service.NewIngestService(sourceRepo, queueRepo, telegramBot)
	telegramBot.batchService = service.NewBatchService(
		prefsRepo, sourceRepo, queueRepo, draftRepo, classifier, telegramBot.publisher, telegramBot)

	// 创建工作池与批处理调度器
	telegramBot.workerPool = NewWorkerPool(8, 64)
	telegramBot.scheduler = newBatchScheduler(telegramBot.batchService, cfg.BatchInterval)

	// 注册 handlers
	telegramBot.registerHandlers()

	// 初始化数据库索引
	if err := telegramBot.ensureIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	logger.L().Info("Telegram bot initialized successfully")
	return telegramBot, nil
}

// InitFromConfig 从应用配置初始化 Telegram Bot 及其外部依赖
func InitFromConfig(cfg *config.Config, db *mongo.Database) (*Bot, error) {
	classifier, err := grok.NewClient(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	telegramCfg := Config{
		Token:                cfg.TelegramToken,
		AuthorizedIDs:        cfg.AuthorizedIDs,
		BatchInterval:        cfg.BatchInterval,
		MessageRetentionDays: cfg.MessageRetentionDays,
	}

	return New(telegramCfg, db, classifier,
		notion.NewClient(cfg.SinkTimeout),
		telegraph.NewClient(cfg.SinkTimeout))
}

// Start 启动 Bot（阻塞式，应在 goroutine 中运行）
func (b *Bot) Start(ctx context.Context) error {
	b.scheduler.start()
	logger.L().Info("Starting Telegram bot...")
	b.bot.Start(ctx)
	logger.L().Info("Telegram bot stopped")
	return nil
}

// Stop 停止 Bot 及其后台任务
func (b *Bot) Stop(ctx context.Context) error {
	logger.L().Info("Stopping Telegram bot...")
	b.scheduler.stop()
	b.workerPool.Shutdown()
	return nil
}

// Notify 向用户私聊回送通知（尽力而为）
func (b *Bot) Notify(ctx context.Context, ownerID int64, text string) {
	b.sendMessage(ctx, ownerID, text)
}

// Resolve 将 Telegram 文件 ID 解析为可下载 URL
func (b *Bot) Resolve(ctx context.Context, fileID string) (string, error) {
	file, err := b.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file %s: %w", fileID, err)
	}

	link := b.bot.FileDownloadLink(file)
	if link == "" {
		return "", fmt.Errorf("empty download link for file %s", fileID)
	}

	return link, nil
}

// isAuthorized 用户是否在授权列表中
func (b *Bot) isAuthorized(userID int64) bool {
	return b.authorized[userID]
}

// ensureIndexes 确保所有数据库索引存在
func (b *Bot) ensureIndexes(ctx context.Context) error {
	retentionSeconds := int32(b.retentionDays * 24 * 3600)
	if err := b.queueRepo.EnsureIndexes(ctx, retentionSeconds); err != nil {
		return fmt.Errorf("failed to ensure queue indexes: %w", err)
	}
	logger.L().Debug("Queued message indexes ensured")

	if err := b.sourceRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure source indexes: %w", err)
	}
	logger.L().Debug("Source indexes ensured")

	if err := b.draftRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure draft indexes: %w", err)
	}
	logger.L().Debug("Draft indexes ensured")

	if err := b.prefsRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure preferences indexes: %w", err)
	}
	logger.L().Debug("Preferences indexes ensured")

	return nil
}
