package app

import (
	"context"
	"fmt"

	"blog_bot/internal/config"
	"blog_bot/internal/logger"
	"blog_bot/internal/mongo"
	"blog_bot/internal/telegram"
)

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	MongoDB     *mongo.Client
	TelegramBot *telegram.Bot
}

// New 初始化应用及其所有服务
// 按顺序初始化各个服务，任何服务初始化失败都会返回错误
func New(cfg *config.Config) (*App, error) {
	app := &App{}

	// 初始化 MongoDB
	mongoClient, err := mongo.InitFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	app.MongoDB = mongoClient
	logger.L().Info("MongoDB initialized successfully")

	// 初始化 Telegram Bot（含分类器与发布目标客户端）
	telegramBot, err := telegram.InitFromConfig(cfg, mongoClient.Database())
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init Telegram bot failed: %w", err)
	}
	app.TelegramBot = telegramBot

	return app, nil
}

// Run 启动所有后台服务并阻塞至 context 取消
func (a *App) Run(ctx context.Context) error {
	return a.TelegramBot.Start(ctx)
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) error {
	if a.TelegramBot != nil {
		if err := a.TelegramBot.Stop(ctx); err != nil {
			logger.L().Warnf("Failed to stop Telegram bot: %v", err)
		}
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			return fmt.Errorf("close MongoDB failed: %w", err)
		}
	}
	return nil
}
