package repository

import (
	"context"
	"fmt"
	"time"

	"blog_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSourceRepository 监控源数据访问层（MongoDB 实现）
type MongoSourceRepository struct {
	collection *mongo.Collection
}

// NewMongoSourceRepository 创建监控源 Repository
func NewMongoSourceRepository(db *mongo.Database) SourceRepository {
	return &MongoSourceRepository{
		collection: db.Collection("sources"),
	}
}

// CreateOrActivate 创建监控源，已存在时重新激活并刷新标题
func (r *MongoSourceRepository) CreateOrActivate(ctx context.Context, source *models.Source) error {
	now := time.Now()

	filter := bson.M{
		"owner_id":  source.OwnerID,
		"chat_id":   source.ChatID,
		"thread_id": source.ThreadID,
	}

	update := bson.M{
		"$set": bson.M{
			"title":      source.Title,
			"kind":       source.Kind,
			"active":     true,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	return nil
}

// Deactivate 停用监控源（不删除）
func (r *MongoSourceRepository) Deactivate(ctx context.Context, ownerID, chatID int64, threadID int) error {
	filter := bson.M{
		"owner_id":  ownerID,
		"chat_id":   chatID,
		"thread_id": threadID,
	}

	update := bson.M{
		"$set": bson.M{
			"active":     false,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to deactivate source: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("source not found: owner_id=%d, chat_id=%d", ownerID, chatID)
	}

	return nil
}

// ListActiveByOwner 列出用户的所有活跃监控源
func (r *MongoSourceRepository) ListActiveByOwner(ctx context.Context, ownerID int64) ([]*models.Source, error) {
	filter := bson.M{
		"owner_id": ownerID,
		"active":   true,
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources by owner: %w", err)
	}
	defer cursor.Close(ctx)

	var sources []*models.Source
	if err := cursor.All(ctx, &sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources: %w", err)
	}

	return sources, nil
}

// ListActiveByChat 列出命中指定聊天的活跃监控源
func (r *MongoSourceRepository) ListActiveByChat(ctx context.Context, chatID int64) ([]*models.Source, error) {
	filter := bson.M{
		"chat_id": chatID,
		"active":  true,
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources by chat: %w", err)
	}
	defer cursor.Close(ctx)

	var sources []*models.Source
	if err := cursor.All(ctx, &sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources: %w", err)
	}

	return sources, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoSourceRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "chat_id", Value: 1},
				{Key: "thread_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "chat_id", Value: 1},
				{Key: "active", Value: 1},
			},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
