package repository

import (
	"context"
	"fmt"
	"time"

	"blog_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoQueuedMessageRepository 消息队列数据访问层（MongoDB 实现）
type MongoQueuedMessageRepository struct {
	collection *mongo.Collection
}

// NewMongoQueuedMessageRepository 创建消息队列 Repository
func NewMongoQueuedMessageRepository(db *mongo.Database) QueuedMessageRepository {
	return &MongoQueuedMessageRepository{
		collection: db.Collection("queued_messages"),
	}
}

// InsertIfAbsent 插入队列消息
// 使用 $setOnInsert + 唯一索引实现幂等：同一 (source_id, message_id) 重复投递不覆盖已有记录
func (r *MongoQueuedMessageRepository) InsertIfAbsent(ctx context.Context, message *models.QueuedMessage) error {
	message.CreatedAt = time.Now()

	filter := bson.M{
		"source_id":  message.SourceID,
		"message_id": message.MessageID,
	}

	update := bson.M{
		"$setOnInsert": bson.M{
			"chat_id":    message.ChatID,
			"kind":       message.Kind,
			"text":       message.Text,
			"caption":    message.Caption,
			"media_refs": message.MediaRefs,
			"sender":     message.Sender,
			"processed":  false,
			"sent_at":    message.SentAt,
			"created_at": message.CreatedAt,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to insert queued message: %w", err)
	}

	return nil
}

// ListUnprocessedBySources 列出指定监控源的未处理消息（按发送时间升序）
func (r *MongoQueuedMessageRepository) ListUnprocessedBySources(ctx context.Context, sourceIDs []primitive.ObjectID) ([]*models.QueuedMessage, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"source_id": bson.M{"$in": sourceIDs},
		"processed": false,
	}

	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.QueuedMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode unprocessed messages: %w", err)
	}

	return messages, nil
}

// MarkProcessed 批量标记消息为已处理
func (r *MongoQueuedMessageRepository) MarkProcessed(ctx context.Context, ids []primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}

	filter := bson.M{"_id": bson.M{"$in": ids}}
	update := bson.M{"$set": bson.M{"processed": true}}

	_, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark messages processed: %w", err)
	}

	return nil
}

// CountUnprocessed 统计未处理消息数量
func (r *MongoQueuedMessageRepository) CountUnprocessed(ctx context.Context) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"processed": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unprocessed messages: %w", err)
	}
	return count, nil
}

// EnsureIndexes 确保索引存在
// retentionSeconds 控制记录按 created_at 过期，批处理流程本身从不删除记录
func (r *MongoQueuedMessageRepository) EnsureIndexes(ctx context.Context, retentionSeconds int32) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "source_id", Value: 1},
				{Key: "message_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "processed", Value: 1},
				{Key: "sent_at", Value: 1},
			},
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(retentionSeconds),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
