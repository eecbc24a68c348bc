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

// MongoDraftRepository 草稿数据访问层（MongoDB 实现）
type MongoDraftRepository struct {
	collection *mongo.Collection
}

// NewMongoDraftRepository 创建草稿 Repository
func NewMongoDraftRepository(db *mongo.Database) DraftRepository {
	return &MongoDraftRepository{
		collection: db.Collection("drafts"),
	}
}

// Insert 插入草稿
func (r *MongoDraftRepository) Insert(ctx context.Context, draft *models.Draft) error {
	draft.CreatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, draft)
	if err != nil {
		return fmt.Errorf("failed to insert draft: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		draft.ID = oid
	}

	return nil
}

// GetByID 根据 ID 获取草稿
func (r *MongoDraftRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Draft, error) {
	var draft models.Draft
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&draft)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("draft not found: id=%s", id.Hex())
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}

	return &draft, nil
}

// ListByOwner 列出用户的草稿（按创建时间倒序）
func (r *MongoDraftRepository) ListByOwner(ctx context.Context, ownerID int64, limit int64) ([]*models.Draft, error) {
	filter := bson.M{"owner_id": ownerID}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer cursor.Close(ctx)

	var drafts []*models.Draft
	if err := cursor.All(ctx, &drafts); err != nil {
		return nil, fmt.Errorf("failed to decode drafts: %w", err)
	}

	return drafts, nil
}

// UpdateStatus 更新草稿状态
func (r *MongoDraftRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	update := bson.M{"$set": bson.M{"status": status}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update draft status: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("draft not found: id=%s", id.Hex())
	}

	return nil
}

// SetNotionPageID 回填 Notion 页面 ID
func (r *MongoDraftRepository) SetNotionPageID(ctx context.Context, id primitive.ObjectID, pageID string) error {
	update := bson.M{"$set": bson.M{"notion_page_id": pageID}}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to set notion page id: %w", err)
	}

	return nil
}

// SetTelegraphURL 回填 Telegraph 页面 URL
func (r *MongoDraftRepository) SetTelegraphURL(ctx context.Context, id primitive.ObjectID, url string) error {
	update := bson.M{"$set": bson.M{"telegraph_url": url}}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to set telegraph url: %w", err)
	}

	return nil
}

// MarkPublished 标记草稿已发布
func (r *MongoDraftRepository) MarkPublished(ctx context.Context, id primitive.ObjectID, publishedAt time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"status":       models.DraftStatusPublished,
			"published_at": publishedAt,
		},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark draft published: %w", err)
	}

	return nil
}

// UpdateBody 仅更新草稿正文，状态保持不变
func (r *MongoDraftRepository) UpdateBody(ctx context.Context, id primitive.ObjectID, body string) error {
	update := bson.M{"$set": bson.M{"body": body}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update draft body: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("draft not found: id=%s", id.Hex())
	}

	return nil
}

// Delete 删除草稿（人工拒绝）
func (r *MongoDraftRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}

	if result.DeletedCount == 0 {
		return fmt.Errorf("draft not found: id=%s", id.Hex())
	}

	return nil
}

// CountByStatus 按状态统计草稿数量
func (r *MongoDraftRepository) CountByStatus(ctx context.Context, ownerID int64) (map[string]int64, error) {
	pipeline := []bson.M{
		{
			"$match": bson.M{"owner_id": ownerID},
		},
		{
			"$group": bson.M{
				"_id":   "$status",
				"count": bson.M{"$sum": 1},
			},
		},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count drafts by status: %w", err)
	}
	defer cursor.Close(ctx)

	result := make(map[string]int64)
	for cursor.Next(ctx) {
		var doc struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode count result: %w", err)
		}
		result[doc.ID] = doc.Count
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return result, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoDraftRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
