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

// MongoPreferencesRepository 用户偏好数据访问层（MongoDB 实现）
type MongoPreferencesRepository struct {
	collection *mongo.Collection
}

// NewMongoPreferencesRepository 创建用户偏好 Repository
func NewMongoPreferencesRepository(db *mongo.Database) PreferencesRepository {
	return &MongoPreferencesRepository{
		collection: db.Collection("user_preferences"),
	}
}

// EnsureDefaults 确保用户偏好存在，不存在时写入默认值并返回最新记录
func (r *MongoPreferencesRepository) EnsureDefaults(ctx context.Context, ownerID int64) (*models.UserPreferences, error) {
	now := time.Now()

	filter := bson.M{"owner_id": ownerID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"auto_publish":   false,
			"window_minutes": models.DefaultWindowMinutes,
			"created_at":     now,
			"updated_at":     now,
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var prefs models.UserPreferences
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&prefs); err != nil {
		return nil, fmt.Errorf("failed to ensure preferences: %w", err)
	}

	return &prefs, nil
}

// GetByOwner 获取用户偏好
func (r *MongoPreferencesRepository) GetByOwner(ctx context.Context, ownerID int64) (*models.UserPreferences, error) {
	var prefs models.UserPreferences
	err := r.collection.FindOne(ctx, bson.M{"owner_id": ownerID}).Decode(&prefs)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("preferences not found: owner_id=%d", ownerID)
		}
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	return &prefs, nil
}

// ListOwnerIDs 列出所有已有偏好记录的用户 ID
func (r *MongoPreferencesRepository) ListOwnerIDs(ctx context.Context) ([]int64, error) {
	values, err := r.collection.Distinct(ctx, "owner_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list owner ids: %w", err)
	}

	ids := make([]int64, 0, len(values))
	for _, value := range values {
		switch v := value.(type) {
		case int64:
			ids = append(ids, v)
		case int32:
			ids = append(ids, int64(v))
		}
	}

	return ids, nil
}

// SetAutoPublish 设置自动发布开关
func (r *MongoPreferencesRepository) SetAutoPublish(ctx context.Context, ownerID int64, enabled bool) error {
	return r.setFields(ctx, ownerID, bson.M{"auto_publish": enabled})
}

// SetWindowMinutes 设置批处理时间窗口
func (r *MongoPreferencesRepository) SetWindowMinutes(ctx context.Context, ownerID int64, minutes int) error {
	return r.setFields(ctx, ownerID, bson.M{"window_minutes": minutes})
}

// SetNotionConfig 设置 Notion 发布配置
func (r *MongoPreferencesRepository) SetNotionConfig(ctx context.Context, ownerID int64, cfg *models.NotionConfig) error {
	return r.setFields(ctx, ownerID, bson.M{"notion": cfg})
}

// SetTelegraphConfig 设置 Telegraph 发布配置
func (r *MongoPreferencesRepository) SetTelegraphConfig(ctx context.Context, ownerID int64, cfg *models.TelegraphConfig) error {
	return r.setFields(ctx, ownerID, bson.M{"telegraph": cfg})
}

// SetPendingAction 设置会话等待状态
func (r *MongoPreferencesRepository) SetPendingAction(ctx context.Context, ownerID int64, action string, draftID primitive.ObjectID) error {
	return r.setFields(ctx, ownerID, bson.M{
		"pending_action":   action,
		"pending_draft_id": draftID,
	})
}

// ClearPendingAction 清除会话等待状态
func (r *MongoPreferencesRepository) ClearPendingAction(ctx context.Context, ownerID int64) error {
	filter := bson.M{"owner_id": ownerID}
	update := bson.M{
		"$unset": bson.M{
			"pending_action":   "",
			"pending_draft_id": "",
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to clear pending action: %w", err)
	}

	return nil
}

// setFields 更新指定字段并刷新 updated_at（内部辅助方法）
func (r *MongoPreferencesRepository) setFields(ctx context.Context, ownerID int64, fields bson.M) error {
	fields["updated_at"] = time.Now()

	filter := bson.M{"owner_id": ownerID}
	update := bson.M{"$set": fields}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("preferences not found: owner_id=%d", ownerID)
	}

	return nil
}

// EnsureIndexes 确保索引存在
func (r *MongoPreferencesRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
