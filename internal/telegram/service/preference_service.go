package service

import (
	"context"
	"fmt"
	"strings"

	"blog_bot/internal/logger"
	"blog_bot/internal/telegram/models"
	"blog_bot/internal/telegram/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PreferenceServiceImpl 用户偏好服务实现
type PreferenceServiceImpl struct {
	prefsRepo repository.PreferencesRepository
}

// NewPreferenceService 创建用户偏好服务
func NewPreferenceService(prefsRepo repository.PreferencesRepository) PreferenceService {
	return &PreferenceServiceImpl{
		prefsRepo: prefsRepo,
	}
}

// EnsurePreferences 获取用户偏好，首次交互时创建默认值
func (s *PreferenceServiceImpl) EnsurePreferences(ctx context.Context, ownerID int64) (*models.UserPreferences, error) {
	prefs, err := s.prefsRepo.EnsureDefaults(ctx, ownerID)
	if err != nil {
		logger.L().Errorf("Failed to ensure preferences for %d: %v", ownerID, err)
		return nil, fmt.Errorf("获取用户设置失败")
	}
	return prefs, nil
}

// SetAutoPublish 设置自动发布开关
func (s *PreferenceServiceImpl) SetAutoPublish(ctx context.Context, ownerID int64, enabled bool) error {
	if _, err := s.prefsRepo.EnsureDefaults(ctx, ownerID); err != nil {
		return fmt.Errorf("获取用户设置失败")
	}

	if err := s.prefsRepo.SetAutoPublish(ctx, ownerID, enabled); err != nil {
		logger.L().Errorf("Failed to set auto publish for %d: %v", ownerID, err)
		return fmt.Errorf("更新设置失败")
	}

	logger.L().Infof("Auto publish updated: owner_id=%d, enabled=%v", ownerID, enabled)
	return nil
}

// SetWindowMinutes 设置批处理时间窗口（包含范围校验）
func (s *PreferenceServiceImpl) SetWindowMinutes(ctx context.Context, ownerID int64, minutes int) error {
	if minutes < models.MinWindowMinutes || minutes > models.MaxWindowMinutes {
		return fmt.Errorf("时间窗口必须在 %d 到 %d 分钟之间", models.MinWindowMinutes, models.MaxWindowMinutes)
	}

	if _, err := s.prefsRepo.EnsureDefaults(ctx, ownerID); err != nil {
		return fmt.Errorf("获取用户设置失败")
	}

	if err := s.prefsRepo.SetWindowMinutes(ctx, ownerID, minutes); err != nil {
		logger.L().Errorf("Failed to set window minutes for %d: %v", ownerID, err)
		return fmt.Errorf("更新设置失败")
	}

	logger.L().Infof("Window minutes updated: owner_id=%d, minutes=%d", ownerID, minutes)
	return nil
}

// ConfigureNotion 设置 Notion 发布配置
func (s *PreferenceServiceImpl) ConfigureNotion(ctx context.Context, ownerID int64, token, databaseID string) error {
	token = strings.TrimSpace(token)
	databaseID = strings.TrimSpace(databaseID)
	if token == "" || databaseID == "" {
		return fmt.Errorf("Notion 配置不完整，需要 token 和 database id")
	}

	if _, err := s.prefsRepo.EnsureDefaults(ctx, ownerID); err != nil {
		return fmt.Errorf("获取用户设置失败")
	}

	cfg := &models.NotionConfig{Token: token, DatabaseID: databaseID}
	if err := s.prefsRepo.SetNotionConfig(ctx, ownerID, cfg); err != nil {
		logger.L().Errorf("Failed to set notion config for %d: %v", ownerID, err)
		return fmt.Errorf("更新设置失败")
	}

	logger.L().Infof("Notion config updated: owner_id=%d", ownerID)
	return nil
}

// ConfigureTelegraph 设置 Telegraph 发布配置
func (s *PreferenceServiceImpl) ConfigureTelegraph(ctx context.Context, ownerID int64, accessToken string) error {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return fmt.Errorf("Telegraph 配置不完整，需要 access token")
	}

	if _, err := s.prefsRepo.EnsureDefaults(ctx, ownerID); err != nil {
		return fmt.Errorf("获取用户设置失败")
	}

	cfg := &models.TelegraphConfig{AccessToken: accessToken}
	if err := s.prefsRepo.SetTelegraphConfig(ctx, ownerID, cfg); err != nil {
		logger.L().Errorf("Failed to set telegraph config for %d: %v", ownerID, err)
		return fmt.Errorf("更新设置失败")
	}

	logger.L().Infof("Telegraph config updated: owner_id=%d", ownerID)
	return nil
}

// BeginPendingAction 进入会话等待状态
func (s *PreferenceServiceImpl) BeginPendingAction(ctx context.Context, ownerID int64, action string, draftID primitive.ObjectID) error {
	if _, err := s.prefsRepo.EnsureDefaults(ctx, ownerID); err != nil {
		return fmt.Errorf("获取用户设置失败")
	}

	if err := s.prefsRepo.SetPendingAction(ctx, ownerID, action, draftID); err != nil {
		logger.L().Errorf("Failed to set pending action for %d: %v", ownerID, err)
		return fmt.Errorf("更新会话状态失败")
	}

	return nil
}

// ClearPendingAction 清除会话等待状态
func (s *PreferenceServiceImpl) ClearPendingAction(ctx context.Context, ownerID int64) error {
	if err := s.prefsRepo.ClearPendingAction(ctx, ownerID); err != nil {
		logger.L().Errorf("Failed to clear pending action for %d: %v", ownerID, err)
		return fmt.Errorf("更新会话状态失败")
	}
	return nil
}
