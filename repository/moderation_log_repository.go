package repository

import (
	"context"
	"fmt"

	"soundbridge/db"
	"soundbridge/model"

	"gorm.io/gorm"
)

// ModerationLogRepository 审核流转日志仓库，基于 GORM
type ModerationLogRepository struct {
	db *gorm.DB
}

// NewModerationLogRepository 创建日志仓库，使用全局 GORM 连接
func NewModerationLogRepository() *ModerationLogRepository {
	return &ModerationLogRepository{db: db.GormDB}
}

// NewModerationLogRepositoryWithDB 绑定指定连接，测试用
func NewModerationLogRepositoryWithDB(gdb *gorm.DB) *ModerationLogRepository {
	return &ModerationLogRepository{db: gdb}
}

// Record 写入一条流转日志
func (r *ModerationLogRepository) Record(ctx context.Context, entry *model.ModerationLog) error {
	if r.db == nil {
		return fmt.Errorf("GORM database not initialized")
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record moderation log: %w", err)
	}
	return nil
}

// ListByTrack 按曲目查询流转历史，最新在前
func (r *ModerationLogRepository) ListByTrack(ctx context.Context, trackID int64, limit int) ([]model.ModerationLog, error) {
	if r.db == nil {
		return nil, fmt.Errorf("GORM database not initialized")
	}

	var entries []model.ModerationLog
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list moderation logs for track %d: %w", trackID, err)
	}
	return entries, nil
}
