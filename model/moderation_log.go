package model

import (
	"time"

	"github.com/google/uuid"
)

// ModerationLog 审核流转日志，每次状态变更写入一条
// 与 tracks 表不同，此表通过 GORM 管理
type ModerationLog struct {
	ID         string           `json:"id" gorm:"primaryKey;size:36"`
	TrackID    int64            `json:"trackId" gorm:"index;not null"`
	ActorID    *int64           `json:"actorId"` // NULL 表示自动审核
	FromStatus ModerationStatus `json:"fromStatus" gorm:"size:20;not null"`
	ToStatus   ModerationStatus `json:"toStatus" gorm:"size:20;not null"`
	Reasons    string           `json:"reasons"` // JSON数组字符串
	Confidence *float64         `json:"confidence"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// TableName 指定表名
func (ModerationLog) TableName() string {
	return "moderation_logs"
}

// NewModerationLog 创建一条流转日志
func NewModerationLog(trackID int64, actorID *int64, from, to ModerationStatus, reasons string, confidence *float64) *ModerationLog {
	return &ModerationLog{
		ID:         uuid.New().String(),
		TrackID:    trackID,
		ActorID:    actorID,
		FromStatus: from,
		ToStatus:   to,
		Reasons:    reasons,
		Confidence: confidence,
		CreatedAt:  time.Now(),
	}
}
