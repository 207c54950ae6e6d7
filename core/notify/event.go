package notify

import (
	"time"

	"github.com/google/uuid"
)

// Action 通知动作类型，对应一次审核状态变更
type Action string

const (
	ActionFlagged        Action = "flagged"
	ActionApproved       Action = "approved"
	ActionRejected       Action = "rejected"
	ActionAppealReceived Action = "appeal_received"
	ActionAppealApproved Action = "appeal_approved"
	ActionAppealRejected Action = "appeal_rejected"
)

// Event is delivered to the owner's client for every user-meaningful
// moderation transition. Delivery is at-least-once; EventID lets clients
// drop duplicates of the same {trackId, action} pair.
type Event struct {
	EventID   string `json:"eventId"`
	TrackID   int64  `json:"trackId"`
	OwnerID   int64  `json:"ownerId"`
	Action    Action `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// NewEvent 创建一条通知事件
func NewEvent(trackID, ownerID int64, action Action) Event {
	return Event{
		EventID:   uuid.New().String(),
		TrackID:   trackID,
		OwnerID:   ownerID,
		Action:    action,
		Timestamp: time.Now().UnixMilli(),
	}
}
