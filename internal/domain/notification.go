package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"gitee.com/flycash/notification-tracker/internal/errs"
)

// NotificationStatus 通知状态
type NotificationStatus string

const (
	NotificationStatusDraft     NotificationStatus = "DRAFT"     // 草稿
	NotificationStatusScheduled NotificationStatus = "SCHEDULED" // 已排期
	NotificationStatusQueued    NotificationStatus = "QUEUED"    // 已入队
	NotificationStatusSending   NotificationStatus = "SENDING"   // 发送中
	NotificationStatusSent      NotificationStatus = "SENT"      // 已发送
	NotificationStatusCancelled NotificationStatus = "CANCELLED" // 已取消
	NotificationStatusFailed    NotificationStatus = "FAILED"    // 发送失败
)

func (s NotificationStatus) String() string {
	return string(s)
}

// Importance 通知重要程度
type Importance string

const (
	ImportanceLow    Importance = "LOW"
	ImportanceNormal Importance = "NORMAL"
	ImportanceHigh   Importance = "HIGH"
	ImportanceUrgent Importance = "URGENT"
)

// Notification 一次逻辑上的通知意图，按渠道和接收者拆成多条 Message
type Notification struct {
	ID          uint64
	Type        string
	Importance  Importance
	Status      NotificationStatus
	Direction   Direction
	ScheduledAt time.Time // 零值表示立即发送
	Channels    []Channel
	Context     map[string]any
	SentAt      time.Time
	Version     int
	Ctime       time.Time
	Utime       time.Time
}

// IsEditable 只有草稿和排期中的通知可以修改
func (n Notification) IsEditable() bool {
	return n.Status == NotificationStatusDraft || n.Status == NotificationStatusScheduled
}

// IsSendable 判断在 now 这个时间点是否可以发送
func (n Notification) IsSendable(now time.Time) bool {
	switch n.Status {
	case NotificationStatusDraft, NotificationStatusFailed:
		return true
	case NotificationStatusScheduled:
		return n.ScheduledAt.IsZero() || !n.ScheduledAt.After(now)
	default:
		return false
	}
}

func (n Notification) Validate() error {
	if n.Type == "" {
		return fmt.Errorf("%w: Type = %q", errs.ErrInvalidParameter, n.Type)
	}
	if len(n.Channels) == 0 {
		return fmt.Errorf("%w: Channels = %v", errs.ErrInvalidParameter, n.Channels)
	}
	for _, c := range n.Channels {
		if !c.IsValid() {
			return fmt.Errorf("%w: Channel = %q", errs.ErrInvalidParameter, c)
		}
	}
	return nil
}

func (n Notification) MarshalChannels() (string, error) {
	return marshal(n.Channels)
}

func (n Notification) MarshalContext() (string, error) {
	return marshal(n.Context)
}

func marshal(v any) (string, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(jsonBytes), nil
}
