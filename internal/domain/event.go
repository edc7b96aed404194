package domain

import (
	"sort"
	"time"
)

// EventType 消息生命周期事件类型
type EventType string

const (
	EventTypeQueued       EventType = "QUEUED"
	EventTypeAccepted     EventType = "ACCEPTED"
	EventTypeSent         EventType = "SENT"
	EventTypeDelivered    EventType = "DELIVERED"
	EventTypeOpened       EventType = "OPENED"
	EventTypeClicked      EventType = "CLICKED"
	EventTypeBounced      EventType = "BOUNCED"
	EventTypeComplained   EventType = "COMPLAINED"
	EventTypeUnsubscribed EventType = "UNSUBSCRIBED"
	EventTypeFailed       EventType = "FAILED"
	EventTypeRetried      EventType = "RETRIED"
	EventTypeBlocked      EventType = "BLOCKED"
	EventTypeCancelled    EventType = "CANCELLED"
)

func (t EventType) String() string {
	return string(t)
}

// Event 不可变的生命周期记录，创建之后不再修改
type Event struct {
	ID          uint64
	MessageID   uint64
	RecipientID uint64 // 0 表示和具体接收者无关
	Type        EventType
	OccurredAt  time.Time
	Data        map[string]any
}

// Before 按 (OccurredAt, ID) 比较先后
func (e Event) Before(other Event) bool {
	if e.OccurredAt.Equal(other.OccurredAt) {
		return e.ID < other.ID
	}
	return e.OccurredAt.Before(other.OccurredAt)
}

func (e Event) MarshalData() (string, error) {
	if len(e.Data) == 0 {
		return "", nil
	}
	return marshal(e.Data)
}

// LatestEvent 返回最新的事件。时间相同的情况下 ID 大的更新，
// 所以无论入参顺序如何结果都一样
func LatestEvent(events []Event) (Event, bool) {
	if len(events) == 0 {
		return Event{}, false
	}
	latest := events[0]
	for _, e := range events[1:] {
		if latest.Before(e) {
			latest = e
		}
	}
	return latest, true
}

// SortNewestFirst 返回按展示顺序（新的在前）排好的副本
func SortNewestFirst(events []Event) []Event {
	res := make([]Event, len(events))
	copy(res, events)
	sort.SliceStable(res, func(i, j int) bool {
		return res[j].Before(res[i])
	})
	return res
}
