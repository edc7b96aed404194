package domain

import (
	"fmt"
	"time"

	"gitee.com/flycash/notification-tracker/internal/errs"
)

// SignalKind 传输层上报的信号类型
type SignalKind string

const (
	SignalQueued            SignalKind = "QUEUED"
	SignalTransportAccepted SignalKind = "TRANSPORT_ACCEPTED"
	SignalTransportSuccess  SignalKind = "TRANSPORT_SUCCESS"
	SignalTransportFailure  SignalKind = "TRANSPORT_FAILURE"
	SignalDelivered         SignalKind = "DELIVERED"
	SignalOpened            SignalKind = "OPENED"
	SignalClicked           SignalKind = "CLICKED"
	SignalBounced           SignalKind = "BOUNCED"
	SignalComplained        SignalKind = "COMPLAINED"
	SignalUnsubscribed      SignalKind = "UNSUBSCRIBED"
)

func (k SignalKind) String() string {
	return string(k)
}

// TargetStatus 信号隐含的目标状态。互动类信号只记录事件，不改变状态
func (k SignalKind) TargetStatus() (MessageStatus, bool) {
	switch k {
	case SignalQueued:
		return MessageStatusQueued, true
	case SignalTransportAccepted:
		return MessageStatusSending, true
	case SignalTransportSuccess:
		return MessageStatusSent, true
	case SignalTransportFailure:
		return MessageStatusFailed, true
	case SignalDelivered:
		return MessageStatusDelivered, true
	default:
		return "", false
	}
}

func (k SignalKind) EventType() EventType {
	switch k {
	case SignalQueued:
		return EventTypeQueued
	case SignalTransportAccepted:
		return EventTypeAccepted
	case SignalTransportSuccess:
		return EventTypeSent
	case SignalTransportFailure:
		return EventTypeFailed
	case SignalDelivered:
		return EventTypeDelivered
	case SignalOpened:
		return EventTypeOpened
	case SignalClicked:
		return EventTypeClicked
	case SignalBounced:
		return EventTypeBounced
	case SignalComplained:
		return EventTypeComplained
	case SignalUnsubscribed:
		return EventTypeUnsubscribed
	default:
		return ""
	}
}

func (k SignalKind) IsValid() bool {
	return k.EventType() != ""
}

// Signal 传输层对一次发送尝试的一次观察，至少投递一次，可能乱序
type Signal struct {
	Kind             SignalKind
	StampID          string
	Fingerprint      string
	Channel          Channel
	RecipientAddress string
	Payload          map[string]any
	Timestamp        time.Time

	// 以下字段只在首次入队时有意义
	NotificationID uint64
	ContactID      int64
	Category       string
	Priority       Priority
	Sender         string
	Transport      string
	Content        *Content
	Recipients     []Recipient
	ChannelPayload ChannelPayload
}

func (s Signal) Validate() error {
	if !s.Kind.IsValid() {
		return fmt.Errorf("%w: Kind = %q", errs.ErrInvalidParameter, s.Kind)
	}
	if s.StampID == "" && s.Fingerprint == "" {
		return fmt.Errorf("%w: StampID 和 Fingerprint 不能同时为空", errs.ErrInvalidParameter)
	}
	if !s.Channel.IsValid() {
		return fmt.Errorf("%w: Channel = %q", errs.ErrInvalidParameter, s.Channel)
	}
	return nil
}

// LockKey 同一次逻辑发送的信号使用同一个锁
func (s Signal) LockKey() string {
	if s.StampID != "" {
		return "stamp:" + s.StampID
	}
	return "fp:" + s.Fingerprint
}

// TrackResult OnSignal 的处理结果
type TrackResult struct {
	Message Message
	Event   Event
	// Created 本次信号创建了新的消息
	Created bool
	// Duplicate 命中了已有消息（去重生效），仅作提示
	Duplicate bool
	// Conflict 状态流转被拒绝，事件已记录但状态没有变化
	Conflict bool
	// Blocked 首次发送被偏好拦截
	Blocked bool
	Reason  string
}
