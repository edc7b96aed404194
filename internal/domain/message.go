package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"gitee.com/flycash/notification-tracker/internal/errs"
)

// MessageStatus 消息状态
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "PENDING"   // 待入队
	MessageStatusQueued    MessageStatus = "QUEUED"    // 已入队
	MessageStatusSending   MessageStatus = "SENDING"   // 传输层已接收
	MessageStatusSent      MessageStatus = "SENT"      // 发送成功
	MessageStatusDelivered MessageStatus = "DELIVERED" // 已送达
	MessageStatusFailed    MessageStatus = "FAILED"    // 发送失败
	MessageStatusBounced   MessageStatus = "BOUNCED"   // 被退回
	MessageStatusCancelled MessageStatus = "CANCELLED" // 已取消
	MessageStatusRetrying  MessageStatus = "RETRYING"  // 重试中
)

func (s MessageStatus) String() string {
	return string(s)
}

// Content 消息正文
type Content struct {
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	ContentType string `json:"contentType"`
}

// Message 一个渠道上对一组接收者的一次逻辑发送
type Message struct {
	ID             uint64
	NotificationID uint64 // 0 表示不属于任何通知
	Channel        Channel
	Status         MessageStatus
	Direction      Direction
	Transport      string
	// StampID 入队时由上游分配，同一次逻辑发送保持不变
	StampID string
	// Fingerprint 归一化后的主题、正文和接收者的哈希
	Fingerprint   string
	RetryCount    int
	FailureReason string
	ScheduledAt   time.Time
	// ScheduleOverride 为 true 时消息自身的 ScheduledAt 优先于通知上的
	ScheduleOverride bool
	Payload          ChannelPayload
	Content          *Content
	Recipients       []Recipient
	Version          int
	Ctime            time.Time
	Utime            time.Time
	SentAt           time.Time
}

// EffectiveScheduledAt 计算实际生效的计划发送时间
func (m Message) EffectiveScheduledAt(n Notification) time.Time {
	if m.ScheduleOverride || n.ScheduledAt.IsZero() {
		return m.ScheduledAt
	}
	return n.ScheduledAt
}

// Recipient 按地址查找接收者
func (m Message) Recipient(address string) (Recipient, int, bool) {
	for i := range m.Recipients {
		if m.Recipients[i].Address == address {
			return m.Recipients[i], i, true
		}
	}
	return Recipient{}, -1, false
}

// LockKey 和这条消息的信号使用同一个锁
func (m Message) LockKey() string {
	if m.StampID != "" {
		return "stamp:" + m.StampID
	}
	return "fp:" + m.Fingerprint
}

func (m Message) Validate() error {
	if !m.Channel.IsValid() {
		return fmt.Errorf("%w: Channel = %q", errs.ErrInvalidParameter, m.Channel)
	}
	if m.StampID == "" && m.Fingerprint == "" {
		return fmt.Errorf("%w: StampID 和 Fingerprint 不能同时为空", errs.ErrInvalidParameter)
	}
	if m.Payload != nil && m.Payload.Channel() != m.Channel {
		return fmt.Errorf("%w: Payload 渠道 %q 与消息渠道 %q 不一致",
			errs.ErrInvalidParameter, m.Payload.Channel(), m.Channel)
	}
	return nil
}

// ChannelPayload 渠道相关的附加数据，是一个封闭的和类型，
// 只有本包内的类型能实现
type ChannelPayload interface {
	Channel() Channel
	sealed()
}

type EmailPayload struct {
	From    string   `json:"from"`
	ReplyTo string   `json:"replyTo,omitempty"`
	Headers []string `json:"headers,omitempty"`
}

type SMSPayload struct {
	SenderID string `json:"senderId"`
	Segments int    `json:"segments,omitempty"`
}

type ChatPayload struct {
	Platform string `json:"platform"`
	ThreadID string `json:"threadId,omitempty"`
}

type PushPayload struct {
	DeviceToken string `json:"deviceToken"`
	Title       string `json:"title,omitempty"`
	Badge       int    `json:"badge,omitempty"`
}

type WebhookPayload struct {
	URL    string `json:"url"`
	Method string `json:"method"`
}

func (EmailPayload) Channel() Channel   { return ChannelEmail }
func (SMSPayload) Channel() Channel     { return ChannelSMS }
func (ChatPayload) Channel() Channel    { return ChannelChat }
func (PushPayload) Channel() Channel    { return ChannelPush }
func (WebhookPayload) Channel() Channel { return ChannelWebhook }

func (EmailPayload) sealed()   {}
func (SMSPayload) sealed()     {}
func (ChatPayload) sealed()    {}
func (PushPayload) sealed()    {}
func (WebhookPayload) sealed() {}

// MarshalPayload 序列化渠道数据，渠道本身作为标签单独存储
func MarshalPayload(p ChannelPayload) (string, error) {
	if p == nil {
		return "", nil
	}
	return marshal(p)
}

// UnmarshalPayload 按渠道标签反序列化
func UnmarshalPayload(c Channel, data string) (ChannelPayload, error) {
	if data == "" {
		return nil, nil
	}
	var (
		p   ChannelPayload
		err error
	)
	switch c {
	case ChannelEmail:
		var v EmailPayload
		err = json.Unmarshal([]byte(data), &v)
		p = v
	case ChannelSMS:
		var v SMSPayload
		err = json.Unmarshal([]byte(data), &v)
		p = v
	case ChannelChat:
		var v ChatPayload
		err = json.Unmarshal([]byte(data), &v)
		p = v
	case ChannelPush:
		var v PushPayload
		err = json.Unmarshal([]byte(data), &v)
		p = v
	case ChannelWebhook:
		var v WebhookPayload
		err = json.Unmarshal([]byte(data), &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: Channel = %q", errs.ErrInvalidParameter, c)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
