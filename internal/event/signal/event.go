package signal

import (
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
)

const (
	SignalTopic = "delivery_signals"
)

// SignalEvent 传输层上报的投递信号，Timestamp 为毫秒
type SignalEvent struct {
	Kind             string             `json:"kind"`
	StampID          string             `json:"stampId,omitempty"`
	Fingerprint      string             `json:"fingerprint,omitempty"`
	Channel          string             `json:"channel"`
	RecipientAddress string             `json:"recipientAddress,omitempty"`
	Payload          map[string]any     `json:"payload,omitempty"`
	Timestamp        int64              `json:"timestamp,omitempty"`
	NotificationID   uint64             `json:"notificationId,omitempty"`
	ContactID        int64              `json:"contactId,omitempty"`
	Category         string             `json:"category,omitempty"`
	Priority         string             `json:"priority,omitempty"`
	Sender           string             `json:"sender,omitempty"`
	Transport        string             `json:"transport,omitempty"`
	Content          *domain.Content    `json:"content,omitempty"`
	Recipients       []domain.Recipient `json:"recipients,omitempty"`
}

func (e SignalEvent) toDomain() domain.Signal {
	sig := domain.Signal{
		Kind:             domain.SignalKind(e.Kind),
		StampID:          e.StampID,
		Fingerprint:      e.Fingerprint,
		Channel:          domain.Channel(e.Channel),
		RecipientAddress: e.RecipientAddress,
		Payload:          e.Payload,
		NotificationID:   e.NotificationID,
		ContactID:        e.ContactID,
		Category:         e.Category,
		Priority:         domain.Priority(e.Priority),
		Sender:           e.Sender,
		Transport:        e.Transport,
		Content:          e.Content,
		Recipients:       e.Recipients,
	}
	if e.Timestamp > 0 {
		sig.Timestamp = time.UnixMilli(e.Timestamp)
	}
	return sig
}

// NewSignalEvent 把领域信号转成事件，ChannelPayload 不在事件里传输
func NewSignalEvent(sig domain.Signal) SignalEvent {
	evt := SignalEvent{
		Kind:             sig.Kind.String(),
		StampID:          sig.StampID,
		Fingerprint:      sig.Fingerprint,
		Channel:          sig.Channel.String(),
		RecipientAddress: sig.RecipientAddress,
		Payload:          sig.Payload,
		NotificationID:   sig.NotificationID,
		ContactID:        sig.ContactID,
		Category:         sig.Category,
		Priority:         string(sig.Priority),
		Sender:           sig.Sender,
		Transport:        sig.Transport,
		Content:          sig.Content,
		Recipients:       sig.Recipients,
	}
	if !sig.Timestamp.IsZero() {
		evt.Timestamp = sig.Timestamp.UnixMilli()
	}
	return evt
}
