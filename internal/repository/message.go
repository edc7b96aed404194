package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/repository/dao"
	"github.com/ecodeclub/ekit/slice"
	"github.com/ecodeclub/ekit/sqlx"
	"github.com/gotomicro/ego/core/elog"
)

// MessageRepository 消息以及消息事件的存储
type MessageRepository interface {
	FindByID(ctx context.Context, id uint64) (domain.Message, error)
	// FindByStampID 找不到时返回 errs.ErrMessageNotFound
	FindByStampID(ctx context.Context, stampID string) (domain.Message, error)
	// FindRecentByFingerprint 创建时间不早于 since 的消息，新的在前
	FindRecentByFingerprint(ctx context.Context, fingerprint string, since time.Time) ([]domain.Message, error)
	ListByNotificationID(ctx context.Context, notificationID uint64) ([]domain.Message, error)

	// Create 原子地写入消息和事件。StampID 冲突时返回 errs.ErrMessageDuplicate
	Create(ctx context.Context, msg domain.Message, events ...domain.Event) (domain.Message, error)
	// Update 按 Version 做 CAS，成功后返回的消息版本号加一。
	// 版本不匹配返回 errs.ErrVersionMismatch
	Update(ctx context.Context, msg domain.Message, events ...domain.Event) (domain.Message, error)
	AppendEvent(ctx context.Context, event domain.Event) error
	// ListEvents 按 (OccurredAt, ID) 升序
	ListEvents(ctx context.Context, messageID uint64) ([]domain.Event, error)
}

type messageRepository struct {
	dao    dao.MessageDAO
	logger *elog.Component
}

func NewMessageRepository(d dao.MessageDAO) MessageRepository {
	return &messageRepository{
		dao:    d,
		logger: elog.DefaultLogger,
	}
}

func (r *messageRepository) FindByID(ctx context.Context, id uint64) (domain.Message, error) {
	m, err := r.dao.FindByID(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	return r.toDomain(m), nil
}

func (r *messageRepository) FindByStampID(ctx context.Context, stampID string) (domain.Message, error) {
	m, err := r.dao.FindByStampID(ctx, stampID)
	if err != nil {
		return domain.Message{}, err
	}
	return r.toDomain(m), nil
}

func (r *messageRepository) FindRecentByFingerprint(ctx context.Context, fingerprint string, since time.Time) ([]domain.Message, error) {
	ms, err := r.dao.FindRecentByFingerprint(ctx, fingerprint, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	return slice.Map(ms, func(_ int, src dao.Message) domain.Message {
		return r.toDomain(src)
	}), nil
}

func (r *messageRepository) ListByNotificationID(ctx context.Context, notificationID uint64) ([]domain.Message, error) {
	ms, err := r.dao.ListByNotificationID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	return slice.Map(ms, func(_ int, src dao.Message) domain.Message {
		return r.toDomain(src)
	}), nil
}

func (r *messageRepository) Create(ctx context.Context, msg domain.Message, events ...domain.Event) (domain.Message, error) {
	entity, err := r.toEntity(msg)
	if err != nil {
		return domain.Message{}, err
	}
	created, err := r.dao.Create(ctx, entity, r.toEventEntities(events)...)
	if err != nil {
		return domain.Message{}, err
	}
	return r.toDomain(created), nil
}

func (r *messageRepository) Update(ctx context.Context, msg domain.Message, events ...domain.Event) (domain.Message, error) {
	entity, err := r.toEntity(msg)
	if err != nil {
		return domain.Message{}, err
	}
	updated, err := r.dao.Update(ctx, entity, r.toEventEntities(events)...)
	if err != nil {
		return domain.Message{}, err
	}
	msg.Version = updated.Version
	msg.Utime = time.UnixMilli(updated.Utime)
	return msg, nil
}

func (r *messageRepository) AppendEvent(ctx context.Context, event domain.Event) error {
	return r.dao.AppendEvent(ctx, r.toEventEntity(event))
}

func (r *messageRepository) ListEvents(ctx context.Context, messageID uint64) ([]domain.Event, error) {
	es, err := r.dao.ListEvents(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return slice.Map(es, func(_ int, src dao.MessageEvent) domain.Event {
		return r.toEventDomain(src)
	}), nil
}

func (r *messageRepository) toEntity(msg domain.Message) (dao.Message, error) {
	payload, err := domain.MarshalPayload(msg.Payload)
	if err != nil {
		return dao.Message{}, err
	}
	entity := dao.Message{
		ID:               msg.ID,
		NotificationID:   msg.NotificationID,
		Channel:          msg.Channel.String(),
		Status:           msg.Status.String(),
		Direction:        string(msg.Direction),
		Transport:        msg.Transport,
		StampID:          sql.NullString{String: msg.StampID, Valid: msg.StampID != ""},
		Fingerprint:      msg.Fingerprint,
		RetryCount:       msg.RetryCount,
		FailureReason:    msg.FailureReason,
		ScheduledAt:      toMillis(msg.ScheduledAt),
		ScheduleOverride: msg.ScheduleOverride,
		Payload:          sql.NullString{String: payload, Valid: payload != ""},
		Recipients: sqlx.JsonColumn[[]dao.Recipient]{
			Val: slice.Map(msg.Recipients, func(_ int, src domain.Recipient) dao.Recipient {
				return dao.Recipient{
					ID:         src.ID,
					Kind:       string(src.Kind),
					Address:    src.Address,
					Status:     string(src.Status),
					OpenCount:  src.OpenCount,
					ClickCount: src.ClickCount,
				}
			}),
			Valid: len(msg.Recipients) > 0,
		},
		Version: msg.Version,
		SentAt:  toMillis(msg.SentAt),
		Ctime:   toMillis(msg.Ctime),
		Utime:   toMillis(msg.Utime),
	}
	if msg.Content != nil {
		entity.Content = sqlx.JsonColumn[dao.MessageContent]{
			Val: dao.MessageContent{
				Subject:     msg.Content.Subject,
				Body:        msg.Content.Body,
				ContentType: msg.Content.ContentType,
			},
			Valid: true,
		}
	}
	return entity, nil
}

func (r *messageRepository) toDomain(m dao.Message) domain.Message {
	channel := domain.Channel(m.Channel)
	payload, err := domain.UnmarshalPayload(channel, m.Payload.String)
	if err != nil {
		r.logger.Warn("消息渠道数据无法解析", elog.Any("id", m.ID), elog.FieldErr(err))
	}
	msg := domain.Message{
		ID:               m.ID,
		NotificationID:   m.NotificationID,
		Channel:          channel,
		Status:           domain.MessageStatus(m.Status),
		Direction:        domain.Direction(m.Direction),
		Transport:        m.Transport,
		StampID:          m.StampID.String,
		Fingerprint:      m.Fingerprint,
		RetryCount:       m.RetryCount,
		FailureReason:    m.FailureReason,
		ScheduledAt:      fromMillis(m.ScheduledAt),
		ScheduleOverride: m.ScheduleOverride,
		Payload:          payload,
		Recipients: slice.Map(m.Recipients.Val, func(_ int, src dao.Recipient) domain.Recipient {
			return domain.Recipient{
				ID:         src.ID,
				Kind:       domain.RecipientKind(src.Kind),
				Address:    src.Address,
				Status:     domain.RecipientStatus(src.Status),
				OpenCount:  src.OpenCount,
				ClickCount: src.ClickCount,
			}
		}),
		Version: m.Version,
		SentAt:  fromMillis(m.SentAt),
		Ctime:   fromMillis(m.Ctime),
		Utime:   fromMillis(m.Utime),
	}
	if m.Content.Valid {
		msg.Content = &domain.Content{
			Subject:     m.Content.Val.Subject,
			Body:        m.Content.Val.Body,
			ContentType: m.Content.Val.ContentType,
		}
	}
	return msg
}

func (r *messageRepository) toEventEntities(events []domain.Event) []dao.MessageEvent {
	return slice.Map(events, func(_ int, src domain.Event) dao.MessageEvent {
		return r.toEventEntity(src)
	})
}

func (r *messageRepository) toEventEntity(e domain.Event) dao.MessageEvent {
	data, err := e.MarshalData()
	if err != nil {
		r.logger.Warn("事件数据无法序列化，丢弃", elog.Any("id", e.ID), elog.FieldErr(err))
	}
	return dao.MessageEvent{
		ID:          e.ID,
		MessageID:   e.MessageID,
		RecipientID: e.RecipientID,
		Type:        e.Type.String(),
		OccurredAt:  e.OccurredAt.UnixMilli(),
		Data:        sql.NullString{String: data, Valid: data != ""},
	}
}

func (r *messageRepository) toEventDomain(e dao.MessageEvent) domain.Event {
	var data map[string]any
	if e.Data.Valid {
		_ = json.Unmarshal([]byte(e.Data.String), &data)
	}
	return domain.Event{
		ID:          e.ID,
		MessageID:   e.MessageID,
		RecipientID: e.RecipientID,
		Type:        domain.EventType(e.Type),
		OccurredAt:  time.UnixMilli(e.OccurredAt),
		Data:        data,
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
