package repository

import (
	"context"
	"encoding/json"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/repository/dao"
	"github.com/ecodeclub/ekit/slice"
)

// NotificationRepository 通知仓储接口
type NotificationRepository interface {
	Create(ctx context.Context, n domain.Notification) (domain.Notification, error)
	// FindByID 找不到时返回 errs.ErrNotificationNotFound
	FindByID(ctx context.Context, id uint64) (domain.Notification, error)
	// Update 按 Version 做 CAS 更新
	Update(ctx context.Context, n domain.Notification) (domain.Notification, error)
	// Delete 连同下属的消息和事件一起删除
	Delete(ctx context.Context, id uint64) error
	// ListDue 计划时间已到的排期通知
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error)
}

type notificationRepository struct {
	dao dao.NotificationDAO
}

func NewNotificationRepository(d dao.NotificationDAO) NotificationRepository {
	return &notificationRepository{
		dao: d,
	}
}

func (r *notificationRepository) Create(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	entity, err := r.toEntity(n)
	if err != nil {
		return domain.Notification{}, err
	}
	created, err := r.dao.Create(ctx, entity)
	if err != nil {
		return domain.Notification{}, err
	}
	return r.toDomain(created), nil
}

func (r *notificationRepository) FindByID(ctx context.Context, id uint64) (domain.Notification, error) {
	n, err := r.dao.FindByID(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	return r.toDomain(n), nil
}

func (r *notificationRepository) Update(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	entity, err := r.toEntity(n)
	if err != nil {
		return domain.Notification{}, err
	}
	updated, err := r.dao.Update(ctx, entity)
	if err != nil {
		return domain.Notification{}, err
	}
	n.Version = updated.Version
	n.Utime = fromMillis(updated.Utime)
	return n, nil
}

func (r *notificationRepository) Delete(ctx context.Context, id uint64) error {
	return r.dao.Delete(ctx, id)
}

func (r *notificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error) {
	ns, err := r.dao.ListDue(ctx, now.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	return slice.Map(ns, func(_ int, src dao.Notification) domain.Notification {
		return r.toDomain(src)
	}), nil
}

// toEntity 将领域对象转换为DAO实体
func (r *notificationRepository) toEntity(n domain.Notification) (dao.Notification, error) {
	channels, err := n.MarshalChannels()
	if err != nil {
		return dao.Notification{}, err
	}
	nctx, err := n.MarshalContext()
	if err != nil {
		return dao.Notification{}, err
	}
	return dao.Notification{
		ID:          n.ID,
		Type:        n.Type,
		Importance:  string(n.Importance),
		Status:      n.Status.String(),
		Direction:   string(n.Direction),
		ScheduledAt: toMillis(n.ScheduledAt),
		Channels:    channels,
		Context:     nctx,
		SentAt:      toMillis(n.SentAt),
		Version:     n.Version,
		Ctime:       toMillis(n.Ctime),
		Utime:       toMillis(n.Utime),
	}, nil
}

// toDomain 将DAO实体转换为领域对象
func (r *notificationRepository) toDomain(n dao.Notification) domain.Notification {
	var channels []domain.Channel
	_ = json.Unmarshal([]byte(n.Channels), &channels)
	var nctx map[string]any
	_ = json.Unmarshal([]byte(n.Context), &nctx)
	return domain.Notification{
		ID:          n.ID,
		Type:        n.Type,
		Importance:  domain.Importance(n.Importance),
		Status:      domain.NotificationStatus(n.Status),
		Direction:   domain.Direction(n.Direction),
		ScheduledAt: fromMillis(n.ScheduledAt),
		Channels:    channels,
		Context:     nctx,
		SentAt:      fromMillis(n.SentAt),
		Version:     n.Version,
		Ctime:       fromMillis(n.Ctime),
		Utime:       fromMillis(n.Utime),
	}
}
