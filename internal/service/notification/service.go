package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/errs"
	"gitee.com/flycash/notification-tracker/internal/pkg/id"
	"gitee.com/flycash/notification-tracker/internal/repository"
	"gitee.com/flycash/notification-tracker/internal/service/status"
	"gitee.com/flycash/notification-tracker/internal/service/tracker"
	"github.com/gofrs/uuid"
	"github.com/gotomicro/ego/core/elog"
	"github.com/hashicorp/go-multierror"
)

// targetsKey 排期通知的发送目标保存在 Context 的这个 key 下
const targetsKey = "targets"

// Target 一个渠道上的一个发送目标
type Target struct {
	Channel    domain.Channel     `json:"channel"`
	ContactID  int64              `json:"contactId,omitempty"`
	Address    string             `json:"address"`
	Recipients []domain.Recipient `json:"recipients,omitempty"`
	Content    *domain.Content    `json:"content,omitempty"`
	Category   string             `json:"category,omitempty"`
	Priority   domain.Priority    `json:"priority,omitempty"`
	Sender     string             `json:"sender,omitempty"`
	Transport  string             `json:"transport,omitempty"`
	// Payload 不会随排期保存
	Payload domain.ChannelPayload `json:"-"`
}

type DispatchResult struct {
	Notification domain.Notification
	Results      []domain.TrackResult
}

type Service interface {
	// Create 创建草稿
	Create(ctx context.Context, n domain.Notification) (domain.Notification, error)
	Get(ctx context.Context, id uint64) (domain.Notification, error)
	// Update 只有草稿和排期中的通知可以修改
	Update(ctx context.Context, n domain.Notification) (domain.Notification, error)
	// Schedule 排期，到时间之后由 DispatchDue 发出
	Schedule(ctx context.Context, id uint64, at time.Time, targets []Target) (domain.Notification, error)
	Cancel(ctx context.Context, id uint64) (domain.Notification, error)
	// Dispatch 通知进入 queued，每个目标生成一个新的 stamp 并发出 queued 信号
	Dispatch(ctx context.Context, id uint64, targets []Target) (DispatchResult, error)
	// DispatchDue 发出所有到期的排期通知，返回处理的数量
	DispatchDue(ctx context.Context, now time.Time, limit int) (int, error)
	// Refresh 根据消息的状态推导通知的状态
	Refresh(ctx context.Context, id uint64) (domain.Notification, error)
	Messages(ctx context.Context, id uint64) ([]domain.Message, error)
	Delete(ctx context.Context, id uint64) error
}

type service struct {
	repo     repository.NotificationRepository
	messages repository.MessageRepository
	tracker  tracker.Service
	ids      id.Generator
	now      func() time.Time
	logger   *elog.Component
}

func NewService(repo repository.NotificationRepository, messages repository.MessageRepository,
	t tracker.Service, ids id.Generator,
) Service {
	return &service{
		repo:     repo,
		messages: messages,
		tracker:  t,
		ids:      ids,
		now:      time.Now,
		logger:   elog.DefaultLogger,
	}
}

func (s *service) Create(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if err := n.Validate(); err != nil {
		return domain.Notification{}, err
	}
	nid, err := s.ids.NextID()
	if err != nil {
		return domain.Notification{}, err
	}
	n.ID = nid
	n.Status = domain.NotificationStatusDraft
	if n.Direction == "" {
		n.Direction = domain.DirectionOutbound
	}
	if n.Importance == "" {
		n.Importance = domain.ImportanceNormal
	}
	n.SentAt = time.Time{}
	return s.repo.Create(ctx, n)
}

func (s *service) Get(ctx context.Context, id uint64) (domain.Notification, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) Update(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if err := n.Validate(); err != nil {
		return domain.Notification{}, err
	}
	old, err := s.repo.FindByID(ctx, n.ID)
	if err != nil {
		return domain.Notification{}, err
	}
	if !old.IsEditable() {
		return domain.Notification{}, fmt.Errorf("%w: status = %s", errs.ErrNotificationNotEdit, old.Status)
	}
	old.Type = n.Type
	old.Importance = n.Importance
	old.Channels = n.Channels
	old.Context = n.Context
	old.ScheduledAt = n.ScheduledAt
	// 调用方带了版本号时按调用方的版本做 CAS
	if n.Version != 0 {
		old.Version = n.Version
	}
	return s.repo.Update(ctx, old)
}

func (s *service) Schedule(ctx context.Context, id uint64, at time.Time, targets []Target) (domain.Notification, error) {
	if at.IsZero() {
		return domain.Notification{}, fmt.Errorf("%w: ScheduledAt 不能为空", errs.ErrInvalidParameter)
	}
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if !n.IsEditable() {
		return domain.Notification{}, fmt.Errorf("%w: status = %s", errs.ErrNotificationNotEdit, n.Status)
	}
	if err = validTargets(n, targets); err != nil {
		return domain.Notification{}, err
	}
	if n.Status != domain.NotificationStatusScheduled {
		if err = s.transit(&n, domain.NotificationStatusScheduled); err != nil {
			return domain.Notification{}, err
		}
	}
	n.ScheduledAt = at
	if n.Context == nil {
		n.Context = map[string]any{}
	}
	n.Context[targetsKey] = targets
	return s.repo.Update(ctx, n)
}

func (s *service) Cancel(ctx context.Context, id uint64) (domain.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if err = s.transit(&n, domain.NotificationStatusCancelled); err != nil {
		return domain.Notification{}, err
	}
	n, err = s.repo.Update(ctx, n)
	if err != nil {
		return domain.Notification{}, err
	}
	return n, s.cancelMessages(ctx, id)
}

const cancelReason = "notification cancelled"

// cancelMessages 还没发出去的消息一并取消，和信号走同一个锁
func (s *service) cancelMessages(ctx context.Context, id uint64) error {
	msgs, err := s.messages.ListByNotificationID(ctx, id)
	if err != nil {
		return err
	}
	var result error
	for _, msg := range msgs {
		if !status.Message.CanTransition(msg.Status, domain.MessageStatusCancelled) {
			continue
		}
		if _, er := s.tracker.Cancel(ctx, msg.ID, cancelReason); er != nil {
			result = multierror.Append(result, fmt.Errorf("取消消息 %d 失败: %w", msg.ID, er))
		}
	}
	return result
}

func (s *service) Dispatch(ctx context.Context, id uint64, targets []Target) (DispatchResult, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return DispatchResult{}, err
	}
	now := s.now()
	if !n.IsSendable(now) {
		return DispatchResult{}, fmt.Errorf("%w: status = %s", errs.ErrNotificationNotSend, n.Status)
	}
	if len(targets) == 0 {
		return DispatchResult{}, fmt.Errorf("%w: targets 不能为空", errs.ErrInvalidParameter)
	}
	if err = validTargets(n, targets); err != nil {
		return DispatchResult{}, err
	}
	if err = s.transit(&n, domain.NotificationStatusQueued); err != nil {
		return DispatchResult{}, err
	}
	n, err = s.repo.Update(ctx, n)
	if err != nil {
		return DispatchResult{}, err
	}

	res := DispatchResult{Notification: n, Results: make([]domain.TrackResult, 0, len(targets))}
	var result error
	for _, tg := range targets {
		stamp, er := uuid.NewV4()
		if er != nil {
			return res, er
		}
		tr, er := s.tracker.OnSignal(ctx, domain.Signal{
			Kind:             domain.SignalQueued,
			StampID:          stamp.String(),
			Channel:          tg.Channel,
			RecipientAddress: tg.Address,
			Timestamp:        now,
			NotificationID:   n.ID,
			ContactID:        tg.ContactID,
			Category:         tg.Category,
			Priority:         tg.Priority,
			Sender:           tg.Sender,
			Transport:        tg.Transport,
			Content:          tg.Content,
			Recipients:       tg.Recipients,
			ChannelPayload:   tg.Payload,
		})
		if er != nil {
			result = multierror.Append(result, fmt.Errorf("目标 %s/%s 入队失败: %w", tg.Channel, tg.Address, er))
			continue
		}
		res.Results = append(res.Results, tr)
	}
	return res, result
}

func (s *service) DispatchDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.repo.ListDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	var result error
	for _, n := range due {
		targets, er := scheduledTargets(n)
		if er != nil {
			result = multierror.Append(result, fmt.Errorf("通知 %d 的发送目标不合法: %w", n.ID, er))
			continue
		}
		if _, er = s.Dispatch(ctx, n.ID, targets); er != nil {
			s.logger.Error("发送排期通知失败", elog.Any("notificationId", n.ID), elog.FieldErr(er))
			result = multierror.Append(result, er)
		}
	}
	return len(due), result
}

func (s *service) Refresh(ctx context.Context, id uint64) (domain.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	msgs, err := s.messages.ListByNotificationID(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	// 已经发出或者取消的通知不再回退
	if n.Status == domain.NotificationStatusSent || n.Status == domain.NotificationStatusCancelled {
		return n, nil
	}
	target, ok := derive(msgs)
	if !ok || target == n.Status {
		return n, nil
	}
	path, ok := status.Notification.Path(n.Status, target,
		domain.NotificationStatusFailed, domain.NotificationStatusCancelled)
	if !ok {
		s.logger.Warn("无法根据消息推导通知状态",
			elog.Any("notificationId", id),
			elog.String("from", n.Status.String()),
			elog.String("to", target.String()))
		return n, nil
	}
	for _, next := range path {
		s.enter(&n, next)
	}
	return s.repo.Update(ctx, n)
}

// derive 忽略被取消的消息：全部发出为 sent，没有进行中的且有失败的为 failed，
// 否则只要有一条开始发送就是 sending
func derive(msgs []domain.Message) (domain.NotificationStatus, bool) {
	var active, done, failed, started int
	for _, m := range msgs {
		switch m.Status {
		case domain.MessageStatusCancelled:
			continue
		case domain.MessageStatusSent, domain.MessageStatusDelivered:
			done++
			started++
		case domain.MessageStatusFailed, domain.MessageStatusBounced:
			failed++
			started++
		case domain.MessageStatusSending, domain.MessageStatusRetrying:
			started++
		}
		active++
	}
	switch {
	case active == 0:
		return "", false
	case done == active:
		return domain.NotificationStatusSent, true
	case done+failed == active:
		return domain.NotificationStatusFailed, true
	case started > 0:
		return domain.NotificationStatusSending, true
	default:
		return "", false
	}
}

func (s *service) Messages(ctx context.Context, id uint64) ([]domain.Message, error) {
	return s.messages.ListByNotificationID(ctx, id)
}

func (s *service) Delete(ctx context.Context, id uint64) error {
	return s.repo.Delete(ctx, id)
}

// transit 沿合法的边走到 target
func (s *service) transit(n *domain.Notification, target domain.NotificationStatus) error {
	path, ok := status.Notification.Path(n.Status, target,
		domain.NotificationStatusCancelled, domain.NotificationStatusFailed)
	if !ok {
		return fmt.Errorf("%w: %s -> %s", errs.ErrInvalidTransition, n.Status, target)
	}
	for _, next := range path {
		s.enter(n, next)
	}
	return nil
}

func (s *service) enter(n *domain.Notification, next domain.NotificationStatus) {
	n.Status = next
	if next == domain.NotificationStatusSent {
		n.SentAt = s.now()
	}
}

func validTargets(n domain.Notification, targets []Target) error {
	for _, tg := range targets {
		if !slices.Contains(n.Channels, tg.Channel) {
			return fmt.Errorf("%w: 通知没有申请渠道 %q", errs.ErrInvalidParameter, tg.Channel)
		}
		if tg.Address == "" && len(tg.Recipients) == 0 {
			return fmt.Errorf("%w: 目标没有地址", errs.ErrInvalidParameter)
		}
	}
	return nil
}

// scheduledTargets 内存存储里是 []Target，SQL 存储里是反序列化出来的 []any
func scheduledTargets(n domain.Notification) ([]Target, error) {
	raw, ok := n.Context[targetsKey]
	if !ok {
		return nil, fmt.Errorf("%w: 排期通知没有发送目标", errs.ErrInvalidParameter)
	}
	if targets, ok := raw.([]Target); ok {
		return targets, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var targets []Target
	if err = json.Unmarshal(data, &targets); err != nil {
		return nil, errors.Join(errs.ErrInvalidParameter, err)
	}
	return targets, nil
}
