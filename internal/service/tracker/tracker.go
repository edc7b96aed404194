package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/errs"
	"gitee.com/flycash/notification-tracker/internal/pkg/hash"
	"gitee.com/flycash/notification-tracker/internal/pkg/id"
	"gitee.com/flycash/notification-tracker/internal/pkg/lock"
	"gitee.com/flycash/notification-tracker/internal/pkg/retry"
	"gitee.com/flycash/notification-tracker/internal/repository"
	"gitee.com/flycash/notification-tracker/internal/service/preference"
	"gitee.com/flycash/notification-tracker/internal/service/status"
	"github.com/ecodeclub/ekit/slice"
	"github.com/gotomicro/ego/core/elog"
)

const defaultMaxRetries = 3

type Config struct {
	// MaxRetries failed 之后最多重试几次，0 使用默认值
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`
	// DedupWindow 指纹回溯时长（毫秒），0 表示按自然日
	DedupWindow int64 `json:"dedupWindow" yaml:"dedupWindow"`
	// Timezone 自然日所在的时区，默认 UTC
	Timezone string       `json:"timezone" yaml:"timezone"`
	Retry    retry.Config `json:"retry" yaml:"retry"`
}

// Window 根据配置计算去重窗口
func (c Config) Window() (Window, error) {
	w := Window{Duration: time.Duration(c.DedupWindow) * time.Millisecond, Location: time.UTC}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return Window{}, fmt.Errorf("%w: Timezone = %q", errs.ErrInvalidParameter, c.Timezone)
		}
		w.Location = loc
	}
	return w, nil
}

//go:generate mockgen -source=./tracker.go -destination=./mocks/tracker.mock.go -package=trackermocks Service
type Service interface {
	// OnSignal 处理一条传输层信号。状态流转被拒绝、命中去重、被偏好拦截都通过 TrackResult 返回，不是错误
	OnSignal(ctx context.Context, sig domain.Signal) (domain.TrackResult, error)
	// LatestEvent 最新的一条事件，时间相同取 ID 大的
	LatestEvent(ctx context.Context, messageID uint64) (domain.Event, error)
	// Timeline 新的在前
	Timeline(ctx context.Context, messageID uint64) ([]domain.Event, error)
	EngagementStats(ctx context.Context, messageID uint64) (domain.EngagementStats, error)
	// Cancel 取消还没有发出去的消息并记录 CANCELLED 事件，已经不能取消时返回 Conflict
	Cancel(ctx context.Context, messageID uint64, reason string) (domain.TrackResult, error)
}

type tracker struct {
	repo   repository.MessageRepository
	index  DedupIndex
	locker lock.KeyedLocker
	prefs  preference.Service
	ids    id.Generator
	cfg    Config
	now    func() time.Time
	logger *elog.Component
}

func NewService(repo repository.MessageRepository, index DedupIndex, locker lock.KeyedLocker,
	prefs preference.Service, ids id.Generator, cfg Config,
) Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &tracker{
		repo:   repo,
		index:  index,
		locker: locker,
		prefs:  prefs,
		ids:    ids,
		cfg:    cfg,
		now:    time.Now,
		logger: elog.DefaultLogger,
	}
}

func (t *tracker) OnSignal(ctx context.Context, sig domain.Signal) (domain.TrackResult, error) {
	sig.Fingerprint = signalFingerprint(sig)
	if err := sig.Validate(); err != nil {
		return domain.TrackResult{}, err
	}
	res, err := t.trackLocked(ctx, sig)
	if err != nil {
		t.logger.Error("处理信号失败",
			elog.String("kind", sig.Kind.String()),
			elog.String("stampId", sig.StampID),
			elog.String("fingerprint", sig.Fingerprint),
			elog.FieldErr(err))
		return domain.TrackResult{}, err
	}
	if res.Conflict {
		t.logger.Warn("状态流转被拒绝，只记录事件",
			elog.Any("messageId", res.Message.ID),
			elog.String("kind", sig.Kind.String()),
			elog.String("status", res.Message.Status.String()),
			elog.String("reason", res.Reason))
	}
	// 偏好有自己的锁，放在消息锁外面
	t.afterTrack(ctx, sig)
	return res, nil
}

// attempt 一次 OnSignal 内跨重试共享的状态
type attempt struct {
	// 偏好额度只占用一次，重试时沿用第一次的结果
	reserved bool
	decision preference.Decision
}

func (t *tracker) trackLocked(ctx context.Context, sig domain.Signal) (domain.TrackResult, error) {
	unlock, err := t.locker.Lock(ctx, sig.LockKey())
	if err != nil {
		return domain.TrackResult{}, err
	}
	defer unlock()

	strategy, err := retry.NewRetry(t.cfg.Retry)
	if err != nil {
		return domain.TrackResult{}, err
	}
	var (
		res   domain.TrackResult
		state attempt
	)
	err = retry.Do(ctx, strategy, retryable, func(ctx context.Context) error {
		var er error
		res, er = t.track(ctx, sig, &state)
		return er
	})
	return res, err
}

// retryable 别的实例抢先创建了同一个 stamp，或者并发修改了同一条消息
func retryable(err error) bool {
	return errors.Is(err, errs.ErrMessageDuplicate) || errors.Is(err, errs.ErrVersionMismatch)
}

// afterTrack 退订信号同步到联系人的渠道偏好，失败只记日志
func (t *tracker) afterTrack(ctx context.Context, sig domain.Signal) {
	if sig.Kind != domain.SignalUnsubscribed || sig.ContactID == 0 {
		return
	}
	if _, err := t.prefs.OptOut(ctx, sig.ContactID, sig.Channel, domain.ConsentNotifications); err != nil {
		t.logger.Error("退订同步到偏好失败",
			elog.Int64("contactId", sig.ContactID),
			elog.String("channel", sig.Channel.String()),
			elog.FieldErr(err))
	}
}

func (t *tracker) track(ctx context.Context, sig domain.Signal, state *attempt) (domain.TrackResult, error) {
	now := t.now()
	at := sig.Timestamp
	if at.IsZero() {
		at = now
	}
	msg, found, err := t.index.Lookup(ctx, sig.StampID, sig.Fingerprint, now)
	if err != nil {
		return domain.TrackResult{}, err
	}
	if !found {
		return t.create(ctx, sig, state, at, now)
	}
	return t.update(ctx, msg, sig, at)
}

func (t *tracker) create(ctx context.Context, sig domain.Signal, state *attempt, at, now time.Time) (domain.TrackResult, error) {
	msgID, err := t.ids.NextID()
	if err != nil {
		return domain.TrackResult{}, err
	}
	recipients, err := t.recipients(sig)
	if err != nil {
		return domain.TrackResult{}, err
	}
	msg := domain.Message{
		ID:             msgID,
		NotificationID: sig.NotificationID,
		Channel:        sig.Channel,
		Status:         domain.MessageStatusPending,
		Direction:      domain.DirectionOutbound,
		Transport:      sig.Transport,
		StampID:        sig.StampID,
		Fingerprint:    sig.Fingerprint,
		Payload:        sig.ChannelPayload,
		Content:        sig.Content,
		Recipients:     recipients,
		Ctime:          now,
	}
	if err = msg.Validate(); err != nil {
		return domain.TrackResult{}, err
	}

	res := domain.TrackResult{Created: true}
	if sig.Kind == domain.SignalQueued && sig.ContactID != 0 {
		if !state.reserved {
			decision, er := t.prefs.Reserve(ctx, sig.ContactID, sig.Channel, preference.SendRequest{
				Category: sig.Category,
				Priority: sig.Priority,
				Sender:   sig.Sender,
				SendAt:   at,
			})
			if er != nil {
				return domain.TrackResult{}, er
			}
			state.reserved, state.decision = true, decision
		}
		if !state.decision.Allowed {
			return t.block(ctx, msg, sig, at, string(state.decision.Reason))
		}
	}

	event, err := t.newEvent(msg, sig, at)
	if err != nil {
		return domain.TrackResult{}, err
	}
	t.apply(&msg, &res, sig, event, at)
	created, err := t.repo.Create(ctx, msg, event)
	if err != nil {
		return domain.TrackResult{}, err
	}
	t.index.Remember(created)
	res.Message, res.Event = created, event
	return res, nil
}

// block 偏好拒绝了首次发送，消息直接取消
func (t *tracker) block(ctx context.Context, msg domain.Message, sig domain.Signal, at time.Time, reason string) (domain.TrackResult, error) {
	eventID, err := t.ids.NextID()
	if err != nil {
		return domain.TrackResult{}, err
	}
	msg.Status = domain.MessageStatusCancelled
	msg.FailureReason = reason
	event := domain.Event{
		ID:         eventID,
		MessageID:  msg.ID,
		Type:       domain.EventTypeBlocked,
		OccurredAt: at,
		Data: map[string]any{
			"reason": reason,
			"signal": sig.Kind.String(),
		},
	}
	created, err := t.repo.Create(ctx, msg, event)
	if err != nil {
		return domain.TrackResult{}, err
	}
	t.index.Remember(created)
	return domain.TrackResult{
		Message: created,
		Event:   event,
		Created: true,
		Blocked: true,
		Reason:  reason,
	}, nil
}

func (t *tracker) update(ctx context.Context, msg domain.Message, sig domain.Signal, at time.Time) (domain.TrackResult, error) {
	res := domain.TrackResult{Duplicate: true}
	changed := false
	// 指纹命中的消息没有 stamp 时沿用信号的 stamp
	if msg.StampID == "" && sig.StampID != "" {
		msg.StampID = sig.StampID
		changed = true
	}
	if msg.Transport == "" && sig.Transport != "" {
		msg.Transport = sig.Transport
		changed = true
	}
	event, err := t.newEvent(msg, sig, at)
	if err != nil {
		return domain.TrackResult{}, err
	}
	if t.apply(&msg, &res, sig, event, at) {
		changed = true
	}
	if !changed {
		if err = t.repo.AppendEvent(ctx, event); err != nil {
			return domain.TrackResult{}, err
		}
		res.Message, res.Event = msg, event
		return res, nil
	}
	updated, err := t.repo.Update(ctx, msg, event)
	if err != nil {
		return domain.TrackResult{}, err
	}
	t.index.Remember(updated)
	res.Message, res.Event = updated, event
	return res, nil
}

// apply 把信号作用到消息上，返回消息是否有变化。
// 状态只沿着合法的边前进，被拒绝时设置 Conflict
func (t *tracker) apply(msg *domain.Message, res *domain.TrackResult, sig domain.Signal, event domain.Event, at time.Time) bool {
	changed := t.applyRecipient(msg, sig)
	target, ok := sig.Kind.TargetStatus()
	if !ok || msg.Status == target {
		return changed
	}
	path, ok := status.Message.Path(msg.Status, target,
		domain.MessageStatusFailed, domain.MessageStatusCancelled, domain.MessageStatusDelivered)
	if !ok {
		res.Conflict = true
		res.Reason = fmt.Sprintf("%s: %s -> %s", errs.ErrInvalidTransition, msg.Status, target)
		return changed
	}
	if slices.Contains(path, domain.MessageStatusRetrying) && msg.RetryCount >= t.cfg.MaxRetries {
		res.Conflict = true
		res.Reason = fmt.Sprintf("%s: retryCount = %d", errs.ErrRetriesExhausted, msg.RetryCount)
		return changed
	}
	for _, next := range path {
		t.enter(msg, next, event, at)
	}
	return true
}

func (t *tracker) enter(msg *domain.Message, next domain.MessageStatus, event domain.Event, at time.Time) {
	msg.Status = next
	switch next {
	case domain.MessageStatusFailed:
		msg.RetryCount++
		msg.FailureReason = failureReason(event.Data)
	case domain.MessageStatusSent:
		msg.SentAt = at
	case domain.MessageStatusQueued:
		msg.FailureReason = ""
	}
}

// applyRecipient 更新接收者维度的状态和计数
func (t *tracker) applyRecipient(msg *domain.Message, sig domain.Signal) bool {
	if sig.RecipientAddress == "" {
		return false
	}
	r, idx, ok := msg.Recipient(sig.RecipientAddress)
	if !ok {
		return false
	}
	switch sig.Kind {
	case domain.SignalDelivered:
		if r.Status != domain.RecipientStatusPending {
			return false
		}
		r.Status = domain.RecipientStatusDelivered
	case domain.SignalOpened:
		r.OpenCount++
	case domain.SignalClicked:
		r.ClickCount++
	case domain.SignalBounced:
		r.Status = domain.RecipientStatusBounced
	case domain.SignalComplained:
		r.Status = domain.RecipientStatusComplained
	case domain.SignalUnsubscribed:
		r.Status = domain.RecipientStatusUnsubscribed
	default:
		return false
	}
	msg.Recipients[idx] = r
	return true
}

func (t *tracker) newEvent(msg domain.Message, sig domain.Signal, at time.Time) (domain.Event, error) {
	eventID, err := t.ids.NextID()
	if err != nil {
		return domain.Event{}, err
	}
	event := domain.Event{
		ID:         eventID,
		MessageID:  msg.ID,
		Type:       sig.Kind.EventType(),
		OccurredAt: at,
		Data:       sig.Payload,
	}
	if r, _, ok := msg.Recipient(sig.RecipientAddress); ok && sig.RecipientAddress != "" {
		event.RecipientID = r.ID
	}
	return event, nil
}

// recipients 没有显式给出接收者时，用信号上的地址作为唯一的接收者
func (t *tracker) recipients(sig domain.Signal) ([]domain.Recipient, error) {
	rs := slices.Clone(sig.Recipients)
	if len(rs) == 0 && sig.RecipientAddress != "" {
		rs = []domain.Recipient{{Kind: domain.RecipientKindTo, Address: sig.RecipientAddress}}
	}
	for i := range rs {
		if rs[i].ID == 0 {
			rid, err := t.ids.NextID()
			if err != nil {
				return nil, err
			}
			rs[i].ID = rid
		}
		if rs[i].Kind == "" {
			rs[i].Kind = domain.RecipientKindTo
		}
		if rs[i].Status == "" {
			rs[i].Status = domain.RecipientStatusPending
		}
	}
	return rs, nil
}

func (t *tracker) Cancel(ctx context.Context, messageID uint64, reason string) (domain.TrackResult, error) {
	msg, err := t.repo.FindByID(ctx, messageID)
	if err != nil {
		return domain.TrackResult{}, err
	}
	unlock, err := t.locker.Lock(ctx, msg.LockKey())
	if err != nil {
		return domain.TrackResult{}, err
	}
	defer unlock()

	strategy, err := retry.NewRetry(t.cfg.Retry)
	if err != nil {
		return domain.TrackResult{}, err
	}
	var res domain.TrackResult
	err = retry.Do(ctx, strategy, retryable, func(ctx context.Context) error {
		var er error
		res, er = t.cancel(ctx, messageID, reason)
		return er
	})
	if err != nil {
		t.logger.Error("取消消息失败",
			elog.Any("messageId", messageID),
			elog.FieldErr(err))
		return domain.TrackResult{}, err
	}
	return res, nil
}

func (t *tracker) cancel(ctx context.Context, messageID uint64, reason string) (domain.TrackResult, error) {
	// 拿到锁之后重新读，拿锁之前可能已经有信号推进了状态
	msg, err := t.repo.FindByID(ctx, messageID)
	if err != nil {
		return domain.TrackResult{}, err
	}
	if !status.Message.CanTransition(msg.Status, domain.MessageStatusCancelled) {
		return domain.TrackResult{
			Message:  msg,
			Conflict: true,
			Reason:   fmt.Sprintf("%s: %s -> %s", errs.ErrInvalidTransition, msg.Status, domain.MessageStatusCancelled),
		}, nil
	}
	eventID, err := t.ids.NextID()
	if err != nil {
		return domain.TrackResult{}, err
	}
	event := domain.Event{
		ID:         eventID,
		MessageID:  msg.ID,
		Type:       domain.EventTypeCancelled,
		OccurredAt: t.now(),
		Data: map[string]any{
			"reason": reason,
			"from":   msg.Status.String(),
		},
	}
	msg.Status = domain.MessageStatusCancelled
	msg.FailureReason = reason
	updated, err := t.repo.Update(ctx, msg, event)
	if err != nil {
		return domain.TrackResult{}, err
	}
	t.index.Remember(updated)
	return domain.TrackResult{Message: updated, Event: event}, nil
}

func (t *tracker) LatestEvent(ctx context.Context, messageID uint64) (domain.Event, error) {
	events, err := t.repo.ListEvents(ctx, messageID)
	if err != nil {
		return domain.Event{}, err
	}
	e, ok := domain.LatestEvent(events)
	if !ok {
		return domain.Event{}, fmt.Errorf("%w: messageID = %d", errs.ErrEventNotFound, messageID)
	}
	return e, nil
}

func (t *tracker) Timeline(ctx context.Context, messageID uint64) ([]domain.Event, error) {
	events, err := t.repo.ListEvents(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return domain.SortNewestFirst(events), nil
}

func (t *tracker) EngagementStats(ctx context.Context, messageID uint64) (domain.EngagementStats, error) {
	msg, err := t.repo.FindByID(ctx, messageID)
	if err != nil {
		return domain.EngagementStats{}, err
	}
	stats := msg.Engagement()
	events, err := t.repo.ListEvents(ctx, messageID)
	if err != nil {
		return domain.EngagementStats{}, err
	}
	if e, ok := domain.LatestEvent(events); ok {
		stats.LastEventType = e.Type
	}
	return stats, nil
}

// signalFingerprint 信号没有带指纹时，根据正文和接收者计算
func signalFingerprint(sig domain.Signal) string {
	if sig.Fingerprint != "" || sig.Content == nil {
		return sig.Fingerprint
	}
	addrs := slice.Map(sig.Recipients, func(_ int, src domain.Recipient) string {
		return src.Address
	})
	if len(addrs) == 0 && sig.RecipientAddress != "" {
		addrs = []string{sig.RecipientAddress}
	}
	return hash.Fingerprint(sig.Content.Subject, sig.Content.Body, addrs)
}

func failureReason(data map[string]any) string {
	for _, key := range []string{"reason", "error"} {
		if v, ok := data[key].(string); ok && v != "" {
			return v
		}
	}
	return "transport failure"
}
