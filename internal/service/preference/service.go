package preference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/errs"
	"gitee.com/flycash/notification-tracker/internal/pkg/lock"
	"gitee.com/flycash/notification-tracker/internal/pkg/retry"
	"gitee.com/flycash/notification-tracker/internal/repository"
	"github.com/gotomicro/ego/core/elog"
)

// Service 按 (联系人, 渠道) 管理偏好。所有修改计数和授权的操作在同一个 key 上串行
type Service interface {
	// Get 没有配置过时返回默认偏好（ID 为 0）
	Get(ctx context.Context, contactID int64, channel domain.Channel) (domain.ChannelPreference, error)
	Save(ctx context.Context, pref domain.ChannelPreference) (domain.ChannelPreference, error)

	Check(ctx context.Context, contactID int64, channel domain.Channel, req SendRequest) (Decision, error)
	CanSend(ctx context.Context, contactID int64, channel domain.Channel, req SendRequest) (bool, error)
	RecordSend(ctx context.Context, contactID int64, channel domain.Channel, now time.Time) (domain.ChannelPreference, error)
	// Reserve 在同一个锁内判断并记录，允许发送时计数已经加上
	Reserve(ctx context.Context, contactID int64, channel domain.Channel, req SendRequest) (Decision, error)

	OptIn(ctx context.Context, contactID int64, channel domain.Channel, kind domain.ConsentKind) (domain.ChannelPreference, error)
	OptOut(ctx context.Context, contactID int64, channel domain.Channel, kind domain.ConsentKind) (domain.ChannelPreference, error)
}

type service struct {
	repo     repository.PreferenceRepository
	engine   *Engine
	locker   lock.KeyedLocker
	retryCfg retry.Config
	logger   *elog.Component
}

func NewService(repo repository.PreferenceRepository, engine *Engine, locker lock.KeyedLocker, retryCfg retry.Config) Service {
	return &service{
		repo:     repo,
		engine:   engine,
		locker:   locker,
		retryCfg: retryCfg,
		logger:   elog.DefaultLogger,
	}
}

func (s *service) Get(ctx context.Context, contactID int64, channel domain.Channel) (domain.ChannelPreference, error) {
	if !channel.IsValid() {
		return domain.ChannelPreference{}, fmt.Errorf("%w: Channel = %q", errs.ErrInvalidParameter, channel)
	}
	pref, err := s.repo.Find(ctx, contactID, channel)
	if errors.Is(err, errs.ErrPreferenceNotFound) {
		return domain.DefaultChannelPreference(contactID, channel), nil
	}
	return pref, err
}

func (s *service) Save(ctx context.Context, pref domain.ChannelPreference) (domain.ChannelPreference, error) {
	if !pref.Channel.IsValid() {
		return domain.ChannelPreference{}, fmt.Errorf("%w: Channel = %q", errs.ErrInvalidParameter, pref.Channel)
	}
	unlock, err := s.locker.Lock(ctx, lockKey(pref.ContactID, pref.Channel))
	if err != nil {
		return domain.ChannelPreference{}, err
	}
	defer unlock()
	return s.repo.Save(ctx, pref)
}

func (s *service) Check(ctx context.Context, contactID int64, channel domain.Channel, req SendRequest) (Decision, error) {
	pref, err := s.Get(ctx, contactID, channel)
	if err != nil {
		return Decision{}, err
	}
	return s.engine.Check(pref, req), nil
}

func (s *service) CanSend(ctx context.Context, contactID int64, channel domain.Channel, req SendRequest) (bool, error) {
	d, err := s.Check(ctx, contactID, channel, req)
	return d.Allowed, err
}

func (s *service) RecordSend(ctx context.Context, contactID int64, channel domain.Channel, now time.Time) (domain.ChannelPreference, error) {
	return s.mutate(ctx, contactID, channel, func(pref domain.ChannelPreference) (domain.ChannelPreference, bool) {
		return s.engine.RecordSend(pref, now), true
	})
}

func (s *service) Reserve(ctx context.Context, contactID int64, channel domain.Channel, req SendRequest) (Decision, error) {
	var decision Decision
	_, err := s.mutate(ctx, contactID, channel, func(pref domain.ChannelPreference) (domain.ChannelPreference, bool) {
		decision = s.engine.Check(pref, req)
		if !decision.Allowed {
			return pref, false
		}
		return s.engine.RecordSend(pref, req.SendAt), true
	})
	if err != nil {
		return Decision{}, err
	}
	if !decision.Allowed {
		s.logger.Info("偏好拒绝发送",
			elog.Int64("contactId", contactID),
			elog.String("channel", channel.String()),
			elog.String("reason", string(decision.Reason)))
	}
	return decision, nil
}

func (s *service) OptIn(ctx context.Context, contactID int64, channel domain.Channel, kind domain.ConsentKind) (domain.ChannelPreference, error) {
	return s.setConsent(ctx, contactID, channel, kind, true)
}

func (s *service) OptOut(ctx context.Context, contactID int64, channel domain.Channel, kind domain.ConsentKind) (domain.ChannelPreference, error) {
	return s.setConsent(ctx, contactID, channel, kind, false)
}

func (s *service) setConsent(ctx context.Context, contactID int64, channel domain.Channel,
	kind domain.ConsentKind, allowed bool,
) (domain.ChannelPreference, error) {
	check := domain.Consent{}
	if !check.Set(kind, allowed) {
		return domain.ChannelPreference{}, fmt.Errorf("%w: ConsentKind = %q", errs.ErrInvalidParameter, kind)
	}
	return s.mutate(ctx, contactID, channel, func(pref domain.ChannelPreference) (domain.ChannelPreference, bool) {
		pref.Consent.Set(kind, allowed)
		return pref, true
	})
}

// mutate 加锁后读取、修改、保存。fn 返回 false 表示不需要保存。
// 多实例部署但只用了本地锁时，版本号冲突会重新读取再试
func (s *service) mutate(ctx context.Context, contactID int64, channel domain.Channel,
	fn func(pref domain.ChannelPreference) (domain.ChannelPreference, bool),
) (domain.ChannelPreference, error) {
	if !channel.IsValid() {
		return domain.ChannelPreference{}, fmt.Errorf("%w: Channel = %q", errs.ErrInvalidParameter, channel)
	}
	unlock, err := s.locker.Lock(ctx, lockKey(contactID, channel))
	if err != nil {
		return domain.ChannelPreference{}, err
	}
	defer unlock()

	strategy, err := retry.NewRetry(s.retryCfg)
	if err != nil {
		return domain.ChannelPreference{}, err
	}
	var res domain.ChannelPreference
	err = retry.Do(ctx, strategy, func(err error) bool {
		return errors.Is(err, errs.ErrVersionMismatch)
	}, func(ctx context.Context) error {
		pref, err := s.Get(ctx, contactID, channel)
		if err != nil {
			return err
		}
		updated, save := fn(pref)
		if !save {
			res = pref
			return nil
		}
		res, err = s.repo.Save(ctx, updated)
		return err
	})
	return res, err
}

func lockKey(contactID int64, channel domain.Channel) string {
	return fmt.Sprintf("pref:%d:%s", contactID, channel)
}
