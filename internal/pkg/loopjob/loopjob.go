package loopjob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gotomicro/ego/core/elog"
	"github.com/meoying/dlock-go"
)

// 多实例部署时只有抢到分布式锁的实例执行任务

const (
	defaultTimeout  = time.Second * 3
	defaultInterval = time.Minute
)

type InfiniteLoop struct {
	dclient dlock.Client
	key     string
	// interval 锁的过期时间，也是抢锁失败之后的等待时间
	interval time.Duration
	logger   *elog.Component
	biz      func(ctx context.Context) error
}

func NewInfiniteLoop(
	dclient dlock.Client,
	// 你要执行的业务。注意当 ctx 被取消的时候，就会退出全部循环
	biz func(ctx context.Context) error,
	key string,
	interval time.Duration,
) *InfiniteLoop {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &InfiniteLoop{
		dclient:  dclient,
		key:      key,
		interval: interval,
		logger:   elog.DefaultLogger.With(elog.String("key", key)),
		biz:      biz,
	}
}

// Run 当 ctx 被取消的时候，就会退出
func (l *InfiniteLoop) Run(ctx context.Context) {
	for {
		lock, err := l.dclient.NewLock(ctx, l.key, l.interval)
		if err != nil {
			l.logger.Error("初始化分布式锁失败，重试", elog.FieldErr(err))
			if !sleep(ctx, l.interval) {
				return
			}
			continue
		}

		lockCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		// 没有拿到锁，不管是系统错误，还是锁被人持有，都没有关系
		err = lock.Lock(lockCtx)
		cancel()
		if err != nil {
			l.logger.Debug("没有抢到分布式锁", elog.FieldErr(err))
			if !sleep(ctx, l.interval) {
				return
			}
			continue
		}

		err = l.bizLoop(ctx, lock)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("执行业务失败，将执行重试", elog.FieldErr(err))
		}
		// ctx 此时可能已经被取消，释放锁要用新的 ctx
		unCtx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		//nolint:contextcheck // 原始 ctx 可能已被取消，但仍需尝试解锁
		unErr := lock.Unlock(unCtx)
		cancel()
		if unErr != nil {
			l.logger.Error("释放分布式锁失败", elog.FieldErr(unErr))
		}
		if ctx.Err() != nil {
			l.logger.Info("任务被取消，退出任务循环")
			return
		}
		if !sleep(ctx, l.interval) {
			return
		}
	}
}

func (l *InfiniteLoop) bizLoop(ctx context.Context, lock dlock.Lock) error {
	for {
		err := l.biz(ctx)
		if err != nil {
			l.logger.Error("业务执行失败", elog.FieldErr(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		refCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		err = lock.Refresh(refCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("分布式锁续约失败 %w", err)
		}
	}
}

// sleep 等待 d，ctx 被取消时返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
