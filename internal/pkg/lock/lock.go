package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitee.com/flycash/notification-tracker/internal/errs"
	"github.com/gotomicro/ego/core/elog"
	"github.com/meoying/dlock-go"
)

// KeyedLocker 按 key 互斥。返回的 unlock 必须调用且只调用一次
type KeyedLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker 进程内的按 key 互斥锁。不同的 key 不会共用一把锁，
// 所以持有一个 key 的同时可以再去锁另一个 key
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	// 容量为 1，写入成功表示持有锁
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]*keyLock),
	}
}

// Lock 等待期间 ctx 被取消会返回 ErrLockFailed
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrLockFailed, err)
	}
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, fmt.Errorf("%w: key = %s %w", errs.ErrLockFailed, key, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

// release 没有人持有或者等待时回收
func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

const defaultUnlockTimeout = 3 * time.Second

// DistributedLocker 基于 dlock-go 的分布式锁，多实例部署时使用
type DistributedLocker struct {
	client     dlock.Client
	prefix     string
	expiration time.Duration
	timeout    time.Duration
	logger     *elog.Component
}

// NewDistributedLocker expiration 是锁的过期时间，timeout 是抢锁的最长等待时间
func NewDistributedLocker(client dlock.Client, prefix string, expiration, timeout time.Duration) *DistributedLocker {
	return &DistributedLocker{
		client:     client,
		prefix:     prefix,
		expiration: expiration,
		timeout:    timeout,
		logger:     elog.DefaultLogger,
	}
}

func (d *DistributedLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = d.prefix + key
	l, err := d.client.NewLock(ctx, key, d.expiration)
	if err != nil {
		return nil, fmt.Errorf("%w: 初始化分布式锁失败 %w", errs.ErrLockFailed, err)
	}
	lockCtx, cancel := context.WithTimeout(ctx, d.timeout)
	err = l.Lock(lockCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: key = %s %w", errs.ErrLockFailed, key, err)
	}
	return func() {
		// ctx 可能已经被取消，释放锁不能受它控制
		unCtx, cancel := context.WithTimeout(context.Background(), defaultUnlockTimeout)
		defer cancel()
		if err := l.Unlock(unCtx); err != nil {
			// 释放失败也没关系，等过期
			d.logger.Error("释放分布式锁失败", elog.String("key", key), elog.FieldErr(err))
		}
	}, nil
}
