package tracker

import (
	"context"
	"errors"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/errs"
	"gitee.com/flycash/notification-tracker/internal/repository"
	"github.com/gotomicro/ego/core/elog"
	ca "github.com/patrickmn/go-cache"
)

// Window 指纹去重的回溯窗口
type Window struct {
	// Duration 大于 0 时回溯固定时长，否则取 Location 下的当天零点
	Duration time.Duration
	Location *time.Location
}

func (w Window) Since(now time.Time) time.Time {
	if w.Duration > 0 {
		return now.Add(-w.Duration)
	}
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DedupIndex 把信号映射到已有的消息
type DedupIndex interface {
	// Lookup 先按 stamp 精确匹配，再在窗口内按指纹匹配。
	// 带有不同 stamp 的指纹候选不会被合并
	Lookup(ctx context.Context, stampID, fingerprint string, now time.Time) (domain.Message, bool, error)
	// Remember 消息写入成功之后调用
	Remember(msg domain.Message)
}

// RepositoryIndex 直接查仓储，唯一性由存储层的 stamp 唯一索引兜底
type RepositoryIndex struct {
	repo   repository.MessageRepository
	window Window
}

func NewRepositoryIndex(repo repository.MessageRepository, window Window) *RepositoryIndex {
	return &RepositoryIndex{
		repo:   repo,
		window: window,
	}
}

func (idx *RepositoryIndex) Lookup(ctx context.Context, stampID, fingerprint string, now time.Time) (domain.Message, bool, error) {
	if stampID != "" {
		msg, err := idx.repo.FindByStampID(ctx, stampID)
		if err == nil {
			return msg, true, nil
		}
		if !errors.Is(err, errs.ErrMessageNotFound) {
			return domain.Message{}, false, err
		}
	}
	if fingerprint == "" {
		return domain.Message{}, false, nil
	}
	candidates, err := idx.repo.FindRecentByFingerprint(ctx, fingerprint, idx.window.Since(now))
	if err != nil {
		return domain.Message{}, false, err
	}
	// 候选按创建时间倒序，取最近的一条
	for _, c := range candidates {
		if stampCompatible(c.StampID, stampID) {
			return c, true, nil
		}
	}
	return domain.Message{}, false, nil
}

func (idx *RepositoryIndex) Remember(domain.Message) {}

func stampCompatible(existing, incoming string) bool {
	return existing == "" || incoming == "" || existing == incoming
}

// CachedIndex 在本地缓存 stamp 到消息 ID 的映射，命中后按 ID 回表确认。
// 只缓存命中，不缓存未命中，别的实例创建的消息不会被漏掉
type CachedIndex struct {
	index  DedupIndex
	repo   repository.MessageRepository
	cache  *ca.Cache
	logger *elog.Component
}

func NewCachedIndex(index DedupIndex, repo repository.MessageRepository, c *ca.Cache) *CachedIndex {
	return &CachedIndex{
		index:  index,
		repo:   repo,
		cache:  c,
		logger: elog.DefaultLogger,
	}
}

func (c *CachedIndex) Lookup(ctx context.Context, stampID, fingerprint string, now time.Time) (domain.Message, bool, error) {
	if stampID != "" {
		if v, ok := c.cache.Get(stampKey(stampID)); ok {
			msg, err := c.repo.FindByID(ctx, v.(uint64))
			if err == nil && msg.StampID == stampID {
				return msg, true, nil
			}
			// 消息被删除或者 stamp 变了
			c.cache.Delete(stampKey(stampID))
			if err != nil && !errors.Is(err, errs.ErrMessageNotFound) {
				c.logger.Warn("按缓存的消息 ID 回表失败", elog.String("stampId", stampID), elog.FieldErr(err))
			}
		}
	}
	msg, ok, err := c.index.Lookup(ctx, stampID, fingerprint, now)
	if err == nil && ok {
		c.Remember(msg)
	}
	return msg, ok, err
}

func (c *CachedIndex) Remember(msg domain.Message) {
	if msg.StampID != "" {
		c.cache.Set(stampKey(msg.StampID), msg.ID, ca.DefaultExpiration)
	}
	c.index.Remember(msg)
}

func stampKey(stampID string) string {
	return "stamp:" + stampID
}
