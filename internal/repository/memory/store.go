package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/errs"
)

type prefKey struct {
	contactID int64
	channel   domain.Channel
}

// Store 进程内的存储，语义和 SQL 实现保持一致：stamp 唯一、版本号 CAS、
// 消息和事件同时写入。单机部署和测试使用
type Store struct {
	mu sync.RWMutex

	messages      map[uint64]domain.Message
	stamps        map[string]uint64
	events        map[uint64][]domain.Event
	notifications map[uint64]domain.Notification
	prefs         map[prefKey]domain.ChannelPreference
	prefSeq       uint64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		messages:      map[uint64]domain.Message{},
		stamps:        map[string]uint64{},
		events:        map[uint64][]domain.Event{},
		notifications: map[uint64]domain.Notification{},
		prefs:         map[prefKey]domain.ChannelPreference{},
		now:           time.Now,
	}
}

func (s *Store) FindByID(_ context.Context, id uint64) (domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: id = %d", errs.ErrMessageNotFound, id)
	}
	return cloneMessage(msg), nil
}

func (s *Store) FindByStampID(_ context.Context, stampID string) (domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.stamps[stampID]
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: stampID = %s", errs.ErrMessageNotFound, stampID)
	}
	return cloneMessage(s.messages[id]), nil
}

func (s *Store) FindRecentByFingerprint(_ context.Context, fingerprint string, since time.Time) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Message
	for _, msg := range s.messages {
		if msg.Fingerprint == fingerprint && !msg.Ctime.Before(since) {
			res = append(res, cloneMessage(msg))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Ctime.Equal(res[j].Ctime) {
			return res[i].ID > res[j].ID
		}
		return res[i].Ctime.After(res[j].Ctime)
	})
	return res, nil
}

func (s *Store) ListByNotificationID(_ context.Context, notificationID uint64) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Message
	for _, msg := range s.messages {
		if msg.NotificationID == notificationID {
			res = append(res, cloneMessage(msg))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (s *Store) Create(_ context.Context, msg domain.Message, events ...domain.Event) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; ok {
		return domain.Message{}, fmt.Errorf("%w: id = %d", errs.ErrMessageDuplicate, msg.ID)
	}
	if msg.StampID != "" {
		if _, ok := s.stamps[msg.StampID]; ok {
			return domain.Message{}, fmt.Errorf("%w: stampID = %s", errs.ErrMessageDuplicate, msg.StampID)
		}
		s.stamps[msg.StampID] = msg.ID
	}
	now := s.now()
	if msg.Ctime.IsZero() {
		msg.Ctime = now
	}
	msg.Utime = now
	msg.Version = 1
	msg = cloneMessage(msg)
	s.messages[msg.ID] = msg
	s.events[msg.ID] = append(s.events[msg.ID], events...)
	return cloneMessage(msg), nil
}

func (s *Store) Update(_ context.Context, msg domain.Message, events ...domain.Event) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.messages[msg.ID]
	if !ok || old.Version != msg.Version {
		return domain.Message{}, fmt.Errorf("%w: id = %d, version = %d", errs.ErrVersionMismatch, msg.ID, msg.Version)
	}
	if msg.StampID != old.StampID {
		if owner, ok := s.stamps[msg.StampID]; ok && owner != msg.ID {
			return domain.Message{}, fmt.Errorf("%w: stampID = %s", errs.ErrMessageDuplicate, msg.StampID)
		}
		if old.StampID != "" {
			delete(s.stamps, old.StampID)
		}
		if msg.StampID != "" {
			s.stamps[msg.StampID] = msg.ID
		}
	}
	msg.Version++
	msg.Utime = s.now()
	msg = cloneMessage(msg)
	s.messages[msg.ID] = msg
	s.events[msg.ID] = append(s.events[msg.ID], events...)
	return cloneMessage(msg), nil
}

func (s *Store) AppendEvent(_ context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[event.MessageID]; !ok {
		return fmt.Errorf("%w: id = %d", errs.ErrMessageNotFound, event.MessageID)
	}
	s.events[event.MessageID] = append(s.events[event.MessageID], event)
	return nil
}

func (s *Store) ListEvents(_ context.Context, messageID uint64) ([]domain.Event, error) {
	s.mu.RLock()
	res := slices.Clone(s.events[messageID])
	s.mu.RUnlock()
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Before(res[j])
	})
	return res, nil
}

func (s *Store) CreateNotification(_ context.Context, n domain.Notification) (domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n.Ctime, n.Utime = now, now
	n.Version = 1
	s.notifications[n.ID] = cloneNotification(n)
	return n, nil
}

func (s *Store) FindNotification(_ context.Context, id uint64) (domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return domain.Notification{}, fmt.Errorf("%w: id = %d", errs.ErrNotificationNotFound, id)
	}
	return cloneNotification(n), nil
}

func (s *Store) UpdateNotification(_ context.Context, n domain.Notification) (domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.notifications[n.ID]
	if !ok || old.Version != n.Version {
		return domain.Notification{}, fmt.Errorf("%w: id = %d, version = %d", errs.ErrVersionMismatch, n.ID, n.Version)
	}
	n.Version++
	n.Utime = s.now()
	s.notifications[n.ID] = cloneNotification(n)
	return n, nil
}

func (s *Store) DeleteNotification(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[id]; !ok {
		return fmt.Errorf("%w: id = %d", errs.ErrNotificationNotFound, id)
	}
	delete(s.notifications, id)
	for mid, msg := range s.messages {
		if msg.NotificationID != id {
			continue
		}
		delete(s.messages, mid)
		delete(s.events, mid)
		if msg.StampID != "" {
			delete(s.stamps, msg.StampID)
		}
	}
	return nil
}

func (s *Store) ListDueNotifications(_ context.Context, now time.Time, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Notification
	for _, n := range s.notifications {
		if n.Status == domain.NotificationStatusScheduled && !n.ScheduledAt.After(now) {
			res = append(res, cloneNotification(n))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].ScheduledAt.Equal(res[j].ScheduledAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].ScheduledAt.Before(res[j].ScheduledAt)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *Store) FindPreference(_ context.Context, contactID int64, channel domain.Channel) (domain.ChannelPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[prefKey{contactID: contactID, channel: channel}]
	if !ok {
		return domain.ChannelPreference{}, fmt.Errorf("%w: contactID = %d, channel = %s",
			errs.ErrPreferenceNotFound, contactID, channel)
	}
	return clonePreference(p), nil
}

func (s *Store) SavePreference(_ context.Context, pref domain.ChannelPreference) (domain.ChannelPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prefKey{contactID: pref.ContactID, channel: pref.Channel}
	old, ok := s.prefs[key]
	now := s.now()
	switch {
	case pref.ID == 0 && ok:
		return domain.ChannelPreference{}, fmt.Errorf("%w: contactID = %d, channel = %s",
			errs.ErrVersionMismatch, pref.ContactID, pref.Channel)
	case pref.ID == 0:
		s.prefSeq++
		pref.ID = s.prefSeq
		pref.Version = 1
		pref.Ctime = now
	case !ok || old.Version != pref.Version:
		return domain.ChannelPreference{}, fmt.Errorf("%w: id = %d, version = %d",
			errs.ErrVersionMismatch, pref.ID, pref.Version)
	default:
		pref.Version++
	}
	pref.Utime = now
	s.prefs[key] = clonePreference(pref)
	return pref, nil
}

func cloneMessage(m domain.Message) domain.Message {
	m.Recipients = slices.Clone(m.Recipients)
	if m.Content != nil {
		c := *m.Content
		m.Content = &c
	}
	return m
}

func cloneNotification(n domain.Notification) domain.Notification {
	n.Channels = slices.Clone(n.Channels)
	n.Context = maps.Clone(n.Context)
	return n
}

func clonePreference(p domain.ChannelPreference) domain.ChannelPreference {
	p.QuietHours = slices.Clone(p.QuietHours)
	p.AllowedCategories = slices.Clone(p.AllowedCategories)
	p.BlockedCategories = slices.Clone(p.BlockedCategories)
	p.AllowedSenders = slices.Clone(p.AllowedSenders)
	p.BlockedSenders = slices.Clone(p.BlockedSenders)
	return p
}

// NotificationStore 以 repository.NotificationRepository 的形式暴露通知数据
type NotificationStore struct {
	s *Store
}

func (s *Store) Notifications() NotificationStore {
	return NotificationStore{s: s}
}

func (n NotificationStore) Create(ctx context.Context, nt domain.Notification) (domain.Notification, error) {
	return n.s.CreateNotification(ctx, nt)
}

func (n NotificationStore) FindByID(ctx context.Context, id uint64) (domain.Notification, error) {
	return n.s.FindNotification(ctx, id)
}

func (n NotificationStore) Update(ctx context.Context, nt domain.Notification) (domain.Notification, error) {
	return n.s.UpdateNotification(ctx, nt)
}

func (n NotificationStore) Delete(ctx context.Context, id uint64) error {
	return n.s.DeleteNotification(ctx, id)
}

func (n NotificationStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error) {
	return n.s.ListDueNotifications(ctx, now, limit)
}

// PreferenceStore 以 repository.PreferenceRepository 的形式暴露偏好数据
type PreferenceStore struct {
	s *Store
}

func (s *Store) Preferences() PreferenceStore {
	return PreferenceStore{s: s}
}

func (p PreferenceStore) Find(ctx context.Context, contactID int64, channel domain.Channel) (domain.ChannelPreference, error) {
	return p.s.FindPreference(ctx, contactID, channel)
}

func (p PreferenceStore) Save(ctx context.Context, pref domain.ChannelPreference) (domain.ChannelPreference, error) {
	return p.s.SavePreference(ctx, pref)
}
