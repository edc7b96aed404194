package memory

import (
	"context"
	"testing"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/errs"
	"gitee.com/flycash/notification-tracker/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var (
	_ repository.MessageRepository      = (*Store)(nil)
	_ repository.NotificationRepository = NotificationStore{}
	_ repository.PreferenceRepository   = PreferenceStore{}
)

func TestStoreSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(StoreTestSuite))
}

type StoreTestSuite struct {
	suite.Suite
	store *Store
	now   time.Time
}

func (s *StoreTestSuite) SetupTest() {
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewStore()
	s.store.now = func() time.Time { return s.now }
}

func (s *StoreTestSuite) TestMessage_CreateAndUpdate() {
	t := s.T()
	ctx := context.Background()

	created, err := s.store.Create(ctx, domain.Message{
		ID:      1,
		Channel: domain.ChannelEmail,
		Status:  domain.MessageStatusPending,
		StampID: "S1",
		Content: &domain.Content{Subject: "hi"},
	}, domain.Event{ID: 10, MessageID: 1, Type: domain.EventTypeQueued, OccurredAt: s.now})
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)

	// 同一个 stamp 不能创建第二条
	_, err = s.store.Create(ctx, domain.Message{ID: 2, Channel: domain.ChannelEmail, StampID: "S1"})
	assert.ErrorIs(t, err, errs.ErrMessageDuplicate)

	// 返回的是副本
	created.Content.Subject = "changed"
	found, err := s.store.FindByStampID(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "hi", found.Content.Subject)

	found.Status = domain.MessageStatusQueued
	updated, err := s.store.Update(ctx, found)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	// 旧版本更新失败
	_, err = s.store.Update(ctx, found)
	assert.ErrorIs(t, err, errs.ErrVersionMismatch)

	_, err = s.store.FindByStampID(ctx, "S2")
	assert.ErrorIs(t, err, errs.ErrMessageNotFound)
}

func (s *StoreTestSuite) TestMessage_FindRecentByFingerprint() {
	t := s.T()
	ctx := context.Background()

	_, err := s.store.Create(ctx, domain.Message{ID: 1, Fingerprint: "fp", Ctime: s.now.Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = s.store.Create(ctx, domain.Message{ID: 2, Fingerprint: "fp", Ctime: s.now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = s.store.Create(ctx, domain.Message{ID: 3, Fingerprint: "fp", Ctime: s.now})
	require.NoError(t, err)
	_, err = s.store.Create(ctx, domain.Message{ID: 4, Fingerprint: "other", Ctime: s.now})
	require.NoError(t, err)

	msgs, err := s.store.FindRecentByFingerprint(ctx, "fp", s.now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(3), msgs[0].ID)
	assert.Equal(t, uint64(2), msgs[1].ID)
}

func (s *StoreTestSuite) TestMessage_ListEvents() {
	t := s.T()
	ctx := context.Background()

	_, err := s.store.Create(ctx, domain.Message{ID: 1, StampID: "S1"})
	require.NoError(t, err)
	// 乱序写入，按 (OccurredAt, ID) 读出
	require.NoError(t, s.store.AppendEvent(ctx, domain.Event{ID: 3, MessageID: 1, OccurredAt: s.now}))
	require.NoError(t, s.store.AppendEvent(ctx, domain.Event{ID: 2, MessageID: 1, OccurredAt: s.now}))
	require.NoError(t, s.store.AppendEvent(ctx, domain.Event{ID: 9, MessageID: 1, OccurredAt: s.now.Add(-time.Minute)}))
	assert.ErrorIs(t, s.store.AppendEvent(ctx, domain.Event{ID: 4, MessageID: 2}), errs.ErrMessageNotFound)

	events, err := s.store.ListEvents(ctx, 1)
	require.NoError(t, err)
	ids := make([]uint64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []uint64{9, 2, 3}, ids)
}

func (s *StoreTestSuite) TestNotification_DeleteCascades() {
	t := s.T()
	ctx := context.Background()
	notifications := s.store.Notifications()

	n, err := notifications.Create(ctx, domain.Notification{ID: 100, Status: domain.NotificationStatusDraft})
	require.NoError(t, err)
	_, err = s.store.Create(ctx, domain.Message{ID: 1, NotificationID: n.ID, StampID: "S1"},
		domain.Event{ID: 1, MessageID: 1})
	require.NoError(t, err)
	_, err = s.store.Create(ctx, domain.Message{ID: 2, StampID: "S2"})
	require.NoError(t, err)

	require.NoError(t, notifications.Delete(ctx, n.ID))
	_, err = notifications.FindByID(ctx, n.ID)
	assert.ErrorIs(t, err, errs.ErrNotificationNotFound)
	_, err = s.store.FindByID(ctx, 1)
	assert.ErrorIs(t, err, errs.ErrMessageNotFound)
	events, err := s.store.ListEvents(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, events)
	// stamp 随消息一起释放
	_, err = s.store.Create(ctx, domain.Message{ID: 3, StampID: "S1"})
	assert.NoError(t, err)
	// 其他通知的消息不受影响
	_, err = s.store.FindByID(ctx, 2)
	assert.NoError(t, err)
}

func (s *StoreTestSuite) TestNotification_ListDue() {
	t := s.T()
	ctx := context.Background()
	notifications := s.store.Notifications()

	for i, offset := range []time.Duration{-time.Hour, time.Hour, -2 * time.Hour} {
		_, err := notifications.Create(ctx, domain.Notification{
			ID:          uint64(i + 1),
			Status:      domain.NotificationStatusScheduled,
			ScheduledAt: s.now.Add(offset),
		})
		require.NoError(t, err)
	}
	_, err := notifications.Create(ctx, domain.Notification{ID: 4, Status: domain.NotificationStatusDraft})
	require.NoError(t, err)

	due, err := notifications.ListDue(ctx, s.now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, uint64(3), due[0].ID)
	assert.Equal(t, uint64(1), due[1].ID)
}

func (s *StoreTestSuite) TestPreference_Save() {
	t := s.T()
	ctx := context.Background()
	prefs := s.store.Preferences()

	_, err := prefs.Find(ctx, 1, domain.ChannelEmail)
	assert.ErrorIs(t, err, errs.ErrPreferenceNotFound)

	p, err := prefs.Save(ctx, domain.DefaultChannelPreference(1, domain.ChannelEmail))
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, 1, p.Version)

	// 并发创建，第二次创建失败
	_, err = prefs.Save(ctx, domain.DefaultChannelPreference(1, domain.ChannelEmail))
	assert.ErrorIs(t, err, errs.ErrVersionMismatch)

	p.MessagesToday = 3
	p2, err := prefs.Save(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 2, p2.Version)
	_, err = prefs.Save(ctx, p)
	assert.ErrorIs(t, err, errs.ErrVersionMismatch)

	found, err := prefs.Find(ctx, 1, domain.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, 3, found.MessagesToday)
}
