package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/errs"
	"gitee.com/flycash/notification-tracker/internal/pkg/id"
	"gitee.com/flycash/notification-tracker/internal/pkg/lock"
	"gitee.com/flycash/notification-tracker/internal/pkg/retry"
	"gitee.com/flycash/notification-tracker/internal/repository/memory"
	"gitee.com/flycash/notification-tracker/internal/service/preference"
	"gitee.com/flycash/notification-tracker/internal/service/tracker"
	trackermocks "gitee.com/flycash/notification-tracker/internal/service/tracker/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

func TestServiceSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ServiceTestSuite))
}

type ServiceTestSuite struct {
	suite.Suite
	store   *memory.Store
	tracker tracker.Service
	svc     *service
	now     time.Time
}

func (s *ServiceTestSuite) SetupTest() {
	s.now = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	s.store = memory.NewStore()
	retryCfg := retry.Config{
		Type:          "fixed",
		FixedInterval: &retry.FixedIntervalConfig{MaxRetries: 3, Interval: 1},
	}
	locker := lock.NewLocalLocker()
	ids := id.NewSequence(100)
	prefs := preference.NewService(s.store.Preferences(), preference.NewEngine(), locker, retryCfg)
	s.tracker = tracker.NewService(s.store, tracker.NewRepositoryIndex(s.store, tracker.Window{}),
		locker, prefs, ids, tracker.Config{Retry: retryCfg})
	s.svc = NewService(s.store.Notifications(), s.store, s.tracker, ids).(*service)
	s.svc.now = func() time.Time { return s.now }
}

func (s *ServiceTestSuite) draft() domain.Notification {
	n, err := s.svc.Create(context.Background(), domain.Notification{
		Type:     "order_shipped",
		Channels: []domain.Channel{domain.ChannelEmail, domain.ChannelSMS},
	})
	s.Require().NoError(err)
	return n
}

func targets() []Target {
	return []Target{
		{Channel: domain.ChannelEmail, Address: "a@example.com", Content: &domain.Content{Subject: "已发货", Body: "您的订单已发货"}},
		{Channel: domain.ChannelSMS, Address: "+8613800000000", Content: &domain.Content{Body: "您的订单已发货"}},
	}
}

func (s *ServiceTestSuite) TestCreate() {
	t := s.T()
	n := s.draft()
	assert.NotZero(t, n.ID)
	assert.Equal(t, domain.NotificationStatusDraft, n.Status)
	assert.Equal(t, domain.DirectionOutbound, n.Direction)
	assert.Equal(t, domain.ImportanceNormal, n.Importance)
	assert.Equal(t, 1, n.Version)

	_, err := s.svc.Create(context.Background(), domain.Notification{Type: "x"})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func (s *ServiceTestSuite) TestUpdate() {
	t := s.T()
	ctx := context.Background()
	n := s.draft()

	n.Importance = domain.ImportanceUrgent
	updated, err := s.svc.Update(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportanceUrgent, updated.Importance)
	assert.Equal(t, 2, updated.Version)

	// 旧版本
	_, err = s.svc.Update(ctx, n)
	assert.ErrorIs(t, err, errs.ErrVersionMismatch)

	_, err = s.svc.Dispatch(ctx, n.ID, targets())
	require.NoError(t, err)
	updated.Version = 0
	_, err = s.svc.Update(ctx, updated)
	assert.ErrorIs(t, err, errs.ErrNotificationNotEdit)
}

func (s *ServiceTestSuite) TestDispatch() {
	t := s.T()
	ctx := context.Background()
	n := s.draft()

	res, err := s.svc.Dispatch(ctx, n.ID, targets())
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationStatusQueued, res.Notification.Status)
	require.Len(t, res.Results, 2)

	msgs, err := s.svc.Messages(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotEqual(t, msgs[0].StampID, msgs[1].StampID)
	for _, m := range msgs {
		assert.Equal(t, n.ID, m.NotificationID)
		assert.Equal(t, domain.MessageStatusQueued, m.Status)
		assert.NotEmpty(t, m.Fingerprint)
		assert.Len(t, m.StampID, 36)
	}

	// 已经入队的通知不能再次发送
	_, err = s.svc.Dispatch(ctx, n.ID, targets())
	assert.ErrorIs(t, err, errs.ErrNotificationNotSend)
}

func (s *ServiceTestSuite) TestDispatch_InvalidTargets() {
	t := s.T()
	ctx := context.Background()
	n := s.draft()

	_, err := s.svc.Dispatch(ctx, n.ID, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = s.svc.Dispatch(ctx, n.ID, []Target{{Channel: domain.ChannelPush, Address: "token"}})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = s.svc.Dispatch(ctx, n.ID, []Target{{Channel: domain.ChannelEmail}})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	got, err := s.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationStatusDraft, got.Status)
}

func (s *ServiceTestSuite) TestScheduleAndDispatchDue() {
	t := s.T()
	ctx := context.Background()
	n := s.draft()

	at := s.now.Add(time.Hour)
	scheduled, err := s.svc.Schedule(ctx, n.ID, at, targets()[:1])
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationStatusScheduled, scheduled.Status)
	assert.Equal(t, at, scheduled.ScheduledAt)

	// 还没到时间
	_, err = s.svc.Dispatch(ctx, n.ID, targets())
	assert.ErrorIs(t, err, errs.ErrNotificationNotSend)
	cnt, err := s.svc.DispatchDue(ctx, s.now, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, cnt)

	s.now = at
	task := NewDispatchTask(s.svc, nil, 10, time.Minute)
	task.now = func() time.Time { return s.now }
	cnt, err = task.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	got, err := s.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationStatusQueued, got.Status)
	msgs, err := s.svc.Messages(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.ChannelEmail, msgs[0].Channel)
}

func (s *ServiceTestSuite) TestCancel() {
	t := s.T()
	ctx := context.Background()
	n := s.draft()
	_, err := s.svc.Dispatch(ctx, n.ID, targets())
	require.NoError(t, err)

	cancelled, err := s.svc.Cancel(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationStatusCancelled, cancelled.Status)
	msgs, err := s.svc.Messages(ctx, n.ID)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.Equal(t, domain.MessageStatusCancelled, m.Status)
		// 取消也留在事件时间线里
		e, er := s.tracker.LatestEvent(ctx, m.ID)
		require.NoError(t, er)
		assert.Equal(t, domain.EventTypeCancelled, e.Type)
		assert.Equal(t, m.ID, e.MessageID)
	}

	_, err = s.svc.Cancel(ctx, n.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func (s *ServiceTestSuite) TestRefresh() {
	ctx := context.Background()

	testCases := []struct {
		name    string
		signals []domain.SignalKind
		want    domain.NotificationStatus
	}{
		{name: "全部成功", signals: []domain.SignalKind{domain.SignalTransportSuccess, domain.SignalDelivered}, want: domain.NotificationStatusSent},
		{name: "一个失败一个成功", signals: []domain.SignalKind{domain.SignalTransportFailure, domain.SignalTransportSuccess}, want: domain.NotificationStatusFailed},
		{name: "一个在发送中", signals: []domain.SignalKind{domain.SignalTransportAccepted, domain.SignalTransportSuccess}, want: domain.NotificationStatusSending},
		{name: "都还在队列里", signals: []domain.SignalKind{domain.SignalQueued, domain.SignalQueued}, want: domain.NotificationStatusQueued},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			t := s.T()
			n := s.draft()
			res, err := s.svc.Dispatch(ctx, n.ID, targets())
			require.NoError(t, err)
			for i, kind := range tc.signals {
				msg := res.Results[i].Message
				_, err = s.tracker.OnSignal(ctx, domain.Signal{Kind: kind, StampID: msg.StampID, Channel: msg.Channel})
				require.NoError(t, err)
			}
			got, err := s.svc.Refresh(ctx, n.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Status)
			if tc.want == domain.NotificationStatusSent {
				assert.Equal(t, s.now, got.SentAt)
			} else {
				assert.True(t, got.SentAt.IsZero())
			}
		})
	}
}

func (s *ServiceTestSuite) TestDelete() {
	t := s.T()
	ctx := context.Background()
	n := s.draft()
	res, err := s.svc.Dispatch(ctx, n.ID, targets())
	require.NoError(t, err)

	require.NoError(t, s.svc.Delete(ctx, n.ID))
	_, err = s.svc.Get(ctx, n.ID)
	assert.ErrorIs(t, err, errs.ErrNotificationNotFound)
	_, err = s.store.FindByStampID(ctx, res.Results[0].Message.StampID)
	assert.ErrorIs(t, err, errs.ErrMessageNotFound)
}

func TestDispatch_TrackerError(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	mockTracker := trackermocks.NewMockService(ctrl)
	store := memory.NewStore()
	svc := NewService(store.Notifications(), store, mockTracker, id.NewSequence(0))
	ctx := context.Background()

	n, err := svc.Create(ctx, domain.Notification{Type: "t", Channels: []domain.Channel{domain.ChannelEmail, domain.ChannelSMS}})
	require.NoError(t, err)

	gomock.InOrder(
		mockTracker.EXPECT().OnSignal(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, sig domain.Signal) (domain.TrackResult, error) {
				assert.Equal(t, domain.SignalQueued, sig.Kind)
				assert.Equal(t, n.ID, sig.NotificationID)
				assert.NotEmpty(t, sig.StampID)
				return domain.TrackResult{Created: true}, nil
			}),
		mockTracker.EXPECT().OnSignal(gomock.Any(), gomock.Any()).
			Return(domain.TrackResult{}, errors.New("mock error")),
	)

	res, err := svc.Dispatch(ctx, n.ID, targets())
	assert.Error(t, err)
	assert.Len(t, res.Results, 1)
	assert.Equal(t, domain.NotificationStatusQueued, res.Notification.Status)
}

func TestScheduledTargets(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		ctx     map[string]any
		want    []Target
		wantErr error
	}{
		{
			name: "内存里的类型",
			ctx:  map[string]any{targetsKey: []Target{{Channel: domain.ChannelSMS, Address: "1"}}},
			want: []Target{{Channel: domain.ChannelSMS, Address: "1"}},
		},
		{
			name: "反序列化出来的类型",
			ctx: map[string]any{targetsKey: []any{
				map[string]any{"channel": "EMAIL", "address": "a@example.com", "contactId": float64(3)},
			}},
			want: []Target{{Channel: domain.ChannelEmail, Address: "a@example.com", ContactID: 3}},
		},
		{name: "没有目标", ctx: map[string]any{}, wantErr: errs.ErrInvalidParameter},
		{name: "格式不对", ctx: map[string]any{targetsKey: "oops"}, wantErr: errs.ErrInvalidParameter},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := scheduledTargets(domain.Notification{Context: tc.ctx})
			assert.ErrorIs(t, err, tc.wantErr)
			if tc.wantErr == nil {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestDerive(t *testing.T) {
	t.Parallel()
	msgs := func(statuses ...domain.MessageStatus) []domain.Message {
		res := make([]domain.Message, 0, len(statuses))
		for _, st := range statuses {
			res = append(res, domain.Message{Status: st})
		}
		return res
	}
	testCases := []struct {
		name   string
		msgs   []domain.Message
		want   domain.NotificationStatus
		wantOK bool
	}{
		{name: "没有消息"},
		{name: "全部取消", msgs: msgs(domain.MessageStatusCancelled)},
		{name: "取消的不算", msgs: msgs(domain.MessageStatusCancelled, domain.MessageStatusDelivered), want: domain.NotificationStatusSent, wantOK: true},
		{name: "失败且没有进行中", msgs: msgs(domain.MessageStatusFailed, domain.MessageStatusSent), want: domain.NotificationStatusFailed, wantOK: true},
		{name: "重试中", msgs: msgs(domain.MessageStatusRetrying, domain.MessageStatusQueued), want: domain.NotificationStatusSending, wantOK: true},
		{name: "都在排队", msgs: msgs(domain.MessageStatusQueued, domain.MessageStatusPending)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := derive(tc.msgs)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
