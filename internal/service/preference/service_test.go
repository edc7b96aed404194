package preference

import (
	"context"
	"sync"
	"testing"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/errs"
	"gitee.com/flycash/notification-tracker/internal/pkg/lock"
	"gitee.com/flycash/notification-tracker/internal/pkg/retry"
	"gitee.com/flycash/notification-tracker/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestServiceSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ServiceTestSuite))
}

type ServiceTestSuite struct {
	suite.Suite
	store *memory.Store
	svc   Service
}

func (s *ServiceTestSuite) SetupTest() {
	s.store = memory.NewStore()
	s.svc = NewService(s.store.Preferences(), NewEngine(), lock.NewLocalLocker(), retry.Config{
		Type: "fixed",
		FixedInterval: &retry.FixedIntervalConfig{
			MaxRetries: 3,
			Interval:   1,
		},
	})
}

func (s *ServiceTestSuite) TestGet_DefaultWhenMissing() {
	t := s.T()
	pref, err := s.svc.Get(context.Background(), 7, domain.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pref.ID)
	assert.Equal(t, domain.DefaultChannelPreference(7, domain.ChannelSMS), pref)

	_, err = s.svc.Get(context.Background(), 7, domain.Channel("PIGEON"))
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func (s *ServiceTestSuite) TestSaveAndCheck() {
	t := s.T()
	ctx := context.Background()

	pref := domain.DefaultChannelPreference(1, domain.ChannelEmail)
	pref.BlockedCategories = []string{"marketing"}
	saved, err := s.svc.Save(ctx, pref)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, 1, saved.Version)

	d, err := s.svc.Check(ctx, 1, domain.ChannelEmail, SendRequest{Category: "marketing", SendAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, Decision{Reason: ReasonCategory}, d)

	ok, err := s.svc.CanSend(ctx, 1, domain.ChannelEmail, SendRequest{Category: "billing", SendAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, ok)

	// 旧版本保存失败
	_, err = s.svc.Save(ctx, pref)
	assert.ErrorIs(t, err, errs.ErrVersionMismatch)
}

func (s *ServiceTestSuite) TestReserve() {
	t := s.T()
	ctx := context.Background()

	pref := domain.DefaultChannelPreference(2, domain.ChannelPush)
	pref.MaxPerHour = 2
	_, err := s.svc.Save(ctx, pref)
	require.NoError(t, err)

	base := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		d, err := s.svc.Reserve(ctx, 2, domain.ChannelPush, SendRequest{SendAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := s.svc.Reserve(ctx, 2, domain.ChannelPush, SendRequest{SendAt: base.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, ReasonRateLimited, d.Reason)

	// 拒绝的那次不计数
	got, err := s.svc.Get(ctx, 2, domain.ChannelPush)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessagesThisHour)
	assert.Equal(t, base.Add(time.Minute), got.LastMessageAt)
}

func (s *ServiceTestSuite) TestReserve_CreatesPreferenceOnFirstSend() {
	t := s.T()
	ctx := context.Background()

	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	d, err := s.svc.Reserve(ctx, 3, domain.ChannelEmail, SendRequest{SendAt: now})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	got, err := s.store.FindPreference(ctx, 3, domain.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessagesThisHour)
	assert.Equal(t, now, got.LastMessageAt)
}

func (s *ServiceTestSuite) TestOptOutAndOptIn() {
	t := s.T()
	ctx := context.Background()
	now := time.Now()

	_, err := s.svc.OptOut(ctx, 4, domain.ChannelSMS, domain.ConsentNotifications)
	require.NoError(t, err)
	d, err := s.svc.Check(ctx, 4, domain.ChannelSMS, SendRequest{SendAt: now})
	require.NoError(t, err)
	assert.Equal(t, ReasonOptedOut, d.Reason)

	pref, err := s.svc.OptIn(ctx, 4, domain.ChannelSMS, domain.ConsentNotifications)
	require.NoError(t, err)
	assert.True(t, pref.Consent.NotificationsAllowed)
	assert.Equal(t, 2, pref.Version)

	pref, err = s.svc.OptIn(ctx, 4, domain.ChannelSMS, domain.ConsentMarketing)
	require.NoError(t, err)
	assert.True(t, pref.Consent.MarketingAllowed)

	_, err = s.svc.OptIn(ctx, 4, domain.ChannelSMS, domain.ConsentKind("SURVEY"))
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func (s *ServiceTestSuite) TestRecordSend_Concurrent() {
	t := s.T()
	ctx := context.Background()
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.RecordSend(ctx, 5, domain.ChannelEmail, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.svc.Get(ctx, 5, domain.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, n, got.MessagesThisHour)
	assert.Equal(t, n, got.MessagesToday)
	assert.Equal(t, n, got.MessagesThisWeek)
}

func (s *ServiceTestSuite) TestLockFailure() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.svc.RecordSend(ctx, 6, domain.ChannelEmail, time.Now())
	assert.ErrorIs(s.T(), err, errs.ErrLockFailed)
}
