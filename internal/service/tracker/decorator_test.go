package tracker

import (
	"context"
	"errors"
	"testing"

	"gitee.com/flycash/notification-tracker/internal/domain"
	trackermocks "gitee.com/flycash/notification-tracker/internal/service/tracker/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestMetricsService_OnSignal(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := trackermocks.NewMockService(ctrl)
	reg := prometheus.NewRegistry()
	svc := NewTracingService(NewMetricsService(inner, reg))

	sig := domain.Signal{Kind: domain.SignalQueued, StampID: "M1", Channel: domain.ChannelEmail}
	gomock.InOrder(
		inner.EXPECT().OnSignal(gomock.Any(), sig).Return(domain.TrackResult{Created: true}, nil),
		inner.EXPECT().OnSignal(gomock.Any(), sig).Return(domain.TrackResult{Duplicate: true, Conflict: true}, nil),
		inner.EXPECT().OnSignal(gomock.Any(), sig).Return(domain.TrackResult{}, errors.New("mock error")),
	)

	_, err := svc.OnSignal(context.Background(), sig)
	require.NoError(t, err)
	_, err = svc.OnSignal(context.Background(), sig)
	require.NoError(t, err)
	_, err = svc.OnSignal(context.Background(), sig)
	assert.Error(t, err)

	m := svc.Service.(*MetricsService)
	for _, o := range []string{"created", "conflict", "error"} {
		assert.Equal(t, float64(1), testutil.ToFloat64(m.signalCounter.WithLabelValues("QUEUED", "EMAIL", o)), o)
	}
	assert.Equal(t, 1, testutil.CollectAndCount(m.signalDurationSummary))

	// 读接口直接透传
	inner.EXPECT().LatestEvent(gomock.Any(), uint64(3)).Return(domain.Event{ID: 9}, nil)
	e, err := svc.LatestEvent(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), e.ID)
}

func TestOutcome(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name string
		res  domain.TrackResult
		err  error
		want string
	}{
		{name: "出错", err: errors.New("x"), want: "error"},
		{name: "被拦截", res: domain.TrackResult{Created: true, Blocked: true}, want: "blocked"},
		{name: "冲突", res: domain.TrackResult{Duplicate: true, Conflict: true}, want: "conflict"},
		{name: "新建", res: domain.TrackResult{Created: true}, want: "created"},
		{name: "更新", res: domain.TrackResult{Duplicate: true}, want: "updated"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, outcome(tc.res, tc.err))
		})
	}
}
