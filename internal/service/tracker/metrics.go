package tracker

import (
	"context"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsService 为 Service 添加指标收集的装饰器
type MetricsService struct {
	Service
	signalDurationSummary *prometheus.SummaryVec
	signalCounter         *prometheus.CounterVec
}

// NewMetricsService reg 为 nil 时注册到默认的 Registerer
func NewMetricsService(svc Service, reg prometheus.Registerer) *MetricsService {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	signalDurationSummary := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "tracker_signal_duration_seconds",
			Help:       "处理传输层信号的耗时（秒）",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			MaxAge:     time.Minute * 5,
		},
		[]string{"kind", "channel"},
	)
	signalCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_signal_total",
			Help: "按处理结果统计的信号数量",
		},
		[]string{"kind", "channel", "outcome"},
	)
	reg.MustRegister(signalDurationSummary, signalCounter)
	return &MetricsService{
		Service:               svc,
		signalDurationSummary: signalDurationSummary,
		signalCounter:         signalCounter,
	}
}

func (m *MetricsService) OnSignal(ctx context.Context, sig domain.Signal) (domain.TrackResult, error) {
	start := time.Now()
	res, err := m.Service.OnSignal(ctx, sig)
	m.signalDurationSummary.WithLabelValues(sig.Kind.String(), sig.Channel.String()).
		Observe(time.Since(start).Seconds())
	m.signalCounter.WithLabelValues(sig.Kind.String(), sig.Channel.String(), outcome(res, err)).Inc()
	return res, err
}

func outcome(res domain.TrackResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case res.Blocked:
		return "blocked"
	case res.Conflict:
		return "conflict"
	case res.Created:
		return "created"
	default:
		return "updated"
	}
}
