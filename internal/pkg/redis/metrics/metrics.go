package metrics

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const (
	successStatus = "success"
	errorStatus   = "error"
)

var objectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.95: 0.005, 0.99: 0.001}

// Hook 实现了 redis.Hook 接口，统计命令、管道和建连。
// 分布式锁和偏好缓存的 redis 调用都会经过这里
type Hook struct {
	commandCounter    *prometheus.CounterVec
	commandDuration   *prometheus.SummaryVec
	pipelineCounter   *prometheus.CounterVec
	pipelineCommands  prometheus.Counter
	pipelineDuration  prometheus.Summary
	connectionCounter *prometheus.CounterVec
}

// NewMetricsHook reg 为 nil 时注册到默认的 Registerer
func NewMetricsHook(reg prometheus.Registerer) *Hook {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &Hook{
		commandCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_redis_commands_total",
			Help: "Redis 命令执行次数",
		}, []string{"command", "status"}),
		commandDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "tracker_redis_command_duration_seconds",
			Help:       "Redis 命令耗时",
			Objectives: objectives,
		}, []string{"command"}),
		pipelineCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_redis_pipeline_total",
			Help: "Redis 管道执行次数",
		}, []string{"status"}),
		pipelineCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_redis_pipeline_commands_total",
			Help: "Redis 管道里的命令总数",
		}),
		pipelineDuration: prometheus.NewSummary(prometheus.SummaryOpts{
			Name:       "tracker_redis_pipeline_duration_seconds",
			Help:       "Redis 管道耗时",
			Objectives: objectives,
		}),
		connectionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_redis_connections_total",
			Help: "Redis 建连次数",
		}, []string{"status"}),
	}
	reg.MustRegister(
		h.commandCounter,
		h.commandDuration,
		h.pipelineCounter,
		h.pipelineCommands,
		h.pipelineDuration,
		h.connectionCounter,
	)
	return h
}

func (h *Hook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		startTime := time.Now()
		err := next(ctx, cmd)
		h.commandDuration.WithLabelValues(cmd.Name()).Observe(time.Since(startTime).Seconds())
		h.commandCounter.WithLabelValues(cmd.Name(), status(err)).Inc()
		return err
	}
}

func (h *Hook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if len(cmds) == 0 {
			return next(ctx, cmds)
		}
		startTime := time.Now()
		err := next(ctx, cmds)
		h.pipelineDuration.Observe(time.Since(startTime).Seconds())
		h.pipelineCommands.Add(float64(len(cmds)))

		// 任意一条命令失败都算失败
		st := status(err)
		for _, cmd := range cmds {
			if status(cmd.Err()) == errorStatus {
				st = errorStatus
				break
			}
		}
		h.pipelineCounter.WithLabelValues(st).Inc()
		return err
	}
}

func (h *Hook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		st := successStatus
		if err != nil {
			st = errorStatus
		}
		h.connectionCounter.WithLabelValues(st).Inc()
		return conn, err
	}
}

// status redis.Nil 不算失败
func status(err error) string {
	if err != nil && !errors.Is(err, redis.Nil) {
		return errorStatus
	}
	return successStatus
}

// WithMetrics 为Redis客户端添加指标收集功能
func WithMetrics(client *redis.Client, reg prometheus.Registerer) *redis.Client {
	client.AddHook(NewMetricsHook(reg))
	return client
}
