package ioc

import (
	"context"
	"time"

	signalevt "gitee.com/flycash/notification-tracker/internal/event/signal"
	"github.com/ecodeclub/ekit/retry"
	"github.com/ecodeclub/mq-api"
	"github.com/ecodeclub/mq-api/kafka"
	"github.com/ecodeclub/mq-api/memory"
	"github.com/gotomicro/ego/core/econf"
	"github.com/gotomicro/ego/core/elog"
)

type mqConfig struct {
	// Type kafka 或者 memory
	Type      string   `yaml:"type"`
	Network   string   `yaml:"network"`
	Addresses []string `yaml:"addresses"`
	Topics    []struct {
		Name       string `yaml:"name"`
		Partitions int    `yaml:"partitions"`
	} `yaml:"topics"`
}

func InitMQ() mq.MQ {
	var cfg mqConfig
	if err := econf.UnmarshalKey("mq", &cfg); err != nil {
		panic(err)
	}
	const maxInterval = 10 * time.Second
	const maxRetries = 10
	strategy, err := retry.NewExponentialBackoffRetryStrategy(time.Second, maxInterval, maxRetries)
	if err != nil {
		panic(err)
	}
	for {
		q, err := initMQ(cfg)
		if err == nil {
			return q
		}
		next, ok := strategy.Next()
		if !ok {
			panic("InitMQ 重试失败......")
		}
		time.Sleep(next)
	}
}

func initMQ(cfg mqConfig) (mq.MQ, error) {
	var (
		q   mq.MQ
		err error
	)
	if cfg.Type == "kafka" {
		q, err = kafka.NewMQ(cfg.Network, cfg.Addresses)
		if err != nil {
			return nil, err
		}
	} else {
		q = memory.NewMQ()
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = append(cfg.Topics, struct {
			Name       string `yaml:"name"`
			Partitions int    `yaml:"partitions"`
		}{Name: signalevt.SignalTopic, Partitions: 1})
	}
	for _, t := range cfg.Topics {
		// topic 已经存在时 kafka 会返回错误，不影响使用
		if er := q.CreateTopic(context.Background(), t.Name, t.Partitions); er != nil {
			elog.DefaultLogger.Warn("创建 topic 失败", elog.String("topic", t.Name), elog.FieldErr(er))
		}
	}
	return q, nil
}
