package ioc

import (
	"context"
	"time"

	signalevt "gitee.com/flycash/notification-tracker/internal/event/signal"
	"gitee.com/flycash/notification-tracker/internal/service/notification"
	"gitee.com/flycash/notification-tracker/internal/service/tracker"
	"github.com/ecodeclub/mq-api"
	"github.com/gotomicro/ego/core/econf"
	"github.com/meoying/dlock-go"
)

type Task interface {
	Start(ctx context.Context)
}

func InitSignalConsumer(svc tracker.Service, q mq.MQ) *signalevt.Consumer {
	groupID := econf.GetString("tracker.consumerGroup")
	if groupID == "" {
		groupID = "notification_tracker"
	}
	c, err := signalevt.NewSignalEventConsumer(svc, q, groupID)
	if err != nil {
		panic(err)
	}
	return c
}

func InitDispatchTask(svc notification.Service, dclient dlock.Client) *notification.DispatchTask {
	type Config struct {
		BatchSize int           `yaml:"batchSize"`
		Interval  time.Duration `yaml:"interval"`
	}
	cfg := Config{
		BatchSize: 100,
		Interval:  10 * time.Second,
	}
	if err := econf.UnmarshalKey("notification.dispatch", &cfg); err != nil {
		panic(err)
	}
	return notification.NewDispatchTask(svc, dclient, cfg.BatchSize, cfg.Interval)
}

func InitTasks(t1 *signalevt.Consumer, t2 *notification.DispatchTask) []Task {
	return []Task{
		t1,
		t2,
	}
}
