package ioc

import (
	"context"

	signalevt "gitee.com/flycash/notification-tracker/internal/event/signal"
	"gitee.com/flycash/notification-tracker/internal/service/group"
	"gitee.com/flycash/notification-tracker/internal/service/notification"
	"gitee.com/flycash/notification-tracker/internal/service/preference"
	"gitee.com/flycash/notification-tracker/internal/service/tracker"
	"github.com/ecodeclub/mq-api"
)

type App struct {
	Tracker         tracker.Service
	NotificationSvc notification.Service
	PreferenceSvc   preference.Service
	Groups          *group.Registry
	SignalProducer  *signalevt.Producer
	Tasks           []Task
}

func (a *App) StartTasks(ctx context.Context) {
	for _, t := range a.Tasks {
		go func(t Task) {
			t.Start(ctx)
		}(t)
	}
}

func InitSignalProducer(q mq.MQ) *signalevt.Producer {
	p, err := signalevt.NewSignalEventProducer(q)
	if err != nil {
		panic(err)
	}
	return p
}
